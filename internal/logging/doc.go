// Package logging builds the process logger: colorized or JSON output on the
// console, optionally fanned out to a size-rotated log file.
package logging
