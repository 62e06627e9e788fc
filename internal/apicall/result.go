// ABOUTME: Result and Failure types returned by the backend call wrapper.
// ABOUTME: Failures are data, never Go errors, so tools can return them verbatim.

package apicall

import (
	"encoding/json"
	"fmt"
)

// StatusError is the status value of every Failure.
const StatusError = "error"

// Failure is the structured failure shape returned instead of raising.
type Failure struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Error implements error so a Failure can be wrapped or logged like one.
func (f *Failure) Error() string { return f.Message }

// Result is either decoded JSON (Data) or a Failure.
type Result struct {
	Data    any
	Failure *Failure
}

// Succeeded wraps a decoded payload.
func Succeeded(data any) Result {
	return Result{Data: data}
}

// Failed builds a failure result with a formatted message.
func Failed(format string, args ...any) Result {
	return Result{Failure: &Failure{Status: StatusError, Message: fmt.Sprintf(format, args...)}}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Failure == nil }

// Err returns the failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// MarshalJSON encodes the payload on success and the failure object otherwise.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(r.Failure)
	}
	return json.Marshal(r.Data)
}

// IsFailure reports whether raw JSON is the failure shape: an object whose
// "status" is "error" and which carries a string "message".
func IsFailure(raw []byte) bool {
	var probe struct {
		Status  string  `json:"status"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Status == StatusError && probe.Message != nil
}
