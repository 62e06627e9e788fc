// ABOUTME: Operator subcommands: health probe, tool listing and one-shot tool calls.
// ABOUTME: tools and call run the tool stack in-process against the configured backends.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FndMG/mcp-api-wrapper/internal/config"
	"github.com/FndMG/mcp-api-wrapper/internal/logging"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
	"github.com/FndMG/mcp-api-wrapper/internal/server"
)

// localAddr turns a listen address into one a local client can dial.
func localAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func runHealth(ctx context.Context, cfg *config.Config, out io.Writer) error {
	url := fmt.Sprintf("http://%s/health", localAddr(cfg.Server.HTTPAddr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "healthy")
	return nil
}

// quietServer builds the tool stack with logs on stderr so stdout carries only results.
func quietServer(cfg *config.Config) (*server.Server, io.Closer, error) {
	logCfg := cfg.Logging
	logCfg.Level = "warn"
	logger, closer, err := logging.Setup(logCfg, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	srv, err := server.New(cfg, logger)
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}
	return srv, closer, nil
}

func runTools(cfg *config.Config, out io.Writer) error {
	srv, closer, err := quietServer(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	packOf := make(map[string]string)
	for _, info := range srv.Packs() {
		for _, name := range info.ToolNames {
			packOf[name] = info.ID
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPACK\tDESCRIPTION")
	for _, def := range srv.Tools() {
		summary, _, _ := strings.Cut(def.Description, "\n")
		fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Name, packOf[def.Name], summary)
	}
	return tw.Flush()
}

func newCallCmd(load func() (*config.Config, error)) *cobra.Command {
	var rawArgs []string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Run one tool and print its JSON result",
		Example: `  mcp-api-wrapper call get_template_list
  mcp-api-wrapper call get_user_detail --arg user_id=2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseArgs(rawArgs)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			srv, closer, err := quietServer(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			if !srv.HasTool(args[0]) {
				return fmt.Errorf("%w: %s (run 'tools' to list them)", packs.ErrToolNotFound, args[0])
			}
			output, err := srv.Call(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), output)
		},
	}
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "tool argument as key=value (value parsed as JSON when possible)")
	return cmd
}

// parseArgs turns key=value pairs into a JSON object. Values that parse as
// JSON keep their type; anything else is a string.
func parseArgs(pairs []string) (json.RawMessage, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q: want key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = json.RawMessage(value)
		} else {
			args[key] = value
		}
	}
	return json.Marshal(args)
}

func printJSON(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}
