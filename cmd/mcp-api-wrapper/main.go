// ABOUTME: Entry point for mcp-api-wrapper, the MCP server fronting the backend REST APIs.
// ABOUTME: Subcommands serve, health, tools, call and version.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/FndMG/mcp-api-wrapper/internal/config"
	"github.com/FndMG/mcp-api-wrapper/internal/logging"
	"github.com/FndMG/mcp-api-wrapper/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                _              
 _ __ ___   ___ _ __        __ _ _ __ (_)      
| '_ ' _ \ / __| '_ \ _____/ _' | '_ \| |_____ 
| | | | | | (__| |_) |_____| (_| | |_) | |_____|
|_| |_| |_|\___| .__/      \__,_| .__/|_|      wrapper
               |_|              |_|            
`

// configPath returns the config file path. Priority: --config flag >
// MCP_API_WRAPPER_CONFIG env var > none (defaults plus environment).
func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("MCP_API_WRAPPER_CONFIG")
}

func main() {
	server.Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "mcp-api-wrapper",
		Short: "MCP server exposing backend REST APIs as tools",
		Long: `mcp-api-wrapper serves the Model Context Protocol over Streamable HTTP and
exposes read-only backend REST endpoints (templates, users) as tools.

Configuration is read from an optional YAML or TOML file, a .env file in the
working directory and environment variables such as API_HOST_NAME,
SYSTEM2_HOST_NAME and TIME_OUT_SECONDS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (env MCP_API_WRAPPER_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath(cfgFile))
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the MCP server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runServe(cmd.Context(), cfg, configPath(cfgFile), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Check the health of a running server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runHealth(cmd.Context(), cfg, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "tools",
			Short: "List the tools the server exposes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runTools(cfg, cmd.OutOrStdout())
			},
		},
		newCallCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "mcp-api-wrapper %s\n", version)
			},
		},
	)

	return rootCmd
}

func runServe(ctx context.Context, cfg *config.Config, path string, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	logger, closer, err := logging.Setup(cfg.Logging, out)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if path != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Config:    %s\n", path)
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "API:       %s\n", cfg.Backends.API.HostName)
	if cfg.Backends.System2.HostName != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "System2:   %s\n", cfg.Backends.System2.HostName)
	}

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(out, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	} else {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	fmt.Fprintln(out)

	logger.Info("starting mcp-api-wrapper",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
		"timeout", cfg.HTTP.Timeout,
		"auth_mode", cfg.Auth.Mode,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}
