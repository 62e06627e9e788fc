// ABOUTME: Standalone stub of the templates and users backends for local testing.
// ABOUTME: Usage: stub-backend [-addr :8081] [-busy] [-delay 0s]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FndMG/mcp-api-wrapper/internal/logging"
	"github.com/FndMG/mcp-api-wrapper/internal/stub"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	busy := flag.Bool("busy", false, "start in busy mode (503 on data endpoints)")
	delay := flag.Duration("delay", 0, "delay before every data response")
	flag.Parse()

	if err := run(*addr, *busy, *delay); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, busy bool, delay time.Duration) error {
	logger := slog.New(logging.NewColorHandler(os.Stdout, slog.LevelDebug))

	backend := stub.New(logger.With("component", "stub"))
	backend.SetBusy(busy)
	backend.SetDelay(delay)

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub backend listening", "addr", addr, "busy", busy, "delay", delay)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
