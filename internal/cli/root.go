package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/flowy/internal/app"
	"github.com/dwizi/flowy/internal/client"
	"github.com/dwizi/flowy/internal/config"
	"github.com/dwizi/flowy/internal/mcpserver"
	"github.com/dwizi/flowy/internal/tui"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "flowy",
		Short:         "Flowy is a WorkFlowy launcher backed by a local outline cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newQueryCommand(logger))
	root.AddCommand(newInvokeCommand(logger))
	root.AddCommand(newAuthCommand(logger))
	root.AddCommand(newTUICommand(logger))
	root.AddCommand(newMCPCommand(logger))
	root.AddCommand(newTreeCommand(logger))
	root.AddCommand(newRefreshCommand(logger))
	root.AddCommand(newStatusCommand(logger))
	root.AddCommand(newHealthCommand(logger))
	root.AddCommand(newJournalCommand(logger))
	root.AddCommand(newEventsCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			runtime, err := app.New(cfg, app.Options{Version: version, HTTP: true, Background: true}, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newTUICommand(logger *slog.Logger) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the interactive launcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			// The alternate screen owns the terminal, so logs go to a file.
			fileLogger, closeLog := tuiLogger(logger)
			defer closeLog()
			backend, closeBackend, err := openBackend(ctx, direct, true, fileLogger)
			if err != nil {
				return err
			}
			defer closeBackend()
			return tui.Run(ctx, backend, fileLogger)
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "run an in-process cache instead of talking to flowy serve")
	return cmd
}

func newMCPCommand(logger *slog.Logger) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the launcher as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			backend, closeBackend, err := openBackend(ctx, direct, true, logger)
			if err != nil {
				return err
			}
			defer closeBackend()
			return mcpserver.Serve(ctx, mcpserver.New(backend, version, logger))
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "run an in-process cache instead of talking to flowy serve")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

// openBackend returns the HTTP client for a running server, or with direct
// set an in-process runtime primed with one refresh. A background runtime
// keeps refreshing until ctx ends.
func openBackend(ctx context.Context, direct, background bool, logger *slog.Logger) (client.Backend, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !direct {
		return client.New(cfg), func() {}, nil
	}

	runtime, err := app.New(cfg, app.Options{Version: version, Background: background}, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := runtime.Prime(ctx); err != nil {
		logger.Warn("initial refresh failed", "error", err)
	}
	if !background {
		return runtime.Backend(), func() { _ = runtime.Close() }, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- runtime.Run(runCtx)
	}()
	closeFn := func() {
		cancel()
		if err := <-done; err != nil {
			logger.Warn("runtime stopped with error", "error", err)
		}
		_ = runtime.Close()
	}
	return runtime.Backend(), closeFn, nil
}

func tuiLogger(fallback *slog.Logger) (*slog.Logger, func()) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg, err := config.Load()
	if err != nil {
		return discard, func() {}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		if fallback != nil {
			fallback.Warn("tui log disabled", "error", err)
		}
		return discard, func() {}
	}
	file, err := os.OpenFile(filepath.Join(cfg.DataDir, "tui.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if fallback != nil {
			fallback.Warn("tui log disabled", "error", err)
		}
		return discard, func() {}
	}
	return slog.New(slog.NewTextHandler(file, nil)), func() { _ = file.Close() }
}

func printJSON(cmd *cobra.Command, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	return err
}
