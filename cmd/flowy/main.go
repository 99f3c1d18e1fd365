package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/dwizi/flowy/internal/cli"
	"github.com/dwizi/flowy/internal/config"
)

func main() {
	// stdout carries command output and the MCP stream, so logs go to stderr.
	options := &slog.HandlerOptions{Level: logLevel()}
	var handler slog.Handler = slog.NewJSONHandler(os.Stderr, options)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	logger := slog.New(handler)
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	cfg, err := config.Load()
	if err != nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
