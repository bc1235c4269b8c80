// Command solbot watches Telegram chats and the DEX Screener pair feed for
// Solana tokens, runs safety checks and trend scoring on each, and alerts
// when a safe token is trending.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/solbot/internal/app"
	"github.com/alanyoungcy/solbot/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "config.toml", "path to configuration file")
		mode       = flag.String("mode", "", "override the operating mode (full, chat, stream, server)")
		logFormat  = flag.String("log-format", "json", "log output format: json or text")
		checkOnly  = flag.Bool("check", false, "validate the configuration and exit")
	)
	flag.Parse()

	logger := newLogger(os.Stdout, *logFormat, slog.LevelInfo)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = newLogger(os.Stdout, *logFormat, parseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *checkOnly {
		fmt.Fprintf(os.Stdout, "%s: configuration ok (mode %s)\n", *configPath, cfg.Mode)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	err = application.Run(ctx)
	application.Close()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("solbot stopped")
	default:
		logger.Error("solbot exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// parseLevel maps a validated level name onto slog; unknown names fall back
// to info.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
