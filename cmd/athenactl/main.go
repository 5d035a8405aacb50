package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/athenakit/athenakit/internal/cli/athenactl"
	"github.com/athenakit/athenakit/internal/client"
	"github.com/athenakit/athenakit/internal/config"
	"github.com/athenakit/athenakit/internal/observability"
	"github.com/athenakit/athenakit/internal/progress"
)

func main() {
	cfg, err := config.LoadFromEnv("athenactl")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Observability.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	athena, err := client.New(ctx, cfg, client.Options{
		Logger:   logger,
		Progress: progress.BarFactory(os.Stderr, progress.Options{}),
	})
	if err != nil {
		logger.Error("failed to initialize athena client", slog.Any("error", err))
		os.Exit(1)
	}

	code := athenactl.Run(ctx, os.Args[1:], athenactl.Options{
		Client: athena,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
