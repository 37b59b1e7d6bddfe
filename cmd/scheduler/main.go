package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/quran-entitlements/internal/app/scheduler"
	"github.com/magabrotheeeer/quran-entitlements/internal/config"
	"github.com/magabrotheeeer/quran-entitlements/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting scheduler", slog.String("env", cfg.Env),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("window", cfg.ExpiringWindow))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := scheduler.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize scheduler", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("scheduler stopped with error", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("scheduler stopped gracefully")
}
