package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mattheo4427/eventy-core/internal/app"
	"github.com/Mattheo4427/eventy-core/internal/config"
	"github.com/Mattheo4427/eventy-core/internal/purchase"
	"github.com/Mattheo4427/eventy-core/pkg/logger"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger.
	log := logger.New("eventy-agent", cfg.LogLevel)
	log.Info("starting eventy agent",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	// Create the application with all dependencies wired. The agent runs
	// headless, so purchases stop at the missing payment sheet.
	application, err := app.NewApp(cfg, log, purchase.UnsupportedSheet{})
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("eventy agent stopped")
}
