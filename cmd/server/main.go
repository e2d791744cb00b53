package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/EcommerceGo/storefront/internal/app"
	"github.com/utafrali/EcommerceGo/storefront/internal/config"
	pkgconfig "github.com/utafrali/EcommerceGo/storefront/pkg/config"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

const serviceName = "storefront"

func main() {
	if err := run(); err != nil {
		slog.Error("storefront exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Variables already set in the environment win over .env.
	if err := pkgconfig.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.Options{
		Service: serviceName,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}.Build()
	slog.SetDefault(log)

	log.Info("starting storefront",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("catalog_url", cfg.CatalogBaseURL),
		slog.Bool("shared_cache", cfg.RedisEnabled()),
		slog.Bool("kafka_invalidation", cfg.KafkaEnabled()),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info("storefront stopped")
	return nil
}
