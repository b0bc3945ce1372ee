package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/blossom-account/internal/app"
	"github.com/utafrali/blossom-account/internal/config"
	"github.com/utafrali/blossom-account/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(app.MailerServiceName, cfg.LogLevel)
	log.Info("starting mailer",
		slog.String("environment", cfg.Environment),
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.String("group", cfg.KafkaGroupID),
		slog.Bool("mock_email", cfg.MockEmail()),
	)

	mailer, err := app.NewMailer(cfg, log)
	if err != nil {
		log.Error("failed to initialize mailer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := mailer.Run(ctx); err != nil {
		log.Error("mailer error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
