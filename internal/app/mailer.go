package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/blossom-account/internal/config"
	"github.com/utafrali/blossom-account/internal/event"
	"github.com/utafrali/blossom-account/internal/notifier"
	"github.com/utafrali/blossom-account/pkg/database"
	pkgkafka "github.com/utafrali/blossom-account/pkg/kafka"
	"github.com/utafrali/blossom-account/pkg/tracing"
)

// MailerServiceName labels logs and traces of the mailer worker.
const MailerServiceName = "account-mailer"

const dedupeKeyPrefix = "account-mailer:processed"

// Mailer consumes verification requests and sends the emails.
type Mailer struct {
	logger         *slog.Logger
	consumer       *pkgkafka.Consumer
	redis          *redis.Client
	tracerShutdown tracing.ShutdownFunc
}

// NewMailer wires the Kafka consumer, the dedupe store and the email sender.
func NewMailer(cfg *config.Config, logger *slog.Logger) (*Mailer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    MailerServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	m := &Mailer{logger: logger, tracerShutdown: tracerShutdown}

	var store pkgkafka.IdempotencyStore
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			_ = m.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		m.redis = client
		store = pkgkafka.NewRedisIdempotencyStore(client, dedupeKeyPrefix, cfg.DedupeTTL)
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
	} else {
		logger.Warn("REDIS_ENABLED=false, deduplicating in memory only")
		store = pkgkafka.NewMemoryIdempotencyStore(cfg.DedupeTTL)
	}

	handler := NewMailerHandler(store, NewEmailNotifier(cfg, logger), logger)

	m.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    event.TopicVerificationRequested,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, handler, logger)

	return m, nil
}

// NewMailerHandler delivers each verification request through n once per
// event ID.
func NewMailerHandler(store pkgkafka.IdempotencyStore, n notifier.Notifier, logger *slog.Logger) pkgkafka.Handler {
	return pkgkafka.IdempotentHandler(store, event.VerificationHandler(n, logger), logger)
}

// Run consumes until ctx is canceled, then releases resources.
func (m *Mailer) Run(ctx context.Context) error {
	err := m.consumer.Start(ctx)
	return errors.Join(err, m.close())
}

func (m *Mailer) close() error {
	var errs []error
	if m.consumer != nil {
		errs = append(errs, m.consumer.Close())
	}
	if m.redis != nil {
		errs = append(errs, m.redis.Close())
	}
	if m.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		errs = append(errs, m.tracerShutdown(ctx))
	}
	m.logger.Info("mailer stopped")
	return errors.Join(errs...)
}
