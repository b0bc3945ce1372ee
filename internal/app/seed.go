package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/blossom-account/internal/config"
	"github.com/utafrali/blossom-account/internal/domain"
	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/pkg/health"
)

// PublishTerms opens the configured store, applying migrations when enabled,
// and publishes one terms version.
func PublishTerms(ctx context.Context, cfg *config.Config, logger *slog.Logger, in service.PublishInput) (*domain.TermsVersion, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer a.release()

	st, err := a.openStores(ctx, health.NewHandler())
	if err != nil {
		return nil, err
	}

	return service.NewTermsService(st.terms, st.users, logger).Publish(ctx, in)
}
