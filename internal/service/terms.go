package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/blossom-account/internal/domain"
	"github.com/utafrali/blossom-account/internal/repository"
	apperrors "github.com/utafrali/blossom-account/pkg/errors"
	"github.com/utafrali/blossom-account/pkg/logger"
)

// TermsService serves the active terms and records user consent.
type TermsService struct {
	terms  repository.TermsRepository
	users  repository.UserRepository
	logger *slog.Logger
}

// NewTermsService creates a new terms service.
func NewTermsService(terms repository.TermsRepository, users repository.UserRepository, logger *slog.Logger) *TermsService {
	return &TermsService{terms: terms, users: users, logger: logger}
}

// ConsentInput identifies who accepted which version, and from where.
type ConsentInput struct {
	Email          string
	TermsVersionID int64
	IPAddress      string
	UserAgent      string
}

// Active returns the current terms version.
func (s *TermsService) Active(ctx context.Context) (*domain.TermsVersion, error) {
	v, err := s.terms.GetActive(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("No active terms version")
		}
		return nil, fmt.Errorf("get active terms: %w", err)
	}
	return v, nil
}

// RecordConsent stores the user's acceptance of a terms version together
// with a snapshot of the accepted text.
func (s *TermsService) RecordConsent(ctx context.Context, in ConsentInput) (*domain.TermsConsent, error) {
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, UserNotFound()
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	version, err := s.terms.GetVersionByID(ctx, in.TermsVersionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound(MsgTermsNotFound)
		}
		return nil, fmt.Errorf("get terms version: %w", err)
	}

	consent := &domain.TermsConsent{
		UserID:          user.ID,
		TermsVersionID:  version.ID,
		ContentSnapshot: &version.Content,
		IPAddress:       optional(in.IPAddress),
		UserAgent:       optional(in.UserAgent),
	}
	if err := s.terms.CreateConsent(ctx, consent); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound(MsgTermsNotFound)
		}
		return nil, fmt.Errorf("create consent: %w", err)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "terms accepted",
		slog.Int64("user_id", user.ID),
		slog.String("terms_version", version.VersionString),
	)
	return consent, nil
}

// PublishInput describes a new terms version.
type PublishInput struct {
	Version  string
	Content  string
	Activate bool
}

// Publish stores a new terms version. Activating it retires the previous
// active version.
func (s *TermsService) Publish(ctx context.Context, in PublishInput) (*domain.TermsVersion, error) {
	version := strings.TrimSpace(in.Version)
	if version == "" || len(version) > 50 {
		return nil, apperrors.InvalidInput("version must be 1 to 50 characters")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperrors.InvalidInput("content must not be empty")
	}

	v := &domain.TermsVersion{VersionString: version, Content: in.Content, IsActive: in.Activate}
	if err := s.terms.Publish(ctx, v); err != nil {
		if errors.Is(err, repository.ErrDuplicateTermsVersion) {
			return nil, apperrors.InvalidInput("Terms version already exists")
		}
		return nil, fmt.Errorf("publish terms: %w", err)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "terms published",
		slog.Int64("terms_version_id", v.ID),
		slog.String("terms_version", v.VersionString),
		slog.Bool("active", v.IsActive),
	)
	return v, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
