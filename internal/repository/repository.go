package repository

import (
	"context"
	"fmt"

	"github.com/utafrali/blossom-account/internal/domain"
	apperrors "github.com/utafrali/blossom-account/pkg/errors"
)

// ErrDuplicateEmail is returned by UserRepository.Create when the email is
// already taken. It wraps apperrors.ErrAlreadyExists.
var ErrDuplicateEmail = fmt.Errorf("email already registered: %w", apperrors.ErrAlreadyExists)

// ErrDuplicateTermsVersion is returned by TermsRepository.Publish when the
// version string is already published.
var ErrDuplicateTermsVersion = fmt.Errorf("terms version already published: %w", apperrors.ErrAlreadyExists)

// UserRepository persists accounts keyed by email.
type UserRepository interface {
	// Create inserts user, and profile when non-nil, atomically. IDs and
	// server defaults are written back into the arguments.
	Create(ctx context.Context, user *domain.User, profile *domain.UserProfile) error

	// GetByEmail returns apperrors.ErrNotFound when no user has email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// SetVerified marks the user verified. changed is false when the user
	// was already verified.
	SetVerified(ctx context.Context, email string) (changed bool, err error)

	// UpdatePasswordHash replaces the stored digest.
	UpdatePasswordHash(ctx context.Context, email, hash string) error
}

// ProfileRepository reads user profiles.
type ProfileRepository interface {
	// GetByUserID returns apperrors.ErrNotFound when the user has no profile.
	GetByUserID(ctx context.Context, userID int64) (*domain.UserProfile, error)
}

// TermsRepository persists terms versions and consents.
type TermsRepository interface {
	// GetActive returns the most recently published active version.
	GetActive(ctx context.Context) (*domain.TermsVersion, error)

	GetVersionByID(ctx context.Context, id int64) (*domain.TermsVersion, error)

	// CreateConsent returns apperrors.ErrNotFound when the user or version
	// does not exist.
	CreateConsent(ctx context.Context, consent *domain.TermsConsent) error

	// Publish inserts a version. When v.IsActive is set every other version
	// is deactivated in the same transaction.
	Publish(ctx context.Context, v *domain.TermsVersion) error
}
