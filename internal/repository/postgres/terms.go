package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/blossom-account/internal/domain"
	"github.com/utafrali/blossom-account/internal/repository"
	"github.com/utafrali/blossom-account/pkg/database"
	apperrors "github.com/utafrali/blossom-account/pkg/errors"
)

// TermsRepository implements repository.TermsRepository using PostgreSQL.
type TermsRepository struct {
	db database.DBTX
}

// NewTermsRepository creates a new PostgreSQL-backed terms repository.
func NewTermsRepository(db database.DBTX) *TermsRepository {
	return &TermsRepository{db: db}
}

var _ repository.TermsRepository = (*TermsRepository)(nil)

const termsVersionColumns = `id, version_string, content, is_active, published_at`

// GetActive returns the newest active terms version.
func (r *TermsRepository) GetActive(ctx context.Context) (v *domain.TermsVersion, err error) {
	const query = `
		SELECT ` + termsVersionColumns + `
		FROM terms_versions
		WHERE is_active = TRUE
		ORDER BY published_at DESC, id DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetActiveTerms", query)
	defer func() { end(err) }()

	return r.scanVersion(ctx, query)
}

// GetVersionByID returns a terms version by ID.
func (r *TermsRepository) GetVersionByID(ctx context.Context, id int64) (v *domain.TermsVersion, err error) {
	const query = `
		SELECT ` + termsVersionColumns + `
		FROM terms_versions
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetTermsVersionByID", query)
	defer func() { end(err) }()

	return r.scanVersion(ctx, query, id)
}

func (r *TermsRepository) scanVersion(ctx context.Context, query string, args ...any) (*domain.TermsVersion, error) {
	var v domain.TermsVersion
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&v.ID,
		&v.VersionString,
		&v.Content,
		&v.IsActive,
		&v.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get terms version: %w", err)
	}
	return &v, nil
}

// CreateConsent inserts a consent record. The foreign keys reject unknown
// users and versions.
func (r *TermsRepository) CreateConsent(ctx context.Context, c *domain.TermsConsent) (err error) {
	const query = `
		INSERT INTO terms_consents (user_id, terms_version_id, base_terms_version_content_snapshot, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, accepted_at`

	ctx, end := database.TraceQuery(ctx, "CreateTermsConsent", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		c.UserID, c.TermsVersionID, c.ContentSnapshot, c.IPAddress, c.UserAgent,
	).Scan(&c.ID, &c.AcceptedAt)
	if err != nil {
		if database.IsForeignKeyViolation(err, "") {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("insert terms consent: %w", err)
	}
	return nil
}

// Publish inserts a terms version, deactivating the others first when the new
// one is active.
func (r *TermsRepository) Publish(ctx context.Context, v *domain.TermsVersion) (err error) {
	const deactivate = `UPDATE terms_versions SET is_active = FALSE WHERE is_active`
	const insert = `
		INSERT INTO terms_versions (version_string, content, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, published_at`

	ctx, end := database.TraceQuery(ctx, "PublishTerms", insert)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish terms: %w", err)
	}

	if v.IsActive {
		if _, err = tx.Exec(ctx, deactivate); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("deactivate terms versions: %w", err)
		}
	}

	err = tx.QueryRow(ctx, insert, v.VersionString, v.Content, v.IsActive).Scan(&v.ID, &v.PublishedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		if database.IsUniqueViolation(err, "terms_versions_version_string_key") {
			return repository.ErrDuplicateTermsVersion
		}
		return fmt.Errorf("insert terms version: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish terms: %w", err)
	}
	return nil
}
