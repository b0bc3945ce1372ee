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

// ProfileRepository implements repository.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	db database.DBTX
}

// NewProfileRepository creates a new PostgreSQL-backed profile repository.
func NewProfileRepository(db database.DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)

// GetByUserID retrieves the profile belonging to userID.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int64) (p *domain.UserProfile, err error) {
	const query = `
		SELECT id, user_id, first_name, last_name, phone_number
		FROM user_profiles
		WHERE user_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProfileByUserID", query)
	defer func() { end(err) }()

	var profile domain.UserProfile
	err = r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FirstName,
		&profile.LastName,
		&profile.PhoneNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get profile by user id: %w", err)
	}
	return &profile, nil
}
