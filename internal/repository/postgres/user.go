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

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

var _ repository.UserRepository = (*UserRepository)(nil)

// Create inserts the user and optional profile in one transaction. A taken
// email surfaces from the unique index, never from a prior lookup.
func (r *UserRepository) Create(ctx context.Context, u *domain.User, profile *domain.UserProfile) (err error) {
	const insertUser = `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, is_active, is_verified, is_superuser, created_at, updated_at`
	const insertProfile = `
		INSERT INTO user_profiles (user_id, first_name, last_name, phone_number)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	ctx, end := database.TraceQuery(ctx, "CreateUser", insertUser)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}

	err = tx.QueryRow(ctx, insertUser, u.Email, u.PasswordHash).Scan(
		&u.ID,
		&u.IsActive,
		&u.IsVerified,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		if database.IsUniqueViolation(err, "") {
			return repository.ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if profile != nil {
		profile.UserID = u.ID
		err = tx.QueryRow(ctx, insertProfile,
			profile.UserID, profile.FirstName, profile.LastName, profile.PhoneNumber,
		).Scan(&profile.ID)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert user profile: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	const query = `
		SELECT id, email, password_hash, is_active, is_verified, is_superuser, created_at, updated_at
		FROM users
		WHERE email = $1`

	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", query)
	defer func() { end(err) }()

	var user domain.User
	err = r.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsVerified,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// SetVerified flips is_verified once. The guarded UPDATE makes concurrent
// calls report changed=true exactly once.
func (r *UserRepository) SetVerified(ctx context.Context, email string) (changed bool, err error) {
	const update = `
		UPDATE users
		SET is_verified = TRUE, updated_at = NOW()
		WHERE email = $1 AND is_verified = FALSE`
	const exists = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	ctx, end := database.TraceQuery(ctx, "SetUserVerified", update)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, update, email)
	if err != nil {
		return false, fmt.Errorf("set user verified: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}

	var found bool
	if err = r.db.QueryRow(ctx, exists, email).Scan(&found); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	if !found {
		return false, apperrors.ErrNotFound
	}
	return false, nil
}

// UpdatePasswordHash replaces the user's password digest.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, email, hash string) (err error) {
	const update = `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE email = $2`

	ctx, end := database.TraceQuery(ctx, "UpdatePasswordHash", update)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, update, hash, email)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
