package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tiergate/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, external_user_id, username, email, created_at, updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	if err := row.Scan(&u.ID, &u.ExternalUserID, &u.Username, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByExternalID returns the user for externalUserID, or a not_found_user
// AppError.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalUserID string) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_user_id = $1`,
		externalUserID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// Upsert creates the user for externalUserID or returns the existing row.
// Profile fields only fill columns that are still NULL; an existing value is
// never overwritten, and empty strings never clear anything. Concurrent
// first-sight calls converge on one row via the unique constraint.
func (r *UserRepository) Upsert(ctx context.Context, externalUserID string, profile types.UserProfile) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`INSERT INTO users (id, external_user_id, username, email, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NOW(), NOW())
		 ON CONFLICT (external_user_id) DO UPDATE SET
		     username   = COALESCE(users.username, EXCLUDED.username),
		     email      = COALESCE(users.email, EXCLUDED.email),
		     updated_at = CASE
		         WHEN (users.username IS NULL AND EXCLUDED.username IS NOT NULL)
		           OR (users.email IS NULL AND EXCLUDED.email IS NOT NULL)
		         THEN NOW() ELSE users.updated_at END
		 RETURNING `+userColumns,
		uuid.NewString(),
		externalUserID,
		profile.Username,
		profile.Email,
	))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user", err)
	}
	return u, nil
}
