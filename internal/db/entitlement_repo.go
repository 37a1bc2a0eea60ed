package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"tiergate/internal/types"
)

// EntitlementRepository provides data access for the entitlement_grants table.
type EntitlementRepository struct {
	db DBTX
}

// NewEntitlementRepository creates a new EntitlementRepository.
func NewEntitlementRepository(db DBTX) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

const grantColumns = `id, user_id, resource_id, created_at`

func scanGrant(row pgx.Row) (*types.EntitlementGrant, error) {
	var g types.EntitlementGrant
	if err := row.Scan(&g.ID, &g.UserID, &g.ResourceID, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Upsert grants resourceID to userID. created is false when the grant already
// existed, in which case the stored row is returned unchanged.
//
// The insert uses ON CONFLICT DO NOTHING; when it inserts nothing the
// existing row is read in a second statement, which sees rows committed by a
// concurrent winner.
func (r *EntitlementRepository) Upsert(ctx context.Context, userID, resourceID string) (*types.EntitlementGrant, bool, error) {
	g, err := scanGrant(r.db.QueryRow(ctx,
		`INSERT INTO entitlement_grants (id, user_id, resource_id, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, resource_id) DO NOTHING
		 RETURNING `+grantColumns,
		uuid.NewString(),
		userID,
		resourceID,
	))
	if err == nil {
		return g, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert entitlement", err)
	}

	g, err = r.Get(ctx, userID, resourceID)
	if err != nil {
		return nil, false, err
	}
	return g, false, nil
}

// Get returns the grant for (userID, resourceID) or a not_found_entitlement AppError.
func (r *EntitlementRepository) Get(ctx context.Context, userID, resourceID string) (*types.EntitlementGrant, error) {
	g, err := scanGrant(r.db.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM entitlement_grants WHERE user_id = $1 AND resource_id = $2`,
		userID,
		resourceID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundEntitlement, "entitlement not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve entitlement", err)
	}
	return g, nil
}

// Delete removes the grant for (userID, resourceID). It reports whether a
// row was removed; deleting an absent grant is not an error.
func (r *EntitlementRepository) Delete(ctx context.Context, userID, resourceID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM entitlement_grants WHERE user_id = $1 AND resource_id = $2`,
		userID,
		resourceID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to delete entitlement", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns every grant held by userID, oldest first.
func (r *EntitlementRepository) ListByUser(ctx context.Context, userID string) ([]*types.EntitlementGrant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+grantColumns+` FROM entitlement_grants WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list entitlements", err)
	}
	defer rows.Close()

	var out []*types.EntitlementGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan entitlement", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate entitlements", err)
	}
	return out, nil
}
