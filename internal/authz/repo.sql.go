package authz

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atrium-hq/atrium/internal/platform/db"
	"github.com/atrium-hq/atrium/internal/registry"
)

// PGRepository implements OverrideRepository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindOverridesForUser returns all override rows for a user.
func (r *PGRepository) FindOverridesForUser(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, permission_code, granted, granted_by, granted_at
		 FROM user_permission_overrides WHERE user_id = $1 ORDER BY permission_code`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.UserID, &o.PermissionCode, &o.Granted, &o.GrantedBy, &o.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceOverrides swaps the full override set for a user inside one
// transaction so a failed update leaves prior state untouched.
func (r *PGRepository) ReplaceOverrides(ctx context.Context, userID int64, overrides []Override) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1`, userID); err != nil {
			return err
		}
		for _, o := range overrides {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_permission_overrides (user_id, permission_code, granted, granted_by, granted_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				userID, o.PermissionCode, o.Granted, o.GrantedBy, o.GrantedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertOverride inserts or updates a single override row.
func (r *PGRepository) UpsertOverride(ctx context.Context, o Override) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_permission_overrides (user_id, permission_code, granted, granted_by, granted_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, permission_code)
		 DO UPDATE SET granted = EXCLUDED.granted, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at`,
		o.UserID, o.PermissionCode, o.Granted, o.GrantedBy, o.GrantedAt)
	return err
}

// DeleteOverride removes a single override row if present.
func (r *PGRepository) DeleteOverride(ctx context.Context, userID int64, code string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_code = $2`, userID, code)
	return err
}

// DeleteOrphanedOverrides removes rows whose code left the catalog, plus rows
// belonging to admin accounts. Admin rows can appear when a user is promoted
// after overrides were stored; resolution ignores them, the sweep removes them.
func (r *PGRepository) DeleteOrphanedOverrides(ctx context.Context, knownCodes []string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_permission_overrides
		 WHERE permission_code != ALL($1)
		    OR user_id IN (SELECT id FROM users WHERE role = 'ADMIN')`, knownCodes)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SeedPermissions upserts the catalog into the permissions table.
func (r *PGRepository) SeedPermissions(ctx context.Context, perms []registry.Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range perms {
			if _, err := tx.Exec(ctx,
				`INSERT INTO permissions (code, name, description, category)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (code)
				 DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, category = EXCLUDED.category`,
				p.Code, p.Name, p.Description, p.Category); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ OverrideRepository = (*PGRepository)(nil)
