package authz

import (
	"context"

	"github.com/atrium-hq/atrium/internal/registry"
)

// OverrideRepository defines persistence operations for per-user permission
// overrides. The resolution service is agnostic to the storage behind it.
type OverrideRepository interface {
	FindOverridesForUser(ctx context.Context, userID int64) ([]Override, error)
	// ReplaceOverrides atomically replaces every override row for a user.
	ReplaceOverrides(ctx context.Context, userID int64, overrides []Override) error
	UpsertOverride(ctx context.Context, override Override) error
	DeleteOverride(ctx context.Context, userID int64, code string) error
	// DeleteOrphanedOverrides removes rows whose code is no longer in the
	// catalog and rows belonging to admin accounts. Used by the background
	// sweep.
	DeleteOrphanedOverrides(ctx context.Context, knownCodes []string) (int64, error)
	// SeedPermissions upserts the static catalog into storage so operational
	// tooling can join against it.
	SeedPermissions(ctx context.Context, perms []registry.Permission) error
}
