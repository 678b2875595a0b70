package authz

import (
	"time"

	"github.com/atrium-hq/atrium/internal/registry"
)

// Override is an explicit per-user deviation from the role default: a grant
// for a code the role does not include, or a deny for one it does. Codes that
// match the role default are never stored.
type Override struct {
	UserID         int64
	PermissionCode string
	Granted        bool
	GrantedBy      *int64
	GrantedAt      time.Time
}

// UserPermissions is the resolved permission snapshot for a user. It is
// derived state, recomputed from role defaults and overrides, never persisted.
type UserPermissions struct {
	UserID      int64         `json:"user_id"`
	Role        registry.Role `json:"role"`
	Permissions []string      `json:"permissions"`
}

// Has reports membership of code in the resolved set.
func (up UserPermissions) Has(code string) bool {
	for _, c := range up.Permissions {
		if c == code {
			return true
		}
	}
	return false
}
