package users

import (
	"time"

	"github.com/atrium-hq/atrium/internal/registry"
)

// User represents a user account. Role drives the default permission set;
// individual overrides are stored separately by the authz module.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      registry.Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
