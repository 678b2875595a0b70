package auth

import (
	"time"

	"github.com/atrium-hq/atrium/internal/registry"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         registry.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
