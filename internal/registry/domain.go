package registry

// Permission represents an atomic capability.
type Permission struct {
	Code        string
	Name        string
	Description string
	Category    string
}

// Role is one of the closed set of roles a user account can hold.
type Role string

// Known roles.
const (
	RoleAdmin    Role = "ADMIN"
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
	RoleUser     Role = "USER"
)

// Valid reports whether the role belongs to the closed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee, RoleUser:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role short-circuits every permission check.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleEmployee, RoleUser}
}
