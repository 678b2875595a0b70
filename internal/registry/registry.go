package registry

import (
	"sort"

	"github.com/atrium-hq/atrium/internal/shared"
)

// Registry is the static catalog of permissions and role defaults. It is
// read-only after construction; callers treat an unknown code as a non-match,
// never as an error.
type Registry struct {
	byCode   map[string]Permission
	codes    []string
	defaults map[Role][]string
}

// New builds the registry from the built-in catalog.
func New() *Registry {
	r := &Registry{
		byCode:   make(map[string]Permission, len(catalog)),
		defaults: make(map[Role][]string, len(roleDefaults)),
	}
	for _, p := range catalog {
		r.byCode[p.Code] = p
		r.codes = append(r.codes, p.Code)
	}
	sort.Strings(r.codes)
	for role, codes := range roleDefaults {
		dup := make([]string, len(codes))
		copy(dup, codes)
		sort.Strings(dup)
		r.defaults[role] = dup
	}
	return r
}

// Lookup returns the permission for a code.
func (r *Registry) Lookup(code string) (Permission, bool) {
	p, ok := r.byCode[code]
	return p, ok
}

// Known reports whether the code exists in the catalog.
func (r *Registry) Known(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// AllCodes returns every permission code, sorted.
func (r *Registry) AllCodes() []string {
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}

// All returns the full catalog ordered by code.
func (r *Registry) All() []Permission {
	out := make([]Permission, 0, len(r.codes))
	for _, code := range r.codes {
		out = append(out, r.byCode[code])
	}
	return out
}

// PermissionsForRole returns the role-default permission set. Admin holds
// every known code without consulting the defaults table.
func (r *Registry) PermissionsForRole(role Role) []string {
	if role.IsAdmin() {
		return r.AllCodes()
	}
	codes, ok := r.defaults[role]
	if !ok {
		return nil
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out
}

var catalog = []Permission{
	{Code: shared.PermDashboardView, Name: "View Dashboard", Description: "Access the main dashboard", Category: "Dashboard"},
	{Code: shared.PermProfileView, Name: "View Profile", Description: "View own profile", Category: "Profile"},
	{Code: shared.PermProfileEdit, Name: "Edit Profile", Description: "Edit own profile", Category: "Profile"},
	{Code: shared.PermAppointmentsView, Name: "View Appointments", Description: "View appointment calendar and details", Category: "Appointments"},
	{Code: shared.PermAppointmentsEdit, Name: "Edit Appointments", Description: "Create, reschedule and cancel appointments", Category: "Appointments"},
	{Code: shared.PermCustomersView, Name: "View Customers", Description: "View customer records", Category: "Customers"},
	{Code: shared.PermCustomersEdit, Name: "Edit Customers", Description: "Create and modify customer records", Category: "Customers"},
	{Code: shared.PermUsersView, Name: "View Users", Description: "View user accounts", Category: "Users"},
	{Code: shared.PermUsersEdit, Name: "Edit Users", Description: "Create and modify user accounts", Category: "Users"},
	{Code: shared.PermNotificationsView, Name: "View Notifications", Description: "View notifications", Category: "Notifications"},
	{Code: shared.PermNotificationsManage, Name: "Manage Notifications", Description: "Send and manage notifications", Category: "Notifications"},
	{Code: shared.PermReportsView, Name: "View Reports", Description: "Access reporting views", Category: "Reports"},
	{Code: shared.PermPermissionsManage, Name: "Manage Permissions", Description: "Grant and revoke user permissions", Category: "Administration"},
}

// roleDefaults maps each non-admin role to its default permission set.
// Admin is intentionally absent: it implies every code.
var roleDefaults = map[Role][]string{
	RoleManager: {
		shared.PermDashboardView,
		shared.PermProfileView,
		shared.PermProfileEdit,
		shared.PermAppointmentsView,
		shared.PermAppointmentsEdit,
		shared.PermCustomersView,
		shared.PermCustomersEdit,
		shared.PermUsersView,
		shared.PermNotificationsView,
		shared.PermNotificationsManage,
		shared.PermReportsView,
	},
	RoleEmployee: {
		shared.PermDashboardView,
		shared.PermProfileView,
		shared.PermProfileEdit,
		shared.PermAppointmentsView,
		shared.PermAppointmentsEdit,
		shared.PermCustomersView,
		shared.PermNotificationsView,
	},
	RoleUser: {
		shared.PermDashboardView,
		shared.PermProfileView,
		shared.PermProfileEdit,
		shared.PermAppointmentsView,
	},
}
