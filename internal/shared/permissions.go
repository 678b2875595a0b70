package shared

// Core platform permission codes. Codes are stable identifiers; display
// metadata lives in the registry catalog.
const (
	PermDashboardView = "DASHBOARD_VIEW"

	PermProfileView = "PROFILE_VIEW"
	PermProfileEdit = "PROFILE_EDIT"

	PermAppointmentsView = "APPOINTMENTS_VIEW"
	PermAppointmentsEdit = "APPOINTMENTS_EDIT"

	PermCustomersView = "CUSTOMERS_VIEW"
	PermCustomersEdit = "CUSTOMERS_EDIT"

	PermUsersView = "USERS_VIEW"
	PermUsersEdit = "USERS_EDIT"

	PermNotificationsView   = "NOTIFICATIONS_VIEW"
	PermNotificationsManage = "NOTIFICATIONS_MANAGE"

	PermReportsView = "REPORTS_VIEW"

	PermPermissionsManage = "PERMISSIONS_MANAGE"
)

// CoreScopes lists every permission code known to the platform.
func CoreScopes() []string {
	return []string{
		PermDashboardView,
		PermProfileView,
		PermProfileEdit,
		PermAppointmentsView,
		PermAppointmentsEdit,
		PermCustomersView,
		PermCustomersEdit,
		PermUsersView,
		PermUsersEdit,
		PermNotificationsView,
		PermNotificationsManage,
		PermReportsView,
		PermPermissionsManage,
	}
}
