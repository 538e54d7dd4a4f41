package server

// Route path constants
const (
	RouteSessions       = "/sessions"
	RouteCurrentSession = "/sessions/current"
	RouteAccounts       = "/accounts"

	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)

// Headers exchanged with the mu-semtech identifier and dispatcher.
const (
	HeaderSessionID     = "mu-session-id"
	HeaderAllowedGroups = "mu-auth-allowed-groups"
	AllowedGroupsClear  = "CLEAR"
)
