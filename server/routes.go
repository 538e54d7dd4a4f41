package server

import (
	"fmt"
	"log"
	"net/http"
)

func (s *Server) initRoutes() {
	// SESSIONS
	s.RegisterRouteHandler("POST "+RouteSessions, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteCurrentSession, ChainMiddleware(s.CurrentSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteCurrentSession, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteSessions, ChainMiddleware(notFound, s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS "+RouteCurrentSession, ChainMiddleware(notFound, s.APIMiddleware()...))

	// OPERATIONS
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
}

// notFound sits behind the CORS middleware, which answers preflight requests itself.
func notFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

func logError(method, path, error string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	errorString := Red + error + ResetColor
	log.Printf("[%-19s] %s %s\n", displayMethod, path, errorString)
}
