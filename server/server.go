package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-login-service/internal/config"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/lifecycle"
	"github.com/jrsteele09/go-login-service/sessions"
	"github.com/rs/zerolog"
)

// SessionManager is what the request layer needs from the lifecycle manager.
type SessionManager interface {
	Login(ctx context.Context, code, sessionURI string) (*lifecycle.LoginResult, error)
	Logout(ctx context.Context, sessionURI string) error
	CurrentSession(ctx context.Context, sessionURI string) (*sessions.CurrentSession, error)
	Ready() bool
}

var _ SessionManager = (*lifecycle.Manager)(nil)

type ServerConfig interface {
	config.EnvConfig
	config.CorsConfig
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   ServerConfig
	sessions SessionManager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func New(cfg ServerConfig, manager SessionManager, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		sessions: manager,
		metrics:  m,
		logger:   logger,
	}

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
