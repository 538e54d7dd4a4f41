package server

import (
	"encoding/json"
	"net/http"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
)

const (
	msgMissingSessionHeader = "Session header is missing"
	msgMissingCode          = "Authorization code is missing"
	msgInvalidSession       = "Invalid session"
	msgNoRelatedAccount     = "Invalid session. No related account found."
	msgNoAccessToken        = "Invalid session. No access token available."
	msgInternal             = "Internal server error"
)

type loginRequest struct {
	AuthorizationCode string `json:"authorizationCode"`
}

// LoginHandler creates a session for the mu-session-id from an authorization code.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionURI := r.Header.Get(HeaderSessionID)
		if sessionURI == "" {
			writeError(w, http.StatusBadRequest, msgMissingSessionHeader)
			return
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuthorizationCode == "" {
			writeError(w, http.StatusBadRequest, msgMissingCode)
			return
		}

		result, err := s.sessions.Login(r.Context(), req.AuthorizationCode, sessionURI)
		if err != nil {
			if lserrors.Is(err, lserrors.ErrAuthExchange) {
				s.logger.Info().Err(err).Str("session", sessionURI).Msg("failed to retrieve access token for authorization code")
				w.Header().Set(HeaderAllowedGroups, AllowedGroupsClear)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			s.internalError(w, r, err)
			return
		}

		w.Header().Set(HeaderAllowedGroups, AllowedGroupsClear)
		writeJSON(w, http.StatusCreated, newSessionDocument(
			result.SessionID, result.Account.ID, result.Account.Name, result.Account.Username, result.Groups))
	}
}

// LogoutHandler detaches the session from its account.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionURI := r.Header.Get(HeaderSessionID)
		if sessionURI == "" {
			writeError(w, http.StatusBadRequest, msgMissingSessionHeader)
			return
		}

		if err := s.sessions.Logout(r.Context(), sessionURI); err != nil {
			if lserrors.Is(err, lserrors.ErrInvalidSession) {
				writeError(w, http.StatusBadRequest, msgInvalidSession)
				return
			}
			s.internalError(w, r, err)
			return
		}

		w.Header().Set(HeaderAllowedGroups, AllowedGroupsClear)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) CurrentSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionURI := r.Header.Get(HeaderSessionID)
		if sessionURI == "" {
			writeError(w, http.StatusBadRequest, msgMissingSessionHeader)
			return
		}

		current, err := s.sessions.CurrentSession(r.Context(), sessionURI)
		switch {
		case err == nil:
		case lserrors.Is(err, lserrors.ErrSessionNotFound):
			w.Header().Set(HeaderAllowedGroups, AllowedGroupsClear)
			writeError(w, http.StatusBadRequest, msgNoRelatedAccount)
			return
		case lserrors.Is(err, lserrors.ErrNoAccessToken):
			w.Header().Set(HeaderAllowedGroups, AllowedGroupsClear)
			writeError(w, http.StatusBadRequest, msgNoAccessToken)
			return
		default:
			w.Header().Set(HeaderAllowedGroups, AllowedGroupsClear)
			s.internalError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newSessionDocument(
			current.ID, current.AccountID, current.Name, current.Username, current.Groups))
	}
}

// HealthHandler reports 503 until boot recovery has finished.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "recovering"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, msgInternal)
}
