// Package lifecycle ties login, logout, session validity and boot recovery
// together on top of the identity client, session store and refresh scheduler.
package lifecycle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-login-service/events"
	"github.com/jrsteele09/go-login-service/identity"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/sessions"
	"github.com/rs/zerolog"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Option func(*Manager)

// WithBackgroundRefresh composes token refresh into the manager. lookup and
// retainer are used by boot recovery. A nil lookup schedules every stored session
// without checking the token cache, a nil retainer purges no blobs.
func WithBackgroundRefresh(r BackgroundRefresh, lookup AccountLookup, retainer BlobRetainer) Option {
	return func(m *Manager) {
		m.refresh = r
		m.lookup = lookup
		m.retainer = retainer
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithDebugAuth logs identity provider results, including personal data.
func WithDebugAuth(debug bool) Option {
	return func(m *Manager) {
		m.debugAuth = debug
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

type Manager struct {
	acquirer  TokenAcquirer
	repo      sessions.Repo
	refresh   BackgroundRefresh
	lookup    AccountLookup
	retainer  BlobRetainer
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	debugAuth bool
	now       func() time.Time

	ready atomic.Bool
}

func New(acquirer TokenAcquirer, repo sessions.Repo, opts ...Option) *Manager {
	m := &Manager{
		acquirer:  acquirer,
		repo:      repo,
		publisher: events.Noop{},
		logger:    zerolog.Nop(),
		now:       NowTimeFunc,
	}
	for _, opt := range opts {
		opt(m)
	}
	// nothing to recover without background refresh
	if m.refresh == nil {
		m.ready.Store(true)
	}
	return m
}

// LoginResult is what the request layer needs to describe a new session.
type LoginResult struct {
	SessionID  string // session uuid
	SessionURI string
	Account    sessions.Account
	Groups     []string
}

// Login exchanges the code, links the identity to an account and opens the session.
func (m *Manager) Login(ctx context.Context, code, sessionURI string) (*LoginResult, error) {
	if sessionURI == "" {
		return nil, lserrors.ErrMissingSessionID
	}

	result, err := m.acquirer.AcquireToken(ctx, sessionURI, code)
	if err != nil {
		m.metrics.Login("failure")
		if !lserrors.Is(err, lserrors.ErrAuthExchange) {
			err = lserrors.Wrapf(lserrors.ErrAuthExchange, "[Manager Login] %v", err)
		}
		return nil, err
	}
	m.debugResult(sessionURI, result)

	info := sessions.TokenInfo{
		HomeAccountID: result.Account.HomeAccountID,
		AccessToken:   result.AccessToken,
		ExpiresAt:     result.ExpiresOn,
	}

	login, err := m.openSession(ctx, sessionURI, result, info)
	if err != nil {
		m.metrics.Login("error")
		if m.refresh != nil {
			m.refresh.Cancel(ctx, sessionURI)
		}
		return nil, err
	}

	if m.refresh != nil {
		m.refresh.Schedule(sessionURI, info)
	}
	m.metrics.Login("success")
	m.publish(ctx, events.Event{Type: events.SessionCreated, SessionID: sessionURI, AccountID: login.Account.ID, AccountURI: login.Account.URI})
	m.logger.Info().Str("session", sessionURI).Str("account", login.Account.ID).Msg("session created")
	return login, nil
}

func (m *Manager) openSession(ctx context.Context, sessionURI string, result *identity.TokenResult, info sessions.TokenInfo) (*LoginResult, error) {
	account, err := m.repo.EnsureUserAndAccount(ctx, sessions.Identity{
		UniqueID:       result.UniqueID,
		LocalAccountID: result.Account.LocalAccountID,
		HomeAccountID:  result.Account.HomeAccountID,
		Name:           result.Account.Name,
		Username:       result.Account.Username,
	})
	if err != nil {
		return nil, lserrors.Wrapf(err, "[Manager Login] ensure account")
	}

	groups, err := m.repo.UserGroups(ctx, account.ID)
	if err != nil {
		return nil, lserrors.Wrapf(err, "[Manager Login] user groups")
	}

	sessionID, err := m.repo.InsertSession(ctx, account.ID, sessionURI, info)
	if err != nil {
		return nil, lserrors.Wrapf(err, "[Manager Login] insert session")
	}

	return &LoginResult{
		SessionID:  sessionID,
		SessionURI: sessionURI,
		Account:    *account,
		Groups:     groups,
	}, nil
}

// Logout removes the session and stops its refresh.
func (m *Manager) Logout(ctx context.Context, sessionURI string) error {
	if sessionURI == "" {
		return lserrors.ErrMissingSessionID
	}

	account, err := m.repo.SelectAccountBySession(ctx, sessionURI)
	if err != nil {
		return lserrors.Wrapf(err, "[Manager Logout]")
	}
	if account == nil {
		return lserrors.ErrInvalidSession
	}

	if err := m.repo.RemoveSession(ctx, sessionURI); err != nil {
		return lserrors.Wrapf(err, "[Manager Logout]")
	}
	if m.refresh != nil {
		m.refresh.Cancel(ctx, sessionURI)
	}

	m.metrics.Terminated(events.ReasonLogout)
	m.publish(ctx, events.Event{
		Type:       events.SessionTerminated,
		SessionID:  sessionURI,
		AccountID:  account.ID,
		AccountURI: account.URI,
		Reason:     events.ReasonLogout,
	})
	m.logger.Info().Str("session", sessionURI).Msg("session logged out")
	return nil
}

// IsSessionValid reports whether the session has server-tracked credentials, i.e.
// a pending background refresh. Without background refresh every session is valid.
func (m *Manager) IsSessionValid(sessionURI string) bool {
	if m.refresh == nil {
		return true
	}
	return m.refresh.HasValid(sessionURI)
}

// CurrentSession describes the session. A session without credentials is removed
// and reported as ErrNoAccessToken.
func (m *Manager) CurrentSession(ctx context.Context, sessionURI string) (*sessions.CurrentSession, error) {
	if sessionURI == "" {
		return nil, lserrors.ErrMissingSessionID
	}

	account, err := m.repo.SelectAccountBySession(ctx, sessionURI)
	if err != nil {
		return nil, lserrors.Wrapf(err, "[Manager CurrentSession]")
	}
	if account == nil {
		return nil, lserrors.ErrSessionNotFound
	}

	if !m.IsSessionValid(sessionURI) {
		if err := m.repo.RemoveSession(ctx, sessionURI); err != nil {
			m.logger.Error().Err(err).Str("session", sessionURI).Msg("failed to remove session without token")
		}
		m.refresh.Cancel(ctx, sessionURI)
		return nil, lserrors.ErrNoAccessToken
	}

	current, err := m.repo.SelectCurrentSession(ctx, sessionURI)
	if err != nil {
		return nil, lserrors.Wrapf(err, "[Manager CurrentSession]")
	}
	if current == nil {
		return nil, lserrors.ErrSessionNotFound
	}

	if current.Groups, err = m.repo.UserGroups(ctx, current.AccountID); err != nil {
		return nil, lserrors.Wrapf(err, "[Manager CurrentSession] user groups")
	}
	return current, nil
}

// Ready reports whether boot recovery has finished.
func (m *Manager) Ready() bool {
	return m.ready.Load()
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if event.At.IsZero() {
		event.At = m.now().UTC()
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("session", event.SessionID).Str("event", string(event.Type)).Msg("failed to publish event")
	}
}

func (m *Manager) debugResult(sessionURI string, result *identity.TokenResult) {
	if !m.debugAuth {
		return
	}
	m.logger.Info().
		Str("session", sessionURI).
		Str("home_account_id", result.Account.HomeAccountID).
		Str("username", result.Account.Username).
		Str("name", result.Account.Name).
		Strs("scopes", result.Scopes).
		Time("expires_on", result.ExpiresOn).
		Msg("authorization code exchanged")
}

// TerminationPublisher returns a hook that publishes sessions torn down by the
// refresh scheduler.
func TerminationPublisher(p events.Publisher, logger zerolog.Logger) func(ctx context.Context, sessionID string, info sessions.TokenInfo, reason string) {
	return func(ctx context.Context, sessionID string, _ sessions.TokenInfo, reason string) {
		err := p.Publish(ctx, events.Event{
			Type:      events.SessionTerminated,
			SessionID: sessionID,
			Reason:    reason,
			At:        NowTimeFunc().UTC(),
		})
		if err != nil {
			logger.Warn().Err(err).Str("session", sessionID).Msg("failed to publish event")
		}
	}
}
