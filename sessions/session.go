// Package sessions holds the durable session, account and token metadata.
package sessions

import (
	"context"
	"strings"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const DefaultResourceBaseURI = "http://data.rollvolet.be/"

// AccountURI is the resource uri of an account under baseURI.
func AccountURI(baseURI, accountID string) string {
	return strings.TrimSuffix(baseURI, "/") + "/accounts/" + accountID
}

// TokenInfo is the token metadata kept per session. It is overwritten on every refresh.
type TokenInfo struct {
	HomeAccountID string
	AccessToken   string
	ExpiresAt     time.Time
}

// ActiveSession is a session with token metadata, as read during boot recovery.
type ActiveSession struct {
	SessionURI string
	Token      TokenInfo
}

// Identity is what the identity provider tells us about the user on login.
type Identity struct {
	UniqueID       string // stable person id (object id)
	LocalAccountID string
	HomeAccountID  string
	Name           string
	Username       string
}

type Account struct {
	ID            string
	URI           string // linked-data resource uri of the account
	PersonID      string
	HomeAccountID string
	Name          string
	Username      string
}

// CurrentSession describes a logged in session for the request layer.
type CurrentSession struct {
	ID        string // session uuid
	AccountID string
	Name      string
	Username  string
	Groups    []string
}

// Store is the durable session table used by the token lifecycle.
type Store interface {
	ListActiveTokenSessions(ctx context.Context) ([]ActiveSession, error)
	PersistTokenInfo(ctx context.Context, sessionURI string, info TokenInfo) error
	// RemoveSession is idempotent.
	RemoveSession(ctx context.Context, sessionURI string) error
	// InsertSession creates the session, replacing any existing one with the same
	// uri, and returns the new session uuid.
	InsertSession(ctx context.Context, accountID, sessionURI string, info TokenInfo) (string, error)
}

// Accounts resolves people, accounts and group membership.
type Accounts interface {
	EnsureUserAndAccount(ctx context.Context, identity Identity) (*Account, error)
	UserGroups(ctx context.Context, accountID string) ([]string, error)
	// SelectAccountBySession returns nil when no account is linked to the session.
	SelectAccountBySession(ctx context.Context, sessionURI string) (*Account, error)
	// SelectCurrentSession returns nil when the session does not exist.
	SelectCurrentSession(ctx context.Context, sessionURI string) (*CurrentSession, error)
}

type Repo interface {
	Store
	Accounts
}
