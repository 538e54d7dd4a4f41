package lifecycle

import (
	"context"

	"github.com/jrsteele09/go-login-service/identity"
	"github.com/jrsteele09/go-login-service/sessions"
)

// TokenAcquirer redeems authorization codes. Every manager has one.
type TokenAcquirer interface {
	AcquireToken(ctx context.Context, sessionID, code string) (*identity.TokenResult, error)
}

// BackgroundRefresh keeps session tokens fresh. Only present when token refresh is enabled.
type BackgroundRefresh interface {
	Schedule(sessionID string, info sessions.TokenInfo)
	// Cancel is idempotent and also forgets the session's cached credentials.
	Cancel(ctx context.Context, sessionID string)
	HasValid(sessionID string) bool
}

// AccountLookup checks the session's cached credentials during boot recovery.
type AccountLookup interface {
	HasAccount(ctx context.Context, sessionID, homeAccountID string) (bool, error)
}

// BlobRetainer purges cache blobs of sessions that no longer exist.
type BlobRetainer interface {
	RetainOnly(ctx context.Context, keys []string) (int, error)
}
