// Package identity describes the identity-provider capability the login service
// depends on. Implementations never hold a cache of their own: every call is
// handed the session's token cache explicitly.
package identity

import (
	"context"
	"time"

	"github.com/jrsteele09/go-login-service/tokencache"
)

type Account = tokencache.Account

// TokenResult is the outcome of a code exchange or silent refresh.
type TokenResult struct {
	Account     Account
	UniqueID    string // object id of the user in the tenant
	AccessToken string
	IDToken     string
	ExpiresOn   time.Time
	Scopes      []string
}

type Client interface {
	// ExchangeCode redeems an authorization code and stores the resulting
	// credentials in cache. Fails with ErrAuthExchange.
	ExchangeCode(ctx context.Context, cache *tokencache.Cache, code string) (*TokenResult, error)

	// SilentRefresh obtains a token for account from cached credentials. A nil
	// result means the cache cannot produce a token. ErrInteractionRequired
	// means the refresh token was rejected.
	SilentRefresh(ctx context.Context, cache *tokencache.Cache, account Account, scopes []string, force bool) (*TokenResult, error)

	LookupAccountByHomeID(cache *tokencache.Cache, homeAccountID string) (*Account, bool)
	RemoveAccount(cache *tokencache.Cache, account Account) error
}
