package lifecycle

import (
	"context"

	"github.com/jrsteele09/go-login-service/cachescope"
	"github.com/jrsteele09/go-login-service/identity"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/refresh"
	"github.com/jrsteele09/go-login-service/sessions"
	"github.com/jrsteele09/go-login-service/tokencache"
)

var (
	_ TokenAcquirer     = (*Credentials)(nil)
	_ AccountLookup     = (*Credentials)(nil)
	_ refresh.Refresher = (*Credentials)(nil)
)

// Credentials runs identity client calls against the right session's token cache.
// Without a scope controller nothing is cached: every exchange gets a throwaway cache.
type Credentials struct {
	client identity.Client
	scope  *cachescope.Controller
	scopes []string
}

func NewCredentials(client identity.Client, scope *cachescope.Controller, scopes []string) *Credentials {
	return &Credentials{client: client, scope: scope, scopes: scopes}
}

func (c *Credentials) AcquireToken(ctx context.Context, sessionID, code string) (*identity.TokenResult, error) {
	if c.scope == nil {
		return c.client.ExchangeCode(ctx, tokencache.New(), code)
	}

	var result *identity.TokenResult
	err := c.scope.Do(ctx, sessionID, func(cache *tokencache.Cache) error {
		var err error
		result, err = c.client.ExchangeCode(ctx, cache, code)
		return err
	})
	return result, err
}

// Refresh forces a silent refresh for the session's account. A nil result means
// the account is no longer cached or the provider gave nothing back.
func (c *Credentials) Refresh(ctx context.Context, sessionID string, info sessions.TokenInfo) (*sessions.TokenInfo, error) {
	if c.scope == nil {
		return nil, lserrors.Wrapf(lserrors.ErrSilentRefresh, "[Credentials Refresh] token cache disabled")
	}

	var refreshed *sessions.TokenInfo
	err := c.scope.Do(ctx, sessionID, func(cache *tokencache.Cache) error {
		account, ok := c.client.LookupAccountByHomeID(cache, info.HomeAccountID)
		if !ok {
			return nil
		}
		result, err := c.client.SilentRefresh(ctx, cache, *account, c.scopes, true)
		if err != nil || result == nil {
			return err
		}
		refreshed = &sessions.TokenInfo{
			HomeAccountID: result.Account.HomeAccountID,
			AccessToken:   result.AccessToken,
			ExpiresAt:     result.ExpiresOn,
		}
		return nil
	})
	return refreshed, err
}

// Forget removes the account from the session's cache and deletes the blob.
func (c *Credentials) Forget(ctx context.Context, sessionID, homeAccountID string) error {
	if c.scope == nil {
		return nil
	}

	var errs []error
	if homeAccountID != "" {
		errs = append(errs, c.scope.Do(ctx, sessionID, func(cache *tokencache.Cache) error {
			account, ok := c.client.LookupAccountByHomeID(cache, homeAccountID)
			if !ok {
				return nil
			}
			return c.client.RemoveAccount(cache, *account)
		}))
	}
	errs = append(errs, c.scope.Discard(ctx, sessionID))
	return lserrors.Join(errs...)
}

func (c *Credentials) HasAccount(ctx context.Context, sessionID, homeAccountID string) (bool, error) {
	if c.scope == nil {
		return false, nil
	}

	var found bool
	err := c.scope.Do(ctx, sessionID, func(cache *tokencache.Cache) error {
		_, found = c.client.LookupAccountByHomeID(cache, homeAccountID)
		return nil
	})
	return found, err
}
