// Package azuread implements identity.Client against the Microsoft identity
// platform v2.0 endpoints.
package azuread

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-login-service/identity"
	"github.com/jrsteele09/go-login-service/internal/config"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/tokencache"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// cachedTokenSkew is how close to expiry a cached access token may be and still be returned.
const cachedTokenSkew = 5 * time.Minute

// DefaultTokenLifetime is assumed when a token response carries no expires_in.
const DefaultTokenLifetime = time.Hour

// oidcScopes are always requested alongside the configured resource scopes.
var oidcScopes = []string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess}

var _ identity.Client = (*Client)(nil)

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDebug logs provider responses, including personal data.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

type Client struct {
	oauth       *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	environment string
	logger      zerolog.Logger
	debug       bool
	now         func() time.Time
}

// New discovers the tenant's v2.0 endpoints and builds a confidential client.
func New(ctx context.Context, cfg config.IdentityConfig, opts ...Option) (*Client, error) {
	provider, err := oidc.NewProvider(ctx, cfg.GetAuthority()+"/v2.0")
	if err != nil {
		return nil, lserrors.Wrapf(err, "[azuread New] provider discovery failed")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		RedirectURL:  cfg.GetRedirectURI(),
		Endpoint:     provider.Endpoint(),
		Scopes:       withOIDCScopes(cfg.GetScopes()),
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.GetClientID()})

	return NewWithVerifier(oauthCfg, verifier, opts...), nil
}

// NewWithVerifier builds a client from an explicit OAuth2 configuration and ID token verifier.
func NewWithVerifier(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier, opts ...Option) *Client {
	c := &Client{
		oauth:    oauthCfg,
		verifier: verifier,
		logger:   zerolog.Nop(),
		now:      NowTimeFunc,
	}
	if u, err := url.Parse(oauthCfg.Endpoint.TokenURL); err == nil {
		c.environment = u.Host
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type idClaims struct {
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

func (c *Client) ExchangeCode(ctx context.Context, cache *tokencache.Cache, code string) (*identity.TokenResult, error) {
	if code == "" {
		return nil, lserrors.Wrapf(lserrors.ErrAuthExchange, "[azuread ExchangeCode] empty authorization code")
	}

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, lserrors.Wrapf(lserrors.ErrAuthExchange, "[azuread ExchangeCode] %v", err)
	}

	account, claims, rawID, err := c.accountFromToken(ctx, tok)
	if err != nil {
		return nil, lserrors.Wrapf(lserrors.ErrAuthExchange, "[azuread ExchangeCode] %v", err)
	}
	c.debugToken("code exchange", tok, claims)

	return c.store(cache, *account, claims.ObjectID, rawID, tok, c.oauth.Scopes), nil
}

func (c *Client) SilentRefresh(ctx context.Context, cache *tokencache.Cache, account identity.Account, scopes []string, force bool) (*identity.TokenResult, error) {
	cached, ok := cache.Account(account.HomeAccountID)
	if !ok {
		return nil, nil
	}
	requested := c.oauth.Scopes
	if len(scopes) > 0 {
		requested = withOIDCScopes(scopes)
	}

	tokens, _ := cache.Tokens(cached.HomeAccountID)
	if !force && tokens.AccessToken != "" && tokens.ExpiresOn.After(c.now().Add(cachedTokenSkew)) {
		return &identity.TokenResult{
			Account:     *cached,
			UniqueID:    cached.LocalAccountID,
			AccessToken: tokens.AccessToken,
			IDToken:     tokens.IDToken,
			ExpiresOn:   tokens.ExpiresOn,
			Scopes:      tokens.Scopes,
		}, nil
	}

	if tokens.RefreshToken == "" {
		return nil, lserrors.Wrapf(lserrors.ErrInteractionRequired, "[azuread SilentRefresh] no refresh token cached for %s", cached.HomeAccountID)
	}

	cfg := *c.oauth
	cfg.Scopes = requested
	// an already expired token forces the token source to redeem the refresh token
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: tokens.RefreshToken,
		Expiry:       c.now().Add(-time.Minute),
	}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.ErrorCode == "interaction_required") {
			return nil, lserrors.Wrapf(lserrors.ErrInteractionRequired, "[azuread SilentRefresh] %s", re.ErrorCode)
		}
		return nil, lserrors.Wrapf(lserrors.ErrSilentRefresh, "[azuread SilentRefresh] %v", err)
	}

	refreshed := *cached
	rawID := tokens.IDToken
	var claims *idClaims
	if _, hasID := tok.Extra("id_token").(string); hasID {
		acc, cl, raw, err := c.accountFromToken(ctx, tok)
		if err != nil {
			return nil, lserrors.Wrapf(lserrors.ErrSilentRefresh, "[azuread SilentRefresh] %v", err)
		}
		if acc.HomeAccountID != cached.HomeAccountID {
			return nil, lserrors.Wrapf(lserrors.ErrSilentRefresh, "[azuread SilentRefresh] token issued for a different account")
		}
		refreshed, claims, rawID = *acc, cl, raw
	}
	c.debugToken("silent refresh", tok, claims)

	return c.store(cache, refreshed, refreshed.LocalAccountID, rawID, tok, requested), nil
}

func (c *Client) LookupAccountByHomeID(cache *tokencache.Cache, homeAccountID string) (*identity.Account, bool) {
	return cache.Account(homeAccountID)
}

// RemoveAccount is a no-op for accounts that are not cached.
func (c *Client) RemoveAccount(cache *tokencache.Cache, account identity.Account) error {
	cache.RemoveAccount(account.HomeAccountID)
	return nil
}

func (c *Client) accountFromToken(ctx context.Context, tok *oauth2.Token) (*identity.Account, *idClaims, string, error) {
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, nil, "", errors.New("no id_token in token response")
	}
	idToken, err := c.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, nil, "", err
	}
	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, "", err
	}
	if claims.ObjectID == "" || claims.TenantID == "" {
		return nil, nil, "", errors.New("id_token is missing oid or tid")
	}

	return &identity.Account{
		HomeAccountID:  claims.ObjectID + "." + claims.TenantID,
		Environment:    c.environment,
		TenantID:       claims.TenantID,
		LocalAccountID: claims.ObjectID,
		Username:       claims.PreferredUsername,
		Name:           claims.Name,
	}, &claims, rawID, nil
}

func (c *Client) store(cache *tokencache.Cache, account identity.Account, uniqueID, rawID string, tok *oauth2.Token, scopes []string) *identity.TokenResult {
	expiresOn := tok.Expiry
	if expiresOn.IsZero() {
		expiresOn = c.now().Add(DefaultTokenLifetime)
	}
	cache.SaveTokens(account, tokencache.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      rawID,
		ExpiresOn:    expiresOn,
		Scopes:       slices.Clone(scopes),
	})
	return &identity.TokenResult{
		Account:     account,
		UniqueID:    uniqueID,
		AccessToken: tok.AccessToken,
		IDToken:     rawID,
		ExpiresOn:   expiresOn,
		Scopes:      slices.Clone(scopes),
	}
}

func (c *Client) debugToken(op string, tok *oauth2.Token, claims *idClaims) {
	if !c.debug {
		return
	}
	evt := c.logger.Info().Str("op", op).Time("expires_on", tok.Expiry)
	if claims != nil {
		evt = evt.Interface("id_claims", claims)
	}
	// access tokens for other resources cannot be verified here, only inspected
	if at, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, jwt.MapClaims{}); err == nil {
		evt = evt.Interface("access_token_claims", at.Claims)
	}
	evt.Msg("identity provider response")
}

func withOIDCScopes(scopes []string) []string {
	out := slices.Clone(oidcScopes)
	for _, s := range scopes {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
