// Package tokencache is the in-memory credential cache for a single session.
// It tracks its own "changed" flag so callers know whether the serialized blob
// needs to be written back to the distributed store.
//
// A Cache is not safe for concurrent use; callers serialize access per session.
package tokencache

import (
	"encoding/json"
	"sort"
	"time"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
)

const blobVersion = 1

// Account is a cached identity-provider account.
type Account struct {
	HomeAccountID  string `json:"home_account_id"`
	Environment    string `json:"environment,omitempty"`
	TenantID       string `json:"tenant_id,omitempty"`
	LocalAccountID string `json:"local_account_id,omitempty"`
	Username       string `json:"username,omitempty"`
	Name           string `json:"name,omitempty"`
}

// Tokens are the credentials cached for one account.
type Tokens struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresOn    time.Time `json:"expires_on"`
	Scopes       []string  `json:"scopes,omitempty"`
}

type blob struct {
	Version  int                `json:"version"`
	Accounts map[string]Account `json:"accounts"`
	Tokens   map[string]Tokens  `json:"tokens"`
}

type Cache struct {
	data    blob
	changed bool
}

func New() *Cache {
	c := &Cache{}
	c.Reset()
	return c
}

// Reset empties the cache. The changed flag is cleared; an empty cache is the
// baseline for a session that has nothing persisted yet.
func (c *Cache) Reset() {
	c.data = blob{
		Version:  blobVersion,
		Accounts: make(map[string]Account),
		Tokens:   make(map[string]Tokens),
	}
	c.changed = false
}

// Deserialize replaces the cache contents with the blob. On failure the cache is
// left empty and ErrCacheCorrupt is returned.
func (c *Cache) Deserialize(raw []byte) error {
	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		c.Reset()
		return lserrors.Wrapf(lserrors.ErrCacheCorrupt, "[Cache Deserialize] %v", err)
	}
	if b.Version != blobVersion {
		c.Reset()
		return lserrors.Wrapf(lserrors.ErrCacheCorrupt, "[Cache Deserialize] unsupported version %d", b.Version)
	}
	if b.Accounts == nil {
		b.Accounts = make(map[string]Account)
	}
	if b.Tokens == nil {
		b.Tokens = make(map[string]Tokens)
	}
	c.data = b
	c.changed = false
	return nil
}

func (c *Cache) Serialize() ([]byte, error) {
	return json.Marshal(c.data)
}

func (c *Cache) HasChanged() bool {
	return c.changed
}

// MarkChanged forces the next persist to write, e.g. after recovering from a corrupt blob.
func (c *Cache) MarkChanged() {
	c.changed = true
}

func (c *Cache) MarkPersisted() {
	c.changed = false
}

func (c *Cache) Account(homeAccountID string) (*Account, bool) {
	a, ok := c.data.Accounts[homeAccountID]
	if !ok {
		return nil, false
	}
	return &a, true
}

// Accounts returns all cached accounts ordered by home account id.
func (c *Cache) Accounts() []Account {
	accounts := make([]Account, 0, len(c.data.Accounts))
	for _, a := range c.data.Accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].HomeAccountID < accounts[j].HomeAccountID
	})
	return accounts
}

// SaveTokens stores the account and its tokens. An empty refresh token keeps the
// previously cached one.
func (c *Cache) SaveTokens(account Account, tokens Tokens) {
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = c.data.Tokens[account.HomeAccountID].RefreshToken
	}
	c.data.Accounts[account.HomeAccountID] = account
	c.data.Tokens[account.HomeAccountID] = tokens
	c.changed = true
}

func (c *Cache) Tokens(homeAccountID string) (Tokens, bool) {
	t, ok := c.data.Tokens[homeAccountID]
	return t, ok
}

func (c *Cache) RefreshToken(homeAccountID string) string {
	return c.data.Tokens[homeAccountID].RefreshToken
}

// RemoveAccount drops the account and its tokens. Returns false if it was not cached.
func (c *Cache) RemoveAccount(homeAccountID string) bool {
	if _, ok := c.data.Accounts[homeAccountID]; !ok {
		return false
	}
	delete(c.data.Accounts, homeAccountID)
	delete(c.data.Tokens, homeAccountID)
	c.changed = true
	return true
}
