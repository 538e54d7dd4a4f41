package tokencache_test

import (
	"testing"
	"time"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/tokencache"
	"github.com/stretchr/testify/require"
)

var testAccount = tokencache.Account{
	HomeAccountID:  "oid-1.tid-1",
	TenantID:       "tid-1",
	LocalAccountID: "oid-1",
	Username:       "jane@example.com",
	Name:           "Jane",
}

func TestCache(t *testing.T) {
	t.Run("new cache is empty and unchanged", func(t *testing.T) {
		c := tokencache.New()
		require.False(t, c.HasChanged())
		require.Empty(t, c.Accounts())
	})

	t.Run("save marks changed and round trips", func(t *testing.T) {
		c := tokencache.New()
		exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		c.SaveTokens(testAccount, tokencache.Tokens{AccessToken: "at", RefreshToken: "rt", ExpiresOn: exp})
		require.True(t, c.HasChanged())

		raw, err := c.Serialize()
		require.NoError(t, err)

		loaded := tokencache.New()
		require.NoError(t, loaded.Deserialize(raw))
		require.False(t, loaded.HasChanged())

		acc, ok := loaded.Account(testAccount.HomeAccountID)
		require.True(t, ok)
		require.Equal(t, testAccount, *acc)
		require.Equal(t, "rt", loaded.RefreshToken(testAccount.HomeAccountID))
		tokens, ok := loaded.Tokens(testAccount.HomeAccountID)
		require.True(t, ok)
		require.True(t, exp.Equal(tokens.ExpiresOn))
	})

	t.Run("empty refresh token keeps the previous one", func(t *testing.T) {
		c := tokencache.New()
		c.SaveTokens(testAccount, tokencache.Tokens{AccessToken: "at1", RefreshToken: "rt1"})
		c.SaveTokens(testAccount, tokencache.Tokens{AccessToken: "at2"})
		require.Equal(t, "rt1", c.RefreshToken(testAccount.HomeAccountID))
	})

	t.Run("corrupt blob resets the cache", func(t *testing.T) {
		c := tokencache.New()
		c.SaveTokens(testAccount, tokencache.Tokens{AccessToken: "at"})

		err := c.Deserialize([]byte("{not json"))
		require.ErrorIs(t, err, lserrors.ErrCacheCorrupt)
		require.Empty(t, c.Accounts())

		err = c.Deserialize([]byte(`{"version":99}`))
		require.ErrorIs(t, err, lserrors.ErrCacheCorrupt)
	})

	t.Run("remove account", func(t *testing.T) {
		c := tokencache.New()
		c.SaveTokens(testAccount, tokencache.Tokens{AccessToken: "at"})
		c.MarkPersisted()
		require.False(t, c.HasChanged())

		require.True(t, c.RemoveAccount(testAccount.HomeAccountID))
		require.True(t, c.HasChanged())
		require.False(t, c.RemoveAccount(testAccount.HomeAccountID))
		_, ok := c.Account(testAccount.HomeAccountID)
		require.False(t, ok)
	})
}
