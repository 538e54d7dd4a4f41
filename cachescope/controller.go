// Package cachescope binds token caches to sessions. Every session gets its own
// isolated cache, loaded from the distributed store before an operation and
// written back afterwards when the operation changed it.
package cachescope

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-login-service/cachestore"
	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/tokencache"
	"github.com/rs/zerolog"
)

type ControllerOption func(*Controller)

// WithSealer encrypts blobs before they reach the store.
func WithSealer(s *cachestore.Sealer) ControllerOption {
	return func(c *Controller) {
		c.sealer = s
	}
}

func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller hands out per-session caches. Operations on the same session are
// serialized; operations on different sessions run in parallel.
type Controller struct {
	store   cachestore.Store
	sealer  *cachestore.Sealer
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	refs   int
	loaded bool
	cache  *tokencache.Cache
}

func New(store cachestore.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:   store,
		logger:  zerolog.Nop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do loads the session's cache, runs fn against it and persists the cache if fn
// changed it, as one unit. The cache is persisted even when fn fails; in that
// case fn's error is returned and a persist failure is only logged.
func (c *Controller) Do(ctx context.Context, sessionID string, fn func(cache *tokencache.Cache) error) error {
	if sessionID == "" {
		return lserrors.ErrMissingSessionID
	}

	e := c.acquire(sessionID)
	defer c.release(sessionID, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := c.scope(ctx, sessionID, e); err != nil {
		return err
	}

	fnErr := fn(e.cache)
	if err := c.persist(ctx, sessionID, e.cache); err != nil {
		if fnErr != nil {
			c.logger.Error().Err(err).Str("session", sessionID).Msg("failed to persist token cache")
			return fnErr
		}
		return err
	}
	return fnErr
}

// Discard drops the session's cache and deletes its blob.
func (c *Controller) Discard(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return lserrors.ErrMissingSessionID
	}

	e := c.acquire(sessionID)
	defer c.release(sessionID, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Reset()
	e.loaded = false
	if err := c.store.Delete(ctx, sessionID); err != nil {
		return lserrors.Wrapf(err, "[Controller Discard] %s", sessionID)
	}
	return nil
}

// Active returns how many sessions currently hold a cache in memory.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Controller) acquire(sessionID string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sessionID]
	if !ok {
		e = &entry{cache: tokencache.New()}
		c.entries[sessionID] = e
	}
	e.refs++
	return e
}

// release evicts the entry once nobody holds it, so the next operation reloads
// whatever other replicas have written in the meantime.
func (c *Controller) release(sessionID string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if e.refs == 0 && c.entries[sessionID] == e {
		delete(c.entries, sessionID)
	}
}

// scope loads the stored blob into the entry's cache. Must hold e.mu.
func (c *Controller) scope(ctx context.Context, sessionID string, e *entry) error {
	if e.loaded {
		return nil
	}

	blob, ok, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return lserrors.Wrapf(err, "[Controller scope] %s", sessionID)
	}
	e.loaded = true

	if !ok {
		e.cache.Reset()
		return nil
	}

	if c.sealer != nil {
		blob, err = c.sealer.Open(sessionID, blob)
	}
	if err == nil {
		err = e.cache.Deserialize(blob)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("session", sessionID).Msg("resetting unreadable token cache")
		c.metrics.CacheCorruption()
		e.cache.Reset()
		e.cache.MarkChanged()
	}
	return nil
}

func (c *Controller) persist(ctx context.Context, sessionID string, cache *tokencache.Cache) error {
	if !cache.HasChanged() {
		return nil
	}

	blob, err := cache.Serialize()
	if err != nil {
		return lserrors.Wrapf(err, "[Controller persist] serialize %s", sessionID)
	}
	if c.sealer != nil {
		if blob, err = c.sealer.Seal(sessionID, blob); err != nil {
			return lserrors.Wrapf(err, "[Controller persist] seal %s", sessionID)
		}
	}
	if err := c.store.Set(ctx, sessionID, blob); err != nil {
		return lserrors.Wrapf(err, "[Controller persist] %s", sessionID)
	}
	cache.MarkPersisted()
	return nil
}
