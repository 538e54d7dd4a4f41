// Package refresh keeps session access tokens fresh. It holds at most one pending
// timer per session and refreshes the token ahead of its expiry.
package refresh

import (
	"context"
	"sync"
	"time"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/internal/metrics"
	"github.com/jrsteele09/go-login-service/sessions"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	DefaultRenewalOffset = 300 * time.Second
	DefaultGraceInterval = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBase     = 2 * time.Second

	ReasonRefreshFailed = "refresh_failed"
)

// Refresher performs the credential work for a session.
type Refresher interface {
	// Refresh forces a silent refresh. A nil result means the credentials are gone.
	Refresh(ctx context.Context, sessionID string, info sessions.TokenInfo) (*sessions.TokenInfo, error)
	// Forget removes the session's account and cached credentials. homeAccountID may be empty.
	Forget(ctx context.Context, sessionID, homeAccountID string) error
}

// Store is the part of the session store the scheduler writes to.
type Store interface {
	PersistTokenInfo(ctx context.Context, sessionURI string, info sessions.TokenInfo) error
	RemoveSession(ctx context.Context, sessionURI string) error
}

type Timer interface {
	Stop() bool
}

// TimerFunc runs f once after d, like time.AfterFunc.
type TimerFunc func(d time.Duration, f func()) Timer

// TerminateHook is called after a session was torn down by the scheduler.
type TerminateHook func(ctx context.Context, sessionID string, info sessions.TokenInfo, reason string)

type Option func(*Scheduler)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func WithTimerFunc(f TimerFunc) Option {
	return func(s *Scheduler) {
		s.afterFunc = f
	}
}

// WithRetry sets how many refresh attempts are made before a session is torn down.
func WithRetry(attempts int, base time.Duration) Option {
	return func(s *Scheduler) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

func WithGraceInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.grace = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithTerminateHook(h TerminateHook) Option {
	return func(s *Scheduler) {
		s.onTerminate = h
	}
}

// job is the pending refresh of one session.
type job struct {
	sessionID string
	info      sessions.TokenInfo
	fireAt    time.Time
	timer     Timer
	ctx       context.Context
	cancel    context.CancelFunc
}

type Scheduler struct {
	refresher     Refresher
	store         Store
	offset        time.Duration
	grace         time.Duration
	retryAttempts int
	retryBase     time.Duration
	now           func() time.Time
	afterFunc     TimerFunc
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	onTerminate   TerminateHook

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	running sync.WaitGroup
}

func New(refresher Refresher, store Store, renewalOffset time.Duration, opts ...Option) *Scheduler {
	if renewalOffset <= 0 {
		renewalOffset = DefaultRenewalOffset
	}
	s := &Scheduler{
		refresher:     refresher,
		store:         store,
		offset:        renewalOffset,
		grace:         DefaultGraceInterval,
		retryAttempts: DefaultRetryAttempts,
		retryBase:     DefaultRetryBase,
		now:           NowTimeFunc,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: zerolog.Nop(),
		jobs:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// FireTime is when a token expiring at expiresAt gets refreshed. It is never
// earlier than the grace interval from now. An unknown (zero) expiry is refreshed
// one renewal offset from now.
func (s *Scheduler) FireTime(expiresAt time.Time) time.Time {
	now := s.now()
	if expiresAt.IsZero() {
		return now.Add(max(s.offset, s.grace))
	}
	fireAt := expiresAt.Add(-s.offset)
	if earliest := now.Add(s.grace); fireAt.Before(earliest) {
		return earliest
	}
	return fireAt
}

// Schedule installs a refresh for the session, replacing any pending one.
func (s *Scheduler) Schedule(sessionID string, info sessions.TokenInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked(sessionID, info)
}

func (s *Scheduler) scheduleLocked(sessionID string, info sessions.TokenInfo) {
	if s.stopped {
		return
	}
	if old, ok := s.jobs[sessionID]; ok {
		old.timer.Stop()
		old.cancel()
	}

	j := &job{
		sessionID: sessionID,
		info:      info,
		fireAt:    s.FireTime(info.ExpiresAt),
	}
	j.ctx, j.cancel = context.WithCancel(s.ctx)
	j.timer = s.afterFunc(j.fireAt.Sub(s.now()), func() { s.fire(j) })
	s.jobs[sessionID] = j
	s.metrics.SetRefreshJobs(len(s.jobs))

	s.logger.Debug().Str("session", sessionID).Time("fire_at", j.fireAt).Msg("refresh scheduled")
}

// Cancel drops the session's pending refresh and forgets its cached credentials.
// Cancelling a session without a pending refresh is not an error.
func (s *Scheduler) Cancel(ctx context.Context, sessionID string) {
	s.mu.Lock()
	j, ok := s.jobs[sessionID]
	if ok {
		j.timer.Stop()
		j.cancel()
		delete(s.jobs, sessionID)
		s.metrics.SetRefreshJobs(len(s.jobs))
	}
	s.mu.Unlock()

	var homeAccountID string
	if ok {
		homeAccountID = j.info.HomeAccountID
	}
	if err := s.refresher.Forget(ctx, sessionID, homeAccountID); err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msg("failed to forget cached credentials")
	}
}

// HasValid reports whether a refresh is pending for the session. It says nothing
// about the token's actual expiry.
func (s *Scheduler) HasValid(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[sessionID]
	return ok
}

// FireAt returns when the session's pending refresh fires.
func (s *Scheduler) FireAt(sessionID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return j.fireAt, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels all timers and waits for running refreshes. Sessions are left intact
// so another process can pick them up.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, id)
	}
	s.metrics.SetRefreshJobs(0)
	s.mu.Unlock()

	s.cancel()
	s.running.Wait()
}

func (s *Scheduler) current(j *job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[j.sessionID] == j
}

func (s *Scheduler) fire(j *job) {
	s.mu.Lock()
	if s.stopped || s.jobs[j.sessionID] != j {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	log := s.logger.With().Str("session", j.sessionID).Logger()

	info, err := s.refreshWithRetry(j)
	if err != nil || info == nil {
		if !s.current(j) {
			return
		}
		log.Warn().Err(err).Msg("silent refresh failed, terminating session")
		s.metrics.Refresh("failure")
		s.terminate(j, ReasonRefreshFailed)
		return
	}

	if !s.current(j) {
		log.Debug().Msg("discarding refresh for a session that changed meanwhile")
		return
	}
	s.metrics.Refresh("success")

	if err := s.store.PersistTokenInfo(j.ctx, j.sessionID, *info); err != nil {
		if lserrors.Is(err, lserrors.ErrSessionNotFound) {
			log.Warn().Msg("session removed during refresh")
			s.terminate(j, ReasonRefreshFailed)
			return
		}
		log.Error().Err(err).Msg("failed to persist refreshed token info")
	}

	s.mu.Lock()
	if s.jobs[j.sessionID] == j {
		s.scheduleLocked(j.sessionID, *info)
	}
	s.mu.Unlock()
}

func (s *Scheduler) refreshWithRetry(j *job) (*sessions.TokenInfo, error) {
	backoff := retry.WithMaxRetries(uint64(s.retryAttempts-1), retry.NewExponential(s.retryBase))
	return retry.DoValue(j.ctx, backoff, func(ctx context.Context) (*sessions.TokenInfo, error) {
		info, err := s.refresher.Refresh(ctx, j.sessionID, j.info)
		if err == nil {
			return info, nil
		}
		if lserrors.Is(err, lserrors.ErrInteractionRequired) {
			return nil, err
		}
		s.metrics.Refresh("retry")
		s.logger.Info().Err(err).Str("session", j.sessionID).Msg("silent refresh attempt failed")
		return nil, retry.RetryableError(err)
	})
}

// terminate tears the session down if j is still its current job.
func (s *Scheduler) terminate(j *job, reason string) {
	s.mu.Lock()
	if s.jobs[j.sessionID] != j {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, j.sessionID)
	s.metrics.SetRefreshJobs(len(s.jobs))
	s.mu.Unlock()

	// the job context dies with the job, teardown must outlive it
	ctx := context.WithoutCancel(j.ctx)
	if err := s.store.RemoveSession(ctx, j.sessionID); err != nil {
		s.logger.Error().Err(err).Str("session", j.sessionID).Msg("failed to remove session")
	}
	if err := s.refresher.Forget(ctx, j.sessionID, j.info.HomeAccountID); err != nil {
		s.logger.Warn().Err(err).Str("session", j.sessionID).Msg("failed to forget cached credentials")
	}
	j.cancel()

	s.metrics.Terminated(reason)
	if s.onTerminate != nil {
		s.onTerminate(ctx, j.sessionID, j.info, reason)
	}
}
