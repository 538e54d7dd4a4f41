package refresh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	lserrors "github.com/jrsteele09/go-login-service/internal/errors"
	"github.com/jrsteele09/go-login-service/refresh"
	"github.com/jrsteele09/go-login-service/sessions"
	sessionsrepofake "github.com/jrsteele09/go-login-service/sessions/repofake"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeTimer fires only when the test calls Fire.
type fakeTimer struct {
	after   time.Duration
	f       func()
	stopped bool
	mu      sync.Mutex
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasLive := !t.stopped
	t.stopped = true
	return wasLive
}

func (t *fakeTimer) Fire() {
	t.f()
}

func (t *fakeTimer) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) refresh.Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{after: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) last() *fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.timers[len(ft.timers)-1]
}

func (ft *fakeTimers) live() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var live []*fakeTimer
	for _, t := range ft.timers {
		if t.live() {
			live = append(live, t)
		}
	}
	return live
}

type refreshFunc func(ctx context.Context, sessionID string, info sessions.TokenInfo) (*sessions.TokenInfo, error)

type fakeRefresher struct {
	mu      sync.Mutex
	refresh refreshFunc
	calls   int
	forgot  []string
}

func (r *fakeRefresher) Refresh(ctx context.Context, sessionID string, info sessions.TokenInfo) (*sessions.TokenInfo, error) {
	r.mu.Lock()
	r.calls++
	f := r.refresh
	r.mu.Unlock()
	return f(ctx, sessionID, info)
}

func (r *fakeRefresher) Forget(_ context.Context, sessionID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgot = append(r.forgot, sessionID)
	return nil
}

type terminated struct {
	sessionID string
	reason    string
}

type testFixture struct {
	timers     *fakeTimers
	refresher  *fakeRefresher
	repo       *sessionsrepofake.FakeSessionsRepo
	scheduler  *refresh.Scheduler
	terminated []terminated
}

func setupTestFixture(t *testing.T, fn refreshFunc) *testFixture {
	t.Helper()
	f := &testFixture{
		timers:    &fakeTimers{},
		refresher: &fakeRefresher{refresh: fn},
		repo:      sessionsrepofake.NewFakeSessionsRepo(),
	}
	f.scheduler = refresh.New(f.refresher, f.repo, 300*time.Second,
		refresh.WithNowFunc(func() time.Time { return baseTime }),
		refresh.WithTimerFunc(f.timers.AfterFunc),
		refresh.WithRetry(3, time.Millisecond),
		refresh.WithTerminateHook(func(_ context.Context, sessionID string, _ sessions.TokenInfo, reason string) {
			f.terminated = append(f.terminated, terminated{sessionID, reason})
		}),
	)
	t.Cleanup(f.scheduler.Stop)
	return f
}

func (f *testFixture) insertSession(t *testing.T, sessionURI string, info sessions.TokenInfo) {
	t.Helper()
	_, err := f.repo.InsertSession(context.Background(), "account-1", sessionURI, info)
	require.NoError(t, err)
}

func tokenExpiringIn(d time.Duration) sessions.TokenInfo {
	return sessions.TokenInfo{HomeAccountID: "home-1", AccessToken: "at-old", ExpiresAt: baseTime.Add(d)}
}

func succeedWith(d time.Duration) refreshFunc {
	return func(_ context.Context, _ string, info sessions.TokenInfo) (*sessions.TokenInfo, error) {
		return &sessions.TokenInfo{HomeAccountID: info.HomeAccountID, AccessToken: "at-new", ExpiresAt: baseTime.Add(d)}, nil
	}
}

func TestFireTime(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))

	require.Equal(t, baseTime.Add(300*time.Second), f.scheduler.FireTime(baseTime.Add(600*time.Second)))
	require.Equal(t, baseTime.Add(5*time.Second), f.scheduler.FireTime(baseTime.Add(-time.Hour)))
	require.Equal(t, baseTime.Add(5*time.Second), f.scheduler.FireTime(baseTime.Add(302*time.Second)))
	require.Equal(t, baseTime.Add(300*time.Second), f.scheduler.FireTime(time.Time{}))

	f.scheduler.Schedule("s1", tokenExpiringIn(600*time.Second))
	require.Equal(t, 300*time.Second, f.timers.last().after)
	fireAt, ok := f.scheduler.FireAt("s1")
	require.True(t, ok)
	require.Equal(t, baseTime.Add(300*time.Second), fireAt)

	f.scheduler.Schedule("s2", tokenExpiringIn(-time.Minute))
	require.Equal(t, 5*time.Second, f.timers.last().after)
}

func TestScheduleTwiceLeavesOneTimer(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Hour))
	first := f.timers.last()
	f.scheduler.Schedule("s1", tokenExpiringIn(2*time.Hour))

	require.False(t, first.live())
	require.Len(t, f.timers.live(), 1)
	require.Equal(t, 1, f.scheduler.Len())

	// the replaced timer firing anyway must not refresh
	first.Fire()
	require.Zero(t, f.refresher.calls)
}

func TestHasValid(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))

	require.False(t, f.scheduler.HasValid("s1"))
	f.scheduler.Schedule("s1", tokenExpiringIn(time.Hour))
	require.True(t, f.scheduler.HasValid("s1"))
	require.False(t, f.scheduler.HasValid("s2"))

	f.scheduler.Cancel(context.Background(), "s1")
	require.False(t, f.scheduler.HasValid("s1"))
}

func TestCancel(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Hour))
	timer := f.timers.last()

	f.scheduler.Cancel(context.Background(), "s1")
	require.False(t, timer.live())
	require.Equal(t, []string{"s1"}, f.refresher.forgot)

	require.NotPanics(t, func() { f.scheduler.Cancel(context.Background(), "s1") })
	require.Zero(t, f.scheduler.Len())

	// misfire after cancel is a no-op
	timer.Fire()
	require.Zero(t, f.refresher.calls)
	require.Empty(t, f.terminated)
}

func TestFireSuccessReschedules(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))
	f.insertSession(t, "s1", tokenExpiringIn(time.Minute))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	require.Equal(t, 1, f.refresher.calls)
	stored, ok := f.repo.Token("s1")
	require.True(t, ok)
	require.Equal(t, "at-new", stored.AccessToken)

	require.True(t, f.scheduler.HasValid("s1"))
	fireAt, _ := f.scheduler.FireAt("s1")
	require.Equal(t, baseTime.Add(time.Hour-300*time.Second), fireAt)
	require.Len(t, f.timers.live(), 1)
	require.Empty(t, f.terminated)
}

func TestFireNilResultTearsDown(t *testing.T) {
	f := setupTestFixture(t, func(context.Context, string, sessions.TokenInfo) (*sessions.TokenInfo, error) {
		return nil, nil
	})
	f.insertSession(t, "s1", tokenExpiringIn(time.Minute))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	require.Equal(t, 1, f.refresher.calls)
	require.False(t, f.scheduler.HasValid("s1"))
	require.Empty(t, f.repo.SessionURIs())
	require.Equal(t, []string{"s1"}, f.refresher.forgot)
	require.Equal(t, []terminated{{"s1", refresh.ReasonRefreshFailed}}, f.terminated)
}

func TestFireRetriesTransientFailures(t *testing.T) {
	attempts := 0
	f := setupTestFixture(t, func(ctx context.Context, id string, info sessions.TokenInfo) (*sessions.TokenInfo, error) {
		attempts++
		if attempts < 3 {
			return nil, lserrors.Wrapf(lserrors.ErrSilentRefresh, "provider unavailable")
		}
		return succeedWith(time.Hour)(ctx, id, info)
	})
	f.insertSession(t, "s1", tokenExpiringIn(time.Minute))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	require.Equal(t, 3, f.refresher.calls)
	require.True(t, f.scheduler.HasValid("s1"))
	require.Empty(t, f.terminated)
}

func TestFireGivesUpAfterRetries(t *testing.T) {
	f := setupTestFixture(t, func(context.Context, string, sessions.TokenInfo) (*sessions.TokenInfo, error) {
		return nil, errors.New("network down")
	})
	f.insertSession(t, "s1", tokenExpiringIn(time.Minute))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	require.Equal(t, 3, f.refresher.calls)
	require.False(t, f.scheduler.HasValid("s1"))
	require.Empty(t, f.repo.SessionURIs())
}

func TestFireInteractionRequiredIsNotRetried(t *testing.T) {
	f := setupTestFixture(t, func(context.Context, string, sessions.TokenInfo) (*sessions.TokenInfo, error) {
		return nil, lserrors.Wrapf(lserrors.ErrInteractionRequired, "invalid_grant")
	})
	f.insertSession(t, "s1", tokenExpiringIn(time.Minute))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	require.Equal(t, 1, f.refresher.calls)
	require.False(t, f.scheduler.HasValid("s1"))
}

func TestRefreshFinishingAfterCancelIsDiscarded(t *testing.T) {
	var f *testFixture
	f = setupTestFixture(t, func(ctx context.Context, id string, info sessions.TokenInfo) (*sessions.TokenInfo, error) {
		// the user logs out while the provider call is in flight
		f.scheduler.Cancel(context.Background(), id)
		return succeedWith(time.Hour)(ctx, id, info)
	})
	f.insertSession(t, "s1", tokenExpiringIn(time.Minute))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	stored, ok := f.repo.Token("s1")
	require.True(t, ok)
	require.Equal(t, "at-old", stored.AccessToken)
	require.False(t, f.scheduler.HasValid("s1"))
	require.Empty(t, f.terminated)
}

func TestRefreshForRemovedSessionTearsDown(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))

	f.scheduler.Schedule("s1", tokenExpiringIn(time.Minute))
	f.timers.last().Fire()

	require.False(t, f.scheduler.HasValid("s1"))
	require.Equal(t, []terminated{{"s1", refresh.ReasonRefreshFailed}}, f.terminated)
}

func TestOverlappingRefreshesPersistUnderOwnSession(t *testing.T) {
	f := setupTestFixture(t, func(_ context.Context, id string, info sessions.TokenInfo) (*sessions.TokenInfo, error) {
		time.Sleep(2 * time.Millisecond)
		return &sessions.TokenInfo{HomeAccountID: info.HomeAccountID, AccessToken: "at-" + id, ExpiresAt: baseTime.Add(time.Hour)}, nil
	})

	ids := []string{"s1", "s2", "s3", "s4"}
	for _, id := range ids {
		info := tokenExpiringIn(time.Minute)
		info.HomeAccountID = "home-" + id
		f.insertSession(t, id, info)
		f.scheduler.Schedule(id, info)
	}

	var wg sync.WaitGroup
	for _, timer := range f.timers.live() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Fire()
		}()
	}
	wg.Wait()

	for _, id := range ids {
		stored, ok := f.repo.Token(id)
		require.True(t, ok)
		require.Equal(t, "at-"+id, stored.AccessToken)
		require.Equal(t, "home-"+id, stored.HomeAccountID)
		require.True(t, f.scheduler.HasValid(id))
	}
}

func TestStop(t *testing.T) {
	f := setupTestFixture(t, succeedWith(time.Hour))
	f.insertSession(t, "s1", tokenExpiringIn(time.Hour))
	f.scheduler.Schedule("s1", tokenExpiringIn(time.Hour))
	timer := f.timers.last()

	f.scheduler.Stop()
	require.False(t, timer.live())
	require.Zero(t, f.scheduler.Len())
	require.Equal(t, []string{"s1"}, f.repo.SessionURIs())

	f.scheduler.Schedule("s2", tokenExpiringIn(time.Hour))
	require.False(t, f.scheduler.HasValid("s2"))
}
