package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// mockSessionRepo implements domain.SessionRepository in memory.
// Update works on a copy and only commits when fn succeeds.
type mockSessionRepo struct {
	mu       sync.Mutex
	snap     domain.SessionSnapshot
	loadErr  error
	updErr   error
	failN    int // fail the next N updates with updErr
	updates  int
	loadHits int
}

func (m *mockSessionRepo) Load(ctx context.Context) (domain.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadHits++
	if m.loadErr != nil {
		return domain.SessionSnapshot{}, m.loadErr
	}
	return cloneSnapshot(m.snap), nil
}

func (m *mockSessionRepo) Update(ctx context.Context, fn func(s *domain.SessionSnapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updErr != nil && (m.failN > 0 || m.failN < 0) {
		if m.failN > 0 {
			m.failN--
		}
		return m.updErr
	}
	work := cloneSnapshot(m.snap)
	if err := fn(&work); err != nil {
		return err
	}
	m.snap = work
	m.updates++
	return nil
}

func (m *mockSessionRepo) get() domain.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap)
}

func (m *mockSessionRepo) set(s domain.SessionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = cloneSnapshot(s)
}

func cloneSnapshot(s domain.SessionSnapshot) domain.SessionSnapshot {
	out := s
	if s.AllowedApps != nil {
		out.AllowedApps = append([]domain.AppID(nil), s.AllowedApps...)
	}
	return out
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessionState(repo *mockSessionRepo, clock *fakeClock) *SessionState {
	return NewSessionState(repo, zap.NewNop()).WithClock(clock.Now)
}

func TestSessionState_StartLocks(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	snap, err := s.Start(ctx, 25*time.Minute, []domain.AppID{"org.example.notes", "com.android.dialer"})
	require.NoError(t, err)

	assert.NotEmpty(t, snap.SessionID)
	assert.True(t, snap.Locked)
	assert.Equal(t, clock.Now().Add(25*time.Minute).UnixMilli(), snap.EndTimeMs)
	assert.Equal(t, (25 * time.Minute).Milliseconds(), snap.TotalDurationMs)
	assert.Equal(t, []domain.AppID{"com.android.dialer", "org.example.notes"}, snap.AllowedApps)

	assert.True(t, s.IsLocked(ctx))
	assert.Equal(t, snap, repo.get())
}

func TestSessionState_StartInvalidDuration(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())

	for _, d := range []time.Duration{0, -time.Second} {
		_, err := s.Start(context.Background(), d, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	}
	assert.Equal(t, 0, repo.updates)
	assert.False(t, repo.get().Locked)
}

func TestSessionState_StartWhileLocked(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	first, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)

	_, err = s.Start(ctx, time.Minute, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)
	assert.Equal(t, first.SessionID, repo.get().SessionID)

	// An expired record does not block a new session.
	clock.Advance(2 * time.Minute)
	second, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestSessionState_StartPersistenceFailure(t *testing.T) {
	repo := &mockSessionRepo{updErr: errors.New("disk full"), failN: -1}
	s := newTestSessionState(repo, newFakeClock())

	_, err := s.Start(context.Background(), time.Minute, nil)
	assert.ErrorIs(t, err, domain.ErrPersistenceWrite)
}

func TestSessionState_IsLockedSelfHeals(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	snap, err := s.Start(ctx, time.Minute, []domain.AppID{"org.example.notes"})
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Millisecond)

	// Accessors never heal.
	assert.Equal(t, snap.EndTime(), s.EndTime(ctx))
	assert.True(t, repo.get().Locked)

	assert.False(t, s.IsLocked(ctx))

	after := repo.get()
	assert.False(t, after.Locked)
	assert.Zero(t, after.EndTimeMs)
	assert.Equal(t, []domain.AppID{"org.example.notes"}, after.AllowedApps, "unlock keeps the allow-set")
	assert.True(t, after.Pending(), "self-heal does not settle the session")
}

// interleavingRepo runs between once, right after the first Load returns.
type interleavingRepo struct {
	*mockSessionRepo
	between func()
	once    sync.Once
}

func (r *interleavingRepo) Load(ctx context.Context) (domain.SessionSnapshot, error) {
	snap, err := r.mockSessionRepo.Load(ctx)
	r.once.Do(r.between)
	return snap, err
}

func TestSessionState_SelfHealKeepsNewerSession(t *testing.T) {
	base := &mockSessionRepo{}
	clock := newFakeClock()
	ctx := context.Background()

	other := newTestSessionState(base, clock)
	expired, err := other.Start(ctx, time.Minute, nil)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	var fresh domain.SessionSnapshot
	repo := &interleavingRepo{mockSessionRepo: base}
	repo.between = func() {
		fresh, err = other.Start(ctx, 10*time.Minute, nil)
		require.NoError(t, err)
	}
	reader := NewSessionState(repo, zap.NewNop()).WithClock(clock.Now)

	assert.False(t, reader.IsLocked(ctx), "the reader saw the expired session")

	after := base.get()
	require.NotEqual(t, expired.SessionID, fresh.SessionID)
	assert.Equal(t, fresh.SessionID, after.SessionID)
	assert.True(t, after.Locked, "the newer session must survive the heal")
	assert.Equal(t, fresh.EndTimeMs, after.EndTimeMs)
	assert.True(t, reader.IsLocked(ctx))
}

func TestSessionState_IsLockedAtDeadline(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	_, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.True(t, s.IsLocked(ctx), "still locked exactly at the deadline")
}

func TestSessionState_IsLockedReadFailure(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	_, err := s.Start(ctx, time.Hour, nil)
	require.NoError(t, err)

	repo.loadErr = errors.New("corrupt")
	assert.False(t, s.IsLocked(ctx))
	assert.True(t, s.EndTime(ctx).IsZero())
	assert.Zero(t, s.TotalDuration(ctx))
	assert.Empty(t, s.AllowedApps(ctx))
}

func TestSessionState_UnlockIdempotent(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	_, err := s.Start(ctx, time.Hour, []domain.AppID{"org.example.notes"})
	require.NoError(t, err)

	require.NoError(t, s.Unlock(ctx))
	once := repo.get()
	require.NoError(t, s.Unlock(ctx))
	assert.Equal(t, once, repo.get())
	assert.False(t, s.IsLocked(ctx))
}

func TestSessionState_Cancel(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	snap, err := s.Start(ctx, time.Hour, nil)
	require.NoError(t, err)

	cancelled, err := s.Cancel(ctx)
	require.NoError(t, err)
	assert.True(t, cancelled)

	after := repo.get()
	assert.False(t, after.Locked)
	assert.Equal(t, snap.SessionID, after.SettledSessionID)
	assert.Zero(t, after.LifetimeUsageMs, "cancel does not credit usage")

	cancelled, err = s.Cancel(ctx)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestSessionState_CancelExpiredLeftToComplete(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	snap, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	cancelled, err := s.Cancel(ctx)
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Empty(t, repo.get().SettledSessionID)

	applied, err := s.Complete(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, time.Minute, s.LifetimeUsage(ctx))
}

func TestSessionState_CompleteExactlyOnce(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	snap, err := s.Start(ctx, 30*time.Minute, nil)
	require.NoError(t, err)

	applied, err := s.Complete(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 30*time.Minute, s.LifetimeUsage(ctx))
	assert.False(t, s.IsLocked(ctx))

	applied, err = s.Complete(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 30*time.Minute, s.LifetimeUsage(ctx))
}

func TestSessionState_CompleteAfterSelfHeal(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	snap, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	require.False(t, s.IsLocked(ctx))

	applied, err := s.Complete(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.True(t, applied, "a healed but unsettled session still gets its terminal handling")
	assert.Equal(t, time.Minute, s.LifetimeUsage(ctx))
}

func TestSessionState_CompleteSuperseded(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	snap, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)
	_, err = s.Cancel(ctx)
	require.NoError(t, err)

	applied, err := s.Complete(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = s.Complete(ctx, "other-session")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Zero(t, s.LifetimeUsage(ctx))
}

func TestSessionState_Release(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	snap, err := s.Start(ctx, time.Hour, nil)
	require.NoError(t, err)
	require.True(t, s.IsLocked(ctx))

	s.Release(snap.SessionID)

	assert.False(t, s.IsLocked(ctx))
	assert.True(t, repo.get().Locked, "release does not touch the store")
	assert.Zero(t, s.Remaining(ctx))

	// A new session is allowed over the released one.
	next, err := s.Start(ctx, time.Minute, nil)
	require.NoError(t, err)
	assert.True(t, s.IsLocked(ctx))
	assert.NotEqual(t, snap.SessionID, next.SessionID)
}

func TestSessionState_SetAllowedApps(t *testing.T) {
	repo := &mockSessionRepo{}
	s := newTestSessionState(repo, newFakeClock())
	ctx := context.Background()

	require.NoError(t, s.SetAllowedApps(ctx, []domain.AppID{"b", "a", "a"}))
	assert.Equal(t, []domain.AppID{"a", "b"}, repo.get().AllowedApps)

	_, err := s.Start(ctx, time.Hour, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetAllowedApps(ctx, []domain.AppID{"c"}), domain.ErrAlreadyLocked)
}

func TestSessionState_DisplayHelpers(t *testing.T) {
	repo := &mockSessionRepo{}
	clock := newFakeClock()
	s := newTestSessionState(repo, clock)
	ctx := context.Background()

	assert.Zero(t, s.Remaining(ctx))
	assert.Zero(t, s.Progress(ctx))

	_, err := s.Start(ctx, 10*time.Minute, nil)
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 6*time.Minute, s.Remaining(ctx))
	assert.InDelta(t, 0.6, s.Progress(ctx), 0.0001)

	clock.Advance(time.Hour)
	assert.Zero(t, s.Remaining(ctx))
	assert.Zero(t, s.Progress(ctx))
	assert.True(t, repo.get().Locked, "display helpers have no side effects")
}
