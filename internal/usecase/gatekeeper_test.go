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
	"github.com/eliteGoblin/focusd/focuslock/internal/policy"
)

// mockDefaults implements domain.DeviceDefaults for testing
type mockDefaults struct {
	dialer    domain.AppID
	messaging domain.AppID
	launcher  domain.AppID
	imes      []domain.AppID
}

func (m *mockDefaults) DefaultDialer() domain.AppID    { return m.dialer }
func (m *mockDefaults) DefaultMessaging() domain.AppID { return m.messaging }
func (m *mockDefaults) Launcher() domain.AppID         { return m.launcher }
func (m *mockDefaults) InputMethods() []domain.AppID   { return m.imes }

// mockPlatform records navigation requests.
type mockPlatform struct {
	mu       sync.Mutex
	homeErr  error
	frontErr error
	home     []domain.AppID
	front    []domain.AppID
}

func (m *mockPlatform) NavigateHome(ctx context.Context, blocked domain.AppID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.home = append(m.home, blocked)
	return m.homeErr
}

func (m *mockPlatform) BringToFront(ctx context.Context, app domain.AppID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.front = append(m.front, app)
	return m.frontErr
}

func (m *mockPlatform) homeCalls() []domain.AppID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AppID(nil), m.home...)
}

func (m *mockPlatform) frontCalls() []domain.AppID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AppID(nil), m.front...)
}

// mockNotifier records notices.
type mockNotifier struct {
	mu      sync.Mutex
	notices []domain.BlockNotice
}

func (m *mockNotifier) Notify(n domain.BlockNotice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
}

func (m *mockNotifier) all() []domain.BlockNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BlockNotice(nil), m.notices...)
}

// mockGatekeeperMetrics counts verdicts.
type mockGatekeeperMetrics struct {
	mu       sync.Mutex
	verdicts map[string]int
	failures int
}

func (m *mockGatekeeperMetrics) ObserveVerdict(v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verdicts == nil {
		m.verdicts = make(map[string]int)
	}
	m.verdicts[v]++
}

func (m *mockGatekeeperMetrics) RedirectFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

const (
	testDialer    domain.AppID = "com.android.dialer"
	testMessaging domain.AppID = "com.google.android.apps.messaging"
	testKeyboard  domain.AppID = "com.google.android.inputmethod.latin"
	testNotes     domain.AppID = "org.example.notes"
	testSocial    domain.AppID = "com.instagram.android"
	testGame      domain.AppID = "org.example.game"
)

type gatekeeperFixture struct {
	repo     *mockSessionRepo
	clock    *fakeClock
	session  *SessionState
	platform *mockPlatform
	notifier *mockNotifier
	metrics  *mockGatekeeperMetrics
	gk       *Gatekeeper
}

func newGatekeeperFixture(t *testing.T, cfg GatekeeperConfig) *gatekeeperFixture {
	t.Helper()
	defaults := &mockDefaults{
		dialer:    testDialer,
		messaging: testMessaging,
		launcher:  "com.google.android.apps.nexuslauncher",
		imes:      []domain.AppID{testKeyboard},
	}
	f := &gatekeeperFixture{
		repo:     &mockSessionRepo{},
		clock:    newFakeClock(),
		platform: &mockPlatform{},
		notifier: &mockNotifier{},
		metrics:  &mockGatekeeperMetrics{},
	}
	f.session = newTestSessionState(f.repo, f.clock)
	f.gk = NewGatekeeper(
		f.session,
		policy.NewClassifier(policy.NewCatalog(), defaults),
		policy.NewSystemAllowlist(defaults),
		f.platform,
		f.notifier,
		cfg,
		zap.NewNop(),
	).WithMetrics(f.metrics)
	return f
}

func instantConfig() GatekeeperConfig {
	cfg := DefaultGatekeeperConfig()
	cfg.FrontDelay = 0
	return cfg
}

func (f *gatekeeperFixture) lock(t *testing.T, d time.Duration, apps ...domain.AppID) {
	t.Helper()
	_, err := f.session.Start(context.Background(), d, apps)
	require.NoError(t, err)
}

func TestGatekeeper_UnlockedIsNoop(t *testing.T) {
	f := newGatekeeperFixture(t, instantConfig())

	v := f.gk.Evaluate(context.Background(), testSocial)

	assert.Equal(t, VerdictUnlocked, v)
	assert.Empty(t, f.platform.homeCalls())
	assert.Empty(t, f.notifier.all())
}

func TestGatekeeper_Scenario(t *testing.T) {
	f := newGatekeeperFixture(t, instantConfig())
	ctx := context.Background()
	f.lock(t, 30*time.Minute, testNotes)

	// Allowed, fixed, exempt and self never trigger a redirect.
	assert.Equal(t, VerdictAllowed, f.gk.Evaluate(ctx, testNotes))
	assert.Equal(t, VerdictAllowed, f.gk.Evaluate(ctx, testDialer))
	assert.Equal(t, VerdictAllowed, f.gk.Evaluate(ctx, testMessaging))
	assert.Equal(t, VerdictExempt, f.gk.Evaluate(ctx, testKeyboard))
	assert.Equal(t, VerdictExempt, f.gk.Evaluate(ctx, "com.android.settings"))
	assert.Equal(t, VerdictExempt, f.gk.Evaluate(ctx, "com.android.documentsui"))
	assert.Equal(t, VerdictSelf, f.gk.Evaluate(ctx, "focuslock"))
	assert.Empty(t, f.platform.homeCalls())

	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testSocial))
	assert.Equal(t, []domain.AppID{testSocial}, f.platform.homeCalls())
	assert.Equal(t, []domain.AppID{"focuslock"}, f.platform.frontCalls())

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.CategoryApp, notices[0].Category)
	assert.Equal(t, "App Blocked!", notices[0].Title)

	assert.Equal(t, 1, f.metrics.verdicts["redirected"])
	assert.Equal(t, 3, f.metrics.verdicts["exempt"])
}

func TestGatekeeper_HardBlockedEvenIfSaved(t *testing.T) {
	f := newGatekeeperFixture(t, instantConfig())
	f.lock(t, time.Hour, testSocial)

	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(context.Background(), testSocial))
}

func TestGatekeeper_Debounce(t *testing.T) {
	f := newGatekeeperFixture(t, instantConfig())
	ctx := context.Background()
	f.lock(t, time.Hour)

	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testGame))

	f.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, VerdictDebounced, f.gk.Evaluate(ctx, testGame))
	assert.Len(t, f.platform.homeCalls(), 1)

	// A different app is not debounced.
	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testSocial))

	f.clock.Advance(time.Second)
	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testGame))
	assert.Len(t, f.platform.homeCalls(), 3)
}

func TestGatekeeper_NotificationCooldown(t *testing.T) {
	f := newGatekeeperFixture(t, instantConfig())
	ctx := context.Background()
	f.lock(t, time.Hour)

	apps := []domain.AppID{testGame, testSocial, "com.android.systemui", testGame}
	for _, app := range apps {
		f.gk.Evaluate(ctx, app)
		f.clock.Advance(1100 * time.Millisecond)
	}

	// Four redirects over ~4.4s, but only one message per 3s window.
	assert.Len(t, f.platform.homeCalls(), 4)
	notices := f.notifier.all()
	require.Len(t, notices, 2)
	assert.Equal(t, testGame, notices[0].App)
	assert.Equal(t, testGame, notices[1].App)
}

func TestGatekeeper_NoticeCategories(t *testing.T) {
	tests := []struct {
		app      domain.AppID
		category domain.BlockCategory
		title    string
	}{
		{"com.android.systemui", domain.CategorySystemShell, "Focus Mode Active!"},
		{"com.google.android.apps.nexuslauncher", domain.CategoryLauncher, "Stay Focused!"},
		{"org.example.launcher.pro", domain.CategoryLauncher, "Stay Focused!"},
		{testGame, domain.CategoryApp, "App Blocked!"},
	}

	for _, tt := range tests {
		t.Run(string(tt.app), func(t *testing.T) {
			f := newGatekeeperFixture(t, instantConfig())
			f.lock(t, time.Hour)

			require.Equal(t, VerdictRedirected, f.gk.Evaluate(context.Background(), tt.app))
			notices := f.notifier.all()
			require.Len(t, notices, 1)
			assert.Equal(t, tt.category, notices[0].Category)
			assert.Equal(t, tt.title, notices[0].Title)
			assert.NotEmpty(t, notices[0].Body)
		})
	}
}

func TestGatekeeper_PlatformFailureIsNotFatal(t *testing.T) {
	f := newGatekeeperFixture(t, instantConfig())
	ctx := context.Background()
	f.lock(t, time.Hour)
	f.platform.homeErr = errors.New("no window manager")
	f.platform.frontErr = errors.New("no window manager")

	assert.Equal(t, VerdictRedirectFailed, f.gk.Evaluate(ctx, testGame))
	assert.Equal(t, 2, f.metrics.failures)

	f.clock.Advance(2 * time.Second)
	f.platform.homeErr = nil
	f.platform.frontErr = nil
	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testGame))
	assert.True(t, f.session.IsLocked(ctx), "gatekeeper never mutates session state")
}

func TestGatekeeper_DelayedFrontRechecksLock(t *testing.T) {
	cfg := DefaultGatekeeperConfig()
	cfg.FrontDelay = 20 * time.Millisecond
	f := newGatekeeperFixture(t, cfg)
	ctx := context.Background()
	f.lock(t, time.Hour)

	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testGame))
	f.gk.Wait()
	assert.Equal(t, []domain.AppID{"focuslock"}, f.platform.frontCalls())

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, VerdictRedirected, f.gk.Evaluate(ctx, testSocial))
	require.NoError(t, f.session.Unlock(ctx))
	f.gk.Wait()

	assert.Len(t, f.platform.frontCalls(), 1, "no bring-to-front after the session ended")
}
