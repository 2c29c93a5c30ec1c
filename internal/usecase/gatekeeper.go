package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/policy"
)

// Verdict is the outcome of one foreground-change evaluation.
type Verdict string

const (
	VerdictUnlocked       Verdict = "unlocked"
	VerdictSelf           Verdict = "self"
	VerdictExempt         Verdict = "exempt"
	VerdictAllowed        Verdict = "allowed"
	VerdictDebounced      Verdict = "debounced"
	VerdictRedirected     Verdict = "redirected"
	VerdictRedirectFailed Verdict = "redirect_failed"
)

// Blocked reports whether the verdict sent the app away.
func (v Verdict) Blocked() bool {
	return v == VerdictRedirected || v == VerdictRedirectFailed
}

// GatekeeperMetrics records gatekeeper outcomes.
type GatekeeperMetrics interface {
	ObserveVerdict(verdict string)
	RedirectFailed()
}

type nopGatekeeperMetrics struct{}

func (nopGatekeeperMetrics) ObserveVerdict(string) {}
func (nopGatekeeperMetrics) RedirectFailed()       {}

// GatekeeperConfig configures foreground enforcement.
type GatekeeperConfig struct {
	// OwnAppID is the controlling app; it is never blocked.
	OwnAppID domain.AppID

	// EnforceCooldown skips a repeated redirect of the same app.
	EnforceCooldown time.Duration

	// NotifyCooldown is the minimum gap between blocked messages.
	NotifyCooldown time.Duration

	// FrontDelay is how long to wait after navigating home before re-presenting the controlling app.
	FrontDelay time.Duration
}

// DefaultGatekeeperConfig returns production defaults.
func DefaultGatekeeperConfig() GatekeeperConfig {
	return GatekeeperConfig{
		OwnAppID:        "focuslock",
		EnforceCooldown: time.Second,
		NotifyCooldown:  3 * time.Second,
		FrontDelay:      100 * time.Millisecond,
	}
}

// Gatekeeper reacts to foreground changes while a session is locked.
// It never mutates persisted state.
type Gatekeeper struct {
	session    *SessionState
	classifier *policy.Classifier
	system     *policy.SystemAllowlist
	platform   domain.Platform
	notifier   domain.Notifier
	metrics    GatekeeperMetrics
	config     GatekeeperConfig
	logger     *zap.Logger
	now        func() time.Time

	mu            sync.Mutex
	lastApp       domain.AppID
	lastEnforced  time.Time
	notifyLimiter *rate.Limiter

	pending sync.WaitGroup
}

// NewGatekeeper creates a gatekeeper.
func NewGatekeeper(
	session *SessionState,
	classifier *policy.Classifier,
	system *policy.SystemAllowlist,
	platform domain.Platform,
	notifier domain.Notifier,
	config GatekeeperConfig,
	logger *zap.Logger,
) *Gatekeeper {
	return &Gatekeeper{
		session:       session,
		classifier:    classifier,
		system:        system,
		platform:      platform,
		notifier:      notifier,
		metrics:       nopGatekeeperMetrics{},
		config:        config,
		logger:        logger,
		now:           session.Now,
		notifyLimiter: rate.NewLimiter(rate.Every(config.NotifyCooldown), 1),
	}
}

// WithMetrics attaches a metrics recorder.
func (g *Gatekeeper) WithMetrics(m GatekeeperMetrics) *Gatekeeper {
	if m != nil {
		g.metrics = m
	}
	return g
}

// OnForegroundChange implements domain.ForegroundHandler.
func (g *Gatekeeper) OnForegroundChange(ctx context.Context, app domain.AppID) {
	g.Evaluate(ctx, app)
}

// Evaluate decides what to do with app and performs the enforcement actions.
func (g *Gatekeeper) Evaluate(ctx context.Context, app domain.AppID) Verdict {
	v := g.evaluate(ctx, app)
	g.metrics.ObserveVerdict(string(v))
	return v
}

func (g *Gatekeeper) evaluate(ctx context.Context, app domain.AppID) Verdict {
	if !g.session.IsLocked(ctx) {
		return VerdictUnlocked
	}
	if app == g.config.OwnAppID {
		return VerdictSelf
	}
	if reason := g.system.Exemption(app); reason != policy.ExemptNone {
		g.logger.Debug("exempt app in foreground",
			zap.String("app", string(app)),
			zap.String("reason", string(reason)))
		return VerdictExempt
	}

	decision := g.classifier.Classify(app, g.session.AllowedApps(ctx))
	if decision.Permitted() {
		return VerdictAllowed
	}

	now := g.now()
	if !g.claim(app, now) {
		g.logger.Debug("redirect already in flight",
			zap.String("app", string(app)))
		return VerdictDebounced
	}

	g.logger.Info("blocking app",
		zap.String("app", string(app)),
		zap.String("decision", decision.String()))

	if g.notifyLimiter.AllowN(now, 1) {
		g.notifier.Notify(g.notice(app))
	}

	verdict := VerdictRedirected
	if err := g.platform.NavigateHome(ctx, app); err != nil {
		g.logger.Warn("failed to navigate home",
			zap.String("app", string(app)),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPlatformAction, err)))
		g.metrics.RedirectFailed()
		verdict = VerdictRedirectFailed
	}

	g.scheduleFront(ctx)
	return verdict
}

// claim records app as enforced at now unless it was enforced within the cooldown.
func (g *Gatekeeper) claim(app domain.AppID, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if app == g.lastApp && now.Sub(g.lastEnforced) < g.config.EnforceCooldown {
		return false
	}
	g.lastApp = app
	g.lastEnforced = now
	return true
}

// scheduleFront re-presents the controlling app after FrontDelay if still locked.
func (g *Gatekeeper) scheduleFront(ctx context.Context) {
	if g.config.FrontDelay <= 0 {
		g.bringToFront(ctx)
		return
	}

	g.pending.Add(1)
	// The foreground event's context may end before the timer fires.
	detached := context.WithoutCancel(ctx)
	time.AfterFunc(g.config.FrontDelay, func() {
		defer g.pending.Done()
		g.bringToFront(detached)
	})
}

func (g *Gatekeeper) bringToFront(ctx context.Context) {
	if !g.session.IsLocked(ctx) {
		return
	}
	if err := g.platform.BringToFront(ctx, g.config.OwnAppID); err != nil {
		g.logger.Warn("failed to bring app to front",
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPlatformAction, err)))
		g.metrics.RedirectFailed()
	}
}

// Wait blocks until scheduled bring-to-front actions have run.
func (g *Gatekeeper) Wait() {
	g.pending.Wait()
}

func (g *Gatekeeper) notice(app domain.AppID) domain.BlockNotice {
	n := domain.BlockNotice{App: app, Category: g.system.Category(app)}
	switch n.Category {
	case domain.CategorySystemShell:
		n.Title = "Focus Mode Active!"
		n.Body = "Notifications blocked until timer ends."
	case domain.CategoryLauncher:
		n.Title = "Stay Focused!"
		n.Body = "Use only your selected apps."
	default:
		n.Title = "App Blocked!"
		n.Body = "Use your allowed apps or wait for timer to end."
	}
	return n
}

var _ domain.ForegroundHandler = (*Gatekeeper)(nil)
