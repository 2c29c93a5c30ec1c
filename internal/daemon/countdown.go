package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/bus"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

// CountdownState is the countdown lifecycle.
type CountdownState int

const (
	CountdownIdle CountdownState = iota
	CountdownRunning
	CountdownFinished
	CountdownCancelled
)

func (s CountdownState) String() string {
	switch s {
	case CountdownRunning:
		return "running"
	case CountdownFinished:
		return "finished"
	case CountdownCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Terminal reports whether no further transition is possible.
func (s CountdownState) Terminal() bool {
	return s == CountdownFinished || s == CountdownCancelled
}

// CountdownConfig holds countdown configuration.
type CountdownConfig struct {
	TickInterval  time.Duration // Tick cadence (default 1s)
	FinishRetries int           // Extra attempts to persist the finish
	RetryBackoff  time.Duration // Wait between finish attempts
	OwnAppID      domain.AppID  // App brought forward on finish
}

// DefaultCountdownConfig returns default countdown configuration.
func DefaultCountdownConfig() CountdownConfig {
	return CountdownConfig{
		TickInterval:  time.Second,
		FinishRetries: 3,
		RetryBackoff:  250 * time.Millisecond,
		OwnAppID:      "focuslock",
	}
}

// CountdownMetrics records countdown progress.
type CountdownMetrics interface {
	SetLocked(locked bool)
	SetRemaining(d time.Duration)
	SessionFinished()
	PersistenceRetry()
}

type nopCountdownMetrics struct{}

func (nopCountdownMetrics) SetLocked(bool)             {}
func (nopCountdownMetrics) SetRemaining(time.Duration) {}
func (nopCountdownMetrics) SessionFinished()           {}
func (nopCountdownMetrics) PersistenceRetry()          {}

// Countdown drives one focus session to its end.
// The deadline is always re-derived from the persisted end time, so a restarted
// process resumes where the previous one stopped.
type Countdown struct {
	config   CountdownConfig
	session  *usecase.SessionState
	bus      bus.Publisher
	platform domain.Platform
	metrics  CountdownMetrics
	logger   *zap.Logger

	mu        sync.Mutex
	state     CountdownState
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCountdown creates an idle countdown.
func NewCountdown(
	config CountdownConfig,
	session *usecase.SessionState,
	publisher bus.Publisher,
	platform domain.Platform,
	logger *zap.Logger,
) *Countdown {
	return &Countdown{
		config:   config,
		session:  session,
		bus:      publisher,
		platform: platform,
		metrics:  nopCountdownMetrics{},
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// WithMetrics attaches a metrics recorder.
func (c *Countdown) WithMetrics(m CountdownMetrics) *Countdown {
	if m != nil {
		c.metrics = m
	}
	return c
}

// Next returns an idle countdown with the same configuration and collaborators.
func (c *Countdown) Next() *Countdown {
	return NewCountdown(c.config, c.session, c.bus, c.platform, c.logger).WithMetrics(c.metrics)
}

// Start resumes the persisted session. It returns ErrNotLocked when there is
// no session awaiting its end, and ErrCountdownNotIdle when called twice.
func (c *Countdown) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CountdownIdle {
		return domain.ErrCountdownNotIdle
	}

	snap, err := c.session.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.Pending() {
		return domain.ErrNotLocked
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.state = CountdownRunning
	c.sessionID = snap.SessionID
	c.cancel = cancel

	c.logger.Info("countdown started",
		zap.String("session", snap.SessionID),
		zap.Time("end_time", snap.EndTime()))

	go c.run(runCtx, snap)
	return nil
}

// Stop cancels the countdown without touching the persisted session.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.state == CountdownIdle {
		c.state = CountdownCancelled
		close(c.done)
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.done
}

// State returns the current state.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session being counted down.
func (c *Countdown) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Done is closed once the countdown reaches a terminal state.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

func (c *Countdown) run(ctx context.Context, snap domain.SessionSnapshot) {
	defer close(c.done)
	defer c.cancel()

	endTime := snap.EndTime()
	c.metrics.SetLocked(snap.Locked)

	// Healed by a reader, or already past the deadline: no ticks.
	if !snap.Locked || !c.session.Now().Before(endTime) {
		c.finish(ctx)
		return
	}

	if c.tick(endTime) {
		c.finish(ctx)
		return
	}

	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.transition(CountdownCancelled)
			c.logger.Info("countdown stopped", zap.String("session", c.sessionID))
			return

		case <-ticker.C:
			cur, err := c.session.Snapshot(ctx)
			if err != nil {
				c.logger.Warn("failed to read session state, keeping deadline", zap.Error(err))
			} else {
				if cur.SessionID != c.sessionID || cur.SettledSessionID == c.sessionID {
					c.transition(CountdownCancelled)
					c.metrics.SetLocked(false)
					c.metrics.SetRemaining(0)
					c.logger.Info("session ended elsewhere", zap.String("session", c.sessionID))
					return
				}
				if cur.Locked {
					endTime = cur.EndTime()
				} else {
					c.finish(ctx)
					return
				}
			}
			if c.tick(endTime) {
				c.finish(ctx)
				return
			}
		}
	}
}

// tick publishes the remaining time. It reports true once the deadline is reached.
func (c *Countdown) tick(endTime time.Time) bool {
	remaining := endTime.Sub(c.session.Now())
	if remaining <= 0 {
		return true
	}
	c.metrics.SetRemaining(remaining)
	c.bus.Publish(domain.Event{
		Kind:        domain.EventTick,
		SessionID:   c.sessionID,
		RemainingMs: remaining.Milliseconds(),
	})
	return false
}

// finish performs the terminal handling once: credit usage, unlock, publish
// Finished and bring the controlling app forward.
func (c *Countdown) finish(ctx context.Context) {
	// Finishing must not be abandoned halfway because the caller is shutting down.
	ctx = context.WithoutCancel(ctx)

	applied, err := c.complete(ctx)
	if err != nil {
		c.logger.Error("failed to persist session finish, releasing lock in memory",
			zap.String("session", c.sessionID),
			zap.Error(err))
		// The store keeps the session locked and unsettled. This process treats
		// it as settled; a daemon started later completes it once and publishes
		// its own Finished.
		c.session.Release(c.sessionID)
		applied = true
	}

	c.metrics.SetLocked(false)
	c.metrics.SetRemaining(0)

	if !applied {
		c.transition(CountdownCancelled)
		c.logger.Info("session already settled", zap.String("session", c.sessionID))
		return
	}

	c.transition(CountdownFinished)
	c.metrics.SessionFinished()
	c.bus.Publish(domain.Event{Kind: domain.EventFinished, SessionID: c.sessionID})
	c.logger.Info("session finished", zap.String("session", c.sessionID))

	if err := c.platform.BringToFront(ctx, c.config.OwnAppID); err != nil {
		c.logger.Warn("failed to bring app to front", zap.Error(err))
	}
}

func (c *Countdown) complete(ctx context.Context) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.FinishRetries; attempt++ {
		if attempt > 0 {
			c.metrics.PersistenceRetry()
			time.Sleep(c.config.RetryBackoff)
		}
		applied, err := c.session.Complete(ctx, c.sessionID)
		if err == nil {
			return applied, nil
		}
		lastErr = err
		c.logger.Warn("session finish write failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return false, lastErr
}

func (c *Countdown) transition(to CountdownState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = to
}
