// Package daemon implements the background process that owns the countdown
// and enforces the allow-set while a session is locked.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/bus"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

// RunnerConfig holds daemon loop configuration.
type RunnerConfig struct {
	HeartbeatInterval time.Duration // How often to update heartbeat
	EventBuffer       int           // Bus subscription buffer for the log listener
}

// DefaultRunnerConfig returns default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		HeartbeatInterval: 30 * time.Second,
		EventBuffer:       bus.DefaultBuffer,
	}
}

// Runner is the daemon main loop.
// It resumes the countdown for the persisted session and feeds foreground
// changes to the gatekeeper until no session is left to run. A session
// started while the previous one was ending is picked up by the same daemon.
type Runner struct {
	config     RunnerConfig
	countdown  *Countdown
	gatekeeper *usecase.Gatekeeper
	source     domain.ForegroundSource
	registry   domain.DaemonRegistry
	events     *bus.Bus
	daemon     domain.Daemon
	logger     *zap.Logger
}

// NewRunner creates a new daemon runner.
func NewRunner(
	config RunnerConfig,
	countdown *Countdown,
	gatekeeper *usecase.Gatekeeper,
	source domain.ForegroundSource,
	registry domain.DaemonRegistry,
	events *bus.Bus,
	daemon domain.Daemon,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		config:     config,
		countdown:  countdown,
		gatekeeper: gatekeeper,
		source:     source,
		registry:   registry,
		events:     events,
		daemon:     daemon,
		logger:     logger,
	}
}

// Run blocks until the last session reaches a terminal state or ctx is canceled.
// Returns nil when there is no session to run.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.registry.Register(r.daemon); err != nil {
		r.logger.Error("failed to register daemon", zap.Error(err))
		return err
	}
	defer func() {
		if err := r.registry.Clear(); err != nil {
			r.logger.Warn("failed to clear registration", zap.Error(err))
		}
	}()

	sub := r.events.Subscribe(r.config.EventBuffer)
	defer sub.Close()
	events := sub.C()

	if err := r.countdown.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrNotLocked) {
			r.logger.Info("no active session, daemon exiting")
			return nil
		}
		return err
	}

	r.logger.Info("daemon started",
		zap.Int("pid", r.daemon.PID),
		zap.String("session", r.countdown.SessionID()),
		zap.String("source", r.source.Name()))

	srcCtx, stopSource := context.WithCancel(ctx)
	defer stopSource()

	srcErr := make(chan error, 1)
	go func() {
		srcErr <- r.source.Run(srcCtx, r.gatekeeper)
	}()

	heartbeatTicker := time.NewTicker(r.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("daemon stopping")
			r.countdown.Stop()
			r.gatekeeper.Wait()
			return ctx.Err()

		case <-r.countdown.Done():
			r.logger.Info("session ended",
				zap.String("session", r.countdown.SessionID()),
				zap.String("state", r.countdown.State().String()))
			if ctx.Err() != nil {
				r.gatekeeper.Wait()
				return ctx.Err()
			}
			if r.resume(ctx) {
				continue
			}

			// A start that still saw this daemon registered wrote its session
			// before the registration is cleared, so one more look finds it.
			if err := r.registry.Clear(); err != nil {
				r.logger.Warn("failed to clear registration", zap.Error(err))
			}
			if r.resume(ctx) {
				if err := r.registry.Register(r.daemon); err != nil {
					r.logger.Warn("failed to re-register daemon", zap.Error(err))
				}
				continue
			}

			r.logger.Info("no pending session, daemon exiting")
			stopSource()
			r.gatekeeper.Wait()
			return nil

		case <-heartbeatTicker.C:
			if err := r.registry.UpdateHeartbeat(); err != nil {
				r.logger.Warn("failed to update heartbeat", zap.Error(err))
			}

		case err := <-srcErr:
			// Keep counting down; only enforcement is lost.
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("foreground source stopped", zap.Error(err))
			}
			srcErr = nil

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.logEvent(e)
		}
	}
}

// resume starts a countdown for a session that is still pending.
func (r *Runner) resume(ctx context.Context) bool {
	next := r.countdown.Next()
	if err := next.Start(ctx); err != nil {
		if !errors.Is(err, domain.ErrNotLocked) {
			r.logger.Error("failed to start countdown for next session", zap.Error(err))
		}
		return false
	}
	r.countdown = next
	r.logger.Info("countdown resumed for new session", zap.String("session", next.SessionID()))
	return true
}

func (r *Runner) logEvent(e domain.Event) {
	switch e.Kind {
	case domain.EventFinished:
		r.logger.Info("focus session complete", zap.String("session", e.SessionID))
	case domain.EventTick:
		r.logger.Debug("tick", zap.Duration("remaining", e.Remaining()))
	}
}
