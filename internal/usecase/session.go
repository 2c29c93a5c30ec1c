// Package usecase contains application business logic.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// SessionState is the single access point to the persisted focus-lock record.
//
// Only IsLocked heals an expired record; the accessors are side-effect free.
// Writers (Start, Unlock, Cancel, Complete) are serialized by mu within a
// process and by the store's transactions across processes.
type SessionState struct {
	repo   domain.SessionRepository
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	released atomic.Value // session id forced unlocked in memory after persistence failure
}

// NewSessionState creates a SessionState over repo.
func NewSessionState(repo domain.SessionRepository, logger *zap.Logger) *SessionState {
	return &SessionState{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock (for testing).
func (s *SessionState) WithClock(now func() time.Time) *SessionState {
	s.now = now
	return s
}

// Now returns the state's notion of the current time.
func (s *SessionState) Now() time.Time {
	return s.now()
}

// Snapshot returns the persisted record without any expiry side effects.
// A released session reads as unlocked and settled.
func (s *SessionState) Snapshot(ctx context.Context) (domain.SessionSnapshot, error) {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if s.isReleased(snap.SessionID) {
		snap.Locked = false
		snap.EndTimeMs = 0
		snap.SettledSessionID = snap.SessionID
	}
	return snap, nil
}

// IsLocked reports whether a session is active.
// A locked record past its deadline is unlocked before returning false.
// Read failures are treated as unlocked.
func (s *SessionState) IsLocked(ctx context.Context) bool {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("failed to read session state, treating as unlocked", zap.Error(err))
		return false
	}
	if !snap.Locked {
		return false
	}
	if !snap.Expired(s.now()) {
		return true
	}

	s.logger.Info("session expired, unlocking",
		zap.String("session", snap.SessionID),
		zap.Int64("end_time_ms", snap.EndTimeMs))

	if err := s.healExpired(ctx, snap.SessionID); err != nil {
		s.logger.Warn("failed to persist expiry unlock", zap.Error(err))
	}
	return false
}

// healExpired unlocks sessionID only if it is still the current session and
// still past its deadline inside the write transaction. A session started by
// another process since the read is left alone.
func (s *SessionState) healExpired(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	return s.repo.Update(ctx, func(snap *domain.SessionSnapshot) error {
		if snap.SessionID != sessionID || !snap.Expired(now) {
			return nil
		}
		snap.Locked = false
		snap.EndTimeMs = 0
		return nil
	})
}

// Start begins a session of duration d with the given allow-set.
func (s *SessionState) Start(ctx context.Context, d time.Duration, allow []domain.AppID) (domain.SessionSnapshot, error) {
	if d <= 0 {
		return domain.SessionSnapshot{}, domain.ErrInvalidDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var started domain.SessionSnapshot

	err := s.repo.Update(ctx, func(snap *domain.SessionSnapshot) error {
		if snap.Locked && !snap.Expired(now) && !s.isReleased(snap.SessionID) {
			return domain.ErrAlreadyLocked
		}
		snap.SessionID = uuid.NewString()
		snap.Locked = true
		snap.EndTimeMs = now.Add(d).UnixMilli()
		snap.TotalDurationMs = d.Milliseconds()
		snap.AllowedApps = domain.NewAllowSet(allow...).Sorted()
		started = *snap
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyLocked) {
			return domain.SessionSnapshot{}, err
		}
		return domain.SessionSnapshot{}, fmt.Errorf("%w: %v", domain.ErrPersistenceWrite, err)
	}

	s.logger.Info("session started",
		zap.String("session", started.SessionID),
		zap.Duration("duration", d),
		zap.Int("allowed_apps", len(started.AllowedApps)))

	return started, nil
}

// Unlock clears the locked flag and end time, keeping the allow-set.
// Calling it when already unlocked is a no-op.
func (s *SessionState) Unlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.repo.Update(ctx, func(snap *domain.SessionSnapshot) error {
		snap.Locked = false
		snap.EndTimeMs = 0
		return nil
	})
}

// Cancel ends the current session early without crediting lifetime usage.
// The session is marked settled so a running countdown will not finish it.
// A session already past its deadline is not cancelled; it is left to Complete.
func (s *SessionState) Cancel(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var cancelled bool
	err := s.repo.Update(ctx, func(snap *domain.SessionSnapshot) error {
		if !snap.Locked || snap.Expired(now) || s.isReleased(snap.SessionID) {
			return nil
		}
		cancelled = true
		snap.Locked = false
		snap.EndTimeMs = 0
		snap.SettledSessionID = snap.SessionID
		return nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		s.logger.Info("session cancelled")
	}
	return cancelled, nil
}

// Complete performs the persisted part of a finished session in one transaction:
// credit the total duration to lifetime usage, unlock, and mark the session settled.
// It reports false when sessionID was already settled or superseded.
func (s *SessionState) Complete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied bool
	err := s.repo.Update(ctx, func(snap *domain.SessionSnapshot) error {
		if snap.SessionID != sessionID || snap.SettledSessionID == sessionID {
			return nil
		}
		applied = true
		snap.LifetimeUsageMs += snap.TotalDurationMs
		snap.Locked = false
		snap.EndTimeMs = 0
		snap.SettledSessionID = sessionID
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// Release forces sessionID to read as unlocked in this process.
// Used when Complete keeps failing so the user is never stuck locked.
func (s *SessionState) Release(sessionID string) {
	s.released.Store(sessionID)
}

func (s *SessionState) isReleased(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	released, _ := s.released.Load().(string)
	return released == sessionID
}

// SetAllowedApps stores the pending allow-set for the next session.
func (s *SessionState) SetAllowedApps(ctx context.Context, apps []domain.AppID) error {
	if s.IsLocked(ctx) {
		return domain.ErrAlreadyLocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.repo.Update(ctx, func(snap *domain.SessionSnapshot) error {
		snap.AllowedApps = domain.NewAllowSet(apps...).Sorted()
		return nil
	})
}

// EndTime returns the persisted deadline (zero when unlocked).
func (s *SessionState) EndTime(ctx context.Context) time.Time {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("failed to read end time", zap.Error(err))
		return time.Time{}
	}
	return snap.EndTime()
}

// TotalDuration returns the persisted session length.
func (s *SessionState) TotalDuration(ctx context.Context) time.Duration {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("failed to read total duration", zap.Error(err))
		return 0
	}
	return snap.TotalDuration()
}

// AllowedApps returns the persisted allow-set.
func (s *SessionState) AllowedApps(ctx context.Context) domain.AllowSet {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("failed to read allowed apps", zap.Error(err))
		return domain.NewAllowSet()
	}
	return domain.NewAllowSet(snap.AllowedApps...)
}

// LifetimeUsage returns the cumulative duration of finished sessions.
func (s *SessionState) LifetimeUsage(ctx context.Context) time.Duration {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0
	}
	return time.Duration(snap.LifetimeUsageMs) * time.Millisecond
}

// Remaining returns the time left until the deadline, never negative.
func (s *SessionState) Remaining(ctx context.Context) time.Duration {
	end := s.EndTime(ctx)
	if end.IsZero() {
		return 0
	}
	if r := end.Sub(s.now()); r > 0 {
		return r
	}
	return 0
}

// Progress returns the remaining fraction of the session in [0, 1].
func (s *SessionState) Progress(ctx context.Context) float64 {
	total := s.TotalDuration(ctx)
	if total <= 0 {
		return 0
	}
	p := float64(s.Remaining(ctx)) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}
