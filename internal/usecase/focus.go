package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/policy"
)

// AppStatus is one entry of the effective allow-set.
type AppStatus struct {
	ID       domain.AppID
	Decision domain.PolicyDecision
}

// Status is a point-in-time view of the focus session for display.
type Status struct {
	Locked        bool
	SessionID     string
	EndTime       time.Time
	Remaining     time.Duration
	Progress      float64
	Apps          []AppStatus
	LifetimeUsage time.Duration
}

// Restored is the result of restoring a history record.
type Restored struct {
	Duration  time.Duration
	Selection *policy.Selection
	Dropped   []domain.AppID
	Cancelled bool
}

// FocusService is the entry point used by the UI and CLI.
type FocusService struct {
	session    *SessionState
	history    *History
	classifier *policy.Classifier
	resolver   domain.AppResolver
	logger     *zap.Logger
}

// NewFocusService creates the facade. resolver may be nil (every app is resolvable).
func NewFocusService(
	session *SessionState,
	history *History,
	classifier *policy.Classifier,
	resolver domain.AppResolver,
	logger *zap.Logger,
) *FocusService {
	return &FocusService{
		session:    session,
		history:    history,
		classifier: classifier,
		resolver:   resolver,
		logger:     logger,
	}
}

// NewSelection returns an empty selection bound to the current policy.
func (f *FocusService) NewSelection() *policy.Selection {
	return policy.NewSelection(f.classifier)
}

// PendingSelection rebuilds the selection from the persisted allow-set.
func (f *FocusService) PendingSelection(ctx context.Context) (*policy.Selection, []domain.AppID) {
	return policy.RestoreSelection(f.classifier, f.session.AllowedApps(ctx).Sorted())
}

// SaveSelection persists sel as the allow-set for the next session.
func (f *FocusService) SaveSelection(ctx context.Context, sel *policy.Selection) error {
	return f.session.SetAllowedApps(ctx, sel.Apps().Sorted())
}

// Start locks the device for d with the selection's apps plus the fixed apps.
func (f *FocusService) Start(ctx context.Context, d time.Duration, sel *policy.Selection) (domain.SessionSnapshot, error) {
	if d <= 0 {
		return domain.SessionSnapshot{}, domain.ErrInvalidDuration
	}

	allow := f.classifier.EffectiveAllowSet(sel.Apps())
	snap, err := f.session.Start(ctx, d, allow.Sorted())
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	if _, err := f.history.Record(ctx, d, sel.Selected()); err != nil {
		f.logger.Warn("failed to record session history", zap.Error(err))
	}
	return snap, nil
}

// Cancel ends the active session early.
func (f *FocusService) Cancel(ctx context.Context) (bool, error) {
	return f.session.Cancel(ctx)
}

// CancelAndRestoreHistory cancels any active session and makes rec's apps the pending selection.
// The returned duration is meant for the next Start.
func (f *FocusService) CancelAndRestoreHistory(ctx context.Context, rec domain.SessionRecord) (Restored, error) {
	cancelled, err := f.session.Cancel(ctx)
	if err != nil {
		return Restored{}, err
	}

	sel, dropped := policy.RestoreSelection(f.classifier, rec.AllowedApps)
	if len(dropped) > 0 {
		f.logger.Info("dropped apps from restored selection",
			zap.Int64("timestamp", rec.TimestampMs),
			zap.Int("dropped", len(dropped)))
	}

	if err := f.session.SetAllowedApps(ctx, sel.Apps().Sorted()); err != nil {
		return Restored{}, err
	}

	return Restored{
		Duration:  rec.Duration(),
		Selection: sel,
		Dropped:   dropped,
		Cancelled: cancelled,
	}, nil
}

// RestoreHistory restores the record with the given timestamp.
func (f *FocusService) RestoreHistory(ctx context.Context, timestampMs int64) (Restored, error) {
	rec, err := f.history.Get(ctx, timestampMs)
	if err != nil {
		return Restored{}, err
	}
	return f.CancelAndRestoreHistory(ctx, rec)
}

// History returns the session log, newest first.
func (f *FocusService) History(ctx context.Context) ([]domain.SessionRecord, error) {
	return f.history.List(ctx)
}

// DeleteHistory removes one record.
func (f *FocusService) DeleteHistory(ctx context.Context, timestampMs int64) error {
	return f.history.Delete(ctx, timestampMs)
}

// ClearHistory removes all records.
func (f *FocusService) ClearHistory(ctx context.Context) error {
	return f.history.Clear(ctx)
}

// IsLocked reports whether a session is active, healing an expired one.
func (f *FocusService) IsLocked(ctx context.Context) bool {
	return f.session.IsLocked(ctx)
}

// EndTime returns the active session's deadline.
func (f *FocusService) EndTime(ctx context.Context) time.Time {
	return f.session.EndTime(ctx)
}

// AllowedApps returns the persisted allow-set.
func (f *FocusService) AllowedApps(ctx context.Context) domain.AllowSet {
	return f.session.AllowedApps(ctx)
}

// Status returns the current session view.
// Apps that are no longer installed are left out.
func (f *FocusService) Status(ctx context.Context) (Status, error) {
	locked := f.session.IsLocked(ctx)

	snap, err := f.session.Snapshot(ctx)
	if err != nil {
		return Status{}, err
	}

	allow := domain.NewAllowSet(snap.AllowedApps...)
	for _, app := range f.classifier.FixedApps() {
		allow.Add(app)
	}

	var apps []AppStatus
	for _, app := range allow.Sorted() {
		if err := f.resolve(app); err != nil {
			f.logger.Debug("skipping app", zap.String("app", string(app)), zap.Error(err))
			continue
		}
		apps = append(apps, AppStatus{ID: app, Decision: f.classifier.Classify(app, allow)})
	}

	st := Status{
		Locked:        locked,
		SessionID:     snap.SessionID,
		Apps:          apps,
		LifetimeUsage: time.Duration(snap.LifetimeUsageMs) * time.Millisecond,
	}
	if locked {
		st.EndTime = snap.EndTime()
		st.Remaining = f.session.Remaining(ctx)
		st.Progress = f.session.Progress(ctx)
	}
	return st, nil
}

func (f *FocusService) resolve(app domain.AppID) error {
	if f.resolver == nil || f.resolver.IsInstalled(app) {
		return nil
	}
	return domain.ErrAppNotResolvable
}
