package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// DefaultHistoryLimit is the number of session records kept.
const DefaultHistoryLimit = 50

// displayDateLayout renders e.g. "Mar 04, 09:15 PM".
const displayDateLayout = "Jan 02, 03:04 PM"

// History keeps the bounded log of started sessions, newest first.
type History struct {
	repo   domain.HistoryRepository
	limit  int
	logger *zap.Logger
	now    func() time.Time
	loc    *time.Location
}

// NewHistory creates a History with the default limit.
func NewHistory(repo domain.HistoryRepository, logger *zap.Logger) *History {
	return &History{
		repo:   repo,
		limit:  DefaultHistoryLimit,
		logger: logger,
		now:    time.Now,
		loc:    time.Local,
	}
}

// WithLimit overrides the number of kept records.
func (h *History) WithLimit(limit int) *History {
	if limit > 0 {
		h.limit = limit
	}
	return h
}

// WithClock overrides the clock and display time zone (for testing).
func (h *History) WithClock(now func() time.Time, loc *time.Location) *History {
	h.now = now
	if loc != nil {
		h.loc = loc
	}
	return h
}

// Record appends a record for a session of duration d with the given apps.
func (h *History) Record(ctx context.Context, d time.Duration, apps []domain.AppID) (domain.SessionRecord, error) {
	now := h.now()
	rec := domain.SessionRecord{
		DurationMinutes: recordedMinutes(d),
		AllowedApps:     domain.NewAllowSet(apps...).Sorted(),
		TimestampMs:     now.UnixMilli(),
		DisplayDate:     now.In(h.loc).Format(displayDateLayout),
	}

	if err := h.repo.Append(ctx, rec, h.limit); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("%w: append history: %v", domain.ErrPersistenceWrite, err)
	}

	h.logger.Debug("history recorded",
		zap.Int64("timestamp", rec.TimestampMs),
		zap.Int("duration_minutes", rec.DurationMinutes))
	return rec, nil
}

// recordedMinutes rounds d to the nearest minute, never below one.
func recordedMinutes(d time.Duration) int {
	m := int(d.Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}

// List returns records newest first.
func (h *History) List(ctx context.Context) ([]domain.SessionRecord, error) {
	return h.repo.List(ctx)
}

// Get returns the record with the given timestamp.
func (h *History) Get(ctx context.Context, timestampMs int64) (domain.SessionRecord, error) {
	records, err := h.repo.List(ctx)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	for _, rec := range records {
		if rec.TimestampMs == timestampMs {
			return rec, nil
		}
	}
	return domain.SessionRecord{}, fmt.Errorf("%w: %d", domain.ErrRecordNotFound, timestampMs)
}

// Delete removes the record with the given timestamp.
func (h *History) Delete(ctx context.Context, timestampMs int64) error {
	n, err := h.repo.DeleteByTimestamp(ctx, timestampMs)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrRecordNotFound, timestampMs)
	}
	return nil
}

// Clear removes all records.
func (h *History) Clear(ctx context.Context) error {
	return h.repo.Clear(ctx)
}
