// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"sort"
	"time"
)

// AppID is the stable platform identifier of an installed application.
// Equality is exact string match; no normalization is applied.
type AppID string

// SessionSnapshot is the persisted focus-lock record.
// It is read and written as a unit; the store commits all fields or none.
type SessionSnapshot struct {
	SessionID        string
	Locked           bool
	EndTimeMs        int64 // absolute deadline, 0 when not locked
	TotalDurationMs  int64 // original duration, only used for display progress
	AllowedApps      []AppID
	SettledSessionID string // last session whose terminal handling is done
	LifetimeUsageMs  int64
}

// EndTime returns the deadline as a time.Time (zero when unset).
func (s SessionSnapshot) EndTime() time.Time {
	if s.EndTimeMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.EndTimeMs)
}

// TotalDuration returns the original session length.
func (s SessionSnapshot) TotalDuration() time.Duration {
	return time.Duration(s.TotalDurationMs) * time.Millisecond
}

// Expired reports whether a locked snapshot is past its deadline at now.
func (s SessionSnapshot) Expired(now time.Time) bool {
	return s.Locked && now.UnixMilli() > s.EndTimeMs
}

// Pending reports whether the current session still needs its terminal handling.
func (s SessionSnapshot) Pending() bool {
	return s.SessionID != "" && s.SettledSessionID != s.SessionID
}

// AllowSet is a set of application identifiers.
type AllowSet map[AppID]struct{}

// NewAllowSet builds a set from a list, ignoring empty ids.
func NewAllowSet(apps ...AppID) AllowSet {
	set := make(AllowSet, len(apps))
	for _, app := range apps {
		if app == "" {
			continue
		}
		set[app] = struct{}{}
	}
	return set
}

// Contains reports set membership.
func (s AllowSet) Contains(app AppID) bool {
	_, ok := s[app]
	return ok
}

// Add inserts an app id.
func (s AllowSet) Add(app AppID) {
	if app != "" {
		s[app] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s AllowSet) Sorted() []AppID {
	apps := make([]AppID, 0, len(s))
	for app := range s {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i] < apps[j] })
	return apps
}

// PolicyDecision is the classification of an app under an allow-set.
type PolicyDecision int

const (
	DecisionNotSelected PolicyDecision = iota
	DecisionAllowed
	DecisionFixed
	DecisionHardBlocked
)

func (d PolicyDecision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionFixed:
		return "fixed"
	case DecisionHardBlocked:
		return "hard_blocked"
	default:
		return "not_selected"
	}
}

// Permitted reports whether the decision lets the app stay in the foreground.
func (d PolicyDecision) Permitted() bool {
	return d == DecisionAllowed || d == DecisionFixed
}

// SessionRecord is one entry in the session history log.
type SessionRecord struct {
	DurationMinutes int     `json:"duration_minutes"`
	AllowedApps     []AppID `json:"allowed_apps"`
	TimestampMs     int64   `json:"timestamp"`
	DisplayDate     string  `json:"display_date"`
}

// Duration returns the recorded session length.
func (r SessionRecord) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// EventKind identifies a notification bus event.
type EventKind string

const (
	EventTick     EventKind = "tick"
	EventFinished EventKind = "finished"
)

// Event is published by the countdown to bus subscribers.
type Event struct {
	Kind        EventKind
	SessionID   string
	RemainingMs int64 // only meaningful for ticks
}

// Remaining returns the time left carried by a tick.
func (e Event) Remaining() time.Duration {
	return time.Duration(e.RemainingMs) * time.Millisecond
}

// BlockCategory selects the wording of a blocked-app message.
type BlockCategory string

const (
	CategorySystemShell BlockCategory = "system_shell"
	CategoryLauncher    BlockCategory = "launcher"
	CategoryApp         BlockCategory = "app"
)

// BlockNotice is the user-facing message emitted when an app is blocked.
type BlockNotice struct {
	App      AppID
	Category BlockCategory
	Title    string
	Body     string
}

// Daemon represents the running background process that owns the countdown.
type Daemon struct {
	PID        int
	StartedAt  time.Time
	AppVersion string
}

// DaemonEntry is the persisted daemon registration.
// Persisted to a hidden file so the CLI can find the daemon.
type DaemonEntry struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	StartedAt     int64  `json:"started_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
