package domain

import "context"

// SessionRepository persists the focus-lock record.
// Implementation: SQLCipher encrypted SQLite database.
type SessionRepository interface {
	// Load returns the current snapshot, or an unlocked empty one if none exists.
	Load(ctx context.Context) (SessionSnapshot, error)

	// Update loads the snapshot, applies fn and saves the result in one transaction.
	// If fn returns an error nothing is written.
	Update(ctx context.Context, fn func(s *SessionSnapshot) error) error
}

// HistoryRepository persists the bounded session history log.
type HistoryRepository interface {
	// Append inserts the record at the head and evicts entries beyond limit.
	Append(ctx context.Context, rec SessionRecord, limit int) error

	// List returns records newest first.
	List(ctx context.Context) ([]SessionRecord, error)

	// DeleteByTimestamp removes records with the given timestamp and returns how many.
	DeleteByTimestamp(ctx context.Context, timestampMs int64) (int, error)

	// Clear removes all records.
	Clear(ctx context.Context) error
}

// DeviceDefaults resolves platform default apps at evaluation time.
// Results must not be cached indefinitely; the user may change defaults between sessions.
type DeviceDefaults interface {
	// DefaultDialer returns the default phone app, or "" if none.
	DefaultDialer() AppID

	// DefaultMessaging returns the default messaging app, or "" if none.
	DefaultMessaging() AppID

	// Launcher returns the home-screen app, or "" if unknown.
	Launcher() AppID

	// InputMethods returns the enabled keyboards.
	InputMethods() []AppID
}

// Platform performs navigation actions on behalf of the gatekeeper.
type Platform interface {
	// NavigateHome sends the blocked app to the background.
	NavigateHome(ctx context.Context, blocked AppID) error

	// BringToFront presents the given app's UI.
	BringToFront(ctx context.Context, app AppID) error
}

// Notifier shows blocked-app messages. Implementations must not block.
type Notifier interface {
	Notify(notice BlockNotice)
}

// ForegroundHandler receives foreground-window changes, one event at a time.
type ForegroundHandler interface {
	OnForegroundChange(ctx context.Context, app AppID)
}

// ForegroundSource delivers foreground changes to a handler until ctx is done.
type ForegroundSource interface {
	// Run blocks, invoking handler once per foreground transition.
	Run(ctx context.Context, handler ForegroundHandler) error

	// Name returns the source name (e.g., "xprop", "lines").
	Name() string
}

// AppResolver checks whether an app id still corresponds to an installed app.
type AppResolver interface {
	IsInstalled(app AppID) bool
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes whose name matches exactly (case-insensitive).
	FindByName(name string) ([]int, error)

	// NameOf returns the process name of a PID.
	NameOf(pid int) (string, error)

	// Terminate asks a process to exit (SIGTERM).
	Terminate(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// DaemonRegistry provides daemon discovery and registration.
// Implementation: hidden JSON file in the data directory guarded by flock.
type DaemonRegistry interface {
	// Register saves the daemon's PID.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// Get returns the registration, or nil if none.
	Get() (*DaemonEntry, error)

	// IsAlive checks if the registered daemon is running via PID.
	IsAlive() bool

	// Clear removes the registration.
	Clear() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
