package domain

import "errors"

var (
	// ErrInvalidDuration is returned when a session is started with a non-positive duration.
	ErrInvalidDuration = errors.New("invalid duration: must be greater than zero")

	// ErrPersistenceWrite wraps store write failures that survived retries.
	ErrPersistenceWrite = errors.New("persistence write failed")

	// ErrPlatformAction wraps failures of navigation/redirect calls.
	ErrPlatformAction = errors.New("platform action failed")

	// ErrAppNotResolvable marks an allow-set entry that is no longer installed.
	ErrAppNotResolvable = errors.New("app not resolvable")

	// ErrSelectionLimit is returned when adding more non-fixed apps than allowed.
	ErrSelectionLimit = errors.New("selection limit reached")

	// ErrHardBlocked is returned when selecting an app from the hard-block catalog.
	ErrHardBlocked = errors.New("app is hard-blocked")

	// ErrFixedApp is returned when deselecting a fixed app.
	ErrFixedApp = errors.New("app is fixed and cannot be deselected")

	// ErrAlreadyLocked is returned when an operation requires an unlocked session.
	ErrAlreadyLocked = errors.New("a focus session is already active")

	// ErrNotLocked is returned when an operation requires an active session.
	ErrNotLocked = errors.New("no focus session is active")

	// ErrCountdownNotIdle is returned when starting a countdown that already ran.
	ErrCountdownNotIdle = errors.New("countdown is not idle")

	// ErrRecordNotFound is returned when a history record does not exist.
	ErrRecordNotFound = errors.New("history record not found")
)
