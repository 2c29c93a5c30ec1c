package fixtures

import (
	"sync"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Device default apps used across integration tests.
const (
	Dialer    domain.AppID = "gnome-calls"
	Messaging domain.AppID = "signal-desktop"
	Launcher  domain.AppID = "gnome-shell"
	Keyboard  domain.AppID = "ibus-daemon"
)

// FakeDefaults is a mutable domain.DeviceDefaults.
type FakeDefaults struct {
	mu        sync.Mutex
	dialer    domain.AppID
	messaging domain.AppID
	launcher  domain.AppID
	imes      []domain.AppID
}

// NewFakeDefaults returns defaults populated with the fixture apps.
func NewFakeDefaults() *FakeDefaults {
	return &FakeDefaults{
		dialer:    Dialer,
		messaging: Messaging,
		launcher:  Launcher,
		imes:      []domain.AppID{Keyboard},
	}
}

// SetMessaging changes the default messaging app.
func (d *FakeDefaults) SetMessaging(app domain.AppID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messaging = app
}

func (d *FakeDefaults) DefaultDialer() domain.AppID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialer
}

func (d *FakeDefaults) DefaultMessaging() domain.AppID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messaging
}

func (d *FakeDefaults) Launcher() domain.AppID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launcher
}

func (d *FakeDefaults) InputMethods() []domain.AppID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.AppID(nil), d.imes...)
}

var _ domain.DeviceDefaults = (*FakeDefaults)(nil)
