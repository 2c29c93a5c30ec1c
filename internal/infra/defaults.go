package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

const defaultsFileName = "defaults.toml"

// DeviceDefaultsSpec is the on-disk form of the platform default apps.
type DeviceDefaultsSpec struct {
	Dialer       string   `toml:"dialer"`
	Messaging    string   `toml:"messaging"`
	Launcher     string   `toml:"launcher"`
	InputMethods []string `toml:"input_methods"`
}

// DefaultsFile implements domain.DeviceDefaults from a TOML file.
// The file is re-read whenever its modification time changes, so a changed
// default dialer or messaging app applies to the next evaluation.
type DefaultsFile struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	modTime time.Time
	spec    DeviceDefaultsSpec
}

// NewDefaultsFile creates a DefaultsFile for <dataDir>/defaults.toml.
func NewDefaultsFile(dataDir string, logger *zap.Logger) *DefaultsFile {
	return NewDefaultsFileWithPath(filepath.Join(dataDir, defaultsFileName), logger)
}

// NewDefaultsFileWithPath creates a DefaultsFile at a specific path.
func NewDefaultsFileWithPath(path string, logger *zap.Logger) *DefaultsFile {
	return &DefaultsFile{path: path, logger: logger}
}

// Path returns the file path.
func (d *DefaultsFile) Path() string {
	return d.path
}

// Save writes spec to the file.
func (d *DefaultsFile) Save(spec DeviceDefaultsSpec) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to write defaults: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(spec); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	return f.Close()
}

// current returns the spec, reloading if the file changed. A missing or
// unreadable file yields no defaults.
func (d *DefaultsFile) current() DeviceDefaultsSpec {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := os.Stat(d.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("failed to stat defaults file", zap.Error(err))
		}
		d.modTime = time.Time{}
		d.spec = DeviceDefaultsSpec{}
		return d.spec
	}
	if info.ModTime().Equal(d.modTime) {
		return d.spec
	}

	var spec DeviceDefaultsSpec
	if _, err := toml.DecodeFile(d.path, &spec); err != nil {
		d.logger.Warn("failed to parse defaults file, keeping previous values",
			zap.String("path", d.path),
			zap.Error(err))
		return d.spec
	}
	d.modTime = info.ModTime()
	d.spec = spec
	d.logger.Debug("loaded device defaults", zap.String("path", d.path))
	return d.spec
}

// DefaultDialer returns the configured phone app.
func (d *DefaultsFile) DefaultDialer() domain.AppID {
	return domain.AppID(d.current().Dialer)
}

// DefaultMessaging returns the configured messaging app.
func (d *DefaultsFile) DefaultMessaging() domain.AppID {
	return domain.AppID(d.current().Messaging)
}

// Launcher returns the configured home-screen app.
func (d *DefaultsFile) Launcher() domain.AppID {
	return domain.AppID(d.current().Launcher)
}

// InputMethods returns the configured keyboards.
func (d *DefaultsFile) InputMethods() []domain.AppID {
	spec := d.current()
	apps := make([]domain.AppID, 0, len(spec.InputMethods))
	for _, m := range spec.InputMethods {
		apps = append(apps, domain.AppID(m))
	}
	return apps
}

var _ domain.DeviceDefaults = (*DefaultsFile)(nil)
