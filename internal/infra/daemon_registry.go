package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

const registryFileName = ".daemon"

// FileRegistry implements domain.DaemonRegistry using a hidden JSON file in the data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
	now            func() time.Time
}

// NewFileRegistry creates a registry in dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) *FileRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, registryFileName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
		now:            time.Now,
	}
}

// GetRegistryPath returns the registry file path.
func (r *FileRegistry) GetRegistryPath() string {
	return r.path
}

// Register records the daemon, replacing any previous registration.
func (r *FileRegistry) Register(daemon domain.Daemon) error {
	return r.withLock(func() error {
		started := daemon.StartedAt
		if started.IsZero() {
			started = r.now()
		}
		return r.atomicWrite(&domain.DaemonEntry{
			Version:       1,
			PID:           daemon.PID,
			StartedAt:     started.Unix(),
			LastHeartbeat: r.now().Unix(),
			AppVersion:    daemon.AppVersion,
		})
	})
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat() error {
	return r.withLock(func() error {
		entry, err := r.Get()
		if err != nil {
			return err
		}
		if entry == nil {
			return errors.New("daemon not registered")
		}
		entry.LastHeartbeat = r.now().Unix()
		return r.atomicWrite(entry)
	})
}

// Get returns the registration, or nil if none.
func (r *FileRegistry) Get() (*domain.DaemonEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.DaemonEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// IsAlive checks if the registered daemon is running via PID.
func (r *FileRegistry) IsAlive() bool {
	entry, err := r.Get()
	if err != nil || entry == nil || entry.PID == 0 {
		return false
	}
	return r.processManager.IsRunning(entry.PID)
}

// Clear removes the registry file.
func (r *FileRegistry) Clear() error {
	return r.withLock(func() error {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// withLock runs fn while holding an exclusive flock next to the registry file.
func (r *FileRegistry) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return err
	}
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// atomicWrite writes registry to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(entry *domain.DaemonEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
