package infra

import (
	"os/exec"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// InstalledApps implements domain.AppResolver.
// An app id resolves when it names an executable on PATH or a running process.
type InstalledApps struct {
	pm       domain.ProcessManager
	lookPath func(string) (string, error)
}

// NewInstalledApps creates a resolver.
func NewInstalledApps(pm domain.ProcessManager) *InstalledApps {
	return &InstalledApps{pm: pm, lookPath: exec.LookPath}
}

// IsInstalled reports whether app can still be resolved.
func (a *InstalledApps) IsInstalled(app domain.AppID) bool {
	if app == "" {
		return false
	}
	if _, err := a.lookPath(string(app)); err == nil {
		return true
	}
	pids, err := a.pm.FindByName(string(app))
	return err == nil && len(pids) > 0
}

var _ domain.AppResolver = (*InstalledApps)(nil)
