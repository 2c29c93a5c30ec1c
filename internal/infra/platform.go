package infra

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// CommandRunner abstracts command execution for testing
type CommandRunner interface {
	Run(name string, args ...string) error
	Output(name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete
func (r *RealCommandRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Output executes a command and returns its stdout
func (r *RealCommandRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// EnforceMode selects how a blocked app is sent away.
type EnforceMode string

const (
	// EnforceMinimize minimizes the active window (the desktop "home").
	EnforceMinimize EnforceMode = "minimize"
	// EnforceKill terminates every process of the blocked app.
	EnforceKill EnforceMode = "kill"
)

// ErrNoProcess is returned in kill mode when the blocked app has no process.
var ErrNoProcess = errors.New("no matching process")

// DesktopPlatform implements domain.Platform for X11 desktops using xdotool.
type DesktopPlatform struct {
	mode   EnforceMode
	pm     domain.ProcessManager
	runner CommandRunner
	logger *zap.Logger
}

// NewDesktopPlatform creates a platform adapter.
func NewDesktopPlatform(mode EnforceMode, pm domain.ProcessManager, logger *zap.Logger) *DesktopPlatform {
	return NewDesktopPlatformWithRunner(mode, pm, &RealCommandRunner{}, logger)
}

// NewDesktopPlatformWithRunner creates a platform with an injectable command runner (for testing).
func NewDesktopPlatformWithRunner(mode EnforceMode, pm domain.ProcessManager, runner CommandRunner, logger *zap.Logger) *DesktopPlatform {
	if mode == "" {
		mode = EnforceMinimize
	}
	return &DesktopPlatform{mode: mode, pm: pm, runner: runner, logger: logger}
}

// NavigateHome sends the blocked app to the background.
func (p *DesktopPlatform) NavigateHome(ctx context.Context, blocked domain.AppID) error {
	if p.mode == EnforceKill {
		return p.terminate(blocked)
	}
	if err := p.runner.Run("xdotool", "getactivewindow", "windowminimize"); err != nil {
		return fmt.Errorf("%w: minimize %s: %v", domain.ErrPlatformAction, blocked, err)
	}
	return nil
}

func (p *DesktopPlatform) terminate(blocked domain.AppID) error {
	pids, err := p.pm.FindByName(string(blocked))
	if err != nil {
		return fmt.Errorf("%w: find %s: %v", domain.ErrPlatformAction, blocked, err)
	}
	if len(pids) == 0 {
		return fmt.Errorf("%w: %w: %s", domain.ErrPlatformAction, ErrNoProcess, blocked)
	}

	var errs []error
	for _, pid := range pids {
		if err := p.pm.Terminate(pid); err != nil {
			errs = append(errs, err)
			continue
		}
		p.logger.Info("terminated blocked app",
			zap.String("app", string(blocked)),
			zap.Int("pid", pid))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrPlatformAction, errors.Join(errs...))
	}
	return nil
}

// BringToFront activates the window whose class matches app.
func (p *DesktopPlatform) BringToFront(ctx context.Context, app domain.AppID) error {
	if err := p.runner.Run("xdotool", "search", "--class", string(app), "windowactivate"); err != nil {
		return fmt.Errorf("%w: activate %s: %v", domain.ErrPlatformAction, app, err)
	}
	return nil
}

// DesktopNotifier implements domain.Notifier with notify-send.
// Notify returns immediately; delivery happens in the background.
type DesktopNotifier struct {
	appName string
	runner  CommandRunner
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDesktopNotifier creates a notifier.
func NewDesktopNotifier(appName string, logger *zap.Logger) *DesktopNotifier {
	return NewDesktopNotifierWithRunner(appName, &RealCommandRunner{}, logger)
}

// NewDesktopNotifierWithRunner creates a notifier with an injectable command runner (for testing).
func NewDesktopNotifierWithRunner(appName string, runner CommandRunner, logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{appName: appName, runner: runner, logger: logger}
}

// Notify shows notice as a desktop notification.
func (n *DesktopNotifier) Notify(notice domain.BlockNotice) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		err := n.runner.Run("notify-send",
			"--app-name="+n.appName,
			"--urgency=normal",
			notice.Title, notice.Body)
		if err != nil {
			n.logger.Debug("notification failed",
				zap.String("app", string(notice.App)),
				zap.Error(err))
		}
	}()
}

// Wait blocks until pending notifications are delivered.
func (n *DesktopNotifier) Wait() {
	n.wg.Wait()
}

var (
	_ domain.Platform = (*DesktopPlatform)(nil)
	_ domain.Notifier = (*DesktopNotifier)(nil)
)
