package infra

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// DefaultPollInterval is how often the active window is sampled.
const DefaultPollInterval = 500 * time.Millisecond

// XpropForegroundSource polls the X11 active window and reports its owning app.
// The app id is the process name of the window's _NET_WM_PID, falling back to
// the WM_CLASS class name.
type XpropForegroundSource struct {
	interval time.Duration
	pm       domain.ProcessManager
	runner   CommandRunner
	logger   *zap.Logger
}

// NewXpropForegroundSource creates a poller.
func NewXpropForegroundSource(interval time.Duration, pm domain.ProcessManager, logger *zap.Logger) *XpropForegroundSource {
	return NewXpropForegroundSourceWithRunner(interval, pm, &RealCommandRunner{}, logger)
}

// NewXpropForegroundSourceWithRunner creates a poller with an injectable command runner (for testing).
func NewXpropForegroundSourceWithRunner(interval time.Duration, pm domain.ProcessManager, runner CommandRunner, logger *zap.Logger) *XpropForegroundSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &XpropForegroundSource{interval: interval, pm: pm, runner: runner, logger: logger}
}

// Name returns the source name.
func (s *XpropForegroundSource) Name() string { return "xprop" }

// Run polls until ctx is done, calling handler on every change of foreground app.
func (s *XpropForegroundSource) Run(ctx context.Context, handler domain.ForegroundHandler) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last domain.AppID
	for {
		app, err := s.Active()
		if err != nil {
			s.logger.Debug("failed to read active window", zap.Error(err))
		} else if app != last {
			last = app
			handler.OnForegroundChange(ctx, app)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Active returns the app owning the active window.
func (s *XpropForegroundSource) Active() (domain.AppID, error) {
	out, err := s.runner.Output("xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return "", fmt.Errorf("xprop failed (no X11?): %w", err)
	}
	windowID, err := parseActiveWindow(string(out))
	if err != nil {
		return "", err
	}

	if out, err := s.runner.Output("xprop", "-id", windowID, "_NET_WM_PID"); err == nil {
		if pid, err := parseWindowPID(string(out)); err == nil {
			if name, err := s.pm.NameOf(pid); err == nil && name != "" {
				return domain.AppID(name), nil
			}
		}
	}

	out, err = s.runner.Output("xprop", "-id", windowID, "WM_CLASS")
	if err != nil {
		return "", fmt.Errorf("failed to query WM_CLASS: %w", err)
	}
	class, err := parseWMClass(string(out))
	if err != nil {
		return "", err
	}
	return domain.AppID(class), nil
}

// parseActiveWindow extracts the id from "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007".
func parseActiveWindow(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) < 5 {
		return "", errors.New("unexpected xprop output")
	}
	id := fields[4]
	if id == "0x0" {
		return "", errors.New("no active window")
	}
	return id, nil
}

// parseWindowPID extracts the pid from "_NET_WM_PID(CARDINAL) = 4242".
func parseWindowPID(out string) (int, error) {
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return 0, errors.New("no _NET_WM_PID")
	}
	return strconv.Atoi(strings.TrimSpace(value))
}

// parseWMClass returns the class from `WM_CLASS(STRING) = "Navigator", "firefox"`.
func parseWMClass(out string) (string, error) {
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return "", errors.New("no WM_CLASS")
	}
	parts := strings.Split(value, ",")
	class := strings.Trim(strings.TrimSpace(parts[len(parts)-1]), `"`)
	if class == "" {
		return "", errors.New("empty WM_CLASS")
	}
	return strings.ToLower(class), nil
}

// LineForegroundSource reads one app id per line, e.g. from a FIFO written by
// a platform bridge. Blank lines and lines starting with '#' are ignored.
type LineForegroundSource struct {
	r io.Reader
}

// NewLineForegroundSource creates a source over r.
func NewLineForegroundSource(r io.Reader) *LineForegroundSource {
	return &LineForegroundSource{r: r}
}

// Name returns the source name.
func (s *LineForegroundSource) Name() string { return "lines" }

// Run delivers each line to handler until EOF or ctx is done.
func (s *LineForegroundSource) Run(ctx context.Context, handler domain.ForegroundHandler) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return ctx.Err()
				}
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			handler.OnForegroundChange(ctx, domain.AppID(line))
		}
	}
}

var (
	_ domain.ForegroundSource = (*XpropForegroundSource)(nil)
	_ domain.ForegroundSource = (*LineForegroundSource)(nil)
)
