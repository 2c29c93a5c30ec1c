package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	Long: `Locks the device for --duration. Only the apps given with --allow (or the
saved selection when none are given) plus the fixed essentials may be used
until the timer ends.`,
	Example: `  focuslock start --duration 25m --allow firefox --allow code`,
	RunE:    withEnv(runStart),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE:  withEnv(runStatus),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the session until it ends",
	Long:  `Prints the remaining time every second and whenever the session changes, until it ends.`,
	RunE:  withEnv(runWatch),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "End the current session early",
	RunE:  withEnv(runCancel),
}

var (
	startDuration time.Duration
	startAllow    []string
	startNoDaemon bool
)

func init() {
	startCmd.Flags().DurationVarP(&startDuration, "duration", "d", 0, "Session length (default from config)")
	startCmd.Flags().StringArrayVarP(&startAllow, "allow", "a", nil, "App to allow (repeatable, up to 5)")
	startCmd.Flags().BoolVar(&startNoDaemon, "no-daemon", false, "Do not spawn the background daemon")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cancelCmd)
}

func runStart(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	out := cmd.OutOrStdout()
	d := startDuration
	if d == 0 {
		d = e.cfg.Session.DefaultDuration
	}

	sel, dropped := e.focus.PendingSelection(ctx)
	if len(startAllow) > 0 {
		sel = e.focus.NewSelection()
		dropped = nil
		for _, app := range startAllow {
			if err := sel.Add(domain.AppID(app)); err != nil {
				return fmt.Errorf("cannot allow %s: %w", app, err)
			}
		}
	}
	for _, app := range dropped {
		fmt.Fprintf(out, "Skipping %s (no longer allowed)\n", app)
	}

	snap, err := e.focus.Start(ctx, d, sel)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Focus session started: %s, until %s\n", d, snap.EndTime().Format("15:04:05"))
	fmt.Fprintf(out, "Allowed apps: %s\n", joinApps(snap.AllowedApps))

	if startNoDaemon {
		return nil
	}
	// A daemon that is winding down re-checks for a pending session after it
	// clears its registration, so a live registration is enough here.
	if e.registry.IsAlive() {
		e.logger.Debug("daemon already running")
		return nil
	}
	if err := daemon.StartDaemon(); err != nil {
		// The session is persisted; the next daemon start resumes it.
		return fmt.Errorf("session started but daemon failed to launch: %w", err)
	}
	return nil
}

func runStatus(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	st, err := e.focus.Status(ctx)
	if err != nil {
		return err
	}
	writeStatus(cmd.OutOrStdout(), st, daemonState(e))
	return nil
}

func runWatch(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	changes, err := infra.NewStateWatcher(e.paths.DataDir, e.logger).Watch(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	out := cmd.OutOrStdout()
	for {
		st, err := e.focus.Status(ctx)
		if err != nil {
			return err
		}
		if !st.Locked {
			fmt.Fprintln(out, "No active session.")
			return nil
		}
		fmt.Fprintf(out, "%s remaining (%.0f%%)\n", formatRemaining(st.Remaining), st.Progress*100)

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				changes = nil
			}
		case <-ticker.C:
		}
	}
}

func runCancel(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	cancelled, err := e.focus.Cancel(ctx)
	if err != nil {
		return err
	}
	if !cancelled {
		return domain.ErrNotLocked
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Focus session cancelled.")
	return nil
}

func daemonState(e *env) string {
	entry, err := e.registry.Get()
	if err != nil {
		e.logger.Warn("failed to read daemon registry", zap.Error(err))
		return "unknown"
	}
	if entry == nil {
		return "not running"
	}
	if !e.registry.IsAlive() {
		return fmt.Sprintf("dead (pid %d)", entry.PID)
	}
	beat := time.Unix(entry.LastHeartbeat, 0)
	return fmt.Sprintf("running (pid %d, heartbeat %s ago)", entry.PID, time.Since(beat).Round(time.Second))
}

func writeStatus(w io.Writer, st usecase.Status, daemonLine string) {
	fmt.Fprintln(w, "=== focuslock Status ===")
	if st.Locked {
		fmt.Fprintf(w, "Session: LOCKED until %s\n", st.EndTime.Format("15:04:05"))
		fmt.Fprintf(w, "Remaining: %s (%.0f%% done)\n", formatRemaining(st.Remaining), st.Progress*100)
	} else {
		fmt.Fprintln(w, "Session: unlocked")
	}
	fmt.Fprintf(w, "Daemon: %s\n", daemonLine)
	fmt.Fprintf(w, "Lifetime focus: %s\n", st.LifetimeUsage.Round(time.Minute))

	if len(st.Apps) > 0 {
		fmt.Fprintln(w, "\nApps:")
		for _, app := range st.Apps {
			fmt.Fprintf(w, "  - %s (%s)\n", app.ID, app.Decision)
		}
	}
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func joinApps(apps []domain.AppID) string {
	if len(apps) == 0 {
		return "(none)"
	}
	names := make([]string, len(apps))
	for i, a := range apps {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// isUserError reports errors that are the caller's fault rather than a fault of the system.
func isUserError(err error) bool {
	return errors.Is(err, domain.ErrInvalidDuration) ||
		errors.Is(err, domain.ErrAlreadyLocked) ||
		errors.Is(err, domain.ErrNotLocked) ||
		errors.Is(err, domain.ErrHardBlocked) ||
		errors.Is(err, domain.ErrSelectionLimit) ||
		errors.Is(err, domain.ErrFixedApp)
}
