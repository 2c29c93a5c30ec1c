package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Past sessions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past sessions, newest first",
	RunE:  withEnv(runHistoryList),
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <timestamp>",
	Short: "Delete one session from history",
	Args:  cobra.ExactArgs(1),
	RunE:  withEnv(runHistoryDelete),
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history",
	RunE:  withEnv(runHistoryClear),
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore <timestamp>",
	Short: "Cancel any active session and reuse a past session's apps",
	Long: `Cancels the active session (if any) and saves the apps of the given
past session as the selection for the next start. Apps that are no longer
allowed are skipped. Pass --start to begin the new session right away with
the past session's duration.`,
	Args: cobra.ExactArgs(1),
	RunE: withEnv(runHistoryRestore),
}

var restoreAndStart bool

func init() {
	historyRestoreCmd.Flags().BoolVar(&restoreAndStart, "start", false, "Start the restored session immediately")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyRestoreCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	records, err := e.focus.History(ctx)
	if err != nil {
		return err
	}
	writeHistory(cmd.OutOrStdout(), records)
	return nil
}

func writeHistory(w io.Writer, records []domain.SessionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No sessions yet.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%d  %s  %3d min  %s\n", r.TimestampMs, r.DisplayDate, r.DurationMinutes, joinApps(r.AllowedApps))
	}
}

func runHistoryDelete(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	ts, err := parseTimestamp(args[0])
	if err != nil {
		return err
	}
	if err := e.focus.DeleteHistory(ctx, ts); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
	return nil
}

func runHistoryClear(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	if err := e.focus.ClearHistory(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
	return nil
}

func runHistoryRestore(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	out := cmd.OutOrStdout()
	ts, err := parseTimestamp(args[0])
	if err != nil {
		return err
	}

	restored, err := e.focus.RestoreHistory(ctx, ts)
	if err != nil {
		return err
	}
	if restored.Cancelled {
		fmt.Fprintln(out, "Active session cancelled.")
	}
	for _, app := range restored.Dropped {
		fmt.Fprintf(out, "Skipping %s (no longer allowed)\n", app)
	}
	fmt.Fprintf(out, "Restored %s with: %s\n", restored.Duration, joinApps(restored.Selection.Selected()))

	if !restoreAndStart {
		return nil
	}
	startDuration = restored.Duration
	startAllow = nil
	return runStart(ctx, cmd, e, nil)
}

func parseTimestamp(s string) (int64, error) {
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return ts, nil
}
