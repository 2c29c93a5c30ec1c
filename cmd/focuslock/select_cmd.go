package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/policy"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Show fixed, selected and hard-blocked apps",
	RunE:  withEnv(runApps),
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Edit the apps allowed in the next session",
}

var selectAddCmd = &cobra.Command{
	Use:   "add <app>...",
	Short: "Allow apps in the next session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withEnv(runSelectAdd),
}

var selectRemoveCmd = &cobra.Command{
	Use:   "remove <app>...",
	Short: "Stop allowing apps in the next session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withEnv(runSelectRemove),
}

var selectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the saved selection",
	RunE:  withEnv(runSelectList),
}

func init() {
	selectCmd.AddCommand(selectAddCmd)
	selectCmd.AddCommand(selectRemoveCmd)
	selectCmd.AddCommand(selectListCmd)

	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(selectCmd)
}

func runApps(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	sel, _ := e.focus.PendingSelection(ctx)
	writeApps(cmd.OutOrStdout(), e.classifier, sel)
	return nil
}

func writeApps(w io.Writer, c *policy.Classifier, sel *policy.Selection) {
	fmt.Fprintln(w, "Always available:")
	for _, app := range c.FixedApps() {
		fmt.Fprintf(w, "  - %s\n", app)
	}

	fmt.Fprintf(w, "\nSelected (%d/%d):\n", sel.Count(), policy.MaxSelectedApps)
	for _, app := range sel.Selected() {
		fmt.Fprintf(w, "  - %s\n", app)
	}

	entries := c.Catalog().Entries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].ID < entries[j].ID
	})
	fmt.Fprintln(w, "\nNever allowed:")
	for _, entry := range entries {
		fmt.Fprintf(w, "  - [%s] %s (%s)\n", entry.Category, entry.Name, entry.ID)
	}
}

func runSelectAdd(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	return editSelection(ctx, cmd, e, args, (*policy.Selection).Add)
}

func runSelectRemove(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	return editSelection(ctx, cmd, e, args, (*policy.Selection).Remove)
}

// editSelection applies op to every app and saves the result only if all succeed.
func editSelection(ctx context.Context, cmd *cobra.Command, e *env, apps []string, op func(*policy.Selection, domain.AppID) error) error {
	sel, _ := e.focus.PendingSelection(ctx)
	for _, app := range apps {
		if err := op(sel, domain.AppID(app)); err != nil {
			return fmt.Errorf("%s: %w", app, err)
		}
	}
	if err := e.focus.SaveSelection(ctx, sel); err != nil {
		return err
	}
	return runSelectList(ctx, cmd, e, nil)
}

func runSelectList(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
	sel, dropped := e.focus.PendingSelection(ctx)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Selected (%d/%d): %s\n", sel.Count(), policy.MaxSelectedApps, joinApps(sel.Selected()))
	if len(dropped) > 0 {
		fmt.Fprintf(out, "Ignored: %s\n", joinApps(dropped))
	}
	return nil
}
