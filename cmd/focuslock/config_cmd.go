package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/focuslock/internal/config"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file and environment applied)",
	RunE:  runConfigShow,
}

var configDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Set the platform default apps that are always available",
	Long: `Records which apps are the default dialer, messaging app, launcher and
input methods. These stay usable during every session.`,
	RunE: runConfigDefaults,
}

var (
	configForce      bool
	defaultsSpecFlag infra.DeviceDefaultsSpec
)

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configDefaultsCmd.Flags().StringVar(&defaultsSpecFlag.Dialer, "dialer", "", "Default dialer app")
	configDefaultsCmd.Flags().StringVar(&defaultsSpecFlag.Messaging, "messaging", "", "Default messaging app")
	configDefaultsCmd.Flags().StringVar(&defaultsSpecFlag.Launcher, "launcher", "", "Launcher / home app")
	configDefaultsCmd.Flags().StringSliceVar(&defaultsSpecFlag.InputMethods, "ime", nil, "Input method apps")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDefaultsCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	if _, err := os.Stat(paths.ConfigFile); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", paths.ConfigFile)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Save(config.Default(), paths.ConfigFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", paths.ConfigFile)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(infra.DetectPaths().ConfigFile)
	if err != nil {
		return err
	}
	return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
}

func runConfigDefaults(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	if err := paths.Ensure(); err != nil {
		return err
	}
	defaults := infra.NewDefaultsFile(paths.DataDir, cliLogger())

	spec := infra.DeviceDefaultsSpec{
		Dialer:    string(defaults.DefaultDialer()),
		Messaging: string(defaults.DefaultMessaging()),
		Launcher:  string(defaults.Launcher()),
	}
	for _, ime := range defaults.InputMethods() {
		spec.InputMethods = append(spec.InputMethods, string(ime))
	}

	flags := cmd.Flags()
	if flags.Changed("dialer") {
		spec.Dialer = defaultsSpecFlag.Dialer
	}
	if flags.Changed("messaging") {
		spec.Messaging = defaultsSpecFlag.Messaging
	}
	if flags.Changed("launcher") {
		spec.Launcher = defaultsSpecFlag.Launcher
	}
	if flags.Changed("ime") {
		spec.InputMethods = defaultsSpecFlag.InputMethods
	}

	if err := defaults.Save(spec); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dialer:    %s\n", spec.Dialer)
	fmt.Fprintf(out, "messaging: %s\n", spec.Messaging)
	fmt.Fprintf(out, "launcher:  %s\n", spec.Launcher)
	fmt.Fprintf(out, "ime:       %v\n", spec.InputMethods)
	return nil
}
