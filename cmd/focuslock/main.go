// Package main is the CLI entry point for focuslock.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focuslock/internal/bus"
	"github.com/eliteGoblin/focusd/focuslock/internal/config"
	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/monitoring"
	"github.com/eliteGoblin/focusd/focuslock/internal/policy"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if isUserError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focuslock",
	Short: "Focus sessions that keep you in the apps you chose",
	Long: `focuslock starts a timed focus session. Until the timer ends, only the
apps you selected (plus the phone, messaging and input essentials) may stay
in the foreground; everything else is sent away.

The timer is owned by a background daemon and survives restarts.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when a session starts
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	verbose    bool
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

// env is everything a command needs, opened from the data directory.
type env struct {
	cfg        *config.Config
	paths      *infra.Paths
	logger     *zap.Logger
	pm         domain.ProcessManager
	store      *infra.EncryptedStore
	defaults   *infra.DefaultsFile
	classifier *policy.Classifier
	session    *usecase.SessionState
	focus      *usecase.FocusService
	registry   *infra.FileRegistry
}

// openEnv loads config and opens the encrypted store.
func openEnv(logger *zap.Logger) (*env, error) {
	paths := infra.DetectPaths()
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.DataDir != "" && cfg.Storage.DataDir != paths.DataDir {
		override := *paths
		override.DataDir = cfg.Storage.DataDir
		paths = &override
	}
	if err := paths.Ensure(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := infra.OpenStore(paths.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	pm := infra.NewProcessManager()
	defaults := infra.NewDefaultsFile(paths.DataDir, logger)
	classifier := policy.NewClassifier(policy.NewCatalog(), defaults)
	session := usecase.NewSessionState(store, logger)
	history := usecase.NewHistory(store, logger).WithLimit(cfg.Session.HistoryLimit)

	return &env{
		cfg:        cfg,
		paths:      paths,
		logger:     logger,
		pm:         pm,
		store:      store,
		defaults:   defaults,
		classifier: classifier,
		session:    session,
		focus:      usecase.NewFocusService(session, history, classifier, infra.NewInstalledApps(pm), logger),
		registry:   infra.NewFileRegistry(paths.DataDir, pm),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close store", zap.Error(err))
	}
}

// withEnv wraps a command body with a CLI logger, an opened env and signal-aware context.
func withEnv(fn func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := cliLogger()
		defer func() { _ = logger.Sync() }()

		e, err := openEnv(logger)
		if err != nil {
			return err
		}
		defer e.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return fn(ctx, cmd, e, args)
	}
}

func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runDaemon(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return err
	}

	logger := createLogger(cfg, paths)
	defer func() { _ = logger.Sync() }()

	e, err := openEnv(logger)
	if err != nil {
		logger.Error("failed to open environment", zap.Error(err))
		return err
	}
	defer e.Close()

	// Only one daemon owns the countdown.
	if entry, _ := e.registry.Get(); entry != nil && entry.PID != os.Getpid() && e.registry.IsAlive() {
		logger.Info("daemon already running", zap.Int("pid", entry.PID))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	metrics := monitoring.NewMetrics()
	if e.cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, e.cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	platform := infra.NewDesktopPlatform(infra.EnforceMode(e.cfg.Platform.EnforceMode), e.pm, logger)

	var notifier domain.Notifier = quietNotifier{}
	if e.cfg.Platform.Notifications {
		dn := infra.NewDesktopNotifier("focuslock", logger)
		defer dn.Wait()
		notifier = dn
	}

	source, closeSource, err := foregroundSource(e.cfg.Platform, e.pm, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	events := bus.New(logger)
	defer events.Close()

	gatekeeper := usecase.NewGatekeeper(
		e.session,
		e.classifier,
		policy.NewSystemAllowlist(e.defaults),
		platform,
		notifier,
		e.cfg.GatekeeperSettings(),
		logger,
	).WithMetrics(metrics)

	countdown := daemon.NewCountdown(
		e.cfg.CountdownSettings(),
		e.session,
		events,
		platform,
		logger,
	).WithMetrics(metrics)

	runner := daemon.NewRunner(
		e.cfg.RunnerSettings(),
		countdown,
		gatekeeper,
		source,
		e.registry,
		events,
		domain.Daemon{PID: os.Getpid(), StartedAt: time.Now(), AppVersion: Version},
		logger,
	)

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// foregroundSource builds the configured source. The returned func releases it.
func foregroundSource(cfg config.PlatformConfig, pm domain.ProcessManager, logger *zap.Logger) (domain.ForegroundSource, func(), error) {
	switch cfg.ForegroundSource {
	case "", "xprop":
		return infra.NewXpropForegroundSource(cfg.PollInterval, pm, logger), func() {}, nil
	case "stdin":
		return infra.NewLineForegroundSource(os.Stdin), func() {}, nil
	default:
		f, err := os.OpenFile(cfg.ForegroundSource, os.O_RDONLY, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open foreground source: %w", err)
		}
		return infra.NewLineForegroundSource(f), func() { _ = f.Close() }, nil
	}
}

// quietNotifier drops notices when desktop notifications are disabled.
type quietNotifier struct{}

func (quietNotifier) Notify(domain.BlockNotice) {}

func createLogger(cfg *config.Config, paths *infra.Paths) *zap.Logger {
	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = paths.LogFile
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{logFile}
	zapConfig.ErrorOutputPaths = []string{logFile}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}

	if err := paths.Ensure(); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(cmd *cobra.Command, args []string) {
	writeVersion(cmd.OutOrStdout(), jsonOutput)
}

func writeVersion(w io.Writer, asJSON bool) {
	info := versionInfo{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if asJSON {
		_ = json.NewEncoder(w).Encode(info)
		return
	}
	fmt.Fprintf(w, "focuslock %s (commit: %s, built: %s)\n", info.Version, info.Commit, info.BuildTime)
}
