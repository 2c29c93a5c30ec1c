// Package config loads focuslock settings from defaults, a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/eliteGoblin/focusd/focuslock/internal/daemon"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	"github.com/eliteGoblin/focusd/focuslock/internal/infra"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

// EnvPrefix is the prefix of every environment override, e.g. FOCUSLOCK_METRICS_ENABLED.
const EnvPrefix = "FOCUSLOCK"

// Config holds all application configuration.
type Config struct {
	Session    SessionConfig    `toml:"session" envconfig:"SESSION"`
	Gatekeeper GatekeeperConfig `toml:"gatekeeper" envconfig:"GATEKEEPER"`
	Countdown  CountdownConfig  `toml:"countdown" envconfig:"COUNTDOWN"`
	Platform   PlatformConfig   `toml:"platform" envconfig:"PLATFORM"`
	Storage    StorageConfig    `toml:"storage" envconfig:"STORAGE"`
	Logging    LogConfig        `toml:"logging" envconfig:"LOG"`
	Metrics    MetricsConfig    `toml:"metrics" envconfig:"METRICS"`
}

// SessionConfig holds session defaults.
type SessionConfig struct {
	DefaultDuration time.Duration `toml:"default_duration" envconfig:"DEFAULT_DURATION"`
	HistoryLimit    int           `toml:"history_limit" envconfig:"HISTORY_LIMIT"`
}

// GatekeeperConfig holds enforcement timing.
type GatekeeperConfig struct {
	OwnAppID        string        `toml:"own_app_id" envconfig:"OWN_APP_ID"`
	EnforceCooldown time.Duration `toml:"enforce_cooldown" envconfig:"ENFORCE_COOLDOWN"`
	NotifyCooldown  time.Duration `toml:"notify_cooldown" envconfig:"NOTIFY_COOLDOWN"`
	FrontDelay      time.Duration `toml:"front_delay" envconfig:"FRONT_DELAY"`
}

// CountdownConfig holds daemon timing.
type CountdownConfig struct {
	TickInterval      time.Duration `toml:"tick_interval" envconfig:"TICK_INTERVAL"`
	FinishRetries     int           `toml:"finish_retries" envconfig:"FINISH_RETRIES"`
	RetryBackoff      time.Duration `toml:"retry_backoff" envconfig:"RETRY_BACKOFF"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
}

// PlatformConfig selects the desktop adapters.
type PlatformConfig struct {
	// ForegroundSource is "xprop", "stdin" or a path to a FIFO carrying one app id per line.
	ForegroundSource string        `toml:"foreground_source" envconfig:"FOREGROUND_SOURCE"`
	PollInterval     time.Duration `toml:"poll_interval" envconfig:"POLL_INTERVAL"`
	EnforceMode      string        `toml:"enforce_mode" envconfig:"ENFORCE_MODE"`
	Notifications    bool          `toml:"notifications" envconfig:"NOTIFICATIONS"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// DataDir overrides the detected data directory when non-empty.
	DataDir string `toml:"data_dir" envconfig:"DATA_DIR"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level" envconfig:"LEVEL"`
	File  string `toml:"file" envconfig:"FILE"`
}

// MetricsConfig holds the daemon metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" envconfig:"ENABLED"`
	Addr    string `toml:"addr" envconfig:"ADDR"`
}

// Default returns default configuration.
func Default() *Config {
	gk := usecase.DefaultGatekeeperConfig()
	cd := daemon.DefaultCountdownConfig()
	rn := daemon.DefaultRunnerConfig()
	return &Config{
		Session: SessionConfig{
			DefaultDuration: 25 * time.Minute,
			HistoryLimit:    usecase.DefaultHistoryLimit,
		},
		Gatekeeper: GatekeeperConfig{
			OwnAppID:        string(gk.OwnAppID),
			EnforceCooldown: gk.EnforceCooldown,
			NotifyCooldown:  gk.NotifyCooldown,
			FrontDelay:      gk.FrontDelay,
		},
		Countdown: CountdownConfig{
			TickInterval:      cd.TickInterval,
			FinishRetries:     cd.FinishRetries,
			RetryBackoff:      cd.RetryBackoff,
			HeartbeatInterval: rn.HeartbeatInterval,
		},
		Platform: PlatformConfig{
			ForegroundSource: "xprop",
			PollInterval:     infra.DefaultPollInterval,
			EnforceMode:      string(infra.EnforceMinimize),
			Notifications:    true,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if it exists), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// Unset variables leave the file values alone, so no default tags here.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch infra.EnforceMode(c.Platform.EnforceMode) {
	case infra.EnforceMinimize, infra.EnforceKill:
	default:
		return fmt.Errorf("invalid enforce_mode %q", c.Platform.EnforceMode)
	}
	if c.Countdown.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.Countdown.TickInterval)
	}
	if c.Countdown.FinishRetries < 0 {
		return fmt.Errorf("finish_retries must not be negative, got %d", c.Countdown.FinishRetries)
	}
	if c.Countdown.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.Countdown.HeartbeatInterval)
	}
	if c.Session.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive, got %d", c.Session.HistoryLimit)
	}
	if c.Session.DefaultDuration <= 0 {
		return fmt.Errorf("default_duration must be positive, got %s", c.Session.DefaultDuration)
	}
	return nil
}

// Save writes cfg as TOML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// GatekeeperSettings converts to the enforcement config.
func (c *Config) GatekeeperSettings() usecase.GatekeeperConfig {
	return usecase.GatekeeperConfig{
		OwnAppID:        domain.AppID(c.Gatekeeper.OwnAppID),
		EnforceCooldown: c.Gatekeeper.EnforceCooldown,
		NotifyCooldown:  c.Gatekeeper.NotifyCooldown,
		FrontDelay:      c.Gatekeeper.FrontDelay,
	}
}

// CountdownSettings converts to the countdown config.
func (c *Config) CountdownSettings() daemon.CountdownConfig {
	return daemon.CountdownConfig{
		TickInterval:  c.Countdown.TickInterval,
		FinishRetries: c.Countdown.FinishRetries,
		RetryBackoff:  c.Countdown.RetryBackoff,
		OwnAppID:      domain.AppID(c.Gatekeeper.OwnAppID),
	}
}

// RunnerSettings converts to the daemon loop config.
func (c *Config) RunnerSettings() daemon.RunnerConfig {
	rc := daemon.DefaultRunnerConfig()
	rc.HeartbeatInterval = c.Countdown.HeartbeatInterval
	return rc
}
