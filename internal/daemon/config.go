// Package daemon manages the deepsleep daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// ConfigFile is the config file name inside the data directory.
const ConfigFile = "config.toml"

// Config holds all daemon configuration.
type Config struct {
	Idle        IdleConfig        `toml:"idle"`
	PowerSaver  PowerSaverConfig  `toml:"power_saver"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Suppress    SuppressConfig    `toml:"suppress"`
	Screen      ScreenConfig      `toml:"screen"`
	Background  BackgroundConfig  `toml:"background"`
	Tick        TickConfig        `toml:"tick"`
	Shell       ShellConfig       `toml:"shell"`
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Logging     LoggingConfig     `toml:"logging"`
	Health      HealthConfig      `toml:"health"`
}

// IdleConfig controls idle-mode entry and supervision.
type IdleConfig struct {
	HookEnabled         bool   `toml:"hook_enabled"`
	EntryDelay          string `toml:"entry_delay"`
	BlockExit           bool   `toml:"block_exit"`
	StatusCheckInterval string `toml:"status_check_interval"`
}

// PowerSaverConfig controls the power-saver flag around screen events.
type PowerSaverConfig struct {
	OnSleep   bool `toml:"on_sleep"`
	OffOnWake bool `toml:"off_on_wake"`
}

// SchedulerConfig controls scheduler mode switching.
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	Mode          string `toml:"mode"`
	ScreenOnMode  string `toml:"screen_on_mode"`
	ScreenOffMode string `toml:"screen_off_mode"`
	AutoSwitch    bool   `toml:"auto_switch"`
}

// SuppressConfig controls periodic process suppression.
type SuppressConfig struct {
	Enabled  bool   `toml:"enabled"`
	Mode     string `toml:"mode"`
	OOMValue int    `toml:"oom_value"`
	Interval string `toml:"interval"`
}

// ScreenConfig controls screen event handling.
type ScreenConfig struct {
	Debounce     string `toml:"debounce"`
	Monitor      bool   `toml:"monitor"`
	PollInterval string `toml:"poll_interval"`
}

// BackgroundConfig controls background execution restriction.
type BackgroundConfig struct {
	Enabled bool `toml:"enabled"`
}

// TickConfig controls orchestrator loop timing.
type TickConfig struct {
	ScreenOn      string `toml:"screen_on"`
	ScreenOff     string `toml:"screen_off"`
	SuppressFloor string `toml:"suppress_floor"`
	PoolSize      int    `toml:"pool_size"`
}

// ShellConfig controls the privileged executor.
type ShellConfig struct {
	Binary  string `toml:"binary"`
	UseRoot bool   `toml:"use_root"`
	Timeout string `toml:"timeout"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// StorageConfig controls where state.db lives.
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// MaintenanceConfig controls the housekeeping job.
type MaintenanceConfig struct {
	Schedule           string `toml:"schedule"`
	EventRetentionDays int    `toml:"event_retention_days"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// HealthConfig controls the health checker.
type HealthConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the out-of-the-box configuration.
func DefaultConfig() Config {
	home := deepsleepHome()
	s := domain.DefaultSettings()
	return Config{
		Idle: IdleConfig{
			HookEnabled:         s.IdleHookEnabled,
			EntryDelay:          s.EntryDelay.String(),
			BlockExit:           s.BlockExit,
			StatusCheckInterval: s.StatusCheckInterval.String(),
		},
		PowerSaver: PowerSaverConfig{
			OnSleep:   s.PowerSaverOnSleep,
			OffOnWake: s.PowerSaverOffOnWake,
		},
		Scheduler: SchedulerConfig{
			Enabled:       s.SchedulerEnabled,
			Mode:          string(s.SchedulerMode),
			ScreenOnMode:  string(s.ScreenOnMode),
			ScreenOffMode: string(s.ScreenOffMode),
			AutoSwitch:    s.AutoSwitch,
		},
		Suppress: SuppressConfig{
			Enabled:  s.SuppressEnabled,
			Mode:     string(s.SuppressMode),
			OOMValue: s.SuppressOOMValue,
			Interval: s.SuppressInterval.String(),
		},
		Screen: ScreenConfig{
			Debounce:     s.DebounceInterval.String(),
			Monitor:      true,
			PollInterval: "1s",
		},
		Background: BackgroundConfig{Enabled: s.BackgroundEnabled},
		Tick: TickConfig{
			ScreenOn:      "15s",
			ScreenOff:     "2s",
			SuppressFloor: "10s",
			PoolSize:      4,
		},
		Shell: ShellConfig{
			Binary:  "su",
			UseRoot: true,
			Timeout: "10s",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8765,
		},
		Storage: StorageConfig{Dir: home},
		Maintenance: MaintenanceConfig{
			Schedule:           "@daily",
			EventRetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(home, "deepsleep.log"),
		},
		Health: HealthConfig{Enabled: true},
	}
}

// LoadConfig reads config from $DEEPSLEEP_HOME/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads and validates config from path. A missing file
// yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $DEEPSLEEP_HOME/config.toml.
func SaveConfig(cfg Config) error {
	return SaveConfigFile(ConfigPath(), cfg)
}

// SaveConfigFile writes the config to path.
func SaveConfigFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks every duration string and the projected settings.
func (c Config) Validate() error {
	durations := map[string]string{
		"idle.entry_delay":           c.Idle.EntryDelay,
		"idle.status_check_interval": c.Idle.StatusCheckInterval,
		"suppress.interval":          c.Suppress.Interval,
		"screen.debounce":            c.Screen.Debounce,
		"screen.poll_interval":       c.Screen.PollInterval,
		"tick.screen_on":             c.Tick.ScreenOn,
		"tick.screen_off":            c.Tick.ScreenOff,
		"tick.suppress_floor":        c.Tick.SuppressFloor,
		"shell.timeout":              c.Shell.Timeout,
	}
	for key, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidSettings, key, err)
		}
	}
	if c.Tick.PoolSize < 0 {
		return fmt.Errorf("%w: tick.pool_size %d", domain.ErrInvalidSettings, c.Tick.PoolSize)
	}
	if c.Maintenance.EventRetentionDays < 0 {
		return fmt.Errorf("%w: maintenance.event_retention_days %d", domain.ErrInvalidSettings, c.Maintenance.EventRetentionDays)
	}
	return c.Settings().Validate()
}

// Settings projects the user-facing options into a domain snapshot.
// Unparseable durations fall back to the defaults.
func (c Config) Settings() domain.Settings {
	def := domain.DefaultSettings()
	return domain.Settings{
		IdleHookEnabled:     c.Idle.HookEnabled,
		EntryDelay:          parseDuration(c.Idle.EntryDelay, def.EntryDelay),
		BlockExit:           c.Idle.BlockExit,
		StatusCheckInterval: parseDuration(c.Idle.StatusCheckInterval, def.StatusCheckInterval),
		PowerSaverOnSleep:   c.PowerSaver.OnSleep,
		PowerSaverOffOnWake: c.PowerSaver.OffOnWake,
		SchedulerEnabled:    c.Scheduler.Enabled,
		SchedulerMode:       domain.SchedulerMode(c.Scheduler.Mode),
		ScreenOnMode:        domain.SchedulerMode(c.Scheduler.ScreenOnMode),
		ScreenOffMode:       domain.SchedulerMode(c.Scheduler.ScreenOffMode),
		AutoSwitch:          c.Scheduler.AutoSwitch,
		SuppressEnabled:     c.Suppress.Enabled,
		SuppressMode:        domain.SuppressMode(c.Suppress.Mode),
		SuppressOOMValue:    c.Suppress.OOMValue,
		SuppressInterval:    parseDuration(c.Suppress.Interval, def.SuppressInterval),
		DebounceInterval:    parseDuration(c.Screen.Debounce, def.DebounceInterval),
		BackgroundEnabled:   c.Background.Enabled,
	}
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(deepsleepHome(), ConfigFile)
}

// deepsleepHome returns the data directory: $DEEPSLEEP_HOME, then
// /data/adb/deepsleep when running as root on a device, then ~/.deepsleep.
func deepsleepHome() string {
	if env := os.Getenv("DEEPSLEEP_HOME"); env != "" {
		return env
	}
	if os.Geteuid() == 0 {
		if _, err := os.Stat("/data/adb"); err == nil {
			return "/data/adb/deepsleep"
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".deepsleep")
}

// Home is exported for use by other packages.
func Home() string {
	return deepsleepHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
