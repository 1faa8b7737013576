package domain

import (
	"fmt"
	"time"
)

// Settings is the read-only snapshot of user configuration consumed by the
// orchestrator. A new snapshot replaces the old one wholesale on reload.
type Settings struct {
	IdleHookEnabled     bool          `json:"idle_hook_enabled"`
	EntryDelay          time.Duration `json:"entry_delay"`
	BlockExit           bool          `json:"block_exit"`
	StatusCheckInterval time.Duration `json:"status_check_interval"`

	PowerSaverOnSleep   bool `json:"power_saver_on_sleep"`
	PowerSaverOffOnWake bool `json:"power_saver_off_on_wake"`

	SchedulerEnabled bool          `json:"scheduler_enabled"`
	SchedulerMode    SchedulerMode `json:"scheduler_mode"` // manually selected mode
	ScreenOnMode     SchedulerMode `json:"screen_on_mode"`
	ScreenOffMode    SchedulerMode `json:"screen_off_mode"`
	AutoSwitch       bool          `json:"auto_switch"`

	SuppressEnabled  bool          `json:"suppress_enabled"`
	SuppressMode     SuppressMode  `json:"suppress_mode"`
	SuppressOOMValue int           `json:"suppress_oom_value"`
	SuppressInterval time.Duration `json:"suppress_interval"`

	DebounceInterval  time.Duration `json:"debounce_interval"`
	BackgroundEnabled bool          `json:"background_enabled"`
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		IdleHookEnabled:     true,
		EntryDelay:          time.Second,
		BlockExit:           true,
		StatusCheckInterval: 10 * time.Second,
		PowerSaverOnSleep:   false,
		PowerSaverOffOnWake: true,
		SchedulerEnabled:    false,
		SchedulerMode:       ModeDaily,
		ScreenOnMode:        ModeDaily,
		ScreenOffMode:       ModeStandby,
		AutoSwitch:          true,
		SuppressEnabled:     true,
		SuppressMode:        SuppressConservative,
		SuppressOOMValue:    800,
		SuppressInterval:    60 * time.Second,
		DebounceInterval:    3 * time.Second,
		BackgroundEnabled:   true,
	}
}

// Validate checks enumerated fields and value ranges.
func (s Settings) Validate() error {
	for _, m := range []SchedulerMode{s.SchedulerMode, s.ScreenOnMode, s.ScreenOffMode} {
		if !m.Valid() {
			return fmt.Errorf("%w: scheduler mode %q", ErrInvalidSettings, m)
		}
	}
	if !s.SuppressMode.Valid() {
		return fmt.Errorf("%w: suppress mode %q", ErrInvalidSettings, s.SuppressMode)
	}
	if s.SuppressOOMValue < -1000 || s.SuppressOOMValue > 1000 {
		return fmt.Errorf("%w: oom value %d outside [-1000, 1000]", ErrInvalidSettings, s.SuppressOOMValue)
	}
	if s.EntryDelay < 0 || s.DebounceInterval < 0 || s.SuppressInterval < 0 || s.StatusCheckInterval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidSettings)
	}
	return nil
}
