// Package domain holds the power-state vocabulary shared by the controllers,
// the orchestrator and the outer surfaces (API, CLI, storage).
// It has no infrastructure dependency.
package domain

import "strings"

// IdleState mirrors the OS idle-mode state machine as last observed.
// It is never mutated locally; only a query produces one.
type IdleState int

const (
	StateUnknown IdleState = iota
	StateActive
	StateInactive
	StateIdle
	StateIdleMaintenance
)

// String returns the token the OS uses in its diagnostic dump.
func (s IdleState) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateInactive:
		return "INACTIVE"
	case StateIdle:
		return "IDLE"
	case StateIdleMaintenance:
		return "IDLE_MAINTENANCE"
	default:
		return "UNKNOWN"
	}
}

// Label is the short human label shown in the status line.
func (s IdleState) Label() string {
	switch s {
	case StateIdle:
		return "深度睡眠"
	case StateIdleMaintenance:
		return "维护窗口"
	case StateActive:
		return "活跃"
	default:
		return "其他"
	}
}

// Dozing reports whether the state counts as being held in idle mode.
// A maintenance window is part of idle mode, not an exit from it.
func (s IdleState) Dozing() bool {
	return s == StateIdle || s == StateIdleMaintenance
}

// ParseIdleState maps an exact state token to an IdleState.
// Anything it does not recognize (including transitional states such as
// IDLE_PENDING or SENSING) is StateUnknown.
func ParseIdleState(token string) IdleState {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "ACTIVE":
		return StateActive
	case "INACTIVE":
		return StateInactive
	case "IDLE":
		return StateIdle
	case "IDLE_MAINTENANCE":
		return StateIdleMaintenance
	default:
		return StateUnknown
	}
}

// ScreenState is the display power state. It is read on demand and
// never cached beyond a single check.
type ScreenState int

const (
	ScreenOn ScreenState = iota
	ScreenOff
)

func (s ScreenState) String() string {
	if s == ScreenOff {
		return "OFF"
	}
	return "ON"
}

// Label is the short human label shown in the status line.
func (s ScreenState) Label() string {
	if s == ScreenOff {
		return "息屏"
	}
	return "亮屏"
}

// ScreenEvent is a discrete notification from the screen-state source.
type ScreenEvent int

const (
	EventScreenOff ScreenEvent = iota
	EventScreenOn
)

func (e ScreenEvent) String() string {
	if e == EventScreenOn {
		return "SCREEN_ON"
	}
	return "SCREEN_OFF"
}

// ParseScreenEvent accepts "off"/"on" as well as the SCREEN_OFF/SCREEN_ON
// event names.
func ParseScreenEvent(s string) (ScreenEvent, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "screen_off":
		return EventScreenOff, true
	case "on", "screen_on":
		return EventScreenOn, true
	default:
		return EventScreenOff, false
	}
}

// ─── Scheduler & Suppression Modes ──────────────────────────────────────────

// SchedulerMode names one of the fixed scheduler tuning bundles.
type SchedulerMode string

const (
	ModeDaily       SchedulerMode = "daily"
	ModeStandby     SchedulerMode = "standby"
	ModeDefault     SchedulerMode = "default"
	ModePerformance SchedulerMode = "performance"
)

// Valid reports whether m is one of the four known modes.
func (m SchedulerMode) Valid() bool {
	switch m {
	case ModeDaily, ModeStandby, ModeDefault, ModePerformance:
		return true
	}
	return false
}

// Label is the short human label shown in the status line.
func (m SchedulerMode) Label() string {
	switch m {
	case ModeDaily:
		return "日常模式"
	case ModeStandby:
		return "待机模式"
	case ModeDefault:
		return "默认模式"
	case ModePerformance:
		return "性能模式"
	default:
		return string(m)
	}
}

// SuppressMode decides when the periodic suppression pass runs.
type SuppressMode string

const (
	// SuppressConservative suppresses only while the screen is off.
	SuppressConservative SuppressMode = "conservative"
	// SuppressAggressive suppresses on every eligible cycle.
	SuppressAggressive SuppressMode = "aggressive"
)

// Valid reports whether m is a known suppression mode.
func (m SuppressMode) Valid() bool {
	return m == SuppressConservative || m == SuppressAggressive
}
