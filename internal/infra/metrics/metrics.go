// Package metrics provides Prometheus metrics for the deepsleep daemon:
// privileged shell calls, idle-mode transitions, suppression passes,
// scheduler modes and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deepsleep"

// ─── Shell ──────────────────────────────────────────────────────────────────

// ShellCommandDuration tracks privileged command latency by call kind
// (execute, batch, read).
var ShellCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "shell_command_duration_seconds",
	Help:      "Privileged command duration in seconds.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"kind"})

// ShellCommandFailures counts failed or timed-out privileged commands.
var ShellCommandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "shell_command_failures_total",
	Help:      "Total failed privileged commands by call kind.",
}, []string{"kind"})

// ─── Idle Mode ──────────────────────────────────────────────────────────────

// Events mirrors the persistent statistics counters.
var Events = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "events_total",
	Help:      "Orchestrator statistics by counter name.",
}, []string{"counter"})

// ForceModeActive is 1 while the orchestrator holds the device in force-mode.
var ForceModeActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "force_mode_active",
	Help:      "Whether force-mode is active (1) or not (0).",
})

// IdleState tracks the last observed idle state (0=Unknown, 1=Active,
// 2=Inactive, 3=Idle, 4=IdleMaintenance).
var IdleState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "idle_state",
	Help:      "Last observed idle state (0=Unknown, 1=Active, 2=Inactive, 3=Idle, 4=IdleMaintenance).",
})

// ScreenOff is 1 while the screen was last observed off.
var ScreenOff = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "screen_off",
	Help:      "Whether the screen was last observed off (1) or on (0).",
})

// ─── Suppression ────────────────────────────────────────────────────────────

// SuppressPasses counts completed suppression passes.
var SuppressPasses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "suppress_passes_total",
	Help:      "Total process suppression passes.",
})

// SuppressTargets records how many processes the last pass adjusted.
var SuppressTargets = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "suppress_targets",
	Help:      "Processes targeted by the most recent suppression pass.",
})

// BackgroundRestricted records how many packages are currently restricted.
var BackgroundRestricted = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "background_restricted_packages",
	Help:      "Packages whose background execution is currently restricted.",
})

// ─── Scheduler ──────────────────────────────────────────────────────────────

// SchedulerModeApplied counts scheduler mode applications by mode and result.
var SchedulerModeApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "scheduler_mode_applied_total",
	Help:      "Scheduler mode applications by mode and result.",
}, []string{"mode", "result"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})

// ─── Config ─────────────────────────────────────────────────────────────────

// ConfigReloads counts configuration reload attempts by result.
var ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "config_reloads_total",
	Help:      "Configuration reload attempts by result.",
}, []string{"result"})

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
