package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestShellMetrics(t *testing.T) {
	ShellCommandDuration.WithLabelValues("execute").Observe(0.2)
	ShellCommandFailures.WithLabelValues("batch").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"deepsleep_shell_command_duration_seconds",
		"deepsleep_shell_command_failures_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestIdleMetrics(t *testing.T) {
	Events.WithLabelValues("idle_enter_attempt").Inc()
	ForceModeActive.Set(BoolGauge(true))
	IdleState.Set(3)
	ScreenOff.Set(1)

	names := gatheredNames(t)
	for _, name := range []string{
		"deepsleep_events_total",
		"deepsleep_force_mode_active",
		"deepsleep_idle_state",
		"deepsleep_screen_off",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestSuppressAndSchedulerMetrics(t *testing.T) {
	SuppressPasses.Inc()
	SuppressTargets.Set(42)
	BackgroundRestricted.Set(7)
	SchedulerModeApplied.WithLabelValues("standby", "ok").Inc()
	HealthCheckStatus.WithLabelValues("sqlite").Set(1)
	HealthRecoveries.WithLabelValues("sqlite").Inc()
	ConfigReloads.WithLabelValues("ok").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"deepsleep_suppress_passes_total",
		"deepsleep_suppress_targets",
		"deepsleep_background_restricted_packages",
		"deepsleep_scheduler_mode_applied_total",
		"deepsleep_health_check_status",
		"deepsleep_health_recoveries_total",
		"deepsleep_config_reloads_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestBoolGauge(t *testing.T) {
	if BoolGauge(true) != 1 || BoolGauge(false) != 0 {
		t.Error("BoolGauge mapping wrong")
	}
}
