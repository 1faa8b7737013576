// Package walt switches the WALT scheduler between fixed tuning bundles
// and exposes best-effort CPU frequency and governor writes.
package walt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

// Params is one scheduler tuning bundle.
type Params struct {
	Threshold int // kernel.sched_walt_util_threshold
	EstFactor int // kernel.sched_walt_util_est_factor
	Filter    int // kernel.sched_walt_util_filter
}

// Modes is the fixed mode table.
var Modes = map[domain.SchedulerMode]Params{
	domain.ModeDaily:       {Threshold: 500, EstFactor: 100, Filter: 50},
	domain.ModeDefault:     {Threshold: 500, EstFactor: 100, Filter: 50},
	domain.ModeStandby:     {Threshold: 800, EstFactor: 120, Filter: 70},
	domain.ModePerformance: {Threshold: 300, EstFactor: 80, Filter: 30},
}

// globalParams is the mode-independent baseline.
var globalParams = Params{Threshold: 500, EstFactor: 100}

const cpufreqGlob = "/sys/devices/system/cpu/cpu[0-9]*/cpufreq"

// Switcher applies scheduler bundles through the executor.
type Switcher struct {
	exec domain.Executor
	log  *slog.Logger
}

// New creates a switcher.
func New(exec domain.Executor, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{exec: exec, log: logger.With("component", "walt")}
}

// sysctl writes kernel.sched_walt_util_<name>.
func sysctl(name string, value int) string {
	return fmt.Sprintf("sysctl -w kernel.sched_walt_util_%s=%d 2>/dev/null", name, value)
}

// ApplyMode writes the named bundle as one batch. Unknown names fail
// without issuing anything.
func (s *Switcher) ApplyMode(ctx context.Context, mode domain.SchedulerMode) domain.Result {
	p, ok := Modes[mode]
	if !ok {
		err := fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
		s.log.Warn("unknown scheduler mode", "mode", mode)
		metrics.SchedulerModeApplied.WithLabelValues("unknown", "rejected").Inc()
		return domain.Failure(domain.KindConfigInvalid, err)
	}

	r := s.batch(ctx, "apply mode "+string(mode), []string{
		sysctl("threshold", p.Threshold),
		sysctl("est_factor", p.EstFactor),
		sysctl("filter", p.Filter),
	})
	result := "ok"
	if !r.OK {
		result = "failed"
	}
	metrics.SchedulerModeApplied.WithLabelValues(string(mode), result).Inc()
	if r.OK {
		s.log.Info("scheduler mode applied", "mode", mode, "threshold", p.Threshold, "est_factor", p.EstFactor, "filter", p.Filter)
	}
	return r
}

// ApplyGlobalOptimizations writes the mode-independent baseline.
func (s *Switcher) ApplyGlobalOptimizations(ctx context.Context) domain.Result {
	return s.batch(ctx, "global optimizations", []string{
		sysctl("threshold", globalParams.Threshold),
		sysctl("est_factor", globalParams.EstFactor),
	})
}

// RestoreDefault leaves the scheduler parameters as they are.
// TODO: capture the boot-time sysctl values at startup and write them back here.
func (s *Switcher) RestoreDefault(context.Context) domain.Result {
	return domain.Success()
}

// SetFrequency writes the min and max scaling frequency (MHz) to every core.
// Cores that reject the write are skipped.
func (s *Switcher) SetFrequency(ctx context.Context, minMHz, maxMHz int) domain.Result {
	if minMHz <= 0 || maxMHz < minMHz {
		return domain.Failure(domain.KindConfigInvalid,
			fmt.Errorf("%w: frequency range %d-%d MHz", domain.ErrInvalidSettings, minMHz, maxMHz))
	}
	return s.batch(ctx, "set frequency", []string{
		perCore("scaling_min_freq", fmt.Sprint(minMHz*1000)),
		perCore("scaling_max_freq", fmt.Sprint(maxMHz*1000)),
	})
}

// SetGovernor writes the cpufreq governor for every core.
func (s *Switcher) SetGovernor(ctx context.Context, governor string) domain.Result {
	if governor == "" {
		return domain.Failure(domain.KindConfigInvalid, fmt.Errorf("%w: empty governor", domain.ErrInvalidSettings))
	}
	return s.batch(ctx, "set governor", []string{perCore("scaling_governor", governor)})
}

func perCore(file, value string) string {
	return fmt.Sprintf("for f in %s/%s; do echo %s > $f 2>/dev/null || true; done", cpufreqGlob, file, value)
}

func (s *Switcher) batch(ctx context.Context, what string, commands []string) domain.Result {
	res := s.exec.ExecuteBatch(ctx, commands)
	if res.Success {
		return domain.Success()
	}
	err := fmt.Errorf("%s: %w", what, res.Err)
	s.log.Warn("scheduler write failed", "kind", domain.KindCommandFailure, "err", err)
	return domain.Failure(domain.KindCommandFailure, err)
}
