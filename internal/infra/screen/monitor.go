// Package screen reads the display power state and turns polled changes
// into SCREEN_OFF / SCREEN_ON events.
package screen

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

const cmdPowerDump = "dumpsys power"

// Probe reads the screen state on demand.
type Probe struct {
	exec domain.Executor
	log  *slog.Logger
}

// NewProbe creates a probe.
func NewProbe(exec domain.Executor, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{exec: exec, log: logger.With("component", "screen")}
}

// State parses mWakefulness (falling back to the display power line) from
// the power service dump. When the state cannot be read the screen is
// reported on, so nothing forces idle mode on uncertain data.
func (p *Probe) State(ctx context.Context) domain.ScreenState {
	res := p.exec.Execute(ctx, cmdPowerDump)
	if !res.Success {
		p.log.Warn("power dump failed, assuming screen on", "kind", domain.KindCommandFailure, "err", res.Err)
		return domain.ScreenOn
	}
	if s, ok := parseWakefulness(res.Lines); ok {
		return s
	}
	if s, ok := parseDisplayPower(res.Lines); ok {
		return s
	}
	p.log.Debug("screen state not found in power dump, assuming on", "kind", domain.KindStateUnknown)
	return domain.ScreenOn
}

func valueAfter(line, key string) (string, bool) {
	i := strings.Index(line, key)
	if i < 0 {
		return "", false
	}
	v := line[i+len(key):]
	if end := strings.IndexAny(v, " \t,"); end >= 0 {
		v = v[:end]
	}
	return v, true
}

func parseWakefulness(lines []string) (domain.ScreenState, bool) {
	for _, line := range lines {
		v, ok := valueAfter(line, "mWakefulness=")
		if !ok {
			continue
		}
		switch v {
		case "Awake":
			return domain.ScreenOn, true
		case "Asleep", "Dozing":
			return domain.ScreenOff, true
		}
	}
	return domain.ScreenOn, false
}

func parseDisplayPower(lines []string) (domain.ScreenState, bool) {
	for _, line := range lines {
		v, ok := valueAfter(line, "Display Power: state=")
		if !ok {
			continue
		}
		switch v {
		case "ON", "VR":
			return domain.ScreenOn, true
		case "OFF", "DOZE", "DOZE_SUSPEND", "ON_SUSPEND":
			return domain.ScreenOff, true
		}
	}
	return domain.ScreenOn, false
}

// Reader is anything that can report the current screen state.
type Reader interface {
	State(ctx context.Context) domain.ScreenState
}

// Monitor polls a reader and emits an event on every transition.
type Monitor struct {
	probe    Reader
	interval time.Duration
	log      *slog.Logger
}

// NewMonitor creates a monitor polling at interval (default 1s).
func NewMonitor(probe Reader, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{probe: probe, interval: interval, log: logger.With("component", "screen")}
}

// Run polls until ctx ends. The first reading only sets the baseline;
// startup handles a screen that is already off.
func (m *Monitor) Run(ctx context.Context, out chan<- domain.ScreenEvent) {
	last := m.probe.State(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := m.probe.State(ctx)
			if cur == last {
				continue
			}
			last = cur
			ev := domain.EventScreenOn
			if cur == domain.ScreenOff {
				ev = domain.EventScreenOff
			}
			m.log.Debug("screen transition", "event", ev)
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
