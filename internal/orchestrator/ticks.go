package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// minSuppressWait keeps the suppression loop from spinning when the
// configured interval is zero.
const minSuppressWait = time.Second

// ─── Supervisory Tick ───────────────────────────────────────────────────────

// SupervisoryTick reads screen and idle state, recovers an unexpected idle
// exit while force-mode is active, and refreshes the status line.
// Recovery (re-forcing idle) only runs when BlockExit is set; otherwise the
// exit is counted and logged but left alone.
// It returns true when an unexpected exit was detected.
func (o *Orchestrator) SupervisoryTick(ctx context.Context) bool {
	settings := o.deps.Settings.Settings()

	o.mu.Lock()
	o.sess.settings = settings
	screen := o.deps.Screen.State(ctx)
	state, _ := o.deps.Idle.QueryState(ctx)
	o.sess.screen = screen
	o.sess.idle = state

	exited := o.sess.forceModeActive && screen == domain.ScreenOff && !state.Dozing()
	if exited {
		o.deps.Stats.Increment(domain.CounterAutoExit)
		o.deps.Status.Append(fmt.Sprintf("unexpected idle exit detected (%s)", state))
		if settings.BlockExit {
			if r := o.deps.Idle.ForceEnter(ctx); r.OK {
				o.sess.idle = domain.StateIdle
				o.deps.Stats.Increment(domain.CounterAutoExitRecovered)
				o.deps.Status.Append("deep idle recovered")
			} else {
				o.log.Warn("idle recovery failed", "kind", r.Kind)
			}
		}
	}
	o.mu.Unlock()

	o.publishStatus()
	if state == domain.StateIdleMaintenance {
		o.deps.Stats.Increment(domain.CounterMaintenance)
	}
	return exited
}

// superviseLoop runs SupervisoryTick at the screen-dependent interval.
func (o *Orchestrator) superviseLoop(ctx context.Context) {
	timer := time.NewTimer(o.superviseInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.SupervisoryTick(ctx)
			timer.Reset(o.superviseInterval())
		}
	}
}

func (o *Orchestrator) superviseInterval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.screen == domain.ScreenOff {
		return o.cfg.ScreenOffInterval
	}
	return o.cfg.ScreenOnInterval
}

// ─── Suppression Tick ───────────────────────────────────────────────────────

// SuppressionTick runs one suppression pass unless the floor since the last
// pass has not elapsed or the mode does not call for one. Aggressive mode
// always suppresses; conservative mode only while the screen is off.
// It returns true when a pass ran.
func (o *Orchestrator) SuppressionTick(ctx context.Context) bool {
	settings := o.deps.Settings.Settings()
	if !settings.SuppressEnabled {
		return false
	}

	o.mu.Lock()
	at := o.now()
	if !o.sess.lastSuppressAt.IsZero() && at.Sub(o.sess.lastSuppressAt) < o.cfg.SuppressFloor {
		o.mu.Unlock()
		return false
	}
	run := settings.SuppressMode == domain.SuppressAggressive
	if !run {
		run = o.deps.Screen.State(ctx) == domain.ScreenOff
	}
	if run {
		o.sess.lastSuppressAt = at
	}
	o.mu.Unlock()

	if !run {
		return false
	}
	o.suppress(ctx, settings)
	return true
}

// suppressLoop runs SuppressionTick at the configured interval. The interval
// is re-read each cycle so a reload takes effect without a restart.
func (o *Orchestrator) suppressLoop(ctx context.Context) {
	timer := time.NewTimer(o.suppressInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.SuppressionTick(ctx)
			timer.Reset(o.suppressInterval())
		}
	}
}

func (o *Orchestrator) suppressInterval() time.Duration {
	d := o.deps.Settings.Settings().SuppressInterval
	if d < minSuppressWait {
		d = minSuppressWait
	}
	return d
}
