package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

// ─── Screen Handlers ────────────────────────────────────────────────────────

// HandleScreenOff runs the screen-off sequence: debounce, enter force-mode,
// then the optional scheduler, power-saver and suppression steps. The tail
// stops as soon as a later screen event has been handled.
func (o *Orchestrator) HandleScreenOff(ctx context.Context) {
	settings := o.deps.Settings.Settings()

	o.mu.Lock()
	o.sess.settings = settings
	at := o.now()
	if debounced(o.sess.lastScreenOffAt, at, settings.DebounceInterval) {
		o.mu.Unlock()
		o.log.Debug("screen off debounced")
		return
	}
	o.sess.lastScreenOffAt = at
	o.sess.screen = domain.ScreenOff
	o.sess.cycle++
	cycle := o.sess.cycle
	o.deps.Stats.Increment(domain.CounterStateChange)

	if settings.IdleHookEnabled && settings.EntryDelay <= 0 {
		o.enterForceModeLocked(ctx, settings)
	}
	o.mu.Unlock()

	switch {
	case !settings.IdleHookEnabled:
		o.deps.Status.Append("screen off, idle hook disabled")
	case settings.EntryDelay > 0 && !o.delayedEntry(ctx, settings, cycle):
		o.publishStatus()
		return
	}

	o.tailMu.Lock()
	defer o.tailMu.Unlock()
	defer o.publishStatus()

	if settings.SchedulerEnabled && settings.AutoSwitch {
		if o.overtaken(cycle) {
			return
		}
		o.applyMode(ctx, settings.ScreenOffMode)
	}
	if settings.PowerSaverOnSleep {
		if o.overtaken(cycle) {
			return
		}
		if r := o.deps.PowerSaver.Enable(ctx); !r.OK {
			o.log.Warn("power saver enable failed", "kind", r.Kind)
		}
	}
	if settings.SuppressEnabled {
		if o.overtaken(cycle) {
			return
		}
		o.mu.Lock()
		o.sess.lastSuppressAt = o.now()
		o.mu.Unlock()
		o.suppress(ctx, settings)
	}
}

// overtaken reports whether a screen event newer than cycle has been
// handled, and records that the rest of the screen-off tail was skipped.
func (o *Orchestrator) overtaken(cycle uint64) bool {
	o.mu.Lock()
	stale := o.sess.cycle != cycle
	o.mu.Unlock()
	if stale {
		o.deps.Status.Append("screen turned on, remaining screen-off steps skipped")
		o.log.Debug("screen-off tail overtaken", "cycle", cycle)
	}
	return stale
}

// delayedEntry waits out the entry delay, re-probes the screen and enters
// force-mode only if it is still off and no other screen event was handled
// since cycle.
func (o *Orchestrator) delayedEntry(ctx context.Context, settings domain.Settings, cycle uint64) bool {
	if err := sleep(ctx, settings.EntryDelay); err != nil {
		return false
	}
	screen := o.deps.Screen.State(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if screen != domain.ScreenOff || o.sess.cycle != cycle {
		o.deps.Status.Append("screen turned on during entry delay, idle entry abandoned")
		return false
	}
	o.enterForceModeLocked(ctx, settings)
	return true
}

// HandleScreenOn runs the screen-on sequence: debounce, exit force-mode,
// step out of idle, then the optional scheduler and power-saver steps.
func (o *Orchestrator) HandleScreenOn(ctx context.Context) {
	settings := o.deps.Settings.Settings()

	o.mu.Lock()
	o.sess.settings = settings
	at := o.now()
	if debounced(o.sess.lastScreenOnAt, at, settings.DebounceInterval) {
		o.mu.Unlock()
		o.log.Debug("screen on debounced")
		return
	}
	o.sess.lastScreenOnAt = at
	o.sess.screen = domain.ScreenOn
	o.sess.cycle++
	o.deps.Stats.Increment(domain.CounterStateChange)

	o.exitForceModeLocked(ctx, settings)
	o.deps.Stats.Increment(domain.CounterExitAttempt)
	if r := o.deps.Idle.Step(ctx); r.OK {
		o.deps.Stats.Increment(domain.CounterExitSuccess)
		o.deps.Status.Append("left deep idle")
	} else {
		o.deps.Status.Append(fmt.Sprintf("idle step failed (%s)", r.Kind))
	}
	// The step moved the state machine; the entry-time observation is stale.
	if state, qr := o.deps.Idle.QueryState(ctx); qr.OK {
		o.sess.idle = state
	} else {
		o.sess.idle = domain.StateUnknown
	}
	o.mu.Unlock()

	o.tailMu.Lock()
	defer o.tailMu.Unlock()

	if settings.SchedulerEnabled {
		mode := settings.SchedulerMode
		if settings.AutoSwitch {
			mode = settings.ScreenOnMode
		}
		o.applyMode(ctx, mode)
	}
	if settings.PowerSaverOffOnWake {
		if r := o.deps.PowerSaver.Disable(ctx); !r.OK {
			o.log.Warn("power saver disable failed", "kind", r.Kind)
		}
	}
	o.publishStatus()
}

// debounced reports whether at falls inside window of the previous handled
// event. A zero previous time never debounces.
func debounced(prev, at time.Time, window time.Duration) bool {
	return !prev.IsZero() && at.Sub(prev) < window
}

// ─── Force Mode ─────────────────────────────────────────────────────────────

// enterForceModeLocked sets the flag and attempts entry while o.mu is held,
// so the supervisory tick never observes the flag without the attempt.
// Motion detection is only disabled when BlockExit is set.
func (o *Orchestrator) enterForceModeLocked(ctx context.Context, settings domain.Settings) bool {
	o.sess.forceModeActive = true
	metrics.ForceModeActive.Set(1)
	if settings.BlockExit {
		if r := o.deps.Idle.DisableMotionDetection(ctx); !r.OK {
			o.log.Warn("disable motion detection failed", "kind", r.Kind)
		}
	}

	o.deps.Stats.Increment(domain.CounterEnterAttempt)
	r := o.deps.Idle.ForceEnter(ctx)
	if r.OK {
		o.sess.idle = domain.StateIdle
		o.deps.Stats.Increment(domain.CounterEnterSuccess)
		o.deps.Status.Append("entered deep idle")
	} else {
		o.deps.Status.Append(fmt.Sprintf("deep idle entry failed (%s)", r.Kind))
		o.log.Warn("force enter failed", "kind", r.Kind, "error", r.Err)
	}
	return r.OK
}

func (o *Orchestrator) exitForceModeLocked(ctx context.Context, settings domain.Settings) {
	o.sess.forceModeActive = false
	metrics.ForceModeActive.Set(0)
	if settings.BlockExit {
		if r := o.deps.Idle.EnableMotionDetection(ctx); !r.OK {
			o.log.Warn("enable motion detection failed", "kind", r.Kind)
		}
	}
}

// ─── Shared Steps ───────────────────────────────────────────────────────────

// applyMode applies mode and records it as current on success.
func (o *Orchestrator) applyMode(ctx context.Context, mode domain.SchedulerMode) domain.Result {
	r := o.deps.Scheduler.ApplyMode(ctx, mode)
	if !r.OK {
		o.log.Warn("scheduler mode not applied", "mode", mode, "kind", r.Kind)
		return r
	}
	o.mu.Lock()
	o.sess.currentMode = mode
	o.mu.Unlock()
	return r
}

// suppress runs one suppression pass with the current whitelist.
func (o *Orchestrator) suppress(ctx context.Context, settings domain.Settings) {
	n, r := o.deps.Suppressor.Suppress(ctx, settings.SuppressOOMValue, o.deps.Settings.SuppressWhitelist())
	if !r.OK {
		o.log.Warn("suppression pass incomplete", "adjusted", n, "kind", r.Kind)
		return
	}
	o.log.Debug("suppression pass", "adjusted", n, "oom", settings.SuppressOOMValue)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
