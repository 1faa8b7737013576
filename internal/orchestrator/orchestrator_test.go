package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// ─── Screen-Off Handler ─────────────────────────────────────────────────────

func TestScreenOffDebounce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		h.o.HandleScreenOff(ctx)
	}

	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterStateChange); got != 1 {
		t.Errorf("state changes = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterEnterAttempt); got != 1 {
		t.Errorf("enter attempts = %d, want 1", got)
	}
	if got := h.suppressor.count(); got != 1 {
		t.Errorf("suppression passes = %d, want 1", got)
	}
}

func TestScreenOffAfterDebounceWindow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.o.HandleScreenOff(ctx)
	h.advance(3 * time.Second)
	h.o.HandleScreenOff(ctx)

	if got := h.idle.count("enter"); got != 2 {
		t.Errorf("ForceEnter calls = %d, want 2", got)
	}
}

func TestScreenOffSequence(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) {
		s.SchedulerEnabled = true
		s.PowerSaverOnSleep = true
	})

	h.o.HandleScreenOff(context.Background())

	snap := h.o.Status()
	if !snap.ForceMode {
		t.Error("force mode should be active")
	}
	if got := h.idle.count("disable_motion"); got != 1 {
		t.Errorf("motion disables = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterEnterSuccess); got != 1 {
		t.Errorf("enter successes = %d, want 1", got)
	}
	modes := h.scheduler.applied()
	if len(modes) != 1 || modes[0] != domain.ModeStandby {
		t.Errorf("modes = %v, want [standby]", modes)
	}
	if h.power.enables != 1 {
		t.Errorf("power saver enables = %d, want 1", h.power.enables)
	}
	if h.suppressor.oom != 800 {
		t.Errorf("oom = %d, want 800", h.suppressor.oom)
	}
	if !snap.LastSuppress.Equal(h.now()) {
		t.Errorf("last suppress = %v, want %v", snap.LastSuppress, h.now())
	}
	if snap.Mode != domain.ModeStandby {
		t.Errorf("mode = %q, want standby", snap.Mode)
	}
}

func TestScreenOffEntryFailureKeepsForceMode(t *testing.T) {
	h := newHarness()
	h.idle.enterFails = true

	h.o.HandleScreenOff(context.Background())

	if got := h.stats.get(domain.CounterEnterAttempt); got != 1 {
		t.Errorf("enter attempts = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterEnterSuccess); got != 0 {
		t.Errorf("enter successes = %d, want 0", got)
	}
	if !h.o.Status().ForceMode {
		t.Error("force mode should stay active so the tick can retry")
	}
}

func TestScreenOffLeavesModeWithoutAutoSwitch(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) {
		s.SchedulerEnabled = true
		s.AutoSwitch = false
	})

	h.o.HandleScreenOff(context.Background())

	if modes := h.scheduler.applied(); len(modes) != 0 {
		t.Errorf("modes = %v, want none", modes)
	}
}

func TestIdleHookDisabled(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.IdleHookEnabled = false })

	h.o.HandleScreenOff(context.Background())

	if got := h.idle.count("enter"); got != 0 {
		t.Errorf("ForceEnter calls = %d, want 0", got)
	}
	if h.o.Status().ForceMode {
		t.Error("force mode should stay inactive")
	}
	if got := h.suppressor.count(); got != 1 {
		t.Errorf("suppression passes = %d, want 1", got)
	}
}

func TestEntryDelayAbandonedWhenScreenOn(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.EntryDelay = 20 * time.Millisecond })
	h.screen.set(domain.ScreenOn)

	h.o.HandleScreenOff(context.Background())

	if got := h.idle.count("enter"); got != 0 {
		t.Errorf("ForceEnter calls = %d, want 0", got)
	}
	if h.o.Status().ForceMode {
		t.Error("force mode should stay inactive")
	}
	if got := h.suppressor.count(); got != 0 {
		t.Errorf("suppression passes = %d, want 0", got)
	}
}

func TestEntryDelayEntersWhenStillOff(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.EntryDelay = 20 * time.Millisecond })
	h.screen.set(domain.ScreenOff)

	h.o.HandleScreenOff(context.Background())

	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
	if !h.o.Status().ForceMode {
		t.Error("force mode should be active")
	}
}

// ─── Screen-On Handler ──────────────────────────────────────────────────────

func TestScreenOnSequence(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.SchedulerEnabled = true })
	ctx := context.Background()

	h.o.HandleScreenOff(ctx)
	h.o.HandleScreenOn(ctx)

	if h.o.Status().ForceMode {
		t.Error("force mode should be inactive")
	}
	if got := h.idle.count("step"); got != 1 {
		t.Errorf("Step calls = %d, want 1", got)
	}
	if got := h.idle.count("enable_motion"); got != 1 {
		t.Errorf("motion enables = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterExitSuccess); got != 1 {
		t.Errorf("exit successes = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterStateChange); got != 2 {
		t.Errorf("state changes = %d, want 2", got)
	}
	modes := h.scheduler.applied()
	if len(modes) != 2 || modes[1] != domain.ModeDaily {
		t.Errorf("modes = %v, want [standby daily]", modes)
	}
	if h.power.disables != 1 {
		t.Errorf("power saver disables = %d, want 1", h.power.disables)
	}
}

func TestScreenOnRefreshesIdleObservation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.o.HandleScreenOff(ctx)
	if got := h.o.Status().Idle; got != "IDLE" {
		t.Fatalf("idle after screen off = %q, want IDLE", got)
	}
	h.o.HandleScreenOn(ctx)

	if got := h.o.Status().Idle; got != "ACTIVE" {
		t.Errorf("idle after screen on = %q, want ACTIVE", got)
	}
}

// A screen-on handled while the screen-off handler is still entering idle
// must win: the device ends in the screen-on mode with power saver off.
func TestScreenOnOvertakesScreenOffTail(t *testing.T) {
	for _, tt := range []struct {
		name         string
		standbyDelay time.Duration
	}{
		{"slow entry", 0},
		{"slow entry and slow standby", 60 * time.Millisecond},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.settings.update(func(s *domain.Settings) {
				s.SchedulerEnabled = true
				s.PowerSaverOnSleep = true
			})
			h.idle.mu.Lock()
			h.idle.enterDelay = 100 * time.Millisecond
			h.idle.mu.Unlock()
			h.scheduler.delay = map[domain.SchedulerMode]time.Duration{domain.ModeStandby: tt.standbyDelay}
			ctx := context.Background()

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				h.o.HandleScreenOff(ctx)
			}()
			time.Sleep(20 * time.Millisecond)
			go func() {
				defer wg.Done()
				h.o.HandleScreenOn(ctx)
			}()
			wg.Wait()

			modes := h.scheduler.applied()
			if len(modes) == 0 || modes[len(modes)-1] != domain.ModeDaily {
				t.Errorf("modes applied = %v, want daily last", modes)
			}
			ops := h.power.history()
			if len(ops) == 0 || ops[len(ops)-1] != "disable" {
				t.Errorf("power ops = %v, want disable last", ops)
			}
			snap := h.o.Status()
			if snap.ForceMode {
				t.Error("force mode should be inactive")
			}
			if snap.Mode != domain.ModeDaily {
				t.Errorf("mode = %q, want daily", snap.Mode)
			}
		})
	}
}

func TestScreenOnReappliesManualMode(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) {
		s.SchedulerEnabled = true
		s.AutoSwitch = false
		s.SchedulerMode = domain.ModePerformance
	})

	h.o.HandleScreenOn(context.Background())

	modes := h.scheduler.applied()
	if len(modes) != 1 || modes[0] != domain.ModePerformance {
		t.Errorf("modes = %v, want [performance]", modes)
	}
}

func TestScreenOnDebounce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.o.HandleScreenOn(ctx)
	h.o.HandleScreenOn(ctx)

	if got := h.idle.count("step"); got != 1 {
		t.Errorf("Step calls = %d, want 1", got)
	}
}

// ─── Supervisory Tick ───────────────────────────────────────────────────────

func TestSupervisoryRecoversUnexpectedExit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.screen.set(domain.ScreenOff)
	h.o.HandleScreenOff(ctx)

	h.idle.setState(domain.StateActive)
	if !h.o.SupervisoryTick(ctx) {
		t.Fatal("expected an unexpected exit")
	}
	if got := h.idle.count("enter"); got != 2 {
		t.Errorf("ForceEnter calls = %d, want 2", got)
	}
	if got := h.stats.get(domain.CounterAutoExit); got != 1 {
		t.Errorf("auto exits = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterAutoExitRecovered); got != 1 {
		t.Errorf("recoveries = %d, want 1", got)
	}

	// Recovered: the next tick sees IDLE and does nothing.
	if h.o.SupervisoryTick(ctx) {
		t.Error("second tick should not detect an exit")
	}
	if got := h.idle.count("enter"); got != 2 {
		t.Errorf("ForceEnter calls = %d, want 2", got)
	}
}

func TestSupervisoryWithoutBlockExit(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.BlockExit = false })
	ctx := context.Background()
	h.screen.set(domain.ScreenOff)
	h.o.HandleScreenOff(ctx)
	h.idle.setState(domain.StateInactive)

	if !h.o.SupervisoryTick(ctx) {
		t.Fatal("expected an unexpected exit")
	}
	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterAutoExitRecovered); got != 0 {
		t.Errorf("recoveries = %d, want 0", got)
	}
	if got := h.idle.count("disable_motion"); got != 0 {
		t.Errorf("motion disables = %d, want 0", got)
	}
}

func TestSupervisoryIgnoresWithoutForceMode(t *testing.T) {
	h := newHarness()
	h.screen.set(domain.ScreenOff)

	if h.o.SupervisoryTick(context.Background()) {
		t.Error("no exit without force mode")
	}
	if got := h.idle.count("enter"); got != 0 {
		t.Errorf("ForceEnter calls = %d, want 0", got)
	}
}

func TestSupervisoryIgnoresScreenOn(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.o.HandleScreenOff(ctx)
	h.idle.setState(domain.StateActive)
	h.screen.set(domain.ScreenOn)

	if h.o.SupervisoryTick(ctx) {
		t.Error("no exit while the screen is on")
	}
}

func TestSupervisoryMaintenanceWindow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.screen.set(domain.ScreenOff)
	h.o.HandleScreenOff(ctx)
	h.idle.setState(domain.StateIdleMaintenance)

	if h.o.SupervisoryTick(ctx) {
		t.Error("maintenance window is not an exit")
	}
	if got := h.stats.get(domain.CounterMaintenance); got != 1 {
		t.Errorf("maintenance windows = %d, want 1", got)
	}
	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
}

func TestSupervisoryTickDuringEntry(t *testing.T) {
	h := newHarness()
	h.idle.enterDelay = 50 * time.Millisecond
	h.screen.set(domain.ScreenOff)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.o.HandleScreenOff(ctx)
	}()
	time.Sleep(10 * time.Millisecond)
	h.o.SupervisoryTick(ctx)
	wg.Wait()

	if got := h.stats.get(domain.CounterAutoExit); got != 0 {
		t.Errorf("auto exits = %d, want 0", got)
	}
	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
}

func TestSupervisoryPublishesStatus(t *testing.T) {
	h := newHarness()
	h.screen.set(domain.ScreenOff)
	h.idle.setState(domain.StateIdle)

	h.o.SupervisoryTick(context.Background())

	if got, want := h.status.current(), "息屏 | 深度睡眠"; got != want {
		t.Errorf("status = %q, want %q", got, want)
	}
}

// ─── Suppression Tick ───────────────────────────────────────────────────────

func TestSuppressionTickFloor(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) {
		s.SuppressMode = domain.SuppressAggressive
		s.SuppressInterval = time.Second
	})
	ctx := context.Background()

	if !h.o.SuppressionTick(ctx) {
		t.Fatal("first tick should run")
	}
	h.advance(5 * time.Second)
	if h.o.SuppressionTick(ctx) {
		t.Error("tick inside the floor should skip")
	}
	h.advance(5 * time.Second)
	if !h.o.SuppressionTick(ctx) {
		t.Error("tick at the floor should run")
	}
	if got := h.suppressor.count(); got != 2 {
		t.Errorf("suppression passes = %d, want 2", got)
	}
}

func TestSuppressionTickConservative(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if h.o.SuppressionTick(ctx) {
		t.Error("conservative mode should not suppress with the screen on")
	}
	h.screen.set(domain.ScreenOff)
	if !h.o.SuppressionTick(ctx) {
		t.Error("conservative mode should suppress with the screen off")
	}
}

func TestSuppressionTickDisabled(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) {
		s.SuppressEnabled = false
		s.SuppressMode = domain.SuppressAggressive
	})

	if h.o.SuppressionTick(context.Background()) {
		t.Error("disabled suppression should not run")
	}
}

func TestSuppressionTickRespectsHandlerPass(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.SuppressMode = domain.SuppressAggressive })
	ctx := context.Background()

	h.o.HandleScreenOff(ctx)
	h.advance(time.Second)
	if h.o.SuppressionTick(ctx) {
		t.Error("tick right after a handler pass should skip")
	}
	if got := h.suppressor.count(); got != 1 {
		t.Errorf("suppression passes = %d, want 1", got)
	}
}

// ─── Status Line ────────────────────────────────────────────────────────────

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		sess session
		want string
	}{
		{
			name: "screen on active",
			sess: session{screen: domain.ScreenOn, idle: domain.StateActive},
			want: "亮屏 | 活跃",
		},
		{
			name: "forced idle with mode",
			sess: session{
				screen: domain.ScreenOff, idle: domain.StateIdle, forceModeActive: true,
				currentMode: domain.ModeStandby, settings: domain.Settings{SchedulerEnabled: true},
			},
			want: "息屏 | 深度睡眠 | 待机模式 [强制]",
		},
		{
			name: "mode hidden when scheduler disabled",
			sess: session{
				screen: domain.ScreenOff, idle: domain.StateUnknown, forceModeActive: true,
				currentMode: domain.ModeStandby,
			},
			want: "息屏 | 其他 [强制]",
		},
		{
			name: "maintenance window",
			sess: session{screen: domain.ScreenOff, idle: domain.StateIdleMaintenance},
			want: "息屏 | 维护窗口",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newHarness().o
			o.sess = tt.sess
			if got := o.Status().Line; got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestStartWithScreenOffThenScreenOn(t *testing.T) {
	h := newHarness()
	h.settings.update(func(s *domain.Settings) { s.SchedulerEnabled = true })
	h.screen.set(domain.ScreenOff)
	ctx := context.Background()

	if err := h.o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := h.o.Status()
	if !snap.ForceMode {
		t.Error("force mode should be active after starting with the screen off")
	}
	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
	if snap.Mode != domain.ModeStandby {
		t.Errorf("mode = %q, want standby", snap.Mode)
	}
	if h.scheduler.globals != 1 {
		t.Errorf("global optimizations = %d, want 1", h.scheduler.globals)
	}
	if h.background.optimized != 1 {
		t.Errorf("background passes = %d, want 1", h.background.optimized)
	}
	if !h.stats.started.Equal(h.now()) {
		t.Errorf("service start = %v, want %v", h.stats.started, h.now())
	}

	h.screen.set(domain.ScreenOn)
	if !h.o.Notify(domain.EventScreenOn) {
		t.Fatal("Notify should accept events while running")
	}
	h.o.Stop(ctx)

	if got := h.idle.count("step"); got != 1 {
		t.Errorf("Step calls = %d, want 1", got)
	}
	modes := h.scheduler.applied()
	if last := modes[len(modes)-1]; last != domain.ModeDaily {
		t.Errorf("last mode = %q, want daily (all: %v)", last, modes)
	}
	if h.o.Status().ForceMode {
		t.Error("force mode should be inactive")
	}
}

func TestStartTwice(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if err := h.o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.o.Stop(ctx)

	if err := h.o.Start(ctx); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopShutdownSequence(t *testing.T) {
	h := newHarness()
	h.idle.motion = "disabled"
	ctx := context.Background()

	if err := h.o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.o.MotionBackup(); got != "disabled" {
		t.Errorf("motion backup = %q, want disabled", got)
	}
	h.o.HandleScreenOff(ctx)
	h.o.Stop(ctx)

	if h.o.Running() {
		t.Error("should not be running after Stop")
	}
	if got := h.idle.count("exit"); got != 1 {
		t.Errorf("ForceExit calls = %d, want 1", got)
	}
	if h.background.restore != 1 {
		t.Errorf("background restores = %d, want 1", h.background.restore)
	}
	if h.scheduler.restored != 1 {
		t.Errorf("scheduler restores = %d, want 1", h.scheduler.restored)
	}
	if h.idle.motion != "disabled" {
		t.Errorf("motion = %q, want disabled", h.idle.motion)
	}
	if h.o.Notify(domain.EventScreenOff) {
		t.Error("Notify after Stop should be rejected")
	}

	// Second Stop is a no-op.
	h.o.Stop(ctx)
	if got := h.idle.count("exit"); got != 1 {
		t.Errorf("ForceExit calls after second Stop = %d, want 1", got)
	}
}

func TestNotifyBurstIsDebounced(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if err := h.o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 8; i++ {
		h.o.Notify(domain.EventScreenOff)
	}
	h.o.Stop(ctx)

	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
	if got := h.stats.get(domain.CounterStateChange); got != 1 {
		t.Errorf("state changes = %d, want 1", got)
	}
}

func TestRunForwardsEvents(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if err := h.o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	events := make(chan domain.ScreenEvent, 2)
	events <- domain.EventScreenOff
	events <- domain.EventScreenOn
	close(events)
	h.o.Run(ctx, events)
	h.o.Stop(ctx)

	if got := h.idle.count("enter"); got != 1 {
		t.Errorf("ForceEnter calls = %d, want 1", got)
	}
	if got := h.idle.count("step"); got != 1 {
		t.Errorf("Step calls = %d, want 1", got)
	}
}

func TestApplyModeRecordsCurrent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if r := h.o.ApplyMode(ctx, domain.ModePerformance); !r.OK {
		t.Fatalf("ApplyMode failed: %v", r.Err)
	}
	if got := h.o.Status().Mode; got != domain.ModePerformance {
		t.Errorf("mode = %q, want performance", got)
	}
	if r := h.o.ApplyMode(ctx, "turbo"); r.OK || r.Kind != domain.KindConfigInvalid {
		t.Errorf("unknown mode result = %+v, want config_invalid", r)
	}
	if got := h.o.Status().Mode; got != domain.ModePerformance {
		t.Errorf("mode after rejected apply = %q, want performance", got)
	}
}
