// Package orchestrator is the deep-idle control loop. It reacts to screen
// events, holds the device in idle mode while the screen is off, recovers
// from unexpected exits on a supervisory tick, and runs periodic process
// suppression.
//
// All mutable session state lives in one struct guarded by one mutex.
// Handler invocations run on a bounded errgroup; the two ticks run as
// long-lived goroutines in a second group so Stop can cancel and join them.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

// ─── Collaborators ──────────────────────────────────────────────────────────

// IdleController drives the OS idle-mode state machine.
type IdleController interface {
	QueryState(ctx context.Context) (domain.IdleState, domain.Result)
	ForceEnter(ctx context.Context) domain.Result
	ForceExit(ctx context.Context) domain.Result
	Step(ctx context.Context) domain.Result
	DisableMotionDetection(ctx context.Context) domain.Result
	EnableMotionDetection(ctx context.Context) domain.Result
	BackupMotionState(ctx context.Context) string
	RestoreMotionState(ctx context.Context, token string) domain.Result
}

// ProcessSuppressor lowers the priority of non-whitelisted app processes.
type ProcessSuppressor interface {
	Suppress(ctx context.Context, oomValue int, whitelist []domain.WhitelistEntry) (int, domain.Result)
}

// SchedulerSwitcher applies named scheduler bundles.
type SchedulerSwitcher interface {
	ApplyMode(ctx context.Context, mode domain.SchedulerMode) domain.Result
	ApplyGlobalOptimizations(ctx context.Context) domain.Result
	RestoreDefault(ctx context.Context) domain.Result
}

// PowerSaver toggles the system power-saver flag.
type PowerSaver interface {
	Enable(ctx context.Context) domain.Result
	Disable(ctx context.Context) domain.Result
}

// BackgroundOptimizer restricts and restores background execution.
type BackgroundOptimizer interface {
	OptimizeAll(ctx context.Context, whitelist []domain.WhitelistEntry) (int, domain.Result)
	RestoreAll(ctx context.Context) domain.Result
}

// ScreenReader reports the current screen state.
type ScreenReader interface {
	State(ctx context.Context) domain.ScreenState
}

// Deps are the collaborators an Orchestrator coordinates.
type Deps struct {
	Idle       IdleController
	Suppressor ProcessSuppressor
	Scheduler  SchedulerSwitcher
	PowerSaver PowerSaver
	Background BackgroundOptimizer
	Screen     ScreenReader
	Settings   domain.SettingsProvider
	Stats      domain.StatsSink
	Status     domain.StatusSink
	Logger     *slog.Logger
}

// ─── Configuration ──────────────────────────────────────────────────────────

// Config holds loop timing that is not user-facing.
type Config struct {
	ScreenOnInterval  time.Duration // supervisory tick while the screen is on
	ScreenOffInterval time.Duration // supervisory tick while the screen is off
	SuppressFloor     time.Duration // minimum gap between suppression passes
	PoolSize          int           // concurrent handler invocations
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		ScreenOnInterval:  15 * time.Second,
		ScreenOffInterval: 2 * time.Second,
		SuppressFloor:     10 * time.Second,
		PoolSize:          4,
	}
}

// ─── Session ────────────────────────────────────────────────────────────────

// session is the mutable state shared by handlers and ticks.
type session struct {
	forceModeActive bool
	lastScreenOffAt time.Time
	lastScreenOnAt  time.Time
	lastSuppressAt  time.Time
	settings        domain.Settings
	motionBackup    string
	// cycle counts handled screen events; a tail whose cycle is stale
	// has been overtaken by a later event.
	cycle uint64

	// Last observations, for the status surface and tick pacing.
	screen      domain.ScreenState
	idle        domain.IdleState
	currentMode domain.SchedulerMode
	startedAt   time.Time
}

// Orchestrator owns one session for its lifetime.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu   sync.Mutex
	sess session

	// tailMu orders the unlocked tails of the screen handlers.
	// Lock order is tailMu before mu.
	tailMu sync.Mutex

	life     sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	ticks    *errgroup.Group
	handlers *errgroup.Group
	hctx     context.Context
}

// New creates an orchestrator. Zero Config fields take DefaultConfig values.
func New(cfg Config, deps Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.ScreenOnInterval <= 0 {
		cfg.ScreenOnInterval = def.ScreenOnInterval
	}
	if cfg.ScreenOffInterval <= 0 {
		cfg.ScreenOffInterval = def.ScreenOffInterval
	}
	if cfg.SuppressFloor <= 0 {
		cfg.SuppressFloor = def.SuppressFloor
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		log:  logger.With("component", "orchestrator"),
		now:  time.Now,
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

// Start runs the startup sequence and launches both ticks. Ticks stop when
// ctx ends or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.life.Lock()
	defer o.life.Unlock()
	if o.running {
		return domain.ErrAlreadyRunning
	}

	started := o.now()
	o.deps.Stats.RecordServiceStart(started)

	token := o.deps.Idle.BackupMotionState(ctx)
	if r := o.deps.Scheduler.ApplyGlobalOptimizations(ctx); !r.OK {
		o.log.Warn("global scheduler optimizations failed", "kind", r.Kind)
	}
	settings := o.deps.Settings.Settings()

	o.mu.Lock()
	o.sess = session{
		settings:     settings,
		motionBackup: token,
		screen:       domain.ScreenOn,
		startedAt:    started,
	}
	o.mu.Unlock()

	if settings.SchedulerEnabled {
		o.applyMode(ctx, settings.SchedulerMode)
	}
	if settings.BackgroundEnabled {
		if n, r := o.deps.Background.OptimizeAll(ctx, o.deps.Settings.BackgroundWhitelist()); r.OK {
			o.deps.Status.Append(fmt.Sprintf("background optimization restricted %d packages", n))
		}
	}

	if o.deps.Screen.State(ctx) == domain.ScreenOff {
		o.mu.Lock()
		o.sess.screen = domain.ScreenOff
		o.sess.lastScreenOffAt = started
		if settings.IdleHookEnabled {
			o.enterForceModeLocked(ctx, settings)
		}
		o.mu.Unlock()
		if settings.IdleHookEnabled && settings.SchedulerEnabled && settings.AutoSwitch {
			o.applyMode(ctx, settings.ScreenOffMode)
		}
	}
	o.publishStatus()

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.ticks = &errgroup.Group{}
	o.ticks.Go(func() error { o.superviseLoop(runCtx); return nil })
	o.ticks.Go(func() error { o.suppressLoop(runCtx); return nil })

	o.handlers = &errgroup.Group{}
	o.handlers.SetLimit(o.cfg.PoolSize)
	o.hctx = context.WithoutCancel(ctx)
	o.running = true

	o.deps.Status.Append("service started")
	o.log.Info("orchestrator started", "motion_backup", token, "pool", o.cfg.PoolSize)
	return nil
}

// Stop cancels both ticks, lets in-flight handlers finish, then runs the
// shutdown sequence. It is a no-op if the orchestrator is not running.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.life.Lock()
	defer o.life.Unlock()
	if !o.running {
		return
	}
	o.running = false

	o.cancel()
	_ = o.ticks.Wait()
	_ = o.handlers.Wait()

	o.mu.Lock()
	settings := o.sess.settings
	o.exitForceModeLocked(ctx, settings)
	token := o.sess.motionBackup
	o.mu.Unlock()

	if r := o.deps.Idle.ForceExit(ctx); !r.OK {
		o.log.Info("idle mode not active after unforce", "kind", r.Kind)
	}
	if r := o.deps.Background.RestoreAll(ctx); !r.OK {
		o.log.Warn("background restore failed", "kind", r.Kind)
	}
	o.deps.Scheduler.RestoreDefault(ctx)
	if r := o.deps.Idle.RestoreMotionState(ctx, token); !r.OK {
		o.log.Warn("motion detection restore failed", "token", token, "kind", r.Kind)
	}

	o.deps.Status.Append("service stopped")
	o.log.Info("orchestrator stopped")
}

// Running reports whether Start has run and Stop has not.
func (o *Orchestrator) Running() bool {
	o.life.RLock()
	defer o.life.RUnlock()
	return o.running
}

// MotionBackup returns the motion-detection token captured at startup.
func (o *Orchestrator) MotionBackup() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess.motionBackup
}

// ─── Event Dispatch ─────────────────────────────────────────────────────────

// Notify schedules the handler for ev on the bounded pool. It blocks while
// the pool is full and returns false when the orchestrator is not running.
func (o *Orchestrator) Notify(ev domain.ScreenEvent) bool {
	o.life.RLock()
	defer o.life.RUnlock()
	if !o.running {
		return false
	}
	ctx := o.hctx
	o.handlers.Go(func() error {
		switch ev {
		case domain.EventScreenOff:
			o.HandleScreenOff(ctx)
		case domain.EventScreenOn:
			o.HandleScreenOn(ctx)
		}
		return nil
	})
	return true
}

// Run forwards events to Notify until ctx ends or events closes.
func (o *Orchestrator) Run(ctx context.Context, events <-chan domain.ScreenEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.Notify(ev)
		}
	}
}

// ApplyMode applies a scheduler mode on request, outside the screen cycle.
func (o *Orchestrator) ApplyMode(ctx context.Context, mode domain.SchedulerMode) domain.Result {
	r := o.applyMode(ctx, mode)
	o.publishStatus()
	return r
}

// ─── Status ─────────────────────────────────────────────────────────────────

// StatusSnapshot is a point-in-time copy of the session for status surfaces.
type StatusSnapshot struct {
	Line          string               `json:"line"`
	Screen        string               `json:"screen"`
	Idle          string               `json:"idle"`
	Mode          domain.SchedulerMode `json:"mode,omitempty"`
	ForceMode     bool                 `json:"force_mode"`
	MotionBackup  string               `json:"motion_backup"`
	LastScreenOff time.Time            `json:"last_screen_off"`
	LastScreenOn  time.Time            `json:"last_screen_on"`
	LastSuppress  time.Time            `json:"last_suppress"`
	StartedAt     time.Time            `json:"started_at"`
}

// Status returns the current session view.
func (o *Orchestrator) Status() StatusSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sess
	return StatusSnapshot{
		Line:          o.statusLineLocked(),
		Screen:        s.screen.String(),
		Idle:          s.idle.String(),
		Mode:          s.currentMode,
		ForceMode:     s.forceModeActive,
		MotionBackup:  s.motionBackup,
		LastScreenOff: s.lastScreenOffAt,
		LastScreenOn:  s.lastScreenOnAt,
		LastSuppress:  s.lastSuppressAt,
		StartedAt:     s.startedAt,
	}
}

// StatusLine renders "<screen> | <idle>[ | <mode>][ [强制]]".
func (o *Orchestrator) StatusLine() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLineLocked()
}

func (o *Orchestrator) statusLineLocked() string {
	s := o.sess
	mode := s.currentMode
	if !s.settings.SchedulerEnabled {
		mode = ""
	}
	return FormatStatus(s.screen, s.idle, mode, s.forceModeActive)
}

// FormatStatus renders "<screen> | <idle>[ | <mode>][ [强制]]". An empty
// mode is left out.
func FormatStatus(screen domain.ScreenState, idle domain.IdleState, mode domain.SchedulerMode, force bool) string {
	var b strings.Builder
	b.WriteString(screen.Label())
	b.WriteString(" | ")
	b.WriteString(idle.Label())
	if mode != "" {
		b.WriteString(" | ")
		b.WriteString(mode.Label())
	}
	if force {
		b.WriteString(" [强制]")
	}
	return b.String()
}

func (o *Orchestrator) publishStatus() {
	o.mu.Lock()
	line := o.statusLineLocked()
	force, screen, idle := o.sess.forceModeActive, o.sess.screen, o.sess.idle
	o.mu.Unlock()

	metrics.ForceModeActive.Set(metrics.BoolGauge(force))
	metrics.ScreenOff.Set(metrics.BoolGauge(screen == domain.ScreenOff))
	metrics.IdleState.Set(float64(idle))
	o.deps.Status.SetStatus(line)
}
