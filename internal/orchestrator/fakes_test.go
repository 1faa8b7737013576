package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

type fakeIdle struct {
	mu         sync.Mutex
	state      domain.IdleState
	enterFails bool
	enterDelay time.Duration
	calls      map[string]int
	motion     string
}

func newFakeIdle() *fakeIdle {
	return &fakeIdle{state: domain.StateActive, calls: map[string]int{}, motion: "enabled"}
}

func (f *fakeIdle) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeIdle) setState(s domain.IdleState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeIdle) inc(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeIdle) QueryState(context.Context) (domain.IdleState, domain.Result) {
	f.inc("query")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, domain.Success()
}

func (f *fakeIdle) ForceEnter(context.Context) domain.Result {
	f.inc("enter")
	f.mu.Lock()
	delay, fails := f.enterDelay, f.enterFails
	f.mu.Unlock()
	time.Sleep(delay)
	if fails {
		return domain.Failure(domain.KindStateUnknown, domain.ErrTransitionIncomplete)
	}
	f.setState(domain.StateIdle)
	return domain.Success()
}

func (f *fakeIdle) ForceExit(context.Context) domain.Result {
	f.inc("exit")
	f.setState(domain.StateActive)
	return domain.Success()
}

func (f *fakeIdle) Step(context.Context) domain.Result {
	f.inc("step")
	f.setState(domain.StateActive)
	return domain.Success()
}

func (f *fakeIdle) DisableMotionDetection(context.Context) domain.Result {
	f.inc("disable_motion")
	f.mu.Lock()
	f.motion = "disabled"
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakeIdle) EnableMotionDetection(context.Context) domain.Result {
	f.inc("enable_motion")
	f.mu.Lock()
	f.motion = "enabled"
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakeIdle) BackupMotionState(context.Context) string {
	f.inc("backup_motion")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.motion
}

func (f *fakeIdle) RestoreMotionState(_ context.Context, token string) domain.Result {
	f.inc("restore_motion")
	f.mu.Lock()
	f.motion = token
	f.mu.Unlock()
	return domain.Success()
}

type fakeScheduler struct {
	mu       sync.Mutex
	modes    []domain.SchedulerMode
	globals  int
	restored int
	delay    map[domain.SchedulerMode]time.Duration
}

func (f *fakeScheduler) ApplyMode(_ context.Context, m domain.SchedulerMode) domain.Result {
	if !m.Valid() {
		return domain.Failure(domain.KindConfigInvalid, domain.ErrUnknownMode)
	}
	f.mu.Lock()
	d := f.delay[m]
	f.mu.Unlock()
	time.Sleep(d)
	f.mu.Lock()
	f.modes = append(f.modes, m)
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakeScheduler) ApplyGlobalOptimizations(context.Context) domain.Result {
	f.mu.Lock()
	f.globals++
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakeScheduler) RestoreDefault(context.Context) domain.Result {
	f.mu.Lock()
	f.restored++
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakeScheduler) applied() []domain.SchedulerMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SchedulerMode(nil), f.modes...)
}

type fakeSuppressor struct {
	mu    sync.Mutex
	calls int
	oom   int
}

func (f *fakeSuppressor) Suppress(_ context.Context, oom int, _ []domain.WhitelistEntry) (int, domain.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.oom = oom
	return 3, domain.Success()
}

func (f *fakeSuppressor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePower struct {
	mu                sync.Mutex
	enables, disables int
	ops               []string
}

func (f *fakePower) Enable(context.Context) domain.Result {
	f.mu.Lock()
	f.enables++
	f.ops = append(f.ops, "enable")
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakePower) Disable(context.Context) domain.Result {
	f.mu.Lock()
	f.disables++
	f.ops = append(f.ops, "disable")
	f.mu.Unlock()
	return domain.Success()
}

func (f *fakePower) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type fakeBackground struct {
	mu                 sync.Mutex
	optimized, restore int
}

func (f *fakeBackground) OptimizeAll(context.Context, []domain.WhitelistEntry) (int, domain.Result) {
	f.mu.Lock()
	f.optimized++
	f.mu.Unlock()
	return 2, domain.Success()
}

func (f *fakeBackground) RestoreAll(context.Context) domain.Result {
	f.mu.Lock()
	f.restore++
	f.mu.Unlock()
	return domain.Success()
}

type fakeScreen struct {
	mu    sync.Mutex
	state domain.ScreenState
}

func (f *fakeScreen) State(context.Context) domain.ScreenState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeScreen) set(s domain.ScreenState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

type fakeSettings struct {
	mu sync.Mutex
	s  domain.Settings
}

func (f *fakeSettings) Settings() domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fakeSettings) update(fn func(*domain.Settings)) {
	f.mu.Lock()
	fn(&f.s)
	f.mu.Unlock()
}

func (f *fakeSettings) SuppressWhitelist() []domain.WhitelistEntry   { return nil }
func (f *fakeSettings) BackgroundWhitelist() []domain.WhitelistEntry { return nil }

type fakeStats struct {
	mu      sync.Mutex
	counts  map[domain.Counter]int
	started time.Time
}

func (f *fakeStats) Increment(c domain.Counter) {
	f.mu.Lock()
	f.counts[c]++
	f.mu.Unlock()
}

func (f *fakeStats) RecordServiceStart(t time.Time) {
	f.mu.Lock()
	f.started = t
	f.mu.Unlock()
}

func (f *fakeStats) get(c domain.Counter) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[c]
}

type fakeStatus struct {
	mu   sync.Mutex
	line string
	log  []string
}

func (f *fakeStatus) SetStatus(s string) {
	f.mu.Lock()
	f.line = s
	f.mu.Unlock()
}

func (f *fakeStatus) Append(m string) {
	f.mu.Lock()
	f.log = append(f.log, m)
	f.mu.Unlock()
}

func (f *fakeStatus) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line
}

// ─── Harness ────────────────────────────────────────────────────────────────

type harness struct {
	o          *Orchestrator
	idle       *fakeIdle
	scheduler  *fakeScheduler
	suppressor *fakeSuppressor
	power      *fakePower
	background *fakeBackground
	screen     *fakeScreen
	settings   *fakeSettings
	stats      *fakeStats
	status     *fakeStatus

	clockMu sync.Mutex
	clock   time.Time
}

func newHarness() *harness {
	h := &harness{
		idle:       newFakeIdle(),
		scheduler:  &fakeScheduler{},
		suppressor: &fakeSuppressor{},
		power:      &fakePower{},
		background: &fakeBackground{},
		screen:     &fakeScreen{state: domain.ScreenOn},
		settings:   &fakeSettings{s: immediateEntry()},
		stats:      &fakeStats{counts: map[domain.Counter]int{}},
		status:     &fakeStatus{},
		clock:      time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC),
	}
	h.o = New(Config{ScreenOnInterval: time.Hour, ScreenOffInterval: time.Hour}, Deps{
		Idle:       h.idle,
		Suppressor: h.suppressor,
		Scheduler:  h.scheduler,
		PowerSaver: h.power,
		Background: h.background,
		Screen:     h.screen,
		Settings:   h.settings,
		Stats:      h.stats,
		Status:     h.status,
	})
	h.o.now = h.now
	return h
}

// immediateEntry is the default settings without the entry delay, so
// screen-off tests enter idle synchronously.
func immediateEntry() domain.Settings {
	s := domain.DefaultSettings()
	s.EntryDelay = 0
	return s
}

func (h *harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	h.clock = h.clock.Add(d)
	h.clockMu.Unlock()
}
