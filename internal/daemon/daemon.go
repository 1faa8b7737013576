package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/deepsleep-project/deepsleep/internal/api"
	"github.com/deepsleep-project/deepsleep/internal/app/journal"
	"github.com/deepsleep-project/deepsleep/internal/app/stats"
	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/health"
	"github.com/deepsleep-project/deepsleep/internal/infra/screen"
	"github.com/deepsleep-project/deepsleep/internal/infra/sqlite"
	"github.com/deepsleep-project/deepsleep/internal/logging"
	"github.com/deepsleep-project/deepsleep/internal/orchestrator"
)

// Daemon is the deepsleep runtime. It wires together all services.
type Daemon struct {
	Config    Config
	SessionID string
	Log       *slog.Logger
	DB        *sqlite.DB
	Tools     *Toolkit

	Settings     *SettingsStore
	Stats        *stats.Service
	Journal      *journal.Journal
	Orchestrator *orchestrator.Orchestrator
	Health       *health.Checker
	Server       *api.Server

	logCloser io.Closer
	cancel    context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	dir := cfg.Storage.Dir
	if dir == "" {
		dir = deepsleepHome()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		Config:    cfg,
		SessionID: uuid.NewString(),
		DB:        db,
		logCloser: closer,
	}
	d.Log = logger.With("session", d.SessionID)
	d.Tools = NewToolkit(cfg, d.Log)
	d.Settings = NewSettingsStore(cfg, db, d.Log)
	d.Stats = stats.NewService(db, d.Log)
	d.Journal = journal.New(db, d.Log)

	d.Orchestrator = orchestrator.New(orchestrator.Config{
		ScreenOnInterval:  parseDuration(cfg.Tick.ScreenOn, 0),
		ScreenOffInterval: parseDuration(cfg.Tick.ScreenOff, 0),
		SuppressFloor:     parseDuration(cfg.Tick.SuppressFloor, 0),
		PoolSize:          cfg.Tick.PoolSize,
	}, orchestrator.Deps{
		Idle:       d.Tools.Idle,
		Suppressor: d.Tools.Suppressor,
		Scheduler:  d.Tools.Scheduler,
		PowerSaver: d.Tools.PowerSaver,
		Background: d.Tools.Background,
		Screen:     d.Tools.Screen,
		Settings:   d.Settings,
		Stats:      d.Stats,
		Status:     d.Journal,
		Logger:     d.Log,
	})

	d.Health = health.NewChecker(d.Tools.Shell, db, d.Tools.Idle, cfg.Settings().StatusCheckInterval, d.Log)

	d.Server = api.NewServer(api.Deps{
		Controller: d.Orchestrator,
		Stats:      d.Stats,
		Events:     d.Journal,
		Whitelist:  db,
		Health:     d.Health,
		PowerSaver: d.Tools.PowerSaver,
		Logger:     d.Log,
	})
	d.Server.EnableMetrics()

	return d, nil
}

// Serve starts the orchestrator and the background services, then blocks
// until a signal arrives, ctx ends or a service fails.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	if err := d.Orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := d.DB.SetMeta(sqlite.MetaMotionBackup, d.Orchestrator.MotionBackup()); err != nil {
		d.Log.Warn("persist motion backup", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if d.Config.Screen.Monitor {
		events := make(chan domain.ScreenEvent, 8)
		mon := screen.NewMonitor(d.Tools.Screen, parseDuration(d.Config.Screen.PollInterval, time.Second), d.Log)
		g.Go(func() error { mon.Run(gctx, events); return nil })
		g.Go(func() error { d.Orchestrator.Run(gctx, events); return nil })
	}
	if d.Config.Health.Enabled {
		g.Go(func() error { d.Health.Run(gctx); return nil })
	}

	watcher := NewConfigWatcher(ConfigPath(), d.reload, d.Log)
	g.Go(func() error {
		if err := watcher.Run(gctx); err != nil {
			d.Log.Warn("config watcher stopped", "err", err)
		}
		return nil
	})

	sched := cron.New()
	if _, err := sched.AddFunc(d.Config.Maintenance.Schedule, d.Maintain); err != nil {
		d.Log.Warn("maintenance job not scheduled", "schedule", d.Config.Maintenance.Schedule, "err", err)
	}
	sched.Start()

	var httpServer *http.Server
	if d.Config.API.Enabled {
		addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
		httpServer = &http.Server{
			Addr:         addr,
			Handler:      d.Server.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  2 * time.Minute,
		}
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
		fmt.Printf("deepsleep serving on http://%s\n", addr)
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			d.Log.Info("shutting down", "signal", sig.String())
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if httpServer != nil {
			_ = httpServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	err := g.Wait()
	<-sched.Stop().Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	d.Orchestrator.Stop(stopCtx)
	return err
}

// reload swaps in a new configuration from the watcher. Only the settings
// snapshot changes live; timing, shell and API changes need a restart.
func (d *Daemon) reload(cfg Config) {
	d.Settings.Update(cfg)
	d.Journal.Append("settings reloaded")
}

// Maintain prunes the event log past retention and logs a stats snapshot.
func (d *Daemon) Maintain() {
	now := time.Now()
	days := d.Config.Maintenance.EventRetentionDays
	if days > 0 {
		n, err := d.DB.PruneEvents(now.AddDate(0, 0, -days))
		if err != nil {
			d.Log.Warn("prune events", "err", err)
		} else if n > 0 {
			d.Log.Info("pruned events", "count", n, "retention_days", days)
		}
	}

	snap, err := d.Stats.Snapshot(now)
	if err != nil {
		d.Log.Warn("stats snapshot", "err", err)
		return
	}
	attrs := []any{"uptime", snap.Uptime, "enter_rate", snap.EnterRate, "recovery_rate", snap.RecoveryRate}
	for _, c := range domain.Counters() {
		attrs = append(attrs, c.String(), snap.Counters[c.String()])
	}
	d.Log.Info("daily stats", attrs...)
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
}
