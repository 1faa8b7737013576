package daemon

import (
	"log/slog"

	"github.com/deepsleep-project/deepsleep/internal/infra/autosleep"
	"github.com/deepsleep-project/deepsleep/internal/infra/background"
	"github.com/deepsleep-project/deepsleep/internal/infra/deviceidle"
	"github.com/deepsleep-project/deepsleep/internal/infra/powersaver"
	"github.com/deepsleep-project/deepsleep/internal/infra/screen"
	"github.com/deepsleep-project/deepsleep/internal/infra/shell"
	"github.com/deepsleep-project/deepsleep/internal/infra/suppress"
	"github.com/deepsleep-project/deepsleep/internal/infra/walt"
)

// Toolkit is the set of device controllers sharing one privileged executor.
// The daemon drives them through the orchestrator; one-shot CLI commands
// use them directly.
type Toolkit struct {
	Shell      *shell.Executor
	Idle       *deviceidle.Controller
	Suppressor *suppress.Suppressor
	Scheduler  *walt.Switcher
	PowerSaver *powersaver.Toggle
	Background *background.Optimizer
	Screen     *screen.Probe
	Autosleep  *autosleep.Controller
}

// NewToolkit builds every controller from cfg.
func NewToolkit(cfg Config, logger *slog.Logger) *Toolkit {
	if logger == nil {
		logger = slog.Default()
	}
	sh := shell.New(shell.Config{
		Shell:   cfg.Shell.Binary,
		UseRoot: cfg.Shell.UseRoot,
		Timeout: parseDuration(cfg.Shell.Timeout, shell.DefaultConfig().Timeout),
	}, logger)

	return &Toolkit{
		Shell:      sh,
		Idle:       deviceidle.New(sh, logger),
		Suppressor: suppress.New(sh, logger),
		Scheduler:  walt.New(sh, logger),
		PowerSaver: powersaver.New(sh, logger),
		Background: background.New(sh, logger),
		Screen:     screen.NewProbe(sh, logger),
		Autosleep:  autosleep.New(sh, autosleep.DefaultMarker, logger),
	}
}
