// Package autosleep limits kernel wakeup sources by switching off
// /sys/power/autosleep while a deep-sleep hold is active, and reports
// the kernel's suspend bookkeeping.
package autosleep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/shell"
)

const (
	autosleepPath   = "/sys/power/autosleep"
	powerStatePath  = "/sys/power/state"
	wakeupCountPath = "/sys/power/wakeup_count"

	// DefaultMarker records that a hold is in place across daemon restarts.
	DefaultMarker = "/data/local/tmp/deep_sleep_status"
)

// Info is a snapshot of kernel suspend state.
type Info struct {
	PowerStates string `json:"power_states"`
	WakeupCount string `json:"wakeup_count"`
	Held        bool   `json:"held"`
}

// Controller blocks and restores autosleep.
type Controller struct {
	exec   domain.Executor
	log    *slog.Logger
	marker string
}

// New creates a controller. An empty marker uses DefaultMarker.
func New(exec domain.Executor, marker string, logger *slog.Logger) *Controller {
	if marker == "" {
		marker = DefaultMarker
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{exec: exec, marker: marker, log: logger.With("component", "autosleep")}
}

// Block disables autosleep and writes the hold marker.
func (c *Controller) Block(ctx context.Context) domain.Result {
	return c.batch(ctx, "block autosleep", []string{
		fmt.Sprintf("echo 0 > %s 2>/dev/null || true", autosleepPath),
		fmt.Sprintf("echo active > %s", shell.Quote(c.marker)),
	})
}

// Restore re-enables autosleep and removes the hold marker.
func (c *Controller) Restore(ctx context.Context) domain.Result {
	return c.batch(ctx, "restore autosleep", []string{
		fmt.Sprintf("echo 1 > %s 2>/dev/null || true", autosleepPath),
		fmt.Sprintf("rm -f %s", shell.Quote(c.marker)),
	})
}

// Held reports whether the hold marker is present.
func (c *Controller) Held(ctx context.Context) bool {
	content, ok := c.exec.ReadFile(ctx, c.marker)
	return ok && strings.TrimSpace(content) == "active"
}

// Info reads the supported power states and the wakeup count.
func (c *Controller) Info(ctx context.Context) Info {
	info := Info{Held: c.Held(ctx)}
	if s, ok := c.exec.ReadFile(ctx, powerStatePath); ok {
		info.PowerStates = strings.TrimSpace(s)
	}
	if s, ok := c.exec.ReadFile(ctx, wakeupCountPath); ok {
		info.WakeupCount = strings.TrimSpace(s)
	}
	return info
}

func (c *Controller) batch(ctx context.Context, what string, commands []string) domain.Result {
	res := c.exec.ExecuteBatch(ctx, commands)
	if res.Success {
		c.log.Info(what)
		return domain.Success()
	}
	err := fmt.Errorf("%s: %w", what, res.Err)
	c.log.Warn("autosleep command failed", "kind", domain.KindCommandFailure, "err", err)
	return domain.Failure(domain.KindCommandFailure, err)
}
