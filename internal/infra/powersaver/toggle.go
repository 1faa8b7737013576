// Package powersaver flips the system-wide battery saver and the
// adaptive-battery settings.
package powersaver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

const (
	cmdEnable  = "settings put global low_power 1"
	cmdDisable = "settings put global low_power 0"
	cmdQuery   = "settings get global low_power"
)

var aggressiveBatch = []string{
	"settings put global low_power 1 2>/dev/null",
	"settings put global adaptive_battery_management_enabled 1 2>/dev/null",
	"cmd power set-adaptive-battery-enabled true 2>/dev/null",
}

var restoreBatch = []string{
	"settings put global low_power 0 2>/dev/null",
	"settings put global adaptive_battery_management_enabled 0 2>/dev/null",
	"cmd power set-adaptive-battery-enabled false 2>/dev/null",
}

// Toggle controls the power-saver flag through the executor.
type Toggle struct {
	exec domain.Executor
	log  *slog.Logger
}

// New creates a toggle.
func New(exec domain.Executor, logger *slog.Logger) *Toggle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toggle{exec: exec, log: logger.With("component", "powersaver")}
}

// Enable turns power saver on.
func (t *Toggle) Enable(ctx context.Context) domain.Result {
	return t.run(ctx, cmdEnable)
}

// Disable turns power saver off.
func (t *Toggle) Disable(ctx context.Context) domain.Result {
	return t.run(ctx, cmdDisable)
}

// IsEnabled reports whether any output line is exactly "1".
func (t *Toggle) IsEnabled(ctx context.Context) bool {
	res := t.exec.Execute(ctx, cmdQuery)
	if !res.Success {
		t.log.Warn("power saver query failed", "kind", domain.KindCommandFailure, "err", res.Err)
		return false
	}
	for _, line := range res.Lines {
		if strings.TrimSpace(line) == "1" {
			return true
		}
	}
	return false
}

// EnableAggressiveMode turns on power saver and adaptive battery together.
// It succeeds only if the whole batch does.
func (t *Toggle) EnableAggressiveMode(ctx context.Context) domain.Result {
	return t.batch(ctx, "aggressive mode", aggressiveBatch)
}

// RestoreDefaults reverts EnableAggressiveMode.
func (t *Toggle) RestoreDefaults(ctx context.Context) domain.Result {
	return t.batch(ctx, "restore defaults", restoreBatch)
}

func (t *Toggle) run(ctx context.Context, command string) domain.Result {
	res := t.exec.Execute(ctx, command)
	if res.Success {
		return domain.Success()
	}
	err := fmt.Errorf("%s: %w", command, res.Err)
	t.log.Warn("power saver command failed", "kind", domain.KindCommandFailure, "err", err)
	return domain.Failure(domain.KindCommandFailure, err)
}

func (t *Toggle) batch(ctx context.Context, what string, commands []string) domain.Result {
	res := t.exec.ExecuteBatch(ctx, commands)
	if res.Success {
		return domain.Success()
	}
	err := fmt.Errorf("%s: %w", what, res.Err)
	t.log.Warn("power saver batch failed", "kind", domain.KindCommandFailure, "err", err)
	return domain.Failure(domain.KindCommandFailure, err)
}
