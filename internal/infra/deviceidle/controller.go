// Package deviceidle drives the OS idle-mode (Doze) state machine through
// `dumpsys deviceidle`. Nothing here returns an error to the caller: every
// failure becomes a domain.Result with a classified kind plus a log record.
package deviceidle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

const (
	cmdDump          = "dumpsys deviceidle"
	cmdForceIdle     = "dumpsys deviceidle force-idle"
	cmdUnforce       = "dumpsys deviceidle unforce"
	cmdStep          = "dumpsys deviceidle step"
	cmdDisableMotion = "dumpsys deviceidle disable motion"
	cmdEnableMotion  = "dumpsys deviceidle enable motion"
	cmdMotionEnabled = "dumpsys deviceidle enabled motion 2>&1"
	cmdEnableDeep    = "dumpsys deviceidle enable deep"

	stateKey = "mState="
)

// Motion-detection backup tokens.
const (
	MotionEnabled  = "enabled"
	MotionDisabled = "disabled"
)

// Controller queries and mutates idle mode through the executor.
type Controller struct {
	exec domain.Executor
	log  *slog.Logger

	// EnterSettle and ExitSettle are how long to wait after a force or
	// unforce directive before re-querying. Transitions are asynchronous.
	EnterSettle time.Duration
	ExitSettle  time.Duration
}

// New creates a controller with the standard settle delays.
func New(exec domain.Executor, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		exec:        exec,
		log:         logger.With("component", "deviceidle"),
		EnterSettle: 3 * time.Second,
		ExitSettle:  2 * time.Second,
	}
}

// QueryState parses the first mState= line of the idle-mode dump.
// Failures and unrecognized states yield StateUnknown.
func (c *Controller) QueryState(ctx context.Context) (domain.IdleState, domain.Result) {
	res := c.exec.Execute(ctx, cmdDump)
	if !res.Success {
		err := fmt.Errorf("query idle state: %w", res.Err)
		c.log.Warn("idle state query failed", "kind", domain.KindCommandFailure, "err", err)
		return domain.StateUnknown, domain.Failure(domain.KindCommandFailure, err)
	}

	for _, line := range res.Lines {
		token, ok := stateToken(line)
		if !ok {
			continue
		}
		state := domain.ParseIdleState(token)
		if state == domain.StateUnknown {
			err := fmt.Errorf("%w: %s%s", domain.ErrStateUnknown, stateKey, token)
			c.log.Debug("unrecognized idle state", "token", token)
			return state, domain.Failure(domain.KindStateUnknown, err)
		}
		return state, domain.Success()
	}

	err := fmt.Errorf("%w: no %s line in dump", domain.ErrStateUnknown, stateKey)
	c.log.Warn("idle state missing from dump", "kind", domain.KindStateUnknown)
	return domain.StateUnknown, domain.Failure(domain.KindStateUnknown, err)
}

// stateToken extracts the value following mState= up to the next
// separator.
func stateToken(line string) (string, bool) {
	i := strings.Index(line, stateKey)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(stateKey):]
	if end := strings.IndexAny(rest, " \t,}"); end >= 0 {
		rest = rest[:end]
	}
	return rest, true
}

// ForceEnter forces idle mode and succeeds iff the state is IDLE after
// the settle delay.
func (c *Controller) ForceEnter(ctx context.Context) domain.Result {
	return c.transition(ctx, cmdForceIdle, c.EnterSettle, domain.StateIdle)
}

// ForceExit unforces idle mode and succeeds iff the state is ACTIVE after
// the settle delay.
func (c *Controller) ForceExit(ctx context.Context) domain.Result {
	return c.transition(ctx, cmdUnforce, c.ExitSettle, domain.StateActive)
}

func (c *Controller) transition(ctx context.Context, command string, settle time.Duration, want domain.IdleState) domain.Result {
	if r := c.run(ctx, command); !r.OK {
		return r
	}
	if err := sleep(ctx, settle); err != nil {
		return domain.Failure(domain.KindStateUnknown, fmt.Errorf("settle after %q: %w", command, err))
	}

	got, r := c.QueryState(ctx)
	if got == want {
		return domain.Success()
	}
	if !r.OK {
		return r
	}
	err := fmt.Errorf("%w: want %s, got %s", domain.ErrTransitionIncomplete, want, got)
	c.log.Info("idle transition incomplete", "directive", command, "want", want, "got", got)
	return domain.Failure(domain.KindStateUnknown, err)
}

// Step advances the state machine one step. Success reflects the command
// only, not the resulting state.
func (c *Controller) Step(ctx context.Context) domain.Result {
	return c.run(ctx, cmdStep)
}

// DisableMotionDetection stops device motion from ending idle mode.
func (c *Controller) DisableMotionDetection(ctx context.Context) domain.Result {
	return c.run(ctx, cmdDisableMotion)
}

// EnableMotionDetection lets device motion end idle mode again.
func (c *Controller) EnableMotionDetection(ctx context.Context) domain.Result {
	return c.run(ctx, cmdEnableMotion)
}

// EnableDeepIdle re-enables the deep idle state machine in case something
// switched it off.
func (c *Controller) EnableDeepIdle(ctx context.Context) domain.Result {
	return c.run(ctx, cmdEnableDeep)
}

// BackupMotionState captures motion-detection enablement as a token.
// Any query failure yields MotionEnabled so a later restore never leaves
// detection switched off by accident.
func (c *Controller) BackupMotionState(ctx context.Context) string {
	res := c.exec.Execute(ctx, cmdMotionEnabled)
	if !res.Success {
		c.log.Warn("motion state query failed, assuming enabled", "kind", domain.KindCommandFailure, "err", res.Err)
		return MotionEnabled
	}
	out := strings.ToLower(strings.TrimSpace(strings.Join(res.Lines, " ")))
	if strings.Contains(out, "false") || out == "0" {
		return MotionDisabled
	}
	return MotionEnabled
}

// RestoreMotionState re-applies a token from BackupMotionState.
// Unknown tokens restore to enabled.
func (c *Controller) RestoreMotionState(ctx context.Context, token string) domain.Result {
	if token == MotionDisabled {
		return c.DisableMotionDetection(ctx)
	}
	return c.EnableMotionDetection(ctx)
}

func (c *Controller) run(ctx context.Context, command string) domain.Result {
	res := c.exec.Execute(ctx, command)
	if res.Success {
		return domain.Success()
	}
	err := fmt.Errorf("%s: %w", command, res.Err)
	c.log.Warn("idle command failed", "kind", domain.KindCommandFailure, "err", err)
	return domain.Failure(domain.KindCommandFailure, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
