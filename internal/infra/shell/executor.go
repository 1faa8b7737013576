// Package shell implements the privileged command executor.
//
// Every command line runs as `<shell> -c <script>` under a per-call timeout.
// On a rooted device the shell is `su`; tests and unprivileged runs use `sh`.
// A batch is one invocation with the commands joined by newlines, so it
// fails only when that invocation does.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

// Config controls how commands are launched.
type Config struct {
	Shell   string        // privileged shell binary, e.g. "su"
	UseRoot bool          // false runs through plain "sh"
	Timeout time.Duration // per invocation
}

// DefaultConfig targets a rooted device.
func DefaultConfig() Config {
	return Config{
		Shell:   "su",
		UseRoot: true,
		Timeout: 10 * time.Second,
	}
}

// Executor runs command lines through a shell. It is safe for concurrent use.
type Executor struct {
	cfg Config
	log *slog.Logger
}

var _ domain.Executor = (*Executor)(nil)

// New creates an executor. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Shell == "" {
		cfg.Shell = "su"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, log: logger.With("component", "shell")}
}

// Execute runs a single command line.
func (e *Executor) Execute(ctx context.Context, command string) domain.CommandResult {
	_, res := e.run(ctx, "execute", command)
	return res
}

// ExecuteBatch runs all commands in one shell invocation.
func (e *Executor) ExecuteBatch(ctx context.Context, commands []string) domain.CommandResult {
	if len(commands) == 0 {
		return domain.CommandResult{Success: true}
	}
	_, res := e.run(ctx, "batch", strings.Join(commands, "\n"))
	return res
}

// ReadFile reads path directly when the daemon can, and through the
// privileged shell otherwise. Content is returned verbatim (NUL bytes
// included) so callers can parse descriptors such as /proc/<pid>/cmdline.
func (e *Executor) ReadFile(ctx context.Context, path string) (string, bool) {
	start := time.Now()
	if data, err := os.ReadFile(path); err == nil {
		metrics.ShellCommandDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
		return string(data), true
	}
	out, res := e.run(ctx, "read", "cat "+Quote(path))
	if !res.Success {
		return "", false
	}
	return out, true
}

// HasRoot reports whether commands run as uid 0.
func (e *Executor) HasRoot(ctx context.Context) bool {
	res := e.Execute(ctx, "id")
	if !res.Success {
		return false
	}
	for _, line := range res.Lines {
		if strings.Contains(line, "uid=0") {
			return true
		}
	}
	return false
}

func (e *Executor) binary() string {
	if e.cfg.UseRoot {
		return e.cfg.Shell
	}
	return "sh"
}

// run executes script and returns raw stdout alongside the parsed result.
func (e *Executor) run(ctx context.Context, kind, script string) (string, domain.CommandResult) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.binary(), "-c", script)
	configureProcess(cmd)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ShellCommandDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	res := domain.CommandResult{
		Success: err == nil,
		Lines:   SplitLines(stdout.String()),
	}
	if err != nil {
		metrics.ShellCommandFailures.WithLabelValues(kind).Inc()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", e.cfg.Timeout)
		}
		res.Err = fmt.Errorf("%w: %v", domain.ErrCommandFailed, err)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			res.Err = fmt.Errorf("%w: %s", res.Err, msg)
		}
		e.log.Debug("command failed", "kind", kind, "script", firstLine(script), "err", res.Err)
	}
	return stdout.String(), res
}

// SplitLines splits output into trimmed, non-empty lines.
func SplitLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Quote wraps s in single quotes for safe use in a shell command line.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
