// Package suppress lowers the memory-kill priority of third-party
// processes by writing to /proc/<pid>/oom_score_adj.
package suppress

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

const (
	// BatchSize bounds how many writes go into one privileged invocation.
	BatchSize = 100

	// MinAppUID is the first UID assigned to third-party applications.
	// Anything below it is a system or core process and is never touched.
	MinAppUID = 10000

	cmdListPIDs   = "ls /proc"
	cmdUnsuppress = "for pid in /proc/[0-9]*; do echo 0 > $pid/oom_score_adj 2>/dev/null || true; done"
)

// Target is a process selected for adjustment.
type Target struct {
	PID  int
	UID  int
	Path string
}

// Suppressor enumerates processes through the executor and adjusts them.
type Suppressor struct {
	exec    domain.Executor
	log     *slog.Logger
	selfPID int
}

// New creates a suppressor that never targets the calling process.
func New(exec domain.Executor, logger *slog.Logger) *Suppressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suppressor{
		exec:    exec,
		log:     logger.With("component", "suppress"),
		selfPID: os.Getpid(),
	}
}

// Candidates lists the processes a suppression pass would adjust: every
// live PID except our own, owned by an application UID, whose executable
// path and base name match no whitelist entry.
func (s *Suppressor) Candidates(ctx context.Context, whitelist []domain.WhitelistEntry) ([]Target, domain.Result) {
	res := s.exec.Execute(ctx, cmdListPIDs)
	if !res.Success {
		err := fmt.Errorf("list processes: %w", res.Err)
		s.log.Warn("process enumeration failed", "kind", domain.KindCommandFailure, "err", err)
		return nil, domain.Failure(domain.KindCommandFailure, err)
	}

	var targets []Target
	for _, line := range res.Lines {
		for _, field := range strings.Fields(line) {
			pid, err := strconv.Atoi(field)
			if err != nil || pid <= 0 || pid == s.selfPID {
				continue
			}
			t, ok := s.inspect(ctx, pid)
			if !ok || t.UID < MinAppUID {
				continue
			}
			if domain.AnyMatches(whitelist, t.Path, path.Base(t.Path)) {
				continue
			}
			targets = append(targets, t)
		}
	}
	return targets, domain.Success()
}

// inspect reads the owner UID and executable path of pid. A process that
// exited in the meantime reports false.
func (s *Suppressor) inspect(ctx context.Context, pid int) (Target, bool) {
	status, ok := s.exec.ReadFile(ctx, fmt.Sprintf("/proc/%d/status", pid))
	if !ok {
		return Target{}, false
	}
	uid, ok := parseUID(status)
	if !ok {
		return Target{}, false
	}
	cmdline, ok := s.exec.ReadFile(ctx, fmt.Sprintf("/proc/%d/cmdline", pid))
	if !ok {
		return Target{}, false
	}
	exe, _, _ := strings.Cut(cmdline, "\x00")
	return Target{PID: pid, UID: uid, Path: strings.TrimSpace(exe)}, true
}

// parseUID returns the real UID from a /proc/<pid>/status body.
func parseUID(status string) (int, bool) {
	for _, line := range strings.Split(status, "\n") {
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		uid, err := strconv.Atoi(fields[1])
		return uid, err == nil
	}
	return 0, false
}

// Suppress writes oomValue to every candidate's oom_score_adj in batches
// of BatchSize. Per-process write failures are ignored; only a failed
// batch invocation is reported. Returns the number of processes targeted.
func (s *Suppressor) Suppress(ctx context.Context, oomValue int, whitelist []domain.WhitelistEntry) (int, domain.Result) {
	targets, res := s.Candidates(ctx, whitelist)
	if !res.OK {
		return 0, res
	}

	commands := make([]string, 0, len(targets))
	for _, t := range targets {
		commands = append(commands, fmt.Sprintf("echo %d > /proc/%d/oom_score_adj 2>/dev/null || true", oomValue, t.PID))
	}

	batches, failed := 0, 0
	for start := 0; start < len(commands); start += BatchSize {
		end := min(start+BatchSize, len(commands))
		batches++
		if r := s.exec.ExecuteBatch(ctx, commands[start:end]); !r.Success {
			failed++
			s.log.Warn("suppression batch failed", "kind", domain.KindCommandFailure, "from", start, "to", end, "err", r.Err)
		}
	}

	metrics.SuppressPasses.Inc()
	metrics.SuppressTargets.Set(float64(len(targets)))
	s.log.Info("suppression pass", "targets", len(targets), "oom", oomValue, "batches", batches, "failed_batches", failed)

	if failed > 0 {
		return len(targets), domain.Failure(domain.KindCommandFailure,
			fmt.Errorf("%w: %d of %d suppression batches", domain.ErrCommandFailed, failed, batches))
	}
	return len(targets), domain.Success()
}

// Unsuppress resets oom_score_adj to 0 for every process in one command.
func (s *Suppressor) Unsuppress(ctx context.Context) domain.Result {
	res := s.exec.Execute(ctx, cmdUnsuppress)
	if !res.Success {
		err := fmt.Errorf("unsuppress: %w", res.Err)
		s.log.Warn("unsuppress failed", "kind", domain.KindCommandFailure, "err", err)
		return domain.Failure(domain.KindCommandFailure, err)
	}
	metrics.SuppressTargets.Set(0)
	return domain.Success()
}
