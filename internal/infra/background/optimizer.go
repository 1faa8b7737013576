// Package background restricts background execution of third-party
// packages through app-ops and restores it on shutdown.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

const (
	batchSize       = 100
	cmdListPackages = "pm list packages -3"
	packagePrefix   = "package:"
	appop           = "RUN_ANY_IN_BACKGROUND"
)

// Optimizer tracks which packages it restricted so RestoreAll only
// undoes its own changes.
type Optimizer struct {
	exec domain.Executor
	log  *slog.Logger

	mu         sync.Mutex
	restricted map[string]struct{}
}

// New creates an optimizer.
func New(exec domain.Executor, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		exec:       exec,
		log:        logger.With("component", "background"),
		restricted: make(map[string]struct{}),
	}
}

// Packages lists installed third-party packages.
func (o *Optimizer) Packages(ctx context.Context) ([]string, domain.Result) {
	res := o.exec.Execute(ctx, cmdListPackages)
	if !res.Success {
		err := fmt.Errorf("list packages: %w", res.Err)
		o.log.Warn("package listing failed", "kind", domain.KindCommandFailure, "err", err)
		return nil, domain.Failure(domain.KindCommandFailure, err)
	}
	var pkgs []string
	for _, line := range res.Lines {
		if name, ok := strings.CutPrefix(line, packagePrefix); ok && name != "" {
			pkgs = append(pkgs, name)
		}
	}
	return pkgs, domain.Success()
}

// OptimizeAll denies background execution to every third-party package
// not matched by the whitelist. Returns how many packages were restricted.
func (o *Optimizer) OptimizeAll(ctx context.Context, whitelist []domain.WhitelistEntry) (int, domain.Result) {
	pkgs, res := o.Packages(ctx)
	if !res.OK {
		return 0, res
	}

	var targets []string
	for _, p := range pkgs {
		if !domain.AnyMatches(whitelist, p) {
			targets = append(targets, p)
		}
	}

	done, r := o.apply(ctx, targets, "ignore")
	o.mu.Lock()
	for _, p := range done {
		o.restricted[p] = struct{}{}
	}
	count := len(o.restricted)
	o.mu.Unlock()

	metrics.BackgroundRestricted.Set(float64(count))
	o.log.Info("background optimization", "packages", len(pkgs), "restricted", len(done))
	return len(done), r
}

// RestoreAll re-allows background execution for every package this
// optimizer restricted.
func (o *Optimizer) RestoreAll(ctx context.Context) domain.Result {
	o.mu.Lock()
	pkgs := make([]string, 0, len(o.restricted))
	for p := range o.restricted {
		pkgs = append(pkgs, p)
	}
	o.mu.Unlock()
	sort.Strings(pkgs)

	done, r := o.apply(ctx, pkgs, "allow")
	o.mu.Lock()
	for _, p := range done {
		delete(o.restricted, p)
	}
	count := len(o.restricted)
	o.mu.Unlock()

	metrics.BackgroundRestricted.Set(float64(count))
	return r
}

// Restricted returns the packages currently restricted, sorted.
func (o *Optimizer) Restricted() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.restricted))
	for p := range o.restricted {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// apply sets the app-op mode for pkgs in batches and returns the packages
// whose batch succeeded.
func (o *Optimizer) apply(ctx context.Context, pkgs []string, mode string) ([]string, domain.Result) {
	var done []string
	failed := 0
	for start := 0; start < len(pkgs); start += batchSize {
		end := min(start+batchSize, len(pkgs))
		commands := make([]string, 0, end-start)
		for _, p := range pkgs[start:end] {
			commands = append(commands, fmt.Sprintf("cmd appops set %s %s %s 2>/dev/null || true", p, appop, mode))
		}
		if res := o.exec.ExecuteBatch(ctx, commands); !res.Success {
			failed++
			o.log.Warn("appops batch failed", "kind", domain.KindCommandFailure, "mode", mode, "err", res.Err)
			continue
		}
		done = append(done, pkgs[start:end]...)
	}
	if failed > 0 {
		return done, domain.Failure(domain.KindCommandFailure,
			fmt.Errorf("%w: %d appops batches (%s)", domain.ErrCommandFailed, failed, mode))
	}
	return done, domain.Success()
}
