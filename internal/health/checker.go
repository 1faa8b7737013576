// Package health provides periodic health checks with auto-recovery.
// Three checks run at the status-check interval: root_shell, sqlite and
// deviceidle.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// RootProber reports whether the privileged shell really runs as root.
type RootProber interface {
	HasRoot(ctx context.Context) bool
}

// Pinger is a store that can verify its connection.
type Pinger interface {
	Ping() error
}

// IdleQuerier reads and repairs the idle-mode state machine.
type IdleQuerier interface {
	QueryState(ctx context.Context) (domain.IdleState, domain.Result)
	EnableDeepIdle(ctx context.Context) domain.Result
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	log      *slog.Logger
}

// NewChecker creates a health checker with the standard checks.
func NewChecker(root RootProber, db Pinger, idle IdleQuerier, interval time.Duration, logger *slog.Logger) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		interval: interval,
		log:      logger.With("component", "health"),
		checks: []Check{
			{
				Name: "root_shell",
				CheckFn: func(ctx context.Context) error {
					if !root.HasRoot(ctx) {
						return domain.ErrNoPrivilege
					}
					return nil
				},
			},
			{
				Name: "sqlite",
				CheckFn: func(ctx context.Context) error {
					return db.Ping()
				},
			},
			{
				Name: "deviceidle",
				CheckFn: func(ctx context.Context) error {
					state, r := idle.QueryState(ctx)
					if state == domain.StateUnknown {
						if r.Err != nil {
							return r.Err
						}
						return domain.ErrStateUnknown
					}
					return nil
				},
				RecoverFn: func(ctx context.Context) error {
					if r := idle.EnableDeepIdle(ctx); !r.OK {
						return fmt.Errorf("enable deep idle: %w", r.Err)
					}
					return nil
				},
			},
		},
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

// RunOnce runs every check immediately and returns the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.runAll(ctx)
	return c.Statuses()
}

func (c *Checker) runAll(ctx context.Context) {
	log := c.log
	if log == nil {
		log = slog.Default()
	}
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			log.Warn("health check failed", "check", check.Name, "err", err)
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil && !errors.Is(rerr, context.Canceled) {
					log.Warn("health recovery failed", "check", check.Name, "err", rerr)
				}
			}
		} else {
			s.Healthy = true
		}
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(metrics.BoolGauge(s.Healthy))
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
