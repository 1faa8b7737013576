// Package stats is the orchestrator's statistics sink. Every increment is
// persisted to SQLite and mirrored to Prometheus; storage failures are
// logged and never reach the caller.
package stats

import (
	"log/slog"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
	"github.com/deepsleep-project/deepsleep/internal/infra/sqlite"
)

// Service records counters and the service start time.
type Service struct {
	db  *sqlite.DB
	log *slog.Logger
}

var _ domain.StatsSink = (*Service)(nil)

// NewService creates a stats service.
func NewService(db *sqlite.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, log: logger.With("component", "stats")}
}

// Increment bumps one counter.
func (s *Service) Increment(c domain.Counter) {
	metrics.Events.WithLabelValues(c.String()).Inc()
	if err := s.db.IncrementStat(c.String()); err != nil {
		s.log.Warn("persist counter", "counter", c, "err", err)
	}
}

// RecordServiceStart stores when the orchestrator started.
func (s *Service) RecordServiceStart(t time.Time) {
	if err := s.db.SetServiceStart(t); err != nil {
		s.log.Warn("persist service start", "err", err)
	}
}

// Snapshot is the counters plus derived figures shown by status surfaces.
type Snapshot struct {
	Counters     map[string]int64 `json:"counters"`
	ServiceStart time.Time        `json:"service_start"`
	Uptime       string           `json:"uptime,omitempty"`
	EnterRate    float64          `json:"enter_success_rate"`
	RecoveryRate float64          `json:"recovery_rate"`
}

// Snapshot reads every counter and computes success rates.
func (s *Service) Snapshot(now time.Time) (Snapshot, error) {
	counters, err := s.db.Stats()
	if err != nil {
		return Snapshot{}, err
	}
	start, err := s.db.ServiceStart()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Counters:     counters,
		ServiceStart: start,
		EnterRate:    ratio(counters[domain.CounterEnterSuccess.String()], counters[domain.CounterEnterAttempt.String()]),
		RecoveryRate: ratio(counters[domain.CounterAutoExitRecovered.String()], counters[domain.CounterAutoExit.String()]),
	}
	if !start.IsZero() {
		snap.Uptime = now.Sub(start).Truncate(time.Second).String()
	}
	return snap, nil
}

// Reset zeroes every counter.
func (s *Service) Reset() error {
	return s.db.ResetStats()
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
