// Package journal is the orchestrator's status and log sink: it keeps the
// latest status line in memory and appends log lines to the event table.
package journal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/sqlite"
)

// Journal implements domain.StatusSink.
type Journal struct {
	db  *sqlite.DB
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	status  string
	updated time.Time
}

var _ domain.StatusSink = (*Journal)(nil)

// New creates a journal. A nil db keeps events in the log only.
func New(db *sqlite.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, log: logger.With("component", "journal"), now: time.Now}
}

// SetStatus replaces the current status line.
func (j *Journal) SetStatus(status string) {
	j.mu.Lock()
	changed := status != j.status
	j.status = status
	j.updated = j.now()
	j.mu.Unlock()

	if changed {
		j.log.Debug("status", "line", status)
	}
}

// Status returns the current status line and when it was set.
func (j *Journal) Status() (string, time.Time) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status, j.updated
}

// Append records one log line.
func (j *Journal) Append(message string) {
	j.log.Info(message)
	if j.db == nil {
		return
	}
	if err := j.db.AppendEvent(j.now(), message); err != nil {
		j.log.Warn("persist event", "err", err)
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]domain.Event, error) {
	if j.db == nil {
		return nil, nil
	}
	return j.db.RecentEvents(limit)
}
