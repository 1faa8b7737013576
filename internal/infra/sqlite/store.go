package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// Metadata keys.
const (
	MetaServiceStart = "service_start"
	MetaMotionBackup = "motion_backup"
)

// ─── Statistics ─────────────────────────────────────────────────────────────

// IncrementStat adds one to the named counter, creating it on first use.
func (d *DB) IncrementStat(name string) error {
	_, err := d.db.Exec(
		`INSERT INTO stats (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		name,
	)
	return err
}

// Stats returns every counter. Counters never incremented read as zero.
func (d *DB) Stats() (map[string]int64, error) {
	out := make(map[string]int64)
	for _, c := range domain.Counters() {
		out[c.String()] = 0
	}

	rows, err := d.db.Query(`SELECT name, value FROM stats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// ResetStats zeroes every counter.
func (d *DB) ResetStats() error {
	_, err := d.db.Exec(`DELETE FROM stats`)
	return err
}

// ─── Metadata ───────────────────────────────────────────────────────────────

// SetMeta stores a key-value pair.
func (d *DB) SetMeta(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetMeta returns the value for key, or "" if unset.
func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetServiceStart records when the orchestrator last started.
func (d *DB) SetServiceStart(t time.Time) error {
	return d.SetMeta(MetaServiceStart, strconv.FormatInt(t.Unix(), 10))
}

// ServiceStart returns the last recorded start time (zero if never).
func (d *DB) ServiceStart() (time.Time, error) {
	v, err := d.GetMeta(MetaServiceStart)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse service start: %w", err)
	}
	return time.Unix(sec, 0), nil
}

// ─── Whitelist ──────────────────────────────────────────────────────────────

// AddWhitelist stores an entry and returns it as persisted. Adding an
// identifier that already exists in the category updates its note.
func (d *DB) AddWhitelist(e domain.WhitelistEntry) (domain.WhitelistEntry, error) {
	e.Identifier = strings.TrimSpace(e.Identifier)
	if e.Identifier == "" {
		return e, domain.ErrEmptyIdentifier
	}
	cat, err := domain.ParseCategory(string(e.Category))
	if err != nil {
		return e, err
	}
	e.Category = cat
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = d.db.Exec(
		`INSERT INTO whitelist (id, identifier, note, category, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(identifier, category) DO UPDATE SET note=excluded.note`,
		e.ID, e.Identifier, e.Note, string(e.Category), e.CreatedAt.Unix(),
	)
	if err != nil {
		return e, err
	}

	row := d.db.QueryRow(
		`SELECT id, identifier, note, category, created_at
		 FROM whitelist WHERE identifier = ? AND category = ?`,
		e.Identifier, string(e.Category),
	)
	stored, err := scanWhitelist(row)
	if err != nil {
		return e, err
	}
	return *stored, nil
}

// RemoveWhitelist deletes an entry by ID.
func (d *DB) RemoveWhitelist(id string) error {
	result, err := d.db.Exec(`DELETE FROM whitelist WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrWhitelistEntryNotFound
	}
	return nil
}

// ListWhitelist returns entries of one category, or all entries when
// category is empty, oldest first.
func (d *DB) ListWhitelist(category domain.WhitelistCategory) ([]domain.WhitelistEntry, error) {
	query := `SELECT id, identifier, note, category, created_at FROM whitelist`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY created_at, identifier`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WhitelistEntry
	for rows.Next() {
		e, err := scanWhitelist(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ─── Events ─────────────────────────────────────────────────────────────────

// AppendEvent adds a line to the event log.
func (d *DB) AppendEvent(ts time.Time, message string) error {
	_, err := d.db.Exec(`INSERT INTO events (ts, message) VALUES (?, ?)`, ts.UnixMilli(), message)
	return err
}

// RecentEvents returns up to limit events, newest first.
func (d *DB) RecentEvents(limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(`SELECT id, ts, message FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Message); err != nil {
			return nil, err
		}
		e.Time = time.UnixMilli(ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneEvents deletes events older than before and reports how many.
func (d *DB) PruneEvents(before time.Time) (int64, error) {
	result, err := d.db.Exec(`DELETE FROM events WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWhitelist(s scanner) (*domain.WhitelistEntry, error) {
	var e domain.WhitelistEntry
	var category string
	var created int64
	if err := s.Scan(&e.ID, &e.Identifier, &e.Note, &category, &created); err != nil {
		return nil, err
	}
	e.Category = domain.WhitelistCategory(category)
	e.CreatedAt = time.Unix(created, 0)
	return &e, nil
}
