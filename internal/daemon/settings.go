package daemon

import (
	"log/slog"
	"sync/atomic"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// WhitelistSource lists stored whitelist entries by category.
type WhitelistSource interface {
	ListWhitelist(category domain.WhitelistCategory) ([]domain.WhitelistEntry, error)
}

// SettingsStore serves the live settings snapshot and the stored
// whitelists. Update swaps the snapshot atomically.
type SettingsStore struct {
	cfg atomic.Pointer[Config]
	wl  WhitelistSource
	log *slog.Logger
}

var _ domain.SettingsProvider = (*SettingsStore)(nil)

// NewSettingsStore creates a store seeded with cfg.
func NewSettingsStore(cfg Config, wl WhitelistSource, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SettingsStore{wl: wl, log: logger.With("component", "settings")}
	s.Update(cfg)
	return s
}

// Update replaces the current configuration.
func (s *SettingsStore) Update(cfg Config) {
	c := cfg
	s.cfg.Store(&c)
}

// Config returns the current configuration.
func (s *SettingsStore) Config() Config {
	return *s.cfg.Load()
}

// Settings implements domain.SettingsProvider.
func (s *SettingsStore) Settings() domain.Settings {
	return s.cfg.Load().Settings()
}

// SuppressWhitelist implements domain.SettingsProvider.
func (s *SettingsStore) SuppressWhitelist() []domain.WhitelistEntry {
	return s.list(domain.CategorySuppress)
}

// BackgroundWhitelist implements domain.SettingsProvider.
func (s *SettingsStore) BackgroundWhitelist() []domain.WhitelistEntry {
	return s.list(domain.CategoryBackground)
}

func (s *SettingsStore) list(category domain.WhitelistCategory) []domain.WhitelistEntry {
	if s.wl == nil {
		return nil
	}
	entries, err := s.wl.ListWhitelist(category)
	if err != nil {
		s.log.Warn("whitelist read failed, using empty list", "category", category, "err", err)
		return nil
	}
	return entries
}
