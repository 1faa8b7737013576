package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/metrics"
)

// ConfigWatcher reloads the config file when it changes on disk.
type ConfigWatcher struct {
	path     string
	onChange func(Config)
	log      *slog.Logger
}

// NewConfigWatcher watches path and calls onChange with every valid new
// configuration. Invalid files are logged and skipped.
func NewConfigWatcher(path string, onChange func(Config), logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigWatcher{
		path:     path,
		onChange: onChange,
		log:      logger.With("component", "config_watcher"),
	}
}

// Run watches the config directory until ctx ends. The directory is
// watched rather than the file so editors that replace the file are seen.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.log.Info("watching config", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfigFile(w.path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("invalid").Inc()
		w.log.Warn("config reload rejected, keeping previous settings", "kind", domain.KindConfigInvalid, "err", err)
		return
	}
	metrics.ConfigReloads.WithLabelValues("ok").Inc()
	w.log.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}
