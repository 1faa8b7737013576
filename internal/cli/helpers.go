package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/api"
	"github.com/deepsleep-project/deepsleep/internal/daemon"
	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/sqlite"
	"github.com/deepsleep-project/deepsleep/internal/logging"
)

// cliLogger logs warnings and worse to stderr so one-shot commands stay quiet.
func cliLogger(cfg daemon.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil || level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(logging.NewHandler(os.Stderr, "text", level))
}

// openStore opens the daemon's database for direct reads and edits.
func openStore(cfg daemon.Config) (*sqlite.DB, error) {
	dir := cfg.Storage.Dir
	if dir == "" {
		dir = daemon.Home()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// loadTools reads the config and builds the device controllers.
func loadTools() (daemon.Config, *daemon.Toolkit, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, daemon.NewToolkit(cfg, cliLogger(cfg)), nil
}

func newClient(cfg daemon.Config) *api.Client {
	return api.NewClient(cfg.API.Host, cfg.API.Port)
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// daemonDown reports whether err means no daemon answered.
func daemonDown(err error) bool {
	return errors.Is(err, api.ErrUnreachable)
}

// resultErr turns a failed controller result into an error.
func resultErr(what string, res domain.Result) error {
	if res.OK {
		return nil
	}
	if res.Err == nil {
		return fmt.Errorf("%s: %s", what, res.Kind)
	}
	return fmt.Errorf("%s: %w", what, res.Err)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
