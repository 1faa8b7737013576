package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/api"
	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/infra/sqlite"
	"github.com/deepsleep-project/deepsleep/internal/orchestrator"
)

// runCLI executes the root command with a fresh data directory per test.
func runCLI(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DEEPSLEEP_HOME", home)

	wlListCategory = ""
	wlAddCategory = string(domain.CategorySuppress)
	wlNote = ""
	configForce = false
	statsReset = false
	eventsLimit = 20

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

// ─── Whitelist ──────────────────────────────────────────────────────────────

func TestWhitelistYAMLRoundTrip(t *testing.T) {
	entries := []domain.WhitelistEntry{
		{ID: "a", Identifier: "com.tencent.mm", Note: "chat", Category: domain.CategorySuppress},
		{ID: "b", Identifier: "com.android.phone", Category: domain.CategoryBackground},
	}
	var buf bytes.Buffer
	if err := encodeWhitelist(&buf, entries); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(buf.String(), "identifier: com.tencent.mm") {
		t.Errorf("yaml = %q", buf.String())
	}

	got, err := decodeWhitelist(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "" {
		t.Errorf("ID = %q, want cleared", got[0].ID)
	}
	if got[0].Identifier != "com.tencent.mm" || got[0].Note != "chat" || got[0].Category != domain.CategorySuppress {
		t.Errorf("entry[0] = %+v", got[0])
	}
	if got[1].Category != domain.CategoryBackground {
		t.Errorf("entry[1].Category = %q, want BACKGROUND", got[1].Category)
	}
}

func TestDecodeWhitelist_LowercaseCategory(t *testing.T) {
	got, err := decodeWhitelist(strings.NewReader("entries:\n  - identifier: foo\n    category: background\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Category != domain.CategoryBackground {
		t.Errorf("got = %+v", got)
	}
}

func TestDecodeWhitelist_InvalidCategory(t *testing.T) {
	_, err := decodeWhitelist(strings.NewReader("entries:\n  - identifier: foo\n    category: nope\n"))
	if !errors.Is(err, domain.ErrInvalidCategory) {
		t.Errorf("err = %v, want ErrInvalidCategory", err)
	}
}

func TestDecodeWhitelist_Empty(t *testing.T) {
	got, err := decodeWhitelist(strings.NewReader(""))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got = %+v, want none", got)
	}
}

func TestWhitelistCommands(t *testing.T) {
	home := t.TempDir()

	out, err := runCLI(t, home, "whitelist", "add", "com.tencent.mm")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Added com.tencent.mm (SUPPRESS)") {
		t.Errorf("add output = %q", out)
	}
	if _, err := runCLI(t, home, "whitelist", "add", "com.android.phone", "-c", "background"); err != nil {
		t.Fatalf("add background: %v", err)
	}

	out, err = runCLI(t, home, "whitelist", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "com.tencent.mm") || !strings.Contains(out, "com.android.phone") {
		t.Errorf("list output = %q", out)
	}

	exported := filepath.Join(t.TempDir(), "wl.yaml")
	if _, err := runCLI(t, home, "whitelist", "export", exported); err != nil {
		t.Fatalf("export: %v", err)
	}

	// Import the export into a fresh data directory.
	other := t.TempDir()
	out, err = runCLI(t, other, "whitelist", "import", exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 2 entries") {
		t.Errorf("import output = %q", out)
	}

	out, err = runCLI(t, other, "whitelist", "list", "-c", "BACKGROUND")
	if err != nil {
		t.Fatalf("list category: %v", err)
	}
	if !strings.Contains(out, "com.android.phone") || strings.Contains(out, "com.tencent.mm") {
		t.Errorf("filtered list = %q", out)
	}
}

func TestWhitelistRemove(t *testing.T) {
	home := t.TempDir()
	if _, err := runCLI(t, home, "whitelist", "add", "com.tencent.mm"); err != nil {
		t.Fatalf("add: %v", err)
	}

	db, err := sqlite.Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	entries, err := db.ListWhitelist("")
	db.Close()
	if err != nil || len(entries) != 1 {
		t.Fatalf("entries = %v, err = %v", entries, err)
	}

	if _, err := runCLI(t, home, "whitelist", "rm", entries[0].ID); err != nil {
		t.Fatalf("rm: %v", err)
	}
	out, err := runCLI(t, home, "whitelist", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No whitelist entries.") {
		t.Errorf("list after rm = %q", out)
	}

	if _, err := runCLI(t, home, "whitelist", "rm", "missing"); !errors.Is(err, domain.ErrWhitelistEntryNotFound) {
		t.Errorf("rm missing err = %v, want ErrWhitelistEntryNotFound", err)
	}
}

// ─── Config, Stats & Events ─────────────────────────────────────────────────

func TestConfigCommands(t *testing.T) {
	home := t.TempDir()

	out, err := runCLI(t, home, "config", "path")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	want := filepath.Join(home, "config.toml")
	if strings.TrimSpace(out) != want {
		t.Errorf("path = %q, want %q", strings.TrimSpace(out), want)
	}

	if _, err := runCLI(t, home, "config", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if _, err := runCLI(t, home, "config", "init"); err == nil {
		t.Error("second init should fail without --force")
	}

	out, err = runCLI(t, home, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "[api]") || !strings.Contains(out, "[idle]") {
		t.Errorf("show output = %q", out)
	}
}

func TestStatsAndEventsCommands(t *testing.T) {
	home := t.TempDir()
	db, err := sqlite.Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.IncrementStat(domain.CounterEnterAttempt.String())
	db.IncrementStat(domain.CounterEnterAttempt.String())
	db.IncrementStat(domain.CounterEnterSuccess.String())
	db.AppendEvent(time.Now(), "service started")
	db.Close()

	out, err := runCLI(t, home, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, domain.CounterEnterAttempt.String()) || !strings.Contains(out, "50.0%") {
		t.Errorf("stats output = %q", out)
	}

	out, err = runCLI(t, home, "events")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "service started") {
		t.Errorf("events output = %q", out)
	}

	if _, err := runCLI(t, home, "stats", "--reset"); err != nil {
		t.Fatalf("stats --reset: %v", err)
	}
	db, err = sqlite.Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	counters, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if counters[domain.CounterEnterAttempt.String()] != 0 {
		t.Errorf("enter attempts after reset = %d, want 0", counters[domain.CounterEnterAttempt.String()])
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func TestModeRejectsUnknownName(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "mode", "turbo")
	if !errors.Is(err, domain.ErrUnknownMode) {
		t.Errorf("err = %v, want ErrUnknownMode", err)
	}
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	err := printStatus(&buf, api.StatusResponse{
		Running: true,
		StatusSnapshot: orchestrator.StatusSnapshot{
			Line:   "息屏 | 深度睡眠 | 待机模式 [强制]",
			Screen: "OFF",
			Idle:   "IDLE",
			Mode:   domain.ModeStandby,
		},
	})
	if err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"息屏 | 深度睡眠 | 待机模式 [强制]", "running", "standby", "IDLE"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResultErr(t *testing.T) {
	if err := resultErr("x", domain.Success()); err != nil {
		t.Errorf("success err = %v, want nil", err)
	}
	err := resultErr("apply", domain.Failure(domain.KindCommandFailure, domain.ErrCommandFailed))
	if !errors.Is(err, domain.ErrCommandFailed) {
		t.Errorf("err = %v, want wrapped ErrCommandFailed", err)
	}
	if err := resultErr("apply", domain.Result{Kind: domain.KindStateUnknown}); err == nil {
		t.Error("failure without cause should still error")
	}
}
