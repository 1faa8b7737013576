package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepsleep-project/deepsleep/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)
	return NewClientURL(ts.URL), env
}

func TestClient_Status(t *testing.T) {
	c, _ := newTestClient(t)
	got, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !got.Running || !got.ForceMode || got.Line != "息屏 | 深度睡眠 [强制]" {
		t.Errorf("Status = %+v", got)
	}
}

func TestClient_StatsAndEvents(t *testing.T) {
	c, env := newTestClient(t)
	env.stats.Increment(domain.CounterEnterAttempt)
	env.journal.Append("first")
	env.journal.Append("second")

	snap, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if snap.Counters[domain.CounterEnterAttempt.String()] != 1 {
		t.Errorf("enter attempts = %d, want 1", snap.Counters[domain.CounterEnterAttempt.String()])
	}

	events, err := c.Events(context.Background(), 1)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Message != "second" {
		t.Errorf("Events = %+v, want [second]", events)
	}
}

func TestClient_Commands(t *testing.T) {
	c, env := newTestClient(t)
	ctx := context.Background()

	if err := c.Notify(ctx, domain.EventScreenOff); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(env.ctrl.events) != 1 || env.ctrl.events[0] != domain.EventScreenOff {
		t.Errorf("events = %v", env.ctrl.events)
	}

	if err := c.ApplyMode(ctx, domain.ModePerformance); err != nil {
		t.Fatalf("ApplyMode: %v", err)
	}
	if env.ctrl.mode != domain.ModePerformance {
		t.Errorf("mode = %q, want performance", env.ctrl.mode)
	}

	if err := c.PowerSaver(ctx, "on"); err != nil {
		t.Fatalf("PowerSaver: %v", err)
	}
	if env.shell.CountExact("settings put global low_power 1") != 1 {
		t.Errorf("commands = %v", env.shell.Commands())
	}

	entry, err := c.AddWhitelist(ctx, WhitelistRequest{Identifier: "com.tencent.mm", Category: "suppress"})
	if err != nil {
		t.Fatalf("AddWhitelist: %v", err)
	}
	if entry.ID == "" || entry.Category != domain.CategorySuppress {
		t.Errorf("entry = %+v", entry)
	}
}

func TestClient_APIError(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.ApplyMode(context.Background(), "turbo")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClientURL(url).Status(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}
