package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deepsleep-project/deepsleep/internal/app/stats"
	"github.com/deepsleep-project/deepsleep/internal/domain"
)

// ErrUnreachable is returned when no daemon answers at the client's address.
var ErrUnreachable = errors.New("daemon unreachable")

// Error is a non-2xx response from the daemon.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon over the local HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the daemon listening at host:port.
func NewClient(host string, port int) *Client {
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return NewClientURL("http://" + host + ":" + strconv.Itoa(port))
}

// NewClientURL creates a client for an explicit base URL.
func NewClientURL(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Status returns the orchestrator session view.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Stats returns the counter snapshot.
func (c *Client) Stats(ctx context.Context) (stats.Snapshot, error) {
	var out stats.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out, err
}

// Events returns up to limit recent log entries, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]domain.Event, error) {
	var out struct {
		Events []domain.Event `json:"events"`
	}
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Events, err
}

// Notify injects a screen event into the running orchestrator.
func (c *Client) Notify(ctx context.Context, ev domain.ScreenEvent) error {
	state := "off"
	if ev == domain.EventScreenOn {
		state = "on"
	}
	return c.do(ctx, http.MethodPost, "/api/screen/"+state, nil, nil)
}

// ApplyMode switches the scheduler mode through the daemon.
func (c *Client) ApplyMode(ctx context.Context, mode domain.SchedulerMode) error {
	return c.do(ctx, http.MethodPost, "/api/mode/"+url.PathEscape(string(mode)), nil, nil)
}

// PowerSaver runs one of on, off, aggressive or restore.
func (c *Client) PowerSaver(ctx context.Context, action string) error {
	return c.do(ctx, http.MethodPost, "/api/powersaver/"+url.PathEscape(action), nil, nil)
}

// AddWhitelist creates a whitelist entry.
func (c *Client) AddWhitelist(ctx context.Context, req WhitelistRequest) (domain.WhitelistEntry, error) {
	var out domain.WhitelistEntry
	err := c.do(ctx, http.MethodPost, "/api/whitelist", req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := resp.Status
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error.Message != "" {
			msg = payload.Error.Message
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
