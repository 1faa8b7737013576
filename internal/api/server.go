// Package api provides the loopback HTTP server for the deepsleep daemon:
// status, statistics, the event log, whitelist management and manual
// controls (screen events, scheduler mode, power saver).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepsleep-project/deepsleep/internal/app/stats"
	"github.com/deepsleep-project/deepsleep/internal/domain"
	"github.com/deepsleep-project/deepsleep/internal/health"
	"github.com/deepsleep-project/deepsleep/internal/orchestrator"
)

// Version is reported by /api/version.
var Version = "0.1.0"

// ─── Dependencies ───────────────────────────────────────────────────────────

// Controller is the running orchestrator as seen by the API.
type Controller interface {
	Status() orchestrator.StatusSnapshot
	Running() bool
	Notify(ev domain.ScreenEvent) bool
	ApplyMode(ctx context.Context, mode domain.SchedulerMode) domain.Result
}

// StatsReader serves and resets counters.
type StatsReader interface {
	Snapshot(now time.Time) (stats.Snapshot, error)
	Reset() error
}

// EventReader serves the event log.
type EventReader interface {
	Recent(limit int) ([]domain.Event, error)
}

// WhitelistStore persists whitelist entries.
type WhitelistStore interface {
	AddWhitelist(e domain.WhitelistEntry) (domain.WhitelistEntry, error)
	RemoveWhitelist(id string) error
	ListWhitelist(category domain.WhitelistCategory) ([]domain.WhitelistEntry, error)
}

// HealthReporter exposes the latest health check results.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// PowerSaverControl toggles the power-saver flag.
type PowerSaverControl interface {
	Enable(ctx context.Context) domain.Result
	Disable(ctx context.Context) domain.Result
	IsEnabled(ctx context.Context) bool
	EnableAggressiveMode(ctx context.Context) domain.Result
	RestoreDefaults(ctx context.Context) domain.Result
}

// Deps are the services the API reads and drives. Nil members disable
// their routes' functionality with 503.
type Deps struct {
	Controller Controller
	Stats      StatsReader
	Events     EventReader
	Whitelist  WhitelistStore
	Health     HealthReporter
	PowerSaver PowerSaverControl
	Logger     *slog.Logger
}

// ─── Server ─────────────────────────────────────────────────────────────────

// Server is the deepsleep HTTP API server.
type Server struct {
	deps           Deps
	log            *slog.Logger
	now            func() time.Time
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, log: logger.With("component", "api"), now: time.Now}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Post("/stats/reset", s.handleStatsReset)
		r.Get("/events", s.handleEvents)
		r.Get("/health", s.handleHealth)

		r.Get("/whitelist", s.handleWhitelistList)
		r.Post("/whitelist", s.handleWhitelistAdd)
		r.Delete("/whitelist/{id}", s.handleWhitelistRemove)

		r.Post("/screen/{state}", s.handleScreen)
		r.Post("/mode/{name}", s.handleMode)

		r.Get("/powersaver", s.handlePowerSaverStatus)
		r.Post("/powersaver/{action}", s.handlePowerSaver)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// ─── Status ─────────────────────────────────────────────────────────────────

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Running bool `json:"running"`
	orchestrator.StatusSnapshot
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not available")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Running:        s.deps.Controller.Running(),
		StatusSnapshot: s.deps.Controller.Status(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics not available")
		return
	}
	snap, err := s.deps.Stats.Snapshot(s.now())
	if err != nil {
		s.internalError(w, "read stats", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeError(w, http.StatusServiceUnavailable, "statistics not available")
		return
	}
	if err := s.deps.Stats.Reset(); err != nil {
		s.internalError(w, "reset stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event log not available")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := s.deps.Events.Recent(limit)
	if err != nil {
		s.internalError(w, "read events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeError(w, http.StatusServiceUnavailable, "health checker not available")
		return
	}
	status := http.StatusOK
	if !s.deps.Health.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": s.deps.Health.IsHealthy(),
		"checks":  s.deps.Health.Statuses(),
	})
}

// ─── Whitelist ──────────────────────────────────────────────────────────────

// WhitelistRequest is the body of POST /api/whitelist.
type WhitelistRequest struct {
	Identifier string `json:"identifier"`
	Note       string `json:"note,omitempty"`
	Category   string `json:"category"`
}

func (s *Server) handleWhitelistList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Whitelist == nil {
		writeError(w, http.StatusServiceUnavailable, "whitelist not available")
		return
	}
	var cat domain.WhitelistCategory
	if v := r.URL.Query().Get("category"); v != "" {
		c, err := domain.ParseCategory(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cat = c
	}
	entries, err := s.deps.Whitelist.ListWhitelist(cat)
	if err != nil {
		s.internalError(w, "list whitelist", err)
		return
	}
	if entries == nil {
		entries = []domain.WhitelistEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleWhitelistAdd(w http.ResponseWriter, r *http.Request) {
	if s.deps.Whitelist == nil {
		writeError(w, http.StatusServiceUnavailable, "whitelist not available")
		return
	}
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	entry, err := s.deps.Whitelist.AddWhitelist(domain.WhitelistEntry{
		Identifier: req.Identifier,
		Note:       req.Note,
		Category:   domain.WhitelistCategory(req.Category),
	})
	switch {
	case errors.Is(err, domain.ErrEmptyIdentifier), errors.Is(err, domain.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.internalError(w, "add whitelist", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleWhitelistRemove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Whitelist == nil {
		writeError(w, http.StatusServiceUnavailable, "whitelist not available")
		return
	}
	err := s.deps.Whitelist.RemoveWhitelist(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrWhitelistEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.internalError(w, "remove whitelist", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Controls ───────────────────────────────────────────────────────────────

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not available")
		return
	}
	ev, ok := domain.ParseScreenEvent(chi.URLParam(r, "state"))
	if !ok {
		writeError(w, http.StatusBadRequest, "screen state must be on or off")
		return
	}
	if !s.deps.Controller.Notify(ev) {
		writeError(w, http.StatusConflict, "orchestrator is not running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event": ev.String()})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not available")
		return
	}
	mode := domain.SchedulerMode(chi.URLParam(r, "name"))
	res := s.deps.Controller.ApplyMode(r.Context(), mode)
	if !res.OK {
		writeResult(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode), "label": mode.Label()})
}

func (s *Server) handlePowerSaverStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.PowerSaver == nil {
		writeError(w, http.StatusServiceUnavailable, "power saver not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.deps.PowerSaver.IsEnabled(r.Context())})
}

func (s *Server) handlePowerSaver(w http.ResponseWriter, r *http.Request) {
	if s.deps.PowerSaver == nil {
		writeError(w, http.StatusServiceUnavailable, "power saver not available")
		return
	}
	ps := s.deps.PowerSaver
	action := chi.URLParam(r, "action")
	var res domain.Result
	switch action {
	case "on":
		res = ps.Enable(r.Context())
	case "off":
		res = ps.Disable(r.Context())
	case "aggressive":
		res = ps.EnableAggressiveMode(r.Context())
	case "restore":
		res = ps.RestoreDefaults(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "action must be on, off, aggressive or restore")
		return
	}
	if !res.OK {
		writeResult(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": action})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeResult maps a failed controller result to a status code.
func writeResult(w http.ResponseWriter, res domain.Result) {
	status := http.StatusBadGateway
	if res.Kind == domain.KindConfigInvalid {
		status = http.StatusBadRequest
	}
	msg := res.Kind.String()
	if res.Err != nil {
		msg = res.Err.Error()
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    res.Kind.String(),
		},
	})
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.log.Error(what, "err", err)
	writeError(w, http.StatusInternalServerError, what+": "+err.Error())
}

// corsMiddleware adds CORS headers for local tools.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
