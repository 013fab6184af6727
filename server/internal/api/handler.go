package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/store"
)

// Options carries the optional handlers mounted next to the REST routes.
type Options struct {
	// Auth wraps the REST routes and the stream. Nil leaves them open.
	Auth func(http.Handler) http.Handler

	// Metrics is served unauthenticated at /metrics when non-nil.
	Metrics http.Handler

	// Stream is served at /ws/stream when non-nil.
	Stream http.Handler
}

// Handler serves the REST API from the report store.
type Handler struct {
	store  *store.Store
	router chi.Router
}

// New creates a Handler wired to the given report store and registers all routes.
func New(st *store.Store, opts Options) http.Handler {
	h := &Handler{store: st, router: chi.NewRouter()}

	r := h.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		if opts.Stream != nil {
			r.Method(http.MethodGet, "/ws/stream", opts.Stream)
		}
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(requestLogger)
			r.Get("/health", h.health)
			r.Get("/alerts", h.alerts)
			r.Get("/snapshot", h.snapshot)
			r.Route("/fleets", func(r chi.Router) {
				r.Get("/", h.listFleets)
				r.Get("/{id}", h.getFleet)
			})
		})
	})

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: mean score and status counts over live fleets.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, BuildHealth(h.store.List()))
}

// listFleets returns GET /api/v1/fleets: one summary per live agent.
func (h *Handler) listFleets(w http.ResponseWriter, r *http.Request) {
	entries := h.store.List()
	out := make([]FleetResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toFleetResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getFleet returns GET /api/v1/fleets/{id}: the agent's latest report in full.
func (h *Handler) getFleet(w http.ResponseWriter, r *http.Request) {
	e, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "fleet not found")
		return
	}
	jsonResp(w, http.StatusOK, FleetDetailResponse{
		FleetResponse: toFleetResponse(e),
		Snapshot:      e.Report.Snapshot,
	})
}

// alerts returns GET /api/v1/alerts: the alerts of every live agent's latest
// report, critical first. ?level= filters by level.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	if level != "" && level != string(types.LevelWarning) && level != string(types.LevelCritical) {
		jsonErr(w, http.StatusBadRequest, "level must be warning or critical")
		return
	}

	var critical, warning []AlertResponse
	for _, e := range h.store.List() {
		rep := e.Report
		for _, a := range rep.Alerts {
			if level != "" && string(a.Level) != level {
				continue
			}
			ar := AlertResponse{
				AgentID:     rep.AgentID,
				Level:       string(a.Level),
				Domain:      a.Domain,
				Title:       a.Title,
				Description: a.Description,
				GeneratedAt: rep.GeneratedAt.UTC().Format(time.RFC3339),
			}
			if a.Level == types.LevelCritical {
				critical = append(critical, ar)
			} else {
				warning = append(warning, ar)
			}
		}
	}
	out := make([]AlertResponse, 0, len(critical)+len(warning))
	out = append(out, critical...)
	out = append(out, warning...)
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot: health plus every live fleet.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the current SnapshotResponse from the store.
// It is shared with the WebSocket hub.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	fleets := make([]FleetResponse, 0, len(entries))
	for _, e := range entries {
		fleets = append(fleets, toFleetResponse(e))
	}
	return SnapshotResponse{
		Health:      BuildHealth(entries),
		Fleets:      fleets,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// BuildHealth aggregates live entries into a HealthResponse. With no live
// fleets the status is "UNKNOWN".
func BuildHealth(entries []*store.Entry) HealthResponse {
	resp := HealthResponse{
		FleetCount:   len(entries),
		StatusCounts: make(map[string]int),
		Status:       "UNKNOWN",
	}
	if len(entries) == 0 {
		return resp
	}

	var total float64
	for _, e := range entries {
		rep := e.Report
		total += rep.Health.OverallScore
		resp.StatusCounts[string(rep.Health.Status)]++
		resp.DeviceCount += rep.Snapshot.Connectivity.Summary.TotalDevices
		resp.OnlineCount += rep.Snapshot.Connectivity.Summary.OnlineCount
		resp.AlertCount += len(rep.Alerts)
		resp.CriticalCount += rep.CountAlerts(types.LevelCritical)
	}

	resp.OverallScore = math.Round(total/float64(len(entries))*10) / 10
	resp.Status = string(statusFromScore(resp.OverallScore))
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// statusFromScore converts a 0–100 score to a health tier.
// Mirrors the thresholds in agent/internal/compute.
func statusFromScore(score float64) types.Status {
	switch {
	case score >= 90:
		return types.StatusExcellent
	case score >= 70:
		return types.StatusGood
	case score >= 50:
		return types.StatusFair
	case score >= 30:
		return types.StatusPoor
	default:
		return types.StatusCritical
	}
}

// toFleetResponse maps a store.Entry to its JSON summary.
func toFleetResponse(e *store.Entry) FleetResponse {
	rep := e.Report
	conn := rep.Snapshot.Connectivity.Summary
	alerts := rep.Alerts
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return FleetResponse{
		AgentID:     rep.AgentID,
		ReportID:    rep.ID,
		Cycle:       rep.Cycle,
		GeneratedAt: rep.GeneratedAt.UTC().Format(time.RFC3339),
		LastSeen:    e.ReceivedAt.UTC().Format(time.RFC3339),
		Health:      rep.Health,
		Devices: DeviceCounts{
			Total:   conn.TotalDevices,
			Online:  conn.OnlineCount,
			Offline: conn.OfflineCount,
			Unknown: conn.UnknownCount,
		},
		AlertCount:    len(rep.Alerts),
		CriticalCount: rep.CountAlerts(types.LevelCritical),
		Alerts:        alerts,
		AnalyticsCert: rep.AnalyticsCert,
	}
}

// requestLogger logs one debug line per API request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
