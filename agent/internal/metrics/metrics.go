package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/fleetpulse/fleetpulse/agent/internal/collector"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

var statuses = []types.Status{
	types.StatusExcellent, types.StatusGood, types.StatusFair, types.StatusPoor, types.StatusCritical,
}

// Recorder mirrors each report into Prometheus gauges and optionally writes
// them to a node_exporter textfile after every cycle.
type Recorder struct {
	reg      *prometheus.Registry
	textfile string

	overall     prometheus.Gauge
	components  *prometheus.GaugeVec
	status      *prometheus.GaugeVec
	alerts      *prometheus.GaugeVec
	devices     *prometheus.GaugeVec
	latencyP95  prometheus.Gauge
	cycles      *prometheus.CounterVec
	failures    *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

// NewRecorder registers the agent's metrics on a fresh registry. An empty
// textfile disables file output.
func NewRecorder(textfile string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg:      reg,
		textfile: textfile,
		overall: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleetpulse_fleet_health_score",
			Help: "Overall fleet health score (0-100) from the last successful cycle.",
		}),
		components: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_component_score",
			Help: "Per-component health score (0-100).",
		}, []string{"component"}),
		status: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_fleet_status",
			Help: "1 for the current health tier, 0 for the others.",
		}, []string{"status"}),
		alerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_alerts",
			Help: "Alerts raised in the last cycle by level.",
		}, []string{"level"}),
		devices: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_devices",
			Help: "Devices by connectivity state.",
		}, []string{"state"}),
		latencyP95: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleetpulse_latency_p95_seconds",
			Help: "Fleet-wide P95 latency.",
		}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetpulse_refresh_cycles_total",
			Help: "Refresh cycles by result.",
		}, []string{"result"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetpulse_collection_failures_total",
			Help: "Failed collections by the domain that failed.",
		}, []string{"domain"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "fleetpulse_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cycle.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Emit records a completed cycle.
func (r *Recorder) Emit(_ context.Context, rep *types.Report) error {
	h := rep.Health
	r.overall.Set(h.OverallScore)
	for name, v := range h.ComponentScores {
		r.components.WithLabelValues(name).Set(v)
	}
	for _, s := range statuses {
		v := 0.0
		if s == h.Status {
			v = 1
		}
		r.status.WithLabelValues(string(s)).Set(v)
	}
	r.alerts.WithLabelValues(string(types.LevelCritical)).Set(float64(rep.CountAlerts(types.LevelCritical)))
	r.alerts.WithLabelValues(string(types.LevelWarning)).Set(float64(rep.CountAlerts(types.LevelWarning)))

	c := rep.Snapshot.Connectivity.Summary
	r.devices.WithLabelValues("online").Set(float64(c.OnlineCount))
	r.devices.WithLabelValues("offline").Set(float64(c.OfflineCount))
	r.devices.WithLabelValues("unknown").Set(float64(c.UnknownCount))
	r.latencyP95.Set(rep.Snapshot.Latency.Summary.OverallP95Ms / 1000)

	r.cycles.WithLabelValues("success").Inc()
	r.lastSuccess.Set(float64(rep.GeneratedAt.Unix()))
	return r.flush()
}

// RecordFailure counts a failed cycle. It matches the refresh driver's
// OnError hook.
func (r *Recorder) RecordFailure(_ int, err error) {
	r.cycles.WithLabelValues("failure").Inc()
	domain := "unknown"
	var cerr *collector.CollectionError
	if errors.As(err, &cerr) {
		domain = string(cerr.Domain)
	}
	r.failures.WithLabelValues(domain).Inc()
	if ferr := r.flush(); ferr != nil {
		slog.Warn("metrics: textfile update failed", "error", ferr)
	}
}

// flush writes the textfile if one is configured.
func (r *Recorder) flush() error {
	if r.textfile == "" {
		return nil
	}
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	return WriteTextfile(r.textfile, families)
}

// WriteTextfile encodes families in the Prometheus text format and replaces
// path atomically, as node_exporter's textfile collector requires.
func WriteTextfile(path string, families []*dto.MetricFamily) error {
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}

	tmp := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%d", filepath.Base(path), time.Now().UnixNano()))
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
