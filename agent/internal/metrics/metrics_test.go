package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fleetpulse/fleetpulse/agent/internal/collector"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

func report() *types.Report {
	r := &types.Report{
		GeneratedAt: time.Unix(1_772_000_000, 0),
		Health: types.FleetHealth{
			ComponentScores: map[string]float64{"anomaly": 40, "connectivity": 95},
			OverallScore:    69,
			Status:          types.StatusFair,
		},
		Alerts: []types.Alert{
			{Level: types.LevelCritical}, {Level: types.LevelWarning}, {Level: types.LevelWarning},
		},
	}
	r.Snapshot.Connectivity.Summary = types.ConnectivitySummary{TotalDevices: 100, OnlineCount: 95, OfflineCount: 5}
	r.Snapshot.Latency.Summary.OverallP95Ms = 640
	return r
}

func TestRecorder_Emit(t *testing.T) {
	rec := NewRecorder("")
	if err := rec.Emit(context.Background(), report()); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"overall", testutil.ToFloat64(rec.overall), 69},
		{"connectivity component", testutil.ToFloat64(rec.components.WithLabelValues("connectivity")), 95},
		{"status FAIR", testutil.ToFloat64(rec.status.WithLabelValues("FAIR")), 1},
		{"status GOOD", testutil.ToFloat64(rec.status.WithLabelValues("GOOD")), 0},
		{"critical alerts", testutil.ToFloat64(rec.alerts.WithLabelValues("critical")), 1},
		{"warning alerts", testutil.ToFloat64(rec.alerts.WithLabelValues("warning")), 2},
		{"offline devices", testutil.ToFloat64(rec.devices.WithLabelValues("offline")), 5},
		{"p95", testutil.ToFloat64(rec.latencyP95), 0.64},
		{"success cycles", testutil.ToFloat64(rec.cycles.WithLabelValues("success")), 1},
		{"last success", testutil.ToFloat64(rec.lastSuccess), 1_772_000_000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestRecorder_RecordFailure(t *testing.T) {
	rec := NewRecorder("")
	rec.RecordFailure(1, &collector.CollectionError{Domain: types.DomainLatency, Err: errors.New("timeout")})
	rec.RecordFailure(2, errors.New("emit: disk full"))

	if got := testutil.ToFloat64(rec.cycles.WithLabelValues("failure")); got != 2 {
		t.Errorf("failure cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.failures.WithLabelValues("latency")); got != 1 {
		t.Errorf("latency failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.failures.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown failures = %v, want 1", got)
	}
}

func TestRecorder_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetpulse.prom")
	rec := NewRecorder(path)
	if err := rec.Emit(context.Background(), report()); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"# TYPE fleetpulse_fleet_health_score gauge",
		"fleetpulse_fleet_health_score 69",
		`fleetpulse_fleet_status{status="FAIR"} 1`,
		`fleetpulse_refresh_cycles_total{result="success"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q\n%s", want, out)
		}
	}
}

func TestRecorder_Lint(t *testing.T) {
	rec := NewRecorder("")
	_ = rec.Emit(context.Background(), report())
	problems, err := testutil.GatherAndLint(rec.Registry())
	if err != nil {
		t.Fatalf("GatherAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint: %s: %s", p.Metric, p.Text)
	}
}
