package alerts

import (
	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Thresholds are the trip points of the alert rules. Every comparison is
// strictly greater-than.
type Thresholds struct {
	OfflineCriticalPct float64
	LatencyCriticalMs  float64
	LatencyWarningMs   float64
	PoorQualityDevices int
}

// DefaultThresholds returns offline > 20%, P95 > 1000ms critical,
// P95 > 500ms warning and more than 5 poor-quality devices.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OfflineCriticalPct: config.DefaultOfflineCriticalPct,
		LatencyCriticalMs:  config.DefaultLatencyCriticalMs,
		LatencyWarningMs:   config.DefaultLatencyWarningMs,
		PoorQualityDevices: config.DefaultPoorQualityDevices,
	}
}

// ThresholdsFrom converts the agent alert configuration.
func ThresholdsFrom(cfg config.AlertsConfig) Thresholds {
	return Thresholds{
		OfflineCriticalPct: cfg.OfflineCriticalPct,
		LatencyCriticalMs:  cfg.LatencyCriticalMs,
		LatencyWarningMs:   cfg.LatencyWarningMs,
		PoorQualityDevices: cfg.PoorQualityDevices,
	}
}

// Engine evaluates the alert rules against snapshots. It holds no state
// between calls: a condition that stays true fires again every cycle.
type Engine struct {
	th Thresholds
}

// NewEngine returns an Engine using th.
func NewEngine(th Thresholds) *Engine {
	return &Engine{th: th}
}

// Thresholds returns the thresholds the engine evaluates with.
func (e *Engine) Thresholds() Thresholds { return e.th }

// Generate returns the alerts raised by s in rule order: anomaly,
// connectivity, latency, quality. Each domain emits at most one alert.
func (e *Engine) Generate(s *types.DashboardSnapshot) []types.Alert {
	out := make([]types.Alert, 0, len(rules))
	for _, r := range rules {
		if a, ok := r.evaluate(s, e.th); ok {
			out = append(out, a)
		}
	}
	return out
}

// Generate evaluates s with DefaultThresholds.
func Generate(s *types.DashboardSnapshot) []types.Alert {
	return NewEngine(DefaultThresholds()).Generate(s)
}
