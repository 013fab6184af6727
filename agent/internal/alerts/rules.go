package alerts

import (
	"fmt"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Alert domain tags, in evaluation order.
const (
	DomainAnomaly      = "anomaly"
	DomainConnectivity = "connectivity"
	DomainLatency      = "latency"
	DomainQuality      = "quality"
)

// observation holds the values one rule reads from a snapshot.
type observation struct {
	count int
	pct   float64
	value float64
}

// tier is one severity branch of a rule. It fires when metric > threshold.
type tier struct {
	level       types.AlertLevel
	metric      func(o observation) float64
	threshold   func(th Thresholds) float64
	title       func(o observation) string
	description string
}

// rule evaluates one domain. Tiers are ordered most severe first and at most
// one fires per evaluation.
type rule struct {
	domain  string
	observe func(s *types.DashboardSnapshot) observation
	tiers   []tier
}

func byCount(o observation) float64 { return float64(o.count) }
func byPct(o observation) float64   { return o.pct }
func byValue(o observation) float64 { return o.value }

// rules is the evaluation table. Order here is emission order.
var rules = []rule{
	{
		domain: DomainAnomaly,
		observe: func(s *types.DashboardSnapshot) observation {
			return observation{count: s.Anomalies.Summary.BySeverity["critical"]}
		},
		tiers: []tier{{
			level:       types.LevelCritical,
			metric:      byCount,
			threshold:   func(Thresholds) float64 { return 0 },
			title:       func(o observation) string { return fmt.Sprintf("%d Critical Anomalies Detected", o.count) },
			description: "Immediate investigation recommended",
		}},
	},
	{
		domain: DomainConnectivity,
		observe: func(s *types.DashboardSnapshot) observation {
			c := s.Connectivity.Summary
			total := max(c.TotalDevices, 1)
			return observation{
				count: c.OfflineCount,
				pct:   float64(c.OfflineCount) / float64(total) * 100,
			}
		},
		tiers: []tier{
			{
				level:       types.LevelCritical,
				metric:      byPct,
				threshold:   func(th Thresholds) float64 { return th.OfflineCriticalPct },
				title:       func(o observation) string { return fmt.Sprintf("%d Devices Offline (%.0f%%)", o.count, o.pct) },
				description: "Network connectivity issue detected",
			},
			{
				level:       types.LevelWarning,
				metric:      byCount,
				threshold:   func(Thresholds) float64 { return 0 },
				title:       func(o observation) string { return fmt.Sprintf("%d Device(s) Offline", o.count) },
				description: "Some devices are not responding",
			},
		},
	},
	{
		domain: DomainLatency,
		observe: func(s *types.DashboardSnapshot) observation {
			return observation{value: s.Latency.Summary.OverallP95Ms}
		},
		tiers: []tier{
			{
				level:       types.LevelCritical,
				metric:      byValue,
				threshold:   func(th Thresholds) float64 { return th.LatencyCriticalMs },
				title:       func(o observation) string { return fmt.Sprintf("High Latency: %.0fms P95", o.value) },
				description: "Network performance severely degraded",
			},
			{
				level:       types.LevelWarning,
				metric:      byValue,
				threshold:   func(th Thresholds) float64 { return th.LatencyWarningMs },
				title:       func(o observation) string { return fmt.Sprintf("Elevated Latency: %.0fms P95", o.value) },
				description: "Network performance degraded",
			},
		},
	},
	{
		domain: DomainQuality,
		observe: func(s *types.DashboardSnapshot) observation {
			return observation{count: s.Quality.Summary.Distribution.Poor}
		},
		tiers: []tier{{
			level:       types.LevelWarning,
			metric:      byCount,
			threshold:   func(th Thresholds) float64 { return float64(th.PoorQualityDevices) },
			title:       func(o observation) string { return fmt.Sprintf("%d Devices with Poor Connection Quality", o.count) },
			description: "Review device connections and network path",
		}},
	},
}

// evaluate returns the alert of the first firing tier, if any.
func (r rule) evaluate(s *types.DashboardSnapshot, th Thresholds) (types.Alert, bool) {
	o := r.observe(s)
	for _, t := range r.tiers {
		if t.metric(o) > t.threshold(th) {
			return types.Alert{
				Level:       t.level,
				Domain:      r.domain,
				Title:       t.title(o),
				Description: t.description,
			}, true
		}
	}
	return types.Alert{}, false
}
