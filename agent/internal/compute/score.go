package compute

import (
	"math"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Component names used as keys of FleetHealth.ComponentScores.
const (
	ComponentAnomaly      = "anomaly"
	ComponentConnectivity = "connectivity"
	ComponentLatency      = "latency"
	ComponentInsights     = "insights"
)

// Lower bounds of each status tier, inclusive.
const (
	ThresholdExcellent = 90.0
	ThresholdGood      = 70.0
	ThresholdFair      = 50.0
	ThresholdPoor      = 30.0
)

// Penalty constants of the component formulas.
const (
	anomalyRateScale       = 1000.0 // anomalies per device → points lost
	latencyMsPerPoint      = 10.0   // 1000ms P95 scores zero
	criticalInsightPenalty = 20.0
	warningInsightPenalty  = 5.0
)

// component is one row of the scoring table. Weights across the table sum to 1.0.
type component struct {
	name   string
	weight float64
	score  func(s *types.DashboardSnapshot) float64
}

var components = []component{
	{ComponentAnomaly, 0.30, anomalyScore},
	{ComponentConnectivity, 0.30, connectivityScore},
	{ComponentLatency, 0.20, latencyScore},
	{ComponentInsights, 0.20, insightsScore},
}

// Components returns the component names in scoring order.
func Components() []string {
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = c.name
	}
	return names
}

// Score derives the fleet health from one snapshot.
//
// Each component score is clamped to [0, 100] before weighting. The overall
// score is the weighted sum rounded to one decimal (half away from zero) and
// the status tier is taken from that rounded value. Score never fails: empty
// fleets are floored to one device rather than dividing by zero.
func Score(s *types.DashboardSnapshot) types.FleetHealth {
	scores := make(map[string]float64, len(components))
	var overall float64
	for _, c := range components {
		v := clamp(c.score(s), 0, 100)
		scores[c.name] = v
		overall += v * c.weight
	}
	overall = roundTenth(clamp(overall, 0, 100))

	return types.FleetHealth{
		ComponentScores: scores,
		OverallScore:    overall,
		Status:          StatusFor(overall),
	}
}

// StatusFor maps an overall score to its tier.
func StatusFor(score float64) types.Status {
	switch {
	case score >= ThresholdExcellent:
		return types.StatusExcellent
	case score >= ThresholdGood:
		return types.StatusGood
	case score >= ThresholdFair:
		return types.StatusFair
	case score >= ThresholdPoor:
		return types.StatusPoor
	default:
		return types.StatusCritical
	}
}

func anomalyScore(s *types.DashboardSnapshot) float64 {
	rate := float64(s.Anomalies.Summary.Total) / devices(s)
	return 100 - rate*anomalyRateScale
}

// connectivityScore is the online percentage. A fleet reporting no devices
// at all has nothing offline and scores full marks.
func connectivityScore(s *types.DashboardSnapshot) float64 {
	c := s.Connectivity.Summary
	if c.TotalDevices == 0 && c.OnlineCount == 0 && c.OfflineCount == 0 {
		return 100
	}
	return float64(c.OnlineCount) / devices(s) * 100
}

func latencyScore(s *types.DashboardSnapshot) float64 {
	return 100 - s.Latency.Summary.OverallP95Ms/latencyMsPerPoint
}

func insightsScore(s *types.DashboardSnapshot) float64 {
	critical := float64(s.Insights.CountBySeverity("critical"))
	warning := float64(s.Insights.CountBySeverity("warning"))
	return 100 - critical*criticalInsightPenalty - warning*warningInsightPenalty
}

// devices is the fleet size floored at one.
func devices(s *types.DashboardSnapshot) float64 {
	return math.Max(float64(s.Connectivity.Summary.TotalDevices), 1)
}

// clamp restricts v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
