package types

import "time"

// Status is the discrete fleet health tier derived from the overall score.
type Status string

const (
	StatusExcellent Status = "EXCELLENT"
	StatusGood      Status = "GOOD"
	StatusFair      Status = "FAIR"
	StatusPoor      Status = "POOR"
	StatusCritical  Status = "CRITICAL"
)

// FleetHealth is the fused health of the fleet for one refresh cycle.
type FleetHealth struct {
	// ComponentScores maps a component name (anomaly, connectivity, latency,
	// insights) to its score in [0, 100].
	ComponentScores map[string]float64 `json:"component_scores"`

	// OverallScore is the weighted sum of ComponentScores in [0, 100],
	// rounded to one decimal.
	OverallScore float64 `json:"overall_score"`

	Status Status `json:"status"`
}

// AlertLevel is the severity of an Alert.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// Alert is one operator-facing finding produced by the alert rules.
// Alerts have no identity across cycles.
type Alert struct {
	Level       AlertLevel `json:"level"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// Report is the output of one completed refresh cycle.
type Report struct {
	ID          string            `json:"id"`
	AgentID     string            `json:"agent_id"`
	Cycle       int               `json:"cycle"`
	GeneratedAt time.Time         `json:"generated_at"`
	Health      FleetHealth       `json:"fleet_health"`
	Alerts      []Alert           `json:"alerts"`
	Snapshot    DashboardSnapshot `json:"snapshot"`

	// AnalyticsCert is the TLS status of the analytics endpoint, when it is HTTPS.
	AnalyticsCert *CertStatus `json:"analytics_cert,omitempty"`
}

// CountAlerts returns the number of alerts in r with the given level.
func (r *Report) CountAlerts(level AlertLevel) int {
	var n int
	for _, a := range r.Alerts {
		if a.Level == level {
			n++
		}
	}
	return n
}

// CertStatus describes the TLS certificate presented by an HTTPS endpoint.
type CertStatus struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft int    `json:"days_left"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"`
}
