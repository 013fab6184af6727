package api

import "github.com/fleetpulse/fleetpulse/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// OverallScore is the mean fleet health score across live agents.
	OverallScore  float64        `json:"overall_score"`
	Status        string         `json:"status"`
	FleetCount    int            `json:"fleet_count"`
	StatusCounts  map[string]int `json:"status_counts"`
	DeviceCount   int            `json:"device_count"`
	OnlineCount   int            `json:"online_count"`
	AlertCount    int            `json:"alert_count"`
	CriticalCount int            `json:"critical_count"`
}

// DeviceCounts summarises a fleet's connectivity.
type DeviceCounts struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Unknown int `json:"unknown"`
}

// FleetResponse is one entry in GET /api/v1/fleets.
type FleetResponse struct {
	AgentID       string            `json:"agent_id"`
	ReportID      string            `json:"report_id"`
	Cycle         int               `json:"cycle"`
	GeneratedAt   string            `json:"generated_at"` // RFC3339
	LastSeen      string            `json:"last_seen"`    // RFC3339
	Health        types.FleetHealth `json:"fleet_health"`
	Devices       DeviceCounts      `json:"devices"`
	AlertCount    int               `json:"alert_count"`
	CriticalCount int               `json:"critical_count"`
	Alerts        []types.Alert     `json:"alerts"`
	AnalyticsCert *types.CertStatus `json:"analytics_cert,omitempty"`
}

// FleetDetailResponse is the payload for GET /api/v1/fleets/{id}: the fleet
// summary plus the full dashboard snapshot it was derived from.
type FleetDetailResponse struct {
	FleetResponse
	Snapshot types.DashboardSnapshot `json:"snapshot"`
}

// AlertResponse is one entry in GET /api/v1/alerts.
type AlertResponse struct {
	AgentID     string `json:"agent_id"`
	Level       string `json:"level"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	Description string `json:"description"`
	GeneratedAt string `json:"generated_at"` // RFC3339
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the WebSocket
// "overview" event.
type SnapshotResponse struct {
	Health      HealthResponse  `json:"health"`
	Fleets      []FleetResponse `json:"fleets"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
