package types

import (
	"encoding/json"
	"time"
)

// Domain names one analytics category.
type Domain string

const (
	DomainAnomalies    Domain = "anomalies"
	DomainClusters     Domain = "clusters"
	DomainInsights     Domain = "insights"
	DomainConnectivity Domain = "connectivity"
	DomainLatency      Domain = "latency"
	DomainThroughput   Domain = "throughput"
	DomainQuality      Domain = "quality"
)

// Domains lists every domain the collector queries, in collection order.
var Domains = []Domain{
	DomainAnomalies,
	DomainClusters,
	DomainInsights,
	DomainConnectivity,
	DomainLatency,
	DomainThroughput,
	DomainQuality,
}

// DashboardSnapshot is a point-in-time aggregate of all seven domain snapshots.
// It is built once per refresh cycle and must not be modified afterwards.
type DashboardSnapshot struct {
	CapturedAt   time.Time            `json:"captured_at"`
	Anomalies    AnomalySnapshot      `json:"anomalies"`
	Clusters     ClustersSnapshot     `json:"clusters"`
	Insights     InsightsSnapshot     `json:"insights"`
	Connectivity ConnectivitySnapshot `json:"connectivity"`
	Latency      LatencySnapshot      `json:"latency"`
	Throughput   ThroughputSnapshot   `json:"throughput"`
	Quality      QualitySnapshot      `json:"quality"`
}

// --- anomalies --------------------------------------------------------------

// Anomaly is one detected anomaly on one device metric.
type Anomaly struct {
	ID           string  `json:"id"`
	DeviceID     string  `json:"device_id"`
	DeviceName   string  `json:"device_name"`
	Metric       string  `json:"metric"`
	Value        float64 `json:"value"`
	Severity     string  `json:"severity"`
	Score        float64 `json:"score"`
	Timestamp    string  `json:"timestamp"`
	Acknowledged bool    `json:"acknowledged"`
	Resolved     bool    `json:"resolved"`
}

// AnomalySummary aggregates anomalies. The BySeverity counts may sum to less
// than Total when some anomalies are unclassified.
type AnomalySummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByMetric   map[string]int `json:"by_metric"`
}

// AnomalySnapshot is the anomalies domain response.
type AnomalySnapshot struct {
	Anomalies []Anomaly      `json:"anomalies"`
	Summary   AnomalySummary `json:"summary"`
}

// --- clusters ---------------------------------------------------------------

// Cluster is one group of devices with similar behaviour for a metric.
type Cluster struct {
	ID              int                `json:"cluster_id"`
	Name            string             `json:"cluster_name"`
	DeviceCount     int                `json:"device_count"`
	Characteristics map[string]float64 `json:"characteristics"`
	Devices         []string           `json:"devices"`
}

// Outlier is a device that does not fit any cluster.
type Outlier struct {
	DeviceID     string  `json:"device_id"`
	OutlierScore float64 `json:"outlier_score"`
	Reason       string  `json:"reason,omitempty"`
}

// ClustersSnapshot is the clustering domain response.
// SilhouetteScore lies in [-1, 1].
type ClustersSnapshot struct {
	Clusters        []Cluster `json:"clusters"`
	SilhouetteScore float64   `json:"silhouette_score"`
	Outliers        []Outlier `json:"outliers"`
}

// --- insights ---------------------------------------------------------------

// Insight is one AI-generated observation about the fleet.
type Insight struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	Severity           string   `json:"severity"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Confidence         float64  `json:"confidence"`
	Actionable         bool     `json:"actionable"`
	RecommendedActions []string `json:"recommended_actions"`
}

// FleetSummary is the service's own fleet overview attached to insights.
type FleetSummary struct {
	TotalDevices  int     `json:"total_devices"`
	ActiveDevices int     `json:"active_devices"`
	AnomalyRate   float64 `json:"anomaly_rate"`
	HealthScore   float64 `json:"health_score"`
}

// InsightsSnapshot is the insights domain response.
type InsightsSnapshot struct {
	Insights     []Insight    `json:"insights"`
	FleetSummary FleetSummary `json:"fleet_summary"`
}

// CountBySeverity returns how many insights carry the given severity.
func (s InsightsSnapshot) CountBySeverity(severity string) int {
	var n int
	for _, in := range s.Insights {
		if in.Severity == severity {
			n++
		}
	}
	return n
}

// --- connectivity -----------------------------------------------------------

// DeviceStatus is the connectivity state of one device.
type DeviceStatus struct {
	DeviceID      string  `json:"device_id"`
	DeviceName    string  `json:"device_name"`
	Status        string  `json:"status"`
	LastSeen      string  `json:"last_seen"`
	UptimePercent float64 `json:"uptime_percent"`
}

// ConnectivitySummary counts devices by connection state.
// OnlineCount+OfflineCount never exceeds TotalDevices; UnknownCount covers the rest.
type ConnectivitySummary struct {
	TotalDevices               int     `json:"total_devices"`
	OnlineCount                int     `json:"online_count"`
	OfflineCount               int     `json:"offline_count"`
	UnknownCount               int     `json:"unknown_count"`
	OnlinePercentage           float64 `json:"online_percentage"`
	AvgConnectionDurationHours float64 `json:"avg_connection_duration_hours"`
}

// UnmarshalJSON accepts the short field names (total, online, offline) that
// some versions of the service emit.
func (s *ConnectivitySummary) UnmarshalJSON(data []byte) error {
	type plain ConnectivitySummary
	aux := struct {
		*plain
		Total   *int `json:"total"`
		Online  *int `json:"online"`
		Offline *int `json:"offline"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	aliasInt(&s.TotalDevices, aux.Total)
	aliasInt(&s.OnlineCount, aux.Online)
	aliasInt(&s.OfflineCount, aux.Offline)
	return nil
}

// ConnectivitySnapshot is the connectivity domain response.
type ConnectivitySnapshot struct {
	Devices []DeviceStatus      `json:"devices"`
	Summary ConnectivitySummary `json:"summary"`
}

// --- latency ----------------------------------------------------------------

// LatencySummary holds fleet-wide latency statistics. OverallP95Ms is usually
// at least OverallAvgMs but percentiles may come from different windows, so
// callers must not rely on it.
type LatencySummary struct {
	OverallAvgMs           float64 `json:"overall_avg_ms"`
	OverallP95Ms           float64 `json:"overall_p95_ms"`
	OverallP99Ms           float64 `json:"overall_p99_ms"`
	DevicesWithHighLatency int     `json:"devices_with_high_latency"`
	HighLatencyThresholdMs float64 `json:"high_latency_threshold_ms"`
}

// UnmarshalJSON accepts the avg_latency_ms / p95_latency_ms / p99_latency_ms aliases.
func (s *LatencySummary) UnmarshalJSON(data []byte) error {
	type plain LatencySummary
	aux := struct {
		*plain
		Avg *float64 `json:"avg_latency_ms"`
		P95 *float64 `json:"p95_latency_ms"`
		P99 *float64 `json:"p99_latency_ms"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	aliasFloat(&s.OverallAvgMs, aux.Avg)
	aliasFloat(&s.OverallP95Ms, aux.P95)
	aliasFloat(&s.OverallP99Ms, aux.P99)
	return nil
}

// LatencySnapshot is the latency domain response. Devices holds the raw
// per-device rows, whose shape varies between service versions.
type LatencySnapshot struct {
	Summary LatencySummary   `json:"summary"`
	Devices []map[string]any `json:"devices"`
}

// --- throughput -------------------------------------------------------------

// ThroughputSummary holds message and byte counts plus rates. All values are >= 0.
type ThroughputSummary struct {
	TotalMessagesIn       int64   `json:"total_messages_in"`
	TotalMessagesOut      int64   `json:"total_messages_out"`
	TotalBytesIn          int64   `json:"total_bytes_in"`
	TotalBytesOut         int64   `json:"total_bytes_out"`
	AvgMessagesPerMinute  float64 `json:"avg_messages_per_minute"`
	PeakMessagesPerMinute int64   `json:"peak_messages_per_minute"`
	AvgActiveConnections  float64 `json:"avg_active_connections"`
}

// UnmarshalJSON accepts the total_messages / avg_per_hour / peak_per_hour aliases.
func (s *ThroughputSummary) UnmarshalJSON(data []byte) error {
	type plain ThroughputSummary
	aux := struct {
		*plain
		TotalMessages *int64   `json:"total_messages"`
		AvgPerHour    *float64 `json:"avg_per_hour"`
		PeakPerHour   *int64   `json:"peak_per_hour"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TotalMessages != nil && s.TotalMessagesIn == 0 {
		s.TotalMessagesIn = *aux.TotalMessages
	}
	aliasFloat(&s.AvgMessagesPerMinute, aux.AvgPerHour)
	if aux.PeakPerHour != nil && s.PeakMessagesPerMinute == 0 {
		s.PeakMessagesPerMinute = *aux.PeakPerHour
	}
	return nil
}

// ThroughputSnapshot is the throughput domain response.
type ThroughputSnapshot struct {
	Summary  ThroughputSummary `json:"summary"`
	Timeline []map[string]any  `json:"timeline"`
}

// --- quality ----------------------------------------------------------------

// QualityDistribution partitions devices by connection quality band.
type QualityDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

// QualitySummary holds the fleet's average quality score (0–100) and band counts.
type QualitySummary struct {
	AverageQualityScore float64             `json:"average_quality_score"`
	Distribution        QualityDistribution `json:"distribution"`
}

// QualitySnapshot is the connection quality domain response.
type QualitySnapshot struct {
	Summary QualitySummary   `json:"summary"`
	Issues  []map[string]any `json:"issues"`
}

// aliasInt copies *alias into dst when the canonical field was not set.
func aliasInt(dst *int, alias *int) {
	if alias != nil && *dst == 0 {
		*dst = *alias
	}
}

func aliasFloat(dst *float64, alias *float64) {
	if alias != nil && *dst == 0 {
		*dst = *alias
	}
}
