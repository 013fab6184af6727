package analytics

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Service paths.
const (
	pathAnomalies    = "/analytics/anomalies"
	pathClusters     = "/patterns/clusters"
	pathInsights     = "/insights"
	pathConnectivity = "/connectivity/status"
	pathLatency      = "/connectivity/latency"
	pathThroughput   = "/connectivity/throughput"
	pathQuality      = "/connectivity/quality"
)

// TimeRange is an inclusive [Start, End] window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the window ending at now and spanning the given days.
func LastDays(now time.Time, days int) TimeRange {
	return TimeRange{Start: now.AddDate(0, 0, -days), End: now}
}

// LastDuration returns the window ending at now and spanning d.
func LastDuration(now time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: now.Add(-d), End: now}
}

func (tr TimeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{tr.Start.UTC().Format(time.RFC3339), tr.End.UTC().Format(time.RFC3339)})
}

// AnomalyQuery filters the anomaly listing. A nil Window means the last
// seven days.
type AnomalyQuery struct {
	Window     *TimeRange
	Severities []string
	DeviceIDs  []string
	Limit      int
	Offset     int
}

// ClusterQuery requests a behavioral clustering of one metric.
type ClusterQuery struct {
	Metric          string
	Count           int
	Window          *TimeRange
	IncludeOutliers bool
}

// InsightQuery requests fleet insights above a confidence floor.
type InsightQuery struct {
	LookbackDays  int
	MinConfidence float64
	Types         []string
}

func (c *Client) window(w *TimeRange, fallback time.Duration) TimeRange {
	if w != nil {
		return *w
	}
	return LastDuration(c.now(), fallback)
}

// QueryAnomalies fetches detected anomalies and their summary.
func (c *Client) QueryAnomalies(ctx context.Context, q AnomalyQuery) (*types.AnomalySnapshot, error) {
	tr := c.window(q.Window, 7*24*time.Hour)
	v := url.Values{}
	v.Set("start_time", tr.Start.UTC().Format(time.RFC3339))
	v.Set("end_time", tr.End.UTC().Format(time.RFC3339))
	for _, sev := range q.Severities {
		v.Add("severity", sev)
	}
	for _, id := range q.DeviceIDs {
		v.Add("device_id", id)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}

	var out types.AnomalySnapshot
	if err := c.get(ctx, pathAnomalies, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryClusters groups devices by behavior over the requested window.
func (c *Client) QueryClusters(ctx context.Context, q ClusterQuery) (*types.ClustersSnapshot, error) {
	body := struct {
		MetricName      string    `json:"metric_name"`
		NClusters       int       `json:"n_clusters"`
		TimeRange       TimeRange `json:"time_range"`
		IncludeOutliers bool      `json:"include_outliers"`
	}{q.Metric, q.Count, c.window(q.Window, 7*24*time.Hour), q.IncludeOutliers}

	var out types.ClustersSnapshot
	if err := c.post(ctx, pathClusters, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryInsights fetches fleet-level insights and the fleet summary.
func (c *Client) QueryInsights(ctx context.Context, q InsightQuery) (*types.InsightsSnapshot, error) {
	body := struct {
		AnalysisPeriodDays int      `json:"analysis_period_days"`
		MinConfidence      float64  `json:"min_confidence"`
		InsightTypes       []string `json:"insight_types,omitempty"`
	}{q.LookbackDays, q.MinConfidence, q.Types}

	var out types.InsightsSnapshot
	if err := c.post(ctx, pathInsights, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryConnectivity fetches per-device connectivity and the fleet summary.
// An empty status returns every device.
func (c *Client) QueryConnectivity(ctx context.Context, status string) (*types.ConnectivitySnapshot, error) {
	v := url.Values{}
	if status != "" {
		v.Set("status", status)
	}
	var out types.ConnectivitySnapshot
	if err := c.get(ctx, pathConnectivity, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryLatency fetches latency statistics over the last hours.
func (c *Client) QueryLatency(ctx context.Context, hours int) (*types.LatencySnapshot, error) {
	v := url.Values{"hours": []string{strconv.Itoa(hours)}}
	var out types.LatencySnapshot
	if err := c.get(ctx, pathLatency, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryThroughput fetches message throughput over the last hours.
func (c *Client) QueryThroughput(ctx context.Context, hours int) (*types.ThroughputSnapshot, error) {
	v := url.Values{"hours": []string{strconv.Itoa(hours)}}
	var out types.ThroughputSnapshot
	if err := c.get(ctx, pathThroughput, v, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryQuality fetches the connection quality distribution.
func (c *Client) QueryQuality(ctx context.Context) (*types.QualitySnapshot, error) {
	var out types.QualitySnapshot
	if err := c.get(ctx, pathQuality, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
