// Package types defines the Go types shared by the agent and the server.
//
// Domain snapshots (anomalies, connectivity, latency, throughput, quality,
// clusters, insights) mirror the analytics service's JSON responses and are
// treated as immutable once decoded. DashboardSnapshot joins the seven of them;
// FleetHealth and Alert are derived from one DashboardSnapshot per refresh
// cycle, and Report bundles all three for emitters and the server.
package types
