// Package metrics exposes fleetpulse-server state to Prometheus at /metrics.
package metrics
