// Package api implements the HTTP REST API for fleetpulse-server.
//
// New(store, opts) returns a chi router that serves:
//
//	GET /api/v1/health        mean score, status counts, device and alert totals
//	GET /api/v1/fleets        latest report summary per live agent
//	GET /api/v1/fleets/{id}   one agent's latest report incl. snapshot; 404 if unknown or stale
//	GET /api/v1/alerts        alerts from every live report, critical first (?level=)
//	GET /api/v1/snapshot      health plus all live fleets + generated_at
//	GET /metrics              Prometheus exposition (when Options.Metrics is set)
//	GET /ws/stream            live stream (when Options.Stream is set)
//
// All /api/v1 endpoints respond with Content-Type: application/json and
// return 405 for non-GET methods. Options.Auth guards everything except /metrics.
package api
