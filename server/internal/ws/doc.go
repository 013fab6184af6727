// Package ws implements the WebSocket hub for fleetpulse-server.
//
// Hub manages a set of connected clients. It broadcasts the fleet overview on
// a configurable interval and pushes every report the receiver accepts.
//
// New(store, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker; it blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// overview immediately on connect, then streams updates.
//
// Message format sent to clients:
//
//	{"event": "overview", "data": { /* same schema as GET /api/v1/snapshot */ }}
//	{"event": "report",   "data": { /* one agent Report */ }}
//	{"event": "evicted",  "data": {"agent_ids": ["plant-a"]}}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The hub is mounted at /ws/stream by the server.
package ws
