// Package shipper sends refresh reports to fleetpulse-server over gRPC
// (ReportService.SendReport, JSON codec from pkg/rpc).
//
// Shipper.Emit is non-blocking: reports go into an in-memory channel
// (agent.buffer_size, default 100). When the buffer is full the oldest entry
// is evicted so the latest fleet health is always preserved.
//
// Shipper.Run drains the buffer in a loop, reconnecting with truncated
// exponential backoff (1s→60s, ±25% jitter) on connection or send errors.
// Permanent gRPC errors (Unauthenticated, PermissionDenied, InvalidArgument)
// discard the report rather than retrying.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or plaintext for local development.
package shipper
