// Package receiver implements rpc.ReportServiceServer, the gRPC endpoint that
// accepts fleet reports from fleetpulse-agent instances.
//
// Receiver.SendReport validates the report (codes.InvalidArgument on a
// missing agent_id or id, an out-of-range score, an unknown status tier or
// alert level), stores it as the agent's latest report, then runs the
// registered hooks: notification, WebSocket push and metrics.
// Authentication is enforced upstream by the gRPC server interceptor (see
// package auth), so the receiver itself only performs structural validation.
package receiver
