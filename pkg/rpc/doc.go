// Package rpc defines the ReportService gRPC contract between
// fleetpulse-agent and fleetpulse-server.
//
// Reports travel as JSON using a codec registered under the "json" content
// subtype, so the service is described by hand (ServiceDesc) instead of being
// generated from a .proto file. Clients must call through ReportServiceClient,
// which selects the codec on every call.
package rpc
