// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort        port for the gRPC report receiver (default 50051)
//   - HTTPPort        port for the REST API and WebSocket hub (default 8080)
//   - Auth.Mode       "apikey" or "none"
//   - Auth.KeyEnv     environment variable holding the expected API key
//   - Auth.Header     gRPC metadata/HTTP header name (default "x-api-key")
//   - Report.TTL      how long an agent's latest report stays live (default 5m)
//   - Notify.Cooldown repeat suppression for delivered alerts (default 0)
//   - Notify.Webhooks slack, teams or generic http targets
//   - Notify.Redis    optional pub/sub channel for alerts
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
