// Package auth provides API key authentication for fleetpulse-server.
//
// Guard.UnaryInterceptor validates the key carried in gRPC metadata on report
// submission; Guard.Middleware applies the same check to the REST API and the
// WebSocket stream.
//
// When mode != "apikey" or the key resolves to "", all calls pass through
// (useful for local development with auth disabled).
package auth
