// Package security inspects the TLS certificate of the analytics endpoint.
// The agent runs Check as a preflight before the first cycle and attaches
// the result to every report it ships.
package security
