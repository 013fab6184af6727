// Package notify delivers the alerts carried by incoming fleet reports.
//
// Each alert becomes an Event posted to the configured webhooks (slack, teams
// or plain http JSON) and, when server.notify.redis.addr is set, published to
// a Redis pub/sub channel. A per (agent, domain, level) cooldown suppresses
// repeats; the default of zero delivers on every cycle.
package notify
