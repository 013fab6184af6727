// Package refresh drives the collect → score → alert → emit cycle.
//
// RunOnce performs one cycle. Run polls on a fixed interval for a bounded
// number of iterations, or until its context is cancelled. Cancellation is
// cooperative: it is checked before each cycle and during the inter-cycle
// wait, and a cycle already collecting still runs through emission before
// the driver reaches Done. No wait follows the final iteration.
//
// States: Idle → Collecting → Scoring → Alerting → Emitting → (Waiting | Done).
package refresh
