// Package alerts turns a DashboardSnapshot into operator-facing alerts.
//
// Rules live in a declarative table (rules.go). Each rule observes one
// domain and carries severity tiers ordered most severe first; the first
// tier whose metric exceeds its threshold fires and the rest are skipped,
// so a domain produces at most one alert per evaluation.
//
// The engine is stateless. There is no deduplication across cycles; the
// server's notifier applies an optional cooldown before delivery.
package alerts
