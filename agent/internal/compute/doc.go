// Package compute derives fleet health from a DashboardSnapshot.
//
// Score is a pure function over a declarative component table:
// anomaly(30%) + connectivity(30%) + latency(20%) + insights(20%).
// Every component is clamped to 0–100 and the overall score is rounded to
// one decimal before the tier is chosen.
//
// Tiers: Excellent ≥90, Good ≥70, Fair ≥50, Poor ≥30, Critical below.
package compute
