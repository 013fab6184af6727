// Package collector assembles a DashboardSnapshot from the seven analytics
// domain queries.
//
// The queries are independent and run concurrently under one errgroup. A
// snapshot is all-or-nothing: the first failure cancels the rest and the
// caller gets a *CollectionError naming the domain, never a partial snapshot.
package collector
