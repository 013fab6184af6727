package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetpulse/fleetpulse/agent/internal/analytics"
	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Querier is the set of analytics queries a collection needs.
// *analytics.Client satisfies it.
type Querier interface {
	QueryAnomalies(ctx context.Context, q analytics.AnomalyQuery) (*types.AnomalySnapshot, error)
	QueryClusters(ctx context.Context, q analytics.ClusterQuery) (*types.ClustersSnapshot, error)
	QueryInsights(ctx context.Context, q analytics.InsightQuery) (*types.InsightsSnapshot, error)
	QueryConnectivity(ctx context.Context, status string) (*types.ConnectivitySnapshot, error)
	QueryLatency(ctx context.Context, hours int) (*types.LatencySnapshot, error)
	QueryThroughput(ctx context.Context, hours int) (*types.ThroughputSnapshot, error)
	QueryQuality(ctx context.Context) (*types.QualitySnapshot, error)
}

var errEmptyResponse = errors.New("empty response")

// CollectionError reports which domain query failed a collection.
type CollectionError struct {
	Domain types.Domain
	Err    error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Domain, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Collector gathers one DashboardSnapshot by issuing all seven domain
// queries concurrently.
type Collector struct {
	q   Querier
	cfg config.CollectConfig
	now func() time.Time
}

// New returns a Collector issuing queries through q with the parameters in cfg.
func New(q Querier, cfg config.CollectConfig) *Collector {
	return &Collector{q: q, cfg: cfg, now: time.Now}
}

// Collect runs the seven queries in parallel and assembles their results.
// The snapshot is all-or-nothing: if any query fails the remaining ones are
// cancelled and a *CollectionError naming the first failed domain is
// returned with a nil snapshot.
func (c *Collector) Collect(ctx context.Context) (*types.DashboardSnapshot, error) {
	start := c.now()
	g, gctx := errgroup.WithContext(ctx)

	var (
		anomalies    *types.AnomalySnapshot
		clusters     *types.ClustersSnapshot
		insights     *types.InsightsSnapshot
		connectivity *types.ConnectivitySnapshot
		latency      *types.LatencySnapshot
		throughput   *types.ThroughputSnapshot
		quality      *types.QualitySnapshot
	)

	run := func(domain types.Domain, fn func(context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				return &CollectionError{Domain: domain, Err: err}
			}
			return nil
		})
	}

	run(types.DomainAnomalies, func(ctx context.Context) (err error) {
		anomalies, err = c.q.QueryAnomalies(ctx, analytics.AnomalyQuery{
			Window:     windowPtr(analytics.LastDuration(start, c.cfg.AnomalyLookback)),
			Severities: c.cfg.AnomalySeverities,
			Limit:      c.cfg.AnomalyLimit,
		})
		return err
	})
	run(types.DomainClusters, func(ctx context.Context) (err error) {
		clusters, err = c.q.QueryClusters(ctx, analytics.ClusterQuery{
			Metric:          c.cfg.ClusterMetric,
			Count:           c.cfg.ClusterCount,
			Window:          windowPtr(analytics.LastDuration(start, c.cfg.AnomalyLookback)),
			IncludeOutliers: c.cfg.IncludeOutliers,
		})
		return err
	})
	run(types.DomainInsights, func(ctx context.Context) (err error) {
		insights, err = c.q.QueryInsights(ctx, analytics.InsightQuery{
			LookbackDays:  c.cfg.InsightLookbackDays,
			MinConfidence: c.cfg.InsightMinConfidence,
		})
		return err
	})
	run(types.DomainConnectivity, func(ctx context.Context) (err error) {
		connectivity, err = c.q.QueryConnectivity(ctx, "")
		return err
	})
	run(types.DomainLatency, func(ctx context.Context) (err error) {
		latency, err = c.q.QueryLatency(ctx, c.cfg.LatencyHours)
		return err
	})
	run(types.DomainThroughput, func(ctx context.Context) (err error) {
		throughput, err = c.q.QueryThroughput(ctx, c.cfg.ThroughputHours)
		return err
	})
	run(types.DomainQuality, func(ctx context.Context) (err error) {
		quality, err = c.q.QueryQuality(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Warn("collector: collection failed", "error", err, "elapsed", c.now().Sub(start))
		return nil, err
	}

	for _, r := range []struct {
		domain  types.Domain
		missing bool
	}{
		{types.DomainAnomalies, anomalies == nil},
		{types.DomainClusters, clusters == nil},
		{types.DomainInsights, insights == nil},
		{types.DomainConnectivity, connectivity == nil},
		{types.DomainLatency, latency == nil},
		{types.DomainThroughput, throughput == nil},
		{types.DomainQuality, quality == nil},
	} {
		if r.missing {
			return nil, &CollectionError{Domain: r.domain, Err: errEmptyResponse}
		}
	}

	snap := &types.DashboardSnapshot{CapturedAt: start}
	snap.Anomalies = *anomalies
	snap.Clusters = *clusters
	snap.Insights = *insights
	snap.Connectivity = *connectivity
	snap.Latency = *latency
	snap.Throughput = *throughput
	snap.Quality = *quality

	slog.Debug("collector: snapshot collected", "elapsed", c.now().Sub(start))
	return snap, nil
}

func windowPtr(tr analytics.TimeRange) *analytics.TimeRange { return &tr }
