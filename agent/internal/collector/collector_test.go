package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fleetpulse/fleetpulse/agent/internal/analytics"
	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// fakeQuerier returns canned responses. A domain listed in fail returns that
// error; a domain listed in block waits until its context is cancelled.
type fakeQuerier struct {
	fail  map[types.Domain]error
	block map[types.Domain]bool
	nilOn types.Domain

	mu        sync.Mutex
	calls     map[types.Domain]int
	cancelled atomic.Int32
	cluster   analytics.ClusterQuery
	latencyH  int
}

func (f *fakeQuerier) enter(ctx context.Context, d types.Domain) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[types.Domain]int{}
	}
	f.calls[d]++
	f.mu.Unlock()

	if err := f.fail[d]; err != nil {
		return err
	}
	if f.block[d] {
		<-ctx.Done()
		f.cancelled.Add(1)
		return ctx.Err()
	}
	return nil
}

func (f *fakeQuerier) QueryAnomalies(ctx context.Context, _ analytics.AnomalyQuery) (*types.AnomalySnapshot, error) {
	if err := f.enter(ctx, types.DomainAnomalies); err != nil {
		return nil, err
	}
	return &types.AnomalySnapshot{Summary: types.AnomalySummary{Total: 3, BySeverity: map[string]int{"critical": 1}}}, nil
}

func (f *fakeQuerier) QueryClusters(ctx context.Context, q analytics.ClusterQuery) (*types.ClustersSnapshot, error) {
	f.mu.Lock()
	f.cluster = q
	f.mu.Unlock()
	if err := f.enter(ctx, types.DomainClusters); err != nil {
		return nil, err
	}
	return &types.ClustersSnapshot{SilhouetteScore: 0.5}, nil
}

func (f *fakeQuerier) QueryInsights(ctx context.Context, _ analytics.InsightQuery) (*types.InsightsSnapshot, error) {
	if err := f.enter(ctx, types.DomainInsights); err != nil {
		return nil, err
	}
	return &types.InsightsSnapshot{FleetSummary: types.FleetSummary{TotalDevices: 50}}, nil
}

func (f *fakeQuerier) QueryConnectivity(ctx context.Context, _ string) (*types.ConnectivitySnapshot, error) {
	if err := f.enter(ctx, types.DomainConnectivity); err != nil {
		return nil, err
	}
	return &types.ConnectivitySnapshot{Summary: types.ConnectivitySummary{TotalDevices: 50, OnlineCount: 45, OfflineCount: 5}}, nil
}

func (f *fakeQuerier) QueryLatency(ctx context.Context, hours int) (*types.LatencySnapshot, error) {
	f.mu.Lock()
	f.latencyH = hours
	f.mu.Unlock()
	if err := f.enter(ctx, types.DomainLatency); err != nil {
		return nil, err
	}
	return &types.LatencySnapshot{Summary: types.LatencySummary{OverallP95Ms: 300}}, nil
}

func (f *fakeQuerier) QueryThroughput(ctx context.Context, _ int) (*types.ThroughputSnapshot, error) {
	if err := f.enter(ctx, types.DomainThroughput); err != nil {
		return nil, err
	}
	return &types.ThroughputSnapshot{Summary: types.ThroughputSummary{TotalMessagesIn: 1000}}, nil
}

func (f *fakeQuerier) QueryQuality(ctx context.Context) (*types.QualitySnapshot, error) {
	if err := f.enter(ctx, types.DomainQuality); err != nil {
		return nil, err
	}
	if f.nilOn == types.DomainQuality {
		return nil, nil
	}
	return &types.QualitySnapshot{Summary: types.QualitySummary{Distribution: types.QualityDistribution{Poor: 2}}}, nil
}

func testConfig() config.CollectConfig {
	return config.CollectConfig{
		AnomalyLookback:      7 * 24 * time.Hour,
		AnomalySeverities:    []string{"critical", "high", "medium"},
		AnomalyLimit:         100,
		ClusterMetric:        "temperature",
		ClusterCount:         5,
		IncludeOutliers:      true,
		InsightLookbackDays:  7,
		InsightMinConfidence: 0.7,
		LatencyHours:         24,
		ThroughputHours:      24,
	}
}

func TestCollect_AllDomains(t *testing.T) {
	fq := &fakeQuerier{}
	c := New(fq, testConfig())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !snap.CapturedAt.Equal(fixed) {
		t.Errorf("CapturedAt = %v, want %v", snap.CapturedAt, fixed)
	}
	if snap.Anomalies.Summary.Total != 3 ||
		snap.Clusters.SilhouetteScore != 0.5 ||
		snap.Insights.FleetSummary.TotalDevices != 50 ||
		snap.Connectivity.Summary.OfflineCount != 5 ||
		snap.Latency.Summary.OverallP95Ms != 300 ||
		snap.Throughput.Summary.TotalMessagesIn != 1000 ||
		snap.Quality.Summary.Distribution.Poor != 2 {
		t.Errorf("snapshot fields not populated: %+v", snap)
	}
	for _, d := range types.Domains {
		if fq.calls[d] != 1 {
			t.Errorf("domain %s queried %d times, want 1", d, fq.calls[d])
		}
	}
	if fq.cluster.Metric != "temperature" || fq.cluster.Count != 5 || !fq.cluster.IncludeOutliers {
		t.Errorf("cluster query = %+v", fq.cluster)
	}
	if fq.cluster.Window == nil || !fq.cluster.Window.End.Equal(fixed) {
		t.Errorf("cluster window = %+v, want ending at capture time", fq.cluster.Window)
	}
	if fq.latencyH != 24 {
		t.Errorf("latency hours = %d", fq.latencyH)
	}
}

func TestCollect_FailureIsAllOrNothing(t *testing.T) {
	boom := errors.New("503 service unavailable")
	for _, d := range types.Domains {
		t.Run(string(d), func(t *testing.T) {
			fq := &fakeQuerier{fail: map[types.Domain]error{d: boom}}
			snap, err := New(fq, testConfig()).Collect(context.Background())
			if snap != nil {
				t.Fatalf("snapshot = %+v, want nil on failure", snap)
			}
			var cerr *CollectionError
			if !errors.As(err, &cerr) {
				t.Fatalf("err = %v, want *CollectionError", err)
			}
			if cerr.Domain != d {
				t.Errorf("Domain = %s, want %s", cerr.Domain, d)
			}
			if !errors.Is(err, boom) {
				t.Errorf("err does not wrap the query error: %v", err)
			}
		})
	}
}

func TestCollect_FailureCancelsSiblings(t *testing.T) {
	fq := &fakeQuerier{
		fail: map[types.Domain]error{types.DomainLatency: errors.New("timeout")},
		block: map[types.Domain]bool{
			types.DomainAnomalies:    true,
			types.DomainClusters:     true,
			types.DomainConnectivity: true,
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := New(fq, testConfig()).Collect(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		var cerr *CollectionError
		if !errors.As(err, &cerr) || cerr.Domain != types.DomainLatency {
			t.Fatalf("err = %v, want latency CollectionError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Collect did not return after a query failed")
	}
	if n := fq.cancelled.Load(); n != 3 {
		t.Errorf("%d blocked queries observed cancellation, want 3", n)
	}
}

func TestCollect_ParentCancelled(t *testing.T) {
	fq := &fakeQuerier{block: map[types.Domain]bool{types.DomainQuality: true}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	snap, err := New(fq, testConfig()).Collect(ctx)
	if snap != nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("Collect = (%v, %v), want (nil, context.Canceled)", snap, err)
	}
}

func TestCollect_EmptyResponse(t *testing.T) {
	fq := &fakeQuerier{nilOn: types.DomainQuality}
	snap, err := New(fq, testConfig()).Collect(context.Background())
	var cerr *CollectionError
	if snap != nil || !errors.As(err, &cerr) || cerr.Domain != types.DomainQuality {
		t.Fatalf("Collect = (%v, %v), want quality CollectionError", snap, err)
	}
}

func TestCollectionError_Message(t *testing.T) {
	err := &CollectionError{Domain: types.DomainInsights, Err: errors.New("boom")}
	if got, want := err.Error(), "collect insights: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
