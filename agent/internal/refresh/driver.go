package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetpulse/fleetpulse/agent/internal/compute"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Collector produces one snapshot per call.
type Collector interface {
	Collect(ctx context.Context) (*types.DashboardSnapshot, error)
}

// Alerter derives alerts from a snapshot. *alerts.Engine satisfies it.
type Alerter interface {
	Generate(s *types.DashboardSnapshot) []types.Alert
}

// Options control polling.
type Options struct {
	AgentID string

	// Interval is the wait between the end of one cycle and the start of the next.
	Interval time.Duration

	// MaxIterations bounds the number of cycles Run performs. 0 means no bound.
	MaxIterations int

	// OnError is called with every failed cycle. Optional.
	OnError func(cycle int, err error)

	// OnTransition is called on every state change. Optional.
	OnTransition func(from, to State)

	// Annotate may attach extra context to a report before it is emitted. Optional.
	Annotate func(r *types.Report)
}

// Stats summarises a Run.
type Stats struct {
	Cycles    int
	Failures  int
	Cancelled bool
}

// Driver runs collect → score → alert → emit cycles. Cycles never overlap.
type Driver struct {
	collector Collector
	emitter   Emitter
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	alerter Alerter
	state   State
}

// New returns a Driver in the Idle state.
func New(c Collector, a Alerter, e Emitter, opts Options) *Driver {
	return &Driver{
		collector: c,
		alerter:   a,
		emitter:   e,
		opts:      opts,
		now:       time.Now,
	}
}

// SetAlerter swaps the alert engine. The change applies from the next cycle.
func (d *Driver) SetAlerter(a Alerter) {
	d.mu.Lock()
	d.alerter = a
	d.mu.Unlock()
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) transition(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()

	if from != to && d.opts.OnTransition != nil {
		d.opts.OnTransition(from, to)
	}
}

// RunOnce performs a single cycle and stops. The returned error is the
// collection or emission failure, if any; a report is returned whenever
// collection succeeded.
func (d *Driver) RunOnce(ctx context.Context) (*types.Report, error) {
	r, err := d.cycle(ctx, 1)
	d.transition(Done)
	return r, err
}

// Run repeats cycles every Interval until MaxIterations cycles have run or
// ctx is cancelled. Cancellation is only observed between cycles and during
// the wait; a cycle in progress always finishes emitting. Failed cycles are
// reported through OnError and polling continues.
func (d *Driver) Run(ctx context.Context) Stats {
	var st Stats
	defer d.transition(Done)

	for n := 1; d.opts.MaxIterations <= 0 || n <= d.opts.MaxIterations; n++ {
		if ctx.Err() != nil {
			st.Cancelled = true
			return st
		}

		if _, err := d.cycle(ctx, n); err != nil {
			st.Failures++
			slog.Error("refresh: cycle failed", "cycle", n, "error", err)
			if d.opts.OnError != nil {
				d.opts.OnError(n, err)
			}
		}
		st.Cycles++

		if d.opts.MaxIterations > 0 && n >= d.opts.MaxIterations {
			break
		}

		d.transition(Waiting)
		timer := time.NewTimer(d.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			st.Cancelled = true
			slog.Info("refresh: polling cancelled", "cycles", st.Cycles)
			return st
		case <-timer.C:
		}
	}
	return st
}

// cycle runs one collect → score → alert → emit pass. Collection and
// emission are detached from ctx cancellation so an interrupt lets the
// current cycle finish.
func (d *Driver) cycle(ctx context.Context, n int) (*types.Report, error) {
	detached := context.WithoutCancel(ctx)

	d.transition(Collecting)
	snap, err := d.collector.Collect(detached)
	if err != nil {
		return nil, err
	}

	d.transition(Scoring)
	health := compute.Score(snap)

	d.transition(Alerting)
	d.mu.Lock()
	alerter := d.alerter
	d.mu.Unlock()
	fired := alerter.Generate(snap)

	report := &types.Report{
		ID:          uuid.NewString(),
		AgentID:     d.opts.AgentID,
		Cycle:       n,
		GeneratedAt: d.now().UTC(),
		Health:      health,
		Alerts:      fired,
		Snapshot:    *snap,
	}
	if d.opts.Annotate != nil {
		d.opts.Annotate(report)
	}

	d.transition(Emitting)
	slog.Debug("refresh: emitting report",
		"cycle", n,
		"score", health.OverallScore,
		"status", health.Status,
		"alerts", len(fired),
	)
	if d.emitter != nil {
		if err := d.emitter.Emit(detached, report); err != nil {
			return report, fmt.Errorf("emit: %w", err)
		}
	}
	return report, nil
}
