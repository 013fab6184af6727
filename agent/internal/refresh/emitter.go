package refresh

import (
	"context"
	"errors"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Emitter receives the report of every completed cycle. Emit is called with
// a context that is not cancelled by an interrupt so output is never left
// half-written.
type Emitter interface {
	Emit(ctx context.Context, r *types.Report) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, r *types.Report) error

func (f EmitterFunc) Emit(ctx context.Context, r *types.Report) error { return f(ctx, r) }

// Multi fans a report out to several emitters in order. Every emitter runs
// even if an earlier one fails; the errors are joined.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, r *types.Report) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
