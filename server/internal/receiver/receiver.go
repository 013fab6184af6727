package receiver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fleetpulse/fleetpulse/pkg/rpc"
	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/store"
)

// Hook is called for every report the receiver accepts, after it is stored.
// Hooks must not block or modify the report.
type Hook interface {
	OnReport(ctx context.Context, r *types.Report)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, r *types.Report)

// OnReport calls f.
func (f HookFunc) OnReport(ctx context.Context, r *types.Report) { f(ctx, r) }

// RejectFunc is told why a report was refused.
type RejectFunc func(reason string)

// Receiver implements rpc.ReportServiceServer.
// It validates each incoming Report, stores it, then runs the hooks.
type Receiver struct {
	store  *store.Store
	hooks  []Hook
	reject RejectFunc
}

var _ rpc.ReportServiceServer = (*Receiver)(nil)

// New creates a Receiver that writes accepted reports to st.
func New(st *store.Store, hooks ...Hook) *Receiver {
	return &Receiver{store: st, hooks: hooks}
}

// OnReject sets the callback for refused reports.
func (r *Receiver) OnReject(fn RejectFunc) {
	r.reject = fn
}

// SendReport is the unary RPC handler called by fleetpulse-agent instances.
// Authentication is enforced by the gRPC server interceptor before this is called.
func (r *Receiver) SendReport(ctx context.Context, rep *types.Report) (*rpc.SendResponse, error) {
	if reason, msg := validate(rep); reason != "" {
		if r.reject != nil {
			r.reject(reason)
		}
		slog.Warn("receiver: report rejected", "reason", reason, "agent_id", rep.AgentID)
		return nil, status.Error(codes.InvalidArgument, msg)
	}

	r.store.Put(rep)

	slog.Debug("receiver: report stored",
		"agent_id", rep.AgentID,
		"report_id", rep.ID,
		"cycle", rep.Cycle,
		"score", rep.Health.OverallScore,
		"status", rep.Health.Status,
		"alerts", len(rep.Alerts),
	)

	for _, h := range r.hooks {
		h.OnReport(ctx, rep)
	}

	return &rpc.SendResponse{OK: true, Message: rep.ID}, nil
}

// validate returns a metric-friendly reason and a client message when rep is
// unacceptable, or empty strings when it is fine.
func validate(rep *types.Report) (reason, msg string) {
	switch {
	case rep.AgentID == "":
		return "missing_agent_id", "agent_id is required"
	case rep.ID == "":
		return "missing_id", "id is required"
	case rep.Health.OverallScore < 0 || rep.Health.OverallScore > 100:
		return "invalid_score", "fleet_health.overall_score must be within [0, 100]"
	}
	switch rep.Health.Status {
	case types.StatusExcellent, types.StatusGood, types.StatusFair, types.StatusPoor, types.StatusCritical:
	default:
		return "invalid_status", "fleet_health.status is not a known tier"
	}
	for _, a := range rep.Alerts {
		if a.Level != types.LevelWarning && a.Level != types.LevelCritical {
			return "invalid_alert", "alert level must be warning or critical"
		}
	}
	return "", ""
}
