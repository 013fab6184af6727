package rpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

type echoServer struct {
	got *types.Report
}

func (e *echoServer) SendReport(_ context.Context, r *types.Report) (*SendResponse, error) {
	e.got = r
	return &SendResponse{OK: true, Message: r.ID}, nil
}

func TestSendReport_RoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &echoServer{}
	gs := grpc.NewServer()
	RegisterReportServiceServer(gs, srv)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	in := &types.Report{
		ID:      "r-1",
		AgentID: "plant-a",
		Health:  types.FleetHealth{OverallScore: 87.5, Status: types.StatusGood},
		Alerts:  []types.Alert{{Level: types.LevelWarning, Domain: "latency", Title: "Elevated Latency: 600ms P95"}},
	}
	resp, err := NewReportServiceClient(conn).SendReport(context.Background(), in)
	if err != nil {
		t.Fatalf("SendReport: %v", err)
	}
	if !resp.OK || resp.Message != "r-1" {
		t.Errorf("resp = %+v, want OK with message r-1", resp)
	}
	if srv.got == nil || srv.got.AgentID != "plant-a" || srv.got.Health.OverallScore != 87.5 {
		t.Fatalf("server received %+v", srv.got)
	}
	if len(srv.got.Alerts) != 1 || srv.got.Alerts[0].Level != types.LevelWarning {
		t.Errorf("alerts = %+v", srv.got.Alerts)
	}
}
