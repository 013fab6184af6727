package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/fleetpulse/fleetpulse/pkg/rpc"
	"github.com/fleetpulse/fleetpulse/pkg/types"
	"github.com/fleetpulse/fleetpulse/server/internal/api"
	"github.com/fleetpulse/fleetpulse/server/internal/auth"
	"github.com/fleetpulse/fleetpulse/server/internal/config"
	"github.com/fleetpulse/fleetpulse/server/internal/metrics"
	"github.com/fleetpulse/fleetpulse/server/internal/notify"
	"github.com/fleetpulse/fleetpulse/server/internal/receiver"
	"github.com/fleetpulse/fleetpulse/server/internal/store"
	"github.com/fleetpulse/fleetpulse/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	streamInterval := flag.Duration("stream-interval", 5*time.Second, "how often the WebSocket hub broadcasts the fleet overview")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("fleetpulse-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())

	guard := auth.New(cfg.Server.Auth)
	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"auth_enabled", guard.Enabled(),
		"report_ttl", cfg.Server.Report.TTL,
		"notify_cooldown", cfg.Server.Notify.Cooldown,
		"webhooks", len(cfg.Server.Notify.Webhooks),
		"redis", cfg.Server.Notify.Redis.Addr != "",
	)
	if cfg.Server.Auth.Mode == "apikey" && !guard.Enabled() {
		slog.Warn("auth mode is apikey but the key env var is empty; all calls are allowed",
			"key_env", cfg.Server.Auth.KeyEnv)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(cfg.Server.Report.TTL)
	met := metrics.New()
	hub := ws.New(st, *streamInterval)
	met.WatchFleets(func() int { return len(st.List()) }, hub.Count)

	notifier := notify.New(cfg.Server.Notify, met)
	if err := notifier.Ping(ctx); err != nil {
		// Publishing retries on every report; a down Redis must not stop intake.
		slog.Warn("redis unreachable at startup", "addr", cfg.Server.Notify.Redis.Addr, "err", err)
	}

	go st.Run(ctx, func(agentIDs []string) {
		slog.Info("agents stopped reporting", "agent_ids", agentIDs)
		met.Forget(agentIDs)
		notifier.Forget(agentIDs)
		hub.PublishEvicted(agentIDs)
	})
	go hub.Run(ctx)

	rec := receiver.New(st,
		receiver.HookFunc(func(_ context.Context, r *types.Report) { met.Observe(r) }),
		receiver.HookFunc(notifier.Notify),
		receiver.HookFunc(func(_ context.Context, r *types.Report) { hub.PublishReport(r) }),
	)
	rec.OnReject(met.Rejected)

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(guard.UnaryInterceptor()))
	rpc.RegisterReportServiceServer(grpcSrv, rec)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port",
			"port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// REST API, /metrics and the WebSocket stream share HTTPPort.
	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(st, api.Options{
			Auth:    guard.Middleware,
			Metrics: met.Handler(),
			Stream:  hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("fleetpulse-server shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	grpcSrv.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "err", err)
	}
	if err := notifier.Close(); err != nil {
		slog.Warn("notifier close", "err", err)
	}
}
