package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetpulse/fleetpulse/agent/internal/alerts"
	"github.com/fleetpulse/fleetpulse/agent/internal/analytics"
	"github.com/fleetpulse/fleetpulse/agent/internal/collector"
	"github.com/fleetpulse/fleetpulse/agent/internal/config"
	"github.com/fleetpulse/fleetpulse/agent/internal/metrics"
	"github.com/fleetpulse/fleetpulse/agent/internal/refresh"
	"github.com/fleetpulse/fleetpulse/agent/internal/render"
	"github.com/fleetpulse/fleetpulse/agent/internal/security"
	"github.com/fleetpulse/fleetpulse/agent/internal/shipper"
	"github.com/fleetpulse/fleetpulse/pkg/types"
)

const flushTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	loop := flag.Bool("loop", false, "poll on the configured interval instead of running one cycle")
	interval := flag.Duration("interval", 0, "override refresh.interval (with -loop)")
	iterations := flag.Int("iterations", -1, "override refresh.max_iterations (with -loop, 0 = unbounded)")
	export := flag.String("export", "", "write each report as JSON to this path")
	flag.Parse()

	// Logs go to stderr so the dashboard owns stdout.
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logConfigError("failed to load config", err)
		return 1
	}
	a := cfg.Agent
	level.Set(a.SlogLevel())

	if *interval > 0 {
		a.Refresh.Interval = *interval
	}
	if *iterations >= 0 {
		a.Refresh.MaxIterations = *iterations
	}
	if *export != "" {
		a.Output.ExportPath = *export
	}

	creds, err := a.Analytics.Resolve(time.Now())
	if err != nil {
		logConfigError("invalid analytics credentials", err)
		return 1
	}

	mode := "single-shot"
	if *loop {
		mode = "loop"
	}
	slog.Info("fleetpulse-agent starting",
		"agent", a.ID,
		"analytics", creds.BaseURL,
		"mode", mode,
		"interval", a.Refresh.Interval,
		"max_iterations", a.Refresh.MaxIterations,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cert := security.Check(ctx, creds.BaseURL, a.Analytics.TLS.InsecureSkipVerify)
	logCert(cert)

	client := analytics.New(a.Analytics, creds)
	coll := collector.New(client, a.Collect)
	rec := metrics.NewRecorder(a.Output.MetricsTextfile)

	emitters := refresh.Multi{rec}
	if a.Output.Console {
		maxIter := 0
		if *loop {
			maxIter = a.Refresh.MaxIterations
		}
		emitters = append(emitters, render.NewConsole(os.Stdout, maxIter))
	}
	if a.Output.ExportPath != "" {
		emitters = append(emitters, render.NewJSONExport(a.Output.ExportPath))
	}

	// The shipper outlives the signal context so a final flush can complete.
	var ship *shipper.Shipper
	shipCtx, stopShip := context.WithCancel(context.Background())
	defer stopShip()
	if a.ServerEndpoint != "" {
		ship = shipper.New(a)
		go ship.Run(shipCtx)
		emitters = append(emitters, ship)
		slog.Info("shipping reports", "endpoint", a.ServerEndpoint)
	}

	driver := refresh.New(coll, alerts.NewEngine(alerts.ThresholdsFrom(a.Alerts)), emitters, refresh.Options{
		AgentID:       a.ID,
		Interval:      a.Refresh.Interval,
		MaxIterations: a.Refresh.MaxIterations,
		OnError:       rec.RecordFailure,
		OnTransition: func(from, to refresh.State) {
			slog.Debug("refresh: state", "from", from.String(), "to", to.String())
		},
		Annotate: func(r *types.Report) { r.AnalyticsCert = cert },
	})

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			th := alerts.ThresholdsFrom(updated.Agent.Alerts)
			driver.SetAlerter(alerts.NewEngine(th))
			level.Set(updated.Agent.SlogLevel())
			slog.Info("config hot-reloaded", "thresholds", th)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	code := 0
	if *loop {
		st := driver.Run(ctx)
		slog.Info("refresh loop finished",
			"cycles", st.Cycles, "failures", st.Failures, "cancelled", st.Cancelled)
	} else if _, err := driver.RunOnce(ctx); err != nil {
		var cerr *collector.CollectionError
		if errors.As(err, &cerr) {
			slog.Error("collection failed", "domain", cerr.Domain, "err", cerr.Err)
		} else {
			slog.Error("refresh failed", "err", err)
		}
		code = 1
	}

	if ship != nil {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
		if err := ship.Flush(flushCtx); err != nil {
			slog.Warn("shipper: reports not delivered before exit", "err", err)
		}
		cancelFlush()
	}

	slog.Info("fleetpulse-agent shutting down")
	return code
}

func logConfigError(msg string, err error) {
	var cerr *config.ConfigurationError
	if errors.As(err, &cerr) {
		slog.Error(msg, "field", cerr.Field, "reason", cerr.Reason)
		return
	}
	slog.Error(msg, "err", err)
}

func logCert(cs *types.CertStatus) {
	if cs == nil {
		return
	}
	switch cs.Status {
	case security.StatusValid:
		slog.Info("analytics certificate ok", "endpoint", cs.Endpoint, "days_left", cs.DaysLeft)
	case security.StatusUnreachable:
		slog.Warn("analytics endpoint TLS handshake failed", "endpoint", cs.Endpoint)
	default:
		slog.Warn("analytics certificate "+cs.Status,
			"endpoint", cs.Endpoint, "days_left", cs.DaysLeft, "not_after", cs.NotAfter)
	}
}
