package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// Server exposes per-agent fleet gauges plus receiver and notifier counters
// on its own registry.
type Server struct {
	reg *prometheus.Registry

	score    *prometheus.GaugeVec
	alerts   *prometheus.GaugeVec
	devices  *prometheus.GaugeVec
	received *prometheus.CounterVec
	rejected *prometheus.CounterVec
	notified *prometheus.CounterVec
}

// New registers the server metrics, including the Go runtime and process
// collectors, on a fresh registry.
func New() *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Server{
		reg: reg,
		score: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_server_fleet_health_score",
			Help: "Overall fleet health score (0-100) from each agent's latest report.",
		}, []string{"agent_id"}),
		alerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_server_fleet_alerts",
			Help: "Alerts in each agent's latest report by level.",
		}, []string{"agent_id", "level"}),
		devices: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetpulse_server_fleet_devices",
			Help: "Devices by connectivity state in each agent's latest report.",
		}, []string{"agent_id", "state"}),
		received: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetpulse_server_reports_received_total",
			Help: "Reports accepted by the receiver.",
		}, []string{"agent_id"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetpulse_server_reports_rejected_total",
			Help: "Reports rejected by validation.",
		}, []string{"reason"}),
		notified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetpulse_server_notifications_total",
			Help: "Alert delivery attempts by target and result.",
		}, []string{"target", "result"}),
	}
}

// Observe records an accepted report.
func (s *Server) Observe(r *types.Report) {
	id := r.AgentID
	s.received.WithLabelValues(id).Inc()
	s.score.WithLabelValues(id).Set(r.Health.OverallScore)
	s.alerts.WithLabelValues(id, string(types.LevelCritical)).Set(float64(r.CountAlerts(types.LevelCritical)))
	s.alerts.WithLabelValues(id, string(types.LevelWarning)).Set(float64(r.CountAlerts(types.LevelWarning)))

	conn := r.Snapshot.Connectivity.Summary
	s.devices.WithLabelValues(id, "online").Set(float64(conn.OnlineCount))
	s.devices.WithLabelValues(id, "offline").Set(float64(conn.OfflineCount))
	s.devices.WithLabelValues(id, "unknown").Set(float64(conn.UnknownCount))
}

// Rejected counts a report refused by validation.
func (s *Server) Rejected(reason string) {
	s.rejected.WithLabelValues(reason).Inc()
}

// Delivery counts one notification attempt.
func (s *Server) Delivery(target string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.notified.WithLabelValues(target, result).Inc()
}

// Forget drops the series of agents evicted from the store.
func (s *Server) Forget(agentIDs []string) {
	for _, id := range agentIDs {
		l := prometheus.Labels{"agent_id": id}
		s.score.DeletePartialMatch(l)
		s.alerts.DeletePartialMatch(l)
		s.devices.DeletePartialMatch(l)
		s.received.DeletePartialMatch(l)
	}
}

// WatchFleets registers gauges sampled on scrape: live fleet count and
// connected stream clients.
func (s *Server) WatchFleets(liveFleets, streamClients func() int) {
	f := promauto.With(s.reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fleetpulse_server_live_fleets",
		Help: "Agents with a live report in the store.",
	}, func() float64 { return float64(liveFleets()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fleetpulse_server_stream_clients",
		Help: "Connected WebSocket clients.",
	}, func() float64 { return float64(streamClients()) })
}

// Registry returns the underlying registry.
func (s *Server) Registry() *prometheus.Registry {
	return s.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg})
}
