// Package metrics exports agent health results as Prometheus metrics.
//
// Recorder is a refresh emitter: every report updates gauges for the overall
// score, component scores, tier, alert counts and device states. With
// output.metrics_textfile set, the registry is written in text exposition
// format after every cycle for node_exporter's textfile collector.
package metrics
