package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  id: plant-a
  log_level: debug
  analytics:
    base_url: "https://analytics.example.com/api/v1"
    timeout: 10s
    retry_attempts: 3
  collect:
    cluster_metric: humidity
    cluster_count: 8
    include_outliers: false
    anomaly_severities: [critical]
  refresh:
    interval: 30s
    max_iterations: 0
  alerts:
    latency_warning_ms: 250
  server_endpoint: "localhost:50051"
  server_auth:
    mode: apikey
    key_env: FLEETPULSE_KEY
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ID != "plant-a" {
		t.Errorf("id: got %q", a.ID)
	}
	if a.Analytics.Timeout != 10*time.Second {
		t.Errorf("timeout: got %v", a.Analytics.Timeout)
	}
	if a.Analytics.RetryAttempts != 3 {
		t.Errorf("retry_attempts: got %d", a.Analytics.RetryAttempts)
	}
	if a.Collect.ClusterMetric != "humidity" || a.Collect.ClusterCount != 8 {
		t.Errorf("cluster: got %q/%d", a.Collect.ClusterMetric, a.Collect.ClusterCount)
	}
	if a.Collect.IncludeOutliers {
		t.Error("include_outliers: want false")
	}
	if len(a.Collect.AnomalySeverities) != 1 || a.Collect.AnomalySeverities[0] != "critical" {
		t.Errorf("anomaly_severities: got %v", a.Collect.AnomalySeverities)
	}
	if a.Refresh.Interval != 30*time.Second || a.Refresh.MaxIterations != 0 {
		t.Errorf("refresh: got %v/%d", a.Refresh.Interval, a.Refresh.MaxIterations)
	}
	if a.Alerts.LatencyWarningMs != 250 || a.Alerts.LatencyCriticalMs != DefaultLatencyCriticalMs {
		t.Errorf("alerts: got %+v", a.Alerts)
	}
	if a.ServerAuth.EffectiveHeader() != "x-api-key" {
		t.Errorf("header: got %q", a.ServerAuth.EffectiveHeader())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  analytics:
    base_url: "https://analytics.example.com/api/v1"
`)
	a := cfg.Agent

	if a.ID != DefaultAgentID {
		t.Errorf("default id: got %q", a.ID)
	}
	if a.Analytics.TokenEnv != DefaultTokenEnv {
		t.Errorf("default token_env: got %q", a.Analytics.TokenEnv)
	}
	if a.Analytics.Timeout != DefaultRequestTimeout {
		t.Errorf("default timeout: got %v", a.Analytics.Timeout)
	}
	if a.Collect.AnomalyLookback != 7*24*time.Hour {
		t.Errorf("default anomaly_lookback: got %v", a.Collect.AnomalyLookback)
	}
	if len(a.Collect.AnomalySeverities) != 3 {
		t.Errorf("default anomaly_severities: got %v", a.Collect.AnomalySeverities)
	}
	if !a.Collect.IncludeOutliers {
		t.Error("default include_outliers: want true")
	}
	if a.Collect.InsightMinConfidence != 0.7 {
		t.Errorf("default insight_min_confidence: got %v", a.Collect.InsightMinConfidence)
	}
	if a.Refresh.Interval != DefaultRefreshInterval || a.Refresh.MaxIterations != DefaultMaxIterations {
		t.Errorf("default refresh: got %+v", a.Refresh)
	}
	if a.Alerts.OfflineCriticalPct != 20 || a.Alerts.PoorQualityDevices != 5 {
		t.Errorf("default alerts: got %+v", a.Alerts)
	}
	if !a.Output.Console {
		t.Error("default console output: want true")
	}
	if a.ServerEndpoint != "" {
		t.Errorf("server_endpoint should default to empty, got %q", a.ServerEndpoint)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "missing base url",
			yaml:  "agent:\n  id: x\n",
			field: "agent.analytics.base_url",
		},
		{
			name:  "zero interval",
			yaml:  "agent:\n  analytics: {base_url: 'http://a'}\n  refresh: {interval: 0s}\n",
			field: "agent.refresh.interval",
		},
		{
			name:  "negative iterations",
			yaml:  "agent:\n  analytics: {base_url: 'http://a'}\n  refresh: {max_iterations: -1}\n",
			field: "agent.refresh.max_iterations",
		},
		{
			name:  "confidence out of range",
			yaml:  "agent:\n  analytics: {base_url: 'http://a'}\n  collect: {insight_min_confidence: 1.5}\n",
			field: "agent.collect.insight_min_confidence",
		},
		{
			name:  "warning above critical",
			yaml:  "agent:\n  analytics: {base_url: 'http://a'}\n  alerts: {latency_warning_ms: 2000}\n",
			field: "agent.alerts.latency_warning_ms",
		},
		{
			name:  "unknown server auth mode",
			yaml:  "agent:\n  analytics: {base_url: 'http://a'}\n  server_auth: {mode: kerberos}\n",
			field: "agent.server_auth.mode",
		},
		{
			name:  "zero retry attempts",
			yaml:  "agent:\n  analytics: {base_url: 'http://a', retry_attempts: 0}\n",
			field: "agent.analytics.retry_attempts",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("error %v is not a *ConfigurationError", err)
			}
			if cerr.Field != tc.field {
				t.Errorf("field = %q, want %q", cerr.Field, tc.field)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("agent: [not: valid")); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Setenv("TEST_ANALYTICS_TOKEN", "plain-api-key")
	t.Setenv("TEST_ANALYTICS_URL", "https://override.example.com/api/")

	a := AnalyticsConfig{
		BaseURL:    "https://analytics.example.com/api/v1",
		BaseURLEnv: "TEST_ANALYTICS_URL",
		TokenEnv:   "TEST_ANALYTICS_TOKEN",
	}
	creds, err := a.Resolve(now)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if creds.BaseURL != "https://override.example.com/api" {
		t.Errorf("BaseURL = %q (env override, trailing slash trimmed)", creds.BaseURL)
	}
	if creds.Token != "plain-api-key" {
		t.Errorf("Token = %q", creds.Token)
	}
}

func TestResolve_Errors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	expired := signToken(t, now.Add(-time.Hour))
	valid := signToken(t, now.Add(time.Hour))

	tests := []struct {
		name    string
		url     string
		token   string
		wantErr bool
	}{
		{"valid jwt", "https://a.example.com", valid, false},
		{"expired jwt", "https://a.example.com", expired, true},
		{"malformed jwt", "https://a.example.com", "aaa.bbb.ccc", true},
		{"missing token", "https://a.example.com", "", true},
		{"bad scheme", "ftp://a.example.com", "k", true},
		{"no host", "https://", "k", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TEST_TOKEN", tc.token)
			a := AnalyticsConfig{BaseURL: tc.url, TokenEnv: "TEST_TOKEN"}
			_, err := a.Resolve(now)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Resolve err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				var cerr *ConfigurationError
				if !errors.As(err, &cerr) {
					t.Errorf("error %v is not a *ConfigurationError", err)
				}
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "verbose": "INFO",
	} {
		if got := (AgentConfig{LogLevel: in}).SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestWatch_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "agent:\n  analytics: {base_url: 'http://a'}\n  alerts: {poor_quality_devices: 5}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 1)
	go Watch(ctx, path, func(c *Config) { //nolint:errcheck
		select {
		case got <- c:
		default:
		}
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "agent:\n  analytics: {base_url: 'http://a'}\n  alerts: {poor_quality_devices: 9}\n")

	select {
	case c := <-got:
		if c.Agent.Alerts.PoorQualityDevices != 9 {
			t.Errorf("reloaded poor_quality_devices = %d, want 9", c.Agent.Alerts.PoorQualityDevices)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

// --- helpers ---

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	return Load(path)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "fleet-operator",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}
