package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAgentID         = "default"
	DefaultTokenEnv        = "ANALYTICS_API_TOKEN"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRateLimit       = 20.0
	DefaultBurst           = 7
	DefaultRetryAttempts   = 1
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second

	DefaultAnomalyLookback      = 7 * 24 * time.Hour
	DefaultAnomalyLimit         = 100
	DefaultClusterMetric        = "temperature"
	DefaultClusterCount         = 5
	DefaultInsightLookbackDays  = 7
	DefaultInsightMinConfidence = 0.7
	DefaultLatencyHours         = 24
	DefaultThroughputHours      = 24

	DefaultRefreshInterval = 60 * time.Second
	DefaultMaxIterations   = 5

	DefaultOfflineCriticalPct = 20.0
	DefaultLatencyCriticalMs  = 1000.0
	DefaultLatencyWarningMs   = 500.0
	DefaultPoorQualityDevices = 5

	DefaultBufferSize = 100
)

// DefaultAnomalySeverities is the severity filter applied to the anomaly query.
var DefaultAnomalySeverities = []string{"critical", "high", "medium"}

// Config is the top-level agent configuration. The server: section of a shared
// file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ID names the fleet this agent reports on. It keys the agent's reports
	// on the server.
	ID string `yaml:"id"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	Analytics AnalyticsConfig `yaml:"analytics"`
	Collect   CollectConfig   `yaml:"collect"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Output    OutputConfig    `yaml:"output"`

	// ServerEndpoint is the gRPC address of fleetpulse-server (host:port).
	// Empty disables report shipping.
	ServerEndpoint string `yaml:"server_endpoint"`

	// ServerAuth configures how the agent authenticates to fleetpulse-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	// BufferSize is the maximum number of reports held while the server is
	// unreachable.
	BufferSize int `yaml:"buffer_size"`
}

// AnalyticsConfig describes the remote analytics service.
type AnalyticsConfig struct {
	// BaseURL is the service root, e.g. https://analytics.example.com/api/v1.
	BaseURL string `yaml:"base_url"`

	// BaseURLEnv optionally names an environment variable that overrides BaseURL.
	BaseURLEnv string `yaml:"base_url_env"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	// Timeout applies to every outbound request.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit caps outbound requests per second; Burst is the bucket size.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// RetryAttempts is the number of tries per request. 1 disables retries.
	RetryAttempts uint `yaml:"retry_attempts"`

	Breaker BreakerConfig `yaml:"breaker"`
	TLS     TLSConfig     `yaml:"tls"`
}

// BreakerConfig tunes the circuit breaker in front of the analytics service.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// CollectConfig holds the fixed query parameters of a collection.
type CollectConfig struct {
	AnomalyLookback      time.Duration `yaml:"anomaly_lookback"`
	AnomalySeverities    []string      `yaml:"anomaly_severities"`
	AnomalyLimit         int           `yaml:"anomaly_limit"`
	ClusterMetric        string        `yaml:"cluster_metric"`
	ClusterCount         int           `yaml:"cluster_count"`
	IncludeOutliers      bool          `yaml:"include_outliers"`
	InsightLookbackDays  int           `yaml:"insight_lookback_days"`
	InsightMinConfidence float64       `yaml:"insight_min_confidence"`
	LatencyHours         int           `yaml:"latency_hours"`
	ThroughputHours      int           `yaml:"throughput_hours"`
}

// RefreshConfig controls the polling loop.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`

	// MaxIterations bounds the loop; 0 means run until interrupted.
	MaxIterations int `yaml:"max_iterations"`
}

// AlertsConfig overrides the alert rule thresholds.
type AlertsConfig struct {
	OfflineCriticalPct float64 `yaml:"offline_critical_pct"`
	LatencyCriticalMs  float64 `yaml:"latency_critical_ms"`
	LatencyWarningMs   float64 `yaml:"latency_warning_ms"`
	PoorQualityDevices int     `yaml:"poor_quality_devices"`
}

// OutputConfig selects where completed reports go besides the server.
type OutputConfig struct {
	// Console renders every report to stdout.
	Console bool `yaml:"console"`

	// ExportPath writes the latest report as indented JSON when non-empty.
	ExportPath string `yaml:"export_path"`

	// MetricsTextfile writes Prometheus metrics in text format when non-empty.
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// AuthConfig specifies how the agent authenticates to fleetpulse-server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the gRPC metadata key the API key is sent in (Mode == "apikey").
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns Header lowercased, defaulting to "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return "x-api-key"
	}
	return strings.ToLower(a.Header)
}

// URL returns the analytics base URL, preferring BaseURLEnv when it is set
// and the variable is non-empty.
func (a AnalyticsConfig) URL() string {
	if a.BaseURLEnv != "" {
		if v := os.Getenv(a.BaseURLEnv); v != "" {
			return v
		}
	}
	return a.BaseURL
}

// Token returns the API token resolved from the environment.
func (a AnalyticsConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Credentials is the resolved endpoint and token for the analytics service.
type Credentials struct {
	BaseURL string
	Token   string
}

// Resolve reads the endpoint and token from the config and environment and
// checks them. A token shaped like a JWT must not be expired at now; its
// signature is not verified here.
func (a AnalyticsConfig) Resolve(now time.Time) (Credentials, error) {
	base := strings.TrimRight(a.URL(), "/")
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Credentials{}, &ConfigurationError{Field: "analytics.base_url", Reason: fmt.Sprintf("invalid URL %q", base)}
	}

	token := a.Token()
	if token == "" {
		return Credentials{}, &ConfigurationError{Field: "analytics.token_env",
			Reason: fmt.Sprintf("environment variable %q is not set", a.TokenEnv)}
	}

	if strings.Count(token, ".") == 2 {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return Credentials{}, &ConfigurationError{Field: "analytics.token_env", Reason: "malformed JWT: " + err.Error()}
		}
		exp, err := claims.GetExpirationTime()
		if err != nil {
			return Credentials{}, &ConfigurationError{Field: "analytics.token_env", Reason: "invalid exp claim: " + err.Error()}
		}
		if exp != nil && !exp.After(now) {
			return Credentials{}, &ConfigurationError{Field: "analytics.token_env",
				Reason: fmt.Sprintf("token expired at %s", exp.UTC().Format(time.RFC3339))}
		}
	}

	return Credentials{BaseURL: base, Token: token}, nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (a AgentConfig) SlogLevel() slog.Level {
	switch strings.ToLower(a.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigurationError reports a missing or malformed setting. It is raised
// before any refresh cycle starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ID:       DefaultAgentID,
			LogLevel: "info",
			Analytics: AnalyticsConfig{
				TokenEnv:      DefaultTokenEnv,
				Timeout:       DefaultRequestTimeout,
				RateLimit:     DefaultRateLimit,
				Burst:         DefaultBurst,
				RetryAttempts: DefaultRetryAttempts,
				Breaker: BreakerConfig{
					MaxFailures: DefaultBreakerFailures,
					OpenTimeout: DefaultBreakerTimeout,
				},
			},
			Collect: CollectConfig{
				AnomalyLookback:      DefaultAnomalyLookback,
				AnomalySeverities:    append([]string(nil), DefaultAnomalySeverities...),
				AnomalyLimit:         DefaultAnomalyLimit,
				ClusterMetric:        DefaultClusterMetric,
				ClusterCount:         DefaultClusterCount,
				IncludeOutliers:      true,
				InsightLookbackDays:  DefaultInsightLookbackDays,
				InsightMinConfidence: DefaultInsightMinConfidence,
				LatencyHours:         DefaultLatencyHours,
				ThroughputHours:      DefaultThroughputHours,
			},
			Refresh: RefreshConfig{
				Interval:      DefaultRefreshInterval,
				MaxIterations: DefaultMaxIterations,
			},
			Alerts: AlertsConfig{
				OfflineCriticalPct: DefaultOfflineCriticalPct,
				LatencyCriticalMs:  DefaultLatencyCriticalMs,
				LatencyWarningMs:   DefaultLatencyWarningMs,
				PoorQualityDevices: DefaultPoorQualityDevices,
			},
			Output:     OutputConfig{Console: true},
			BufferSize: DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ID == "" {
		return &ConfigurationError{Field: "agent.id", Reason: "must not be empty"}
	}
	if a.Analytics.BaseURL == "" && a.Analytics.BaseURLEnv == "" {
		return &ConfigurationError{Field: "agent.analytics.base_url", Reason: "base_url or base_url_env is required"}
	}
	if a.Analytics.Timeout <= 0 {
		return &ConfigurationError{Field: "agent.analytics.timeout", Reason: "must be positive"}
	}
	if a.Analytics.RateLimit <= 0 || a.Analytics.Burst <= 0 {
		return &ConfigurationError{Field: "agent.analytics.rate_limit", Reason: "rate_limit and burst must be positive"}
	}
	if a.Analytics.RetryAttempts == 0 {
		return &ConfigurationError{Field: "agent.analytics.retry_attempts", Reason: "must be at least 1"}
	}
	if a.Collect.AnomalyLookback <= 0 {
		return &ConfigurationError{Field: "agent.collect.anomaly_lookback", Reason: "must be positive"}
	}
	if a.Collect.AnomalyLimit <= 0 {
		return &ConfigurationError{Field: "agent.collect.anomaly_limit", Reason: "must be positive"}
	}
	if a.Collect.ClusterCount < 2 {
		return &ConfigurationError{Field: "agent.collect.cluster_count", Reason: "must be at least 2"}
	}
	if a.Collect.InsightMinConfidence < 0 || a.Collect.InsightMinConfidence > 1 {
		return &ConfigurationError{Field: "agent.collect.insight_min_confidence", Reason: "must be in [0, 1]"}
	}
	if a.Collect.LatencyHours <= 0 || a.Collect.ThroughputHours <= 0 || a.Collect.InsightLookbackDays <= 0 {
		return &ConfigurationError{Field: "agent.collect", Reason: "lookback windows must be positive"}
	}
	if a.Refresh.Interval <= 0 {
		return &ConfigurationError{Field: "agent.refresh.interval", Reason: "must be positive"}
	}
	if a.Refresh.MaxIterations < 0 {
		return &ConfigurationError{Field: "agent.refresh.max_iterations", Reason: "must not be negative"}
	}
	if a.Alerts.LatencyWarningMs > a.Alerts.LatencyCriticalMs {
		return &ConfigurationError{Field: "agent.alerts.latency_warning_ms", Reason: "must not exceed latency_critical_ms"}
	}
	if a.BufferSize <= 0 {
		return &ConfigurationError{Field: "agent.buffer_size", Reason: "must be positive"}
	}
	switch a.ServerAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return &ConfigurationError{Field: "agent.server_auth.mode", Reason: fmt.Sprintf("unknown mode %q", a.ServerAuth.Mode)}
	}
	return nil
}
