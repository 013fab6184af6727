// Package config loads and watches the agent configuration file.
//
// Load(path) reads the agent: section of a YAML file, applies defaults
// (60s refresh interval, 5 iterations, 30s request timeout, 7-day anomaly and
// insight windows, 24h latency and throughput windows) and validates it.
// Secrets never live in the file: token_env and key_env name the environment
// variables that hold them.
//
// AnalyticsConfig.Resolve turns the endpoint and token into Credentials and
// returns a *ConfigurationError when either is missing or the token is an
// expired JWT. The agent calls it once before the first refresh cycle.
//
// Watch(ctx, path, onChange) uses fsnotify on the file's directory so atomic
// saves from editors are picked up, and calls onChange with each valid reload.
package config
