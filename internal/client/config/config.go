package config

import "time"

// Config holds runtime settings for umactl.
//
// Fields:
//   - ServerURL: base URL of the umasend HTTP API.
//   - Token: bearer token returned by `umactl login`.
//   - RequestTimeout: per-request timeout; a full payment may poll for a while.
type Config struct {
	ServerURL      string
	Token          string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 60 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and the environment.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	return cfg
}
