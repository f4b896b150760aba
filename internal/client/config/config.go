package config

import "time"

// Config holds runtime settings for the idkeeper CLI.
type Config struct {
	ServerURL      string
	VerifierURL    string
	DatabaseDSN    string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	LogLevel       string
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:10002"
	c.VerifierURL = "http://localhost:10003"
	c.DatabaseDSN = "idkeeper.db"
	c.PollInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "error"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
