// Package config handles configuration for the verifier, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the verifier.
//
// The trusted issuer's key is read from IssuerKeyFile when set and fetched
// from IssuerURL's well-known document otherwise.
type Config struct {
	EndpointAddrHTTP     string
	EndpointAddrGRPC     string
	Issuer               string
	IssuerURL            string
	IssuerKeyFile        string
	IssuerKeyTTL         time.Duration
	DiscoveryTimeout     time.Duration
	DiscoveryPositiveTTL time.Duration
	DiscoveryNegativeTTL time.Duration
	InsecureDiscovery    bool
	LogLevel             string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":10003"
	c.EndpointAddrGRPC = ":10004"
	c.Issuer = "localhost"
	c.IssuerURL = "http://localhost:10002"
	c.IssuerKeyFile = ""
	c.IssuerKeyTTL = time.Hour
	c.DiscoveryTimeout = 10 * time.Second
	c.DiscoveryPositiveTTL = 6 * time.Hour
	c.DiscoveryNegativeTTL = 5 * time.Minute
	c.InsecureDiscovery = false
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
