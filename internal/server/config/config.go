// Package config handles configuration for the issuing server, including
// defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the issuing server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the wsapi and well-known endpoints.
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty keeps everything in memory.
//   - Hostname: issuer name written into certificates.
//   - PublicURL: externally visible base URL, used in verification links.
//   - SecretKey: HMAC secret for the session cookie (HS256).
//   - KeyAlgorithm / KeyFile: issuer signing key, created on first start.
//   - S3*: when S3Bucket is set the signing key lives in object storage.
//   - BcryptWorkFactor, MaxConcurrentHashes, HashQueueTimeout: password hashing.
//   - AuthDuration, CertificateValidity, SecretTTL, MinTimeBetweenEmails: protocol timing.
type Config struct {
	EndpointAddrHTTP     string
	DatabaseDSN          string
	Hostname             string
	PublicURL            string
	SecretKey            string
	LogLevel             string
	KeyAlgorithm         string
	KeyFile              string
	S3Bucket             string
	S3Key                string
	S3Region             string
	S3AccessKey          string
	S3SecretKey          string
	S3BaseEndpoint       string
	BcryptWorkFactor     int
	MaxConcurrentHashes  int
	HashQueueTimeout     time.Duration
	AuthDuration         time.Duration
	CertificateValidity  time.Duration
	SecretTTL            time.Duration
	MinTimeBetweenEmails time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: the session secret is insecure and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":10002"
	c.DatabaseDSN = ""
	c.Hostname = "localhost"
	c.PublicURL = "http://localhost:10002"
	c.SecretKey = "secretKey"
	c.LogLevel = "info"
	c.KeyAlgorithm = "RS256"
	c.KeyFile = "var/issuer.pem"
	c.S3Bucket = ""
	c.S3Key = "issuer.pem"
	c.S3Region = "us-east-1"
	c.S3AccessKey = ""
	c.S3SecretKey = ""
	c.S3BaseEndpoint = ""
	c.BcryptWorkFactor = 12
	c.MaxConcurrentHashes = 4
	c.HashQueueTimeout = 10 * time.Second
	c.AuthDuration = 28 * 24 * time.Hour
	c.CertificateValidity = 24 * time.Hour
	c.SecretTTL = 24 * time.Hour
	c.MinTimeBetweenEmails = time.Minute
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
