package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
	"github.com/dmitrijs2005/idkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the server configuration. Interval
// fields use timex.Duration so both "90s" and integer nanoseconds parse.
type JsonConfig struct {
	EndpointAddrHTTP     string         `json:"endpoint_addr_http"`
	DatabaseDSN          string         `json:"database_dsn"`
	Hostname             string         `json:"hostname"`
	PublicURL            string         `json:"public_url"`
	SecretKey            string         `json:"secret_key"`
	LogLevel             string         `json:"log_level"`
	KeyAlgorithm         string         `json:"key_algorithm"`
	KeyFile              string         `json:"key_file"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Key                string         `json:"s3_key"`
	S3Region             string         `json:"s3_region"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	BcryptWorkFactor     int            `json:"bcrypt_work_factor"`
	MaxConcurrentHashes  int            `json:"max_concurrent_hashes"`
	HashQueueTimeout     timex.Duration `json:"hash_queue_timeout"`
	AuthDuration         timex.Duration `json:"authentication_duration"`
	CertificateValidity  timex.Duration `json:"certificate_validity"`
	SecretTTL            timex.Duration `json:"secret_ttl"`
	MinTimeBetweenEmails timex.Duration `json:"min_time_between_emails"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:     c.EndpointAddrHTTP,
		DatabaseDSN:          c.DatabaseDSN,
		Hostname:             c.Hostname,
		PublicURL:            c.PublicURL,
		SecretKey:            c.SecretKey,
		LogLevel:             c.LogLevel,
		KeyAlgorithm:         c.KeyAlgorithm,
		KeyFile:              c.KeyFile,
		S3Bucket:             c.S3Bucket,
		S3Key:                c.S3Key,
		S3Region:             c.S3Region,
		S3AccessKey:          c.S3AccessKey,
		S3SecretKey:          c.S3SecretKey,
		S3BaseEndpoint:       c.S3BaseEndpoint,
		BcryptWorkFactor:     c.BcryptWorkFactor,
		MaxConcurrentHashes:  c.MaxConcurrentHashes,
		HashQueueTimeout:     timex.Duration{Duration: c.HashQueueTimeout},
		AuthDuration:         timex.Duration{Duration: c.AuthDuration},
		CertificateValidity:  timex.Duration{Duration: c.CertificateValidity},
		SecretTTL:            timex.Duration{Duration: c.SecretTTL},
		MinTimeBetweenEmails: timex.Duration{Duration: c.MinTimeBetweenEmails},
	}
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// missing from the file keep their current values. An unreadable or
// invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := toJson(config)
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.Hostname = c.Hostname
	config.PublicURL = c.PublicURL
	config.SecretKey = c.SecretKey
	config.LogLevel = c.LogLevel
	config.KeyAlgorithm = c.KeyAlgorithm
	config.KeyFile = c.KeyFile
	config.S3Bucket = c.S3Bucket
	config.S3Key = c.S3Key
	config.S3Region = c.S3Region
	config.S3AccessKey = c.S3AccessKey
	config.S3SecretKey = c.S3SecretKey
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.BcryptWorkFactor = c.BcryptWorkFactor
	config.MaxConcurrentHashes = c.MaxConcurrentHashes
	config.HashQueueTimeout = c.HashQueueTimeout.Duration
	config.AuthDuration = c.AuthDuration.Duration
	config.CertificateValidity = c.CertificateValidity.Duration
	config.SecretTTL = c.SecretTTL.Duration
	config.MinTimeBetweenEmails = c.MinTimeBetweenEmails.Duration
}
