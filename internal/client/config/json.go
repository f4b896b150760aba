package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
	"github.com/dmitrijs2005/idkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	VerifierURL    string         `json:"verifier_url"`
	DatabaseDSN    string         `json:"database_dsn"`
	PollInterval   timex.Duration `json:"poll_interval"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	LogLevel       string         `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c/-config. Keys
// missing from the file keep their current values. Read and decode errors
// panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	jc := JsonConfig{
		ServerURL:      cfg.ServerURL,
		VerifierURL:    cfg.VerifierURL,
		DatabaseDSN:    cfg.DatabaseDSN,
		PollInterval:   timex.Duration{Duration: cfg.PollInterval},
		RequestTimeout: timex.Duration{Duration: cfg.RequestTimeout},
		LogLevel:       cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	cfg.ServerURL = jc.ServerURL
	cfg.VerifierURL = jc.VerifierURL
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.PollInterval = jc.PollInterval.Duration
	cfg.RequestTimeout = jc.RequestTimeout.Duration
	cfg.LogLevel = jc.LogLevel
}
