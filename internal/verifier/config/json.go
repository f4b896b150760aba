package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
	"github.com/dmitrijs2005/idkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the verifier configuration.
type JsonConfig struct {
	EndpointAddrHTTP     string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC     string         `json:"endpoint_addr_grpc"`
	Issuer               string         `json:"issuer"`
	IssuerURL            string         `json:"issuer_url"`
	IssuerKeyFile        string         `json:"issuer_key_file"`
	IssuerKeyTTL         timex.Duration `json:"issuer_key_ttl"`
	DiscoveryTimeout     timex.Duration `json:"discovery_timeout"`
	DiscoveryPositiveTTL timex.Duration `json:"discovery_positive_ttl"`
	DiscoveryNegativeTTL timex.Duration `json:"discovery_negative_ttl"`
	InsecureDiscovery    bool           `json:"insecure_discovery"`
	LogLevel             string         `json:"log_level"`
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// missing from the file keep their current values.
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

	c := &JsonConfig{
		EndpointAddrHTTP:     config.EndpointAddrHTTP,
		EndpointAddrGRPC:     config.EndpointAddrGRPC,
		Issuer:               config.Issuer,
		IssuerURL:            config.IssuerURL,
		IssuerKeyFile:        config.IssuerKeyFile,
		IssuerKeyTTL:         timex.Duration{Duration: config.IssuerKeyTTL},
		DiscoveryTimeout:     timex.Duration{Duration: config.DiscoveryTimeout},
		DiscoveryPositiveTTL: timex.Duration{Duration: config.DiscoveryPositiveTTL},
		DiscoveryNegativeTTL: timex.Duration{Duration: config.DiscoveryNegativeTTL},
		InsecureDiscovery:    config.InsecureDiscovery,
		LogLevel:             config.LogLevel,
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.EndpointAddrGRPC = c.EndpointAddrGRPC
	config.Issuer = c.Issuer
	config.IssuerURL = c.IssuerURL
	config.IssuerKeyFile = c.IssuerKeyFile
	config.IssuerKeyTTL = c.IssuerKeyTTL.Duration
	config.DiscoveryTimeout = c.DiscoveryTimeout.Duration
	config.DiscoveryPositiveTTL = c.DiscoveryPositiveTTL.Duration
	config.DiscoveryNegativeTTL = c.DiscoveryNegativeTTL.Duration
	config.InsecureDiscovery = c.InsecureDiscovery
	config.LogLevel = c.LogLevel
}
