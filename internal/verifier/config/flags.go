package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
)

// parseFlags populates selected verifier Config fields from command-line
// flags.
//
// Supported flags:
//
//	-a string       HTTP bind address
//	-g string       gRPC bind address
//	-i string       trusted issuer hostname
//	-u string       trusted issuer base URL
//	-k string       trusted issuer public key file (JWK or PEM)
//	-t duration     discovery timeout
//	-insecure       fetch discovery documents over plain http
//	-l string       log level
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "trusted issuer hostname")
	fs.StringVar(&config.IssuerURL, "u", config.IssuerURL, "trusted issuer base URL")
	fs.StringVar(&config.IssuerKeyFile, "k", config.IssuerKeyFile, "trusted issuer public key file")
	fs.DurationVar(&config.DiscoveryTimeout, "t", config.DiscoveryTimeout, "discovery timeout")
	fs.BoolVar(&config.InsecureDiscovery, "insecure", config.InsecureDiscovery, "discovery over plain http")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := flagx.Parse(fs, os.Args[1:]); err != nil {
		panic(err)
	}
}
