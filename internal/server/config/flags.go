package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":10002")
//	-d string   PostgreSQL DSN, empty for in-memory storage
//	-n string   issuer hostname
//	-u string   public base URL
//	-s string   session cookie secret
//	-k string   signing key file
//	-b string   S3 bucket holding the signing key
//	-w int      bcrypt work factor
//	-v int      certificate validity, minutes
//	-l string   log level
//
// os.Args is filtered to these flags first so the binary tolerates flags
// meant for other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-n", "-u", "-s", "-k", "-b", "-w", "-v", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.Hostname, "n", config.Hostname, "issuer hostname")
	fs.StringVar(&config.PublicURL, "u", config.PublicURL, "public base URL")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.KeyFile, "k", config.KeyFile, "signing key file")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket for the signing key")
	fs.IntVar(&config.BcryptWorkFactor, "w", config.BcryptWorkFactor, "bcrypt work factor")

	certificateValidity := fs.Int("v", int(config.CertificateValidity.Minutes()), "certificate validity (in minutes)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CertificateValidity = time.Duration(*certificateValidity) * time.Minute
}
