// Package config loads runtime configuration for the idkeeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   issuing server base URL
//	-v string   verifier base URL
//	-d string   local database path
//	-i int      registration poll interval (seconds)
//	-t duration request timeout
//	-l string   log level
//
// # JSON schema
//
// Intervals use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds:
//
//	{
//	  "server_url": "http://localhost:10002",
//	  "verifier_url": "http://localhost:10003",
//	  "database_dsn": "idkeeper.db",
//	  "poll_interval": "3s",
//	  "request_timeout": "10s",
//	  "log_level": "info"
//	}
package config
