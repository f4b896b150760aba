// Package cli provides the interactive idkeeper command-line client.
//
// It wires configuration, the local store, the issuing server API and the
// client services behind a small REPL. Typical flow: register an address,
// verify it with the emailed token, then certify it and produce
// assertions for relying parties.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
