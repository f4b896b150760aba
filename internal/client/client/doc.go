// Package client talks to the issuing server's /wsapi endpoints and owns
// the client's local database.
//
// # Overview
//
// HTTPClient carries the server session in a cookie jar. Reads need no
// extra state; every write takes the ClientContext returned by
// SessionContext, whose CSRF token authorizes the request. The context
// also reports the server's clock so that callers can stamp assertions in
// server time rather than local time.
//
// # Error Handling
//
// Transport failures wrap ErrUnavailable. Soft failures, where the server
// answers 200 with success=false, wrap ErrRejected. HTTP 400, 403 and 503
// map to common.ErrorValidation, common.ErrorForbidden and
// common.ErrorServerBusy.
//
// # Local Storage
//
// InitDatabase opens the SQLite store and applies the embedded goose
// migrations.
package client
