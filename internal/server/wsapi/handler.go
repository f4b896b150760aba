// Package wsapi exposes the issuing server's JSON API under /wsapi, the
// issuer's well-known document and a liveness probe.
package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
	"github.com/dmitrijs2005/idkeeper/internal/server/services"
)

// Services bundles what the handlers call into.
type Services struct {
	Secrets     *services.SecretManager
	Sessions    *services.SessionManager
	Accounts    *services.AccountService
	CA          *services.CertificateAuthority
	AddressInfo *services.AddressInfoService
}

// Options configures the session cookie.
type Options struct {
	CookieSecret   []byte
	CookieValidity time.Duration
	SecureCookie   bool
}

type Handler struct {
	svc            Services
	cookieSecret   []byte
	cookieValidity time.Duration
	secureCookie   bool
	clock          clock.Clock
	logger         logging.Logger
}

func NewHandler(svc Services, opts Options, clk clock.Clock, logger logging.Logger) *Handler {
	return &Handler{
		svc:            svc,
		cookieSecret:   opts.CookieSecret,
		cookieValidity: opts.CookieValidity,
		secureCookie:   opts.SecureCookie,
		clock:          clk,
		logger:         logger.With("module", "wsapi"),
	}
}

// call is the body of one endpoint. The returned value is encoded as
// JSON; the session is written back after it returns.
type call func(ctx context.Context, s *auth.Session, req *request) (any, error)

type access int

const (
	public access = iota
	authenticated
)

// Routes returns the server's HTTP handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	get := func(name string, a access, fn call) {
		mux.Handle("GET /wsapi/"+name, h.endpoint(a, fn))
	}
	post := func(name string, a access, fn call) {
		mux.Handle("POST /wsapi/"+name, h.endpoint(a, fn))
	}

	get("session_context", public, h.sessionContext)
	get("user_creation_status", public, h.userCreationStatus)
	get("email_addition_status", authenticated, h.emailAdditionStatus)
	get("have_email", public, h.haveEmail)
	get("email_for_token", public, h.emailForToken)
	get("list_emails", authenticated, h.listEmails)
	get("address_info", public, h.addressInfo)

	post("stage_user", public, h.stageUser)
	post("complete_user_creation", public, h.completeUserCreation)
	post("stage_email", authenticated, h.stageEmail)
	post("complete_email_addition", public, h.completeEmailAddition)
	post("authenticate_user", public, h.authenticateUser)
	post("remove_email", authenticated, h.removeEmail)
	post("account_cancel", authenticated, h.accountCancel)
	post("cert_key", authenticated, h.certKey)
	post("logout", public, h.logout)
	post("stage_reset", public, h.stageReset)
	post("complete_reset", public, h.completeReset)

	mux.HandleFunc("GET /.well-known/browserid", h.wellKnown)
	mux.HandleFunc("GET /ping", h.ping)

	return h.logRequests(mux)
}

// endpoint decodes the request, enforces CSRF on POST and authentication
// where required, runs fn and writes the result together with the
// updated session cookie.
func (h *Handler) endpoint(a access, fn call) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s := h.loadSession(ctx, r)

		res, err := h.run(ctx, r, s, a, fn)

		if cerr := h.storeSession(w, s); cerr != nil {
			h.logger.Error(ctx, "writing session cookie failed", "error", cerr)
			writeJSON(w, http.StatusInternalServerError, failure{})
			return
		}

		if err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				h.logger.Error(ctx, "request failed", "path", r.URL.Path, "error", err)
			}
			writeJSON(w, code, failureBody(code, err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

func (h *Handler) run(ctx context.Context, r *http.Request, s *auth.Session, a access, fn call) (any, error) {
	req, err := decodeRequest(r)
	if err != nil {
		return nil, err
	}
	if r.Method == http.MethodPost {
		if err := h.svc.Sessions.CheckCSRF(s, req.get("csrf")); err != nil {
			return nil, err
		}
	}
	if a == authenticated && h.svc.Sessions.CheckAuthenticated(s) == "" {
		return nil, errForbiddenUnauthenticated
	}
	return fn(ctx, s, req)
}

// logRequests logs each request once it has been served.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
