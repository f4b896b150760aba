package verifier

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

const maxFormSize = 64 << 10

// HTTPHandler serves verification over HTTP. Relying parties call it from
// browsers, so every response allows any origin.
type HTTPHandler struct {
	v      *Verifier
	logger logging.Logger
}

func NewHTTPHandler(v *Verifier, logger logging.Logger) *HTTPHandler {
	return &HTTPHandler{v: v, logger: logger.With("module", "verifier_http")}
}

func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.verify)
	mux.HandleFunc("/verify", h.verify)
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	})
	return h.cors(mux)
}

func (h *HTTPHandler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPHandler) verify(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/verify" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeResult(w, http.StatusMethodNotAllowed, failed("method not allowed"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		writeResult(w, http.StatusBadRequest, failed("bad request"))
		return
	}

	assertion, audience := r.Form.Get("assertion"), r.Form.Get("audience")
	if assertion == "" || audience == "" {
		writeResult(w, http.StatusBadRequest, failed("need assertion and audience"))
		return
	}

	start := time.Now()
	res := h.v.Verify(r.Context(), assertion, audience)
	h.logger.Debug(r.Context(), "verification served", "status", res.Status, "duration", time.Since(start))
	writeResult(w, http.StatusOK, res)
}

func writeResult(w http.ResponseWriter, code int, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}
