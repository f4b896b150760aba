package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/auth"
)

const maxBodySize = 64 << 10

// request is one decoded wsapi call: query parameters for GET, a flat JSON
// object of strings for POST.
type request struct {
	method string
	params map[string]string
}

func (r *request) get(name string) string {
	return r.params[name]
}

// require returns the named field or a validation error when it is empty.
func (r *request) require(name string) (string, error) {
	v := strings.TrimSpace(r.params[name])
	if v == "" {
		return "", fmt.Errorf("%w: missing %s", common.ErrorValidation, name)
	}
	return v, nil
}

func decodeRequest(r *http.Request) (*request, error) {
	req := &request{method: r.Method, params: make(map[string]string)}

	if r.Method != http.MethodPost {
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				req.params[k] = v[0]
			}
		}
		return req, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: request too large", common.ErrorValidation)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req.params); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object of strings", common.ErrorValidation)
	}
	return req, nil
}

// loadSession reads the session cookie. A missing, expired or forged
// cookie starts a fresh session.
func (h *Handler) loadSession(ctx context.Context, r *http.Request) *auth.Session {
	c, err := r.Cookie(common.SessionCookieName)
	if err != nil || c.Value == "" {
		return &auth.Session{}
	}
	s, err := auth.GetSessionFromToken(c.Value, h.cookieSecret, h.clock.Now())
	if err != nil {
		h.logger.Debug(ctx, "discarding session cookie", "error", err)
		return &auth.Session{}
	}
	return s
}

func (h *Handler) storeSession(w http.ResponseWriter, s *auth.Session) error {
	tok, err := auth.GenerateToken(s, h.cookieSecret, h.clock.Now(), h.cookieValidity)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(h.cookieValidity.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
