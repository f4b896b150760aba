package client

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
)

const maxResponseSize = 64 << 10

// HTTPClient implements Client over the issuing server's JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	clock   clock.Clock
}

// NewHTTPClient builds a client for the server at baseURL with its own
// cookie jar. timeout bounds every request.
func NewHTTPClient(baseURL string, timeout time.Duration, clk clock.Clock) (*HTTPClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: timeout},
		clock:   clk,
	}, nil
}

type outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

func (c *HTTPClient) get(ctx context.Context, name string, query url.Values, out any) error {
	u := c.baseURL + "/wsapi/" + name
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) post(ctx context.Context, cc *ClientContext, name string, body map[string]string, out any) error {
	if cc == nil {
		return fmt.Errorf("%w: %s needs a session context", common.ErrorValidation, name)
	}
	if body == nil {
		body = make(map[string]string)
	}
	body[common.CSRFFieldName] = cc.CSRFToken

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wsapi/"+name, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// postOK posts and turns success=false into ErrRejected.
func (c *HTTPClient) postOK(ctx context.Context, cc *ClientContext, name string, body map[string]string) error {
	var res outcome
	if err := c.post(ctx, cc, name, body, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", ErrRejected, name)
	}
	return nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return mapStatus(req.URL.Path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func mapStatus(path string, code int, body []byte) error {
	var res outcome
	_ = json.Unmarshal(body, &res)
	reason := res.Reason
	if reason == "" {
		reason = http.StatusText(code)
	}

	switch code {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s: %s", common.ErrorValidation, path, reason)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", common.ErrorForbidden, path, reason)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", common.ErrorServerBusy, path)
	default:
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, code)
	}
}

func (c *HTTPClient) SessionContext(ctx context.Context) (*ClientContext, error) {
	var res struct {
		CSRFToken             string `json:"csrf_token"`
		ServerTime            int64  `json:"server_time"`
		Authenticated         bool   `json:"authenticated"`
		DomainKeyCreationTime int64  `json:"domain_key_creation_time"`
	}
	if err := c.get(ctx, "session_context", nil, &res); err != nil {
		return nil, err
	}
	return &ClientContext{
		CSRFToken:             res.CSRFToken,
		Authenticated:         res.Authenticated,
		ServerTime:            time.UnixMilli(res.ServerTime),
		DomainKeyCreationTime: time.UnixMilli(res.DomainKeyCreationTime),
		FetchedAt:             c.clock.Now(),
	}, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *HTTPClient) StageUser(ctx context.Context, cc *ClientContext, email, site string) error {
	if err := c.postOK(ctx, cc, "stage_user", map[string]string{"email": email, "site": site}); err != nil {
		return err
	}
	// Staging ends any authenticated session.
	cc.Authenticated = false
	return nil
}

func (c *HTTPClient) status(ctx context.Context, name, email string) (string, error) {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, name, url.Values{"email": {email}}, &res); err != nil {
		return "", err
	}
	return res.Status, nil
}

func (c *HTTPClient) UserCreationStatus(ctx context.Context, email string) (string, error) {
	return c.status(ctx, "user_creation_status", email)
}

func (c *HTTPClient) CompleteUserCreation(ctx context.Context, cc *ClientContext, token, password string) error {
	if err := c.postOK(ctx, cc, "complete_user_creation", map[string]string{"token": token, "pass": password}); err != nil {
		return err
	}
	cc.Authenticated = true
	return nil
}

func (c *HTTPClient) StageEmail(ctx context.Context, cc *ClientContext, email, site string) error {
	return c.postOK(ctx, cc, "stage_email", map[string]string{"email": email, "site": site})
}

func (c *HTTPClient) EmailAdditionStatus(ctx context.Context, email string) (string, error) {
	return c.status(ctx, "email_addition_status", email)
}

func (c *HTTPClient) CompleteEmailAddition(ctx context.Context, cc *ClientContext, token string) error {
	return c.postOK(ctx, cc, "complete_email_addition", map[string]string{"token": token})
}

func (c *HTTPClient) StageReset(ctx context.Context, cc *ClientContext, email, site string) error {
	return c.postOK(ctx, cc, "stage_reset", map[string]string{"email": email, "site": site})
}

func (c *HTTPClient) CompleteReset(ctx context.Context, cc *ClientContext, token, password string) error {
	if err := c.postOK(ctx, cc, "complete_reset", map[string]string{"token": token, "pass": password}); err != nil {
		return err
	}
	cc.Authenticated = true
	return nil
}

// Authenticate reports false, with no error, for bad credentials.
func (c *HTTPClient) Authenticate(ctx context.Context, cc *ClientContext, email, password string) (bool, error) {
	var res outcome
	if err := c.post(ctx, cc, "authenticate_user", map[string]string{"email": email, "pass": password}, &res); err != nil {
		return false, err
	}
	cc.Authenticated = res.Success
	return res.Success, nil
}

func (c *HTTPClient) Logout(ctx context.Context, cc *ClientContext) error {
	if err := c.postOK(ctx, cc, "logout", nil); err != nil {
		return err
	}
	cc.Authenticated = false
	return nil
}

// CertKey asks the server to certify pub for email and returns the raw
// certificate.
func (c *HTTPClient) CertKey(ctx context.Context, cc *ClientContext, email string, pub crypto.PublicKey) (string, error) {
	jwk, err := keys.MarshalPublicJWK(pub)
	if err != nil {
		return "", err
	}
	var res struct {
		Success bool   `json:"success"`
		Cert    string `json:"cert"`
	}
	if err := c.post(ctx, cc, "cert_key", map[string]string{"email": email, "pubkey": string(jwk)}, &res); err != nil {
		return "", err
	}
	if !res.Success || res.Cert == "" {
		return "", fmt.Errorf("%w: cert_key", ErrRejected)
	}
	return res.Cert, nil
}

func (c *HTTPClient) HaveEmail(ctx context.Context, email string) (bool, error) {
	var res struct {
		EmailKnown bool `json:"email_known"`
	}
	if err := c.get(ctx, "have_email", url.Values{"email": {email}}, &res); err != nil {
		return false, err
	}
	return res.EmailKnown, nil
}

// EmailForToken returns the address a live secret was issued for.
func (c *HTTPClient) EmailForToken(ctx context.Context, token string) (string, error) {
	var res struct {
		Success bool   `json:"success"`
		Email   string `json:"email"`
	}
	if err := c.get(ctx, "email_for_token", url.Values{"token": {token}}, &res); err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("%w: unknown token", ErrRejected)
	}
	return res.Email, nil
}

func (c *HTTPClient) AddressInfo(ctx context.Context, email string) (*AddressInfo, error) {
	var res AddressInfo
	if err := c.get(ctx, "address_info", url.Values{"email": {email}}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ListEmails(ctx context.Context) (map[string]EmailInfo, error) {
	res := make(map[string]EmailInfo)
	if err := c.get(ctx, "list_emails", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) RemoveEmail(ctx context.Context, cc *ClientContext, email string) error {
	return c.postOK(ctx, cc, "remove_email", map[string]string{"email": email})
}

func (c *HTTPClient) CancelAccount(ctx context.Context, cc *ClientContext) error {
	if err := c.postOK(ctx, cc, "account_cancel", nil); err != nil {
		return err
	}
	cc.Authenticated = false
	return nil
}
