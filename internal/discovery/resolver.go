// Package discovery resolves an identity provider's public keys for an
// address with a two-step lookup: the domain's host-meta document names an
// address template, and the per-address document lists public keys.
package discovery

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"golang.org/x/sync/singleflight"
)

const (
	HostMetaPath = "/.well-known/host-meta"
	maxDocSize   = 64 << 10
)

// Key is one public key published for an address. ID is informational:
// verification tries every key.
type Key struct {
	ID  string
	Key crypto.PublicKey
}

// Result is the outcome of a successful lookup.
type Result struct {
	Domain string
	URL    string
	Keys   []Key
}

// PublicKeys returns the bare keys in publication order.
func (r *Result) PublicKeys() []crypto.PublicKey {
	out := make([]crypto.PublicKey, 0, len(r.Keys))
	for _, k := range r.Keys {
		out = append(out, k.Key)
	}
	return out
}

// Options tunes a Resolver.
type Options struct {
	Timeout     time.Duration
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	// Insecure fetches host-meta over plain http. Development only.
	Insecure bool
}

type cacheEntry struct {
	template string
	err      error
	expires  time.Time
}

// Resolver performs discovery with per-request timeouts. Host-meta results
// are cached per domain: templates for PositiveTTL, domains without
// discovery support for NegativeTTL. Transport failures are not cached.
type Resolver struct {
	client *http.Client
	opts   Options
	clock  clock.Clock
	logger logging.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewResolver(client *http.Client, opts Options, clk clock.Clock, logger logging.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		client: client,
		opts:   opts,
		clock:  clk,
		logger: logger.With("module", "discovery"),
		cache:  make(map[string]cacheEntry),
	}
}

// Lookup resolves the public keys published for address by domain.
//
// Errors wrap common.ErrorNotFound when the domain does not support
// discovery and common.ErrorTransientNetwork when a fetch fails. A result
// with zero keys is not an error.
func (r *Resolver) Lookup(ctx context.Context, domain, address string) (*Result, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", common.ErrorMalformedAddress)
	}

	template, err := r.template(ctx, domain)
	if err != nil {
		return nil, err
	}

	docURL := strings.ReplaceAll(template, uriParam, url.QueryEscape(address))
	body, err := r.fetch(ctx, docURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseXRD(body)
	if err != nil {
		return nil, err
	}

	res := &Result{Domain: domain, URL: docURL}
	for _, raw := range publicKeyLinks(doc) {
		pub, err := keys.ParsePublicKey([]byte(raw.value))
		if err != nil {
			r.logger.Warn(ctx, "skipping unparseable public key", "domain", domain, "id", raw.id, "error", err)
			continue
		}
		res.Keys = append(res.Keys, Key{ID: raw.id, Key: pub})
	}

	r.logger.Debug(ctx, "discovery lookup complete", "domain", domain, "keys", len(res.Keys))
	return res, nil
}

func (r *Resolver) template(ctx context.Context, domain string) (string, error) {
	now := r.clock.Now()

	r.mu.Lock()
	entry, ok := r.cache[domain]
	r.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.template, entry.err
	}

	v, err, _ := r.group.Do(domain, func() (any, error) {
		template, err := r.fetchTemplate(ctx, domain)
		switch {
		case err == nil:
			r.store(domain, cacheEntry{template: template, expires: r.clock.Now().Add(r.opts.PositiveTTL)})
		case errors.Is(err, common.ErrorNotFound):
			r.store(domain, cacheEntry{err: err, expires: r.clock.Now().Add(r.opts.NegativeTTL)})
		}
		return template, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) store(domain string, e cacheEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[domain] = e
}

func (r *Resolver) fetchTemplate(ctx context.Context, domain string) (string, error) {
	scheme := "https"
	if r.opts.Insecure {
		scheme = "http"
	}

	body, err := r.fetch(ctx, scheme+"://"+domain+HostMetaPath)
	if err != nil {
		return "", err
	}

	doc, err := parseXRD(body)
	if err != nil {
		return "", err
	}

	template, ok := lrddTemplate(doc)
	if !ok {
		return "", fmt.Errorf("%w: %s does not publish an lrdd template", common.ErrorNotFound, domain)
	}
	return template, nil
}

func (r *Resolver) fetch(ctx context.Context, target string) ([]byte, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorNotFound, err)
	}
	req.Header.Set("Accept", "application/xrd+xml, application/xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s returned 404", common.ErrorNotFound, target)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s returned %d", common.ErrorTransientNetwork, target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorTransientNetwork, err)
	}
	return body, nil
}
