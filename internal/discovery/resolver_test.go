package discovery

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idp struct {
	srv          *httptest.Server
	hostMetaHits atomic.Int32
	userHits     atomic.Int32

	mu       sync.Mutex
	hostMeta func(host string) (int, string)
	userDoc  func(uri string) (int, string)
}

func newIdP(t *testing.T) *idp {
	t.Helper()
	p := &idp{}
	mux := http.NewServeMux()
	mux.HandleFunc(HostMetaPath, func(w http.ResponseWriter, r *http.Request) {
		p.hostMetaHits.Add(1)
		p.mu.Lock()
		code, body := p.hostMeta(r.Host)
		p.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		p.userHits.Add(1)
		p.mu.Lock()
		code, body := p.userDoc(r.URL.Query().Get("uri"))
		p.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)

	p.hostMeta = func(host string) (int, string) {
		return http.StatusOK, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0" xmlns:hm="http://host-meta.net/xrd/1.0">
  <hm:Host>%s</hm:Host>
  <Link rel="lrdd" template="http://%s/users?uri={uri}"><Title>Resource Descriptor</Title></Link>
</XRD>`, host, host)
	}
	return p
}

func (p *idp) domain() string {
	return strings.TrimPrefix(p.srv.URL, "http://")
}

func (p *idp) set(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func userXRD(t *testing.T, n int) (string, []*keys.KeyPair) {
	t.Helper()
	var links strings.Builder
	var pairs []*keys.KeyPair
	for i := 0; i < n; i++ {
		k, err := keys.Generate(keys.RS256, time.Now())
		require.NoError(t, err)
		jwk, err := keys.MarshalPublicJWK(k.Public())
		require.NoError(t, err)
		fmt.Fprintf(&links, `<Link rel="public-key" id="k%d" value="%s"/>`, i, html.EscapeString(string(jwk)))
		pairs = append(pairs, k)
	}
	return `<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0"><Subject>acct</Subject>` + links.String() + `</XRD>`, pairs
}

func newTestResolver(clk clock.Clock) *Resolver {
	return NewResolver(nil, Options{
		Timeout:     2 * time.Second,
		PositiveTTL: time.Hour,
		NegativeTTL: 5 * time.Minute,
		Insecure:    true,
	}, clk, logging.Discard())
}

func TestLookup_ReturnsKeys(t *testing.T) {
	p := newIdP(t)
	doc, pairs := userXRD(t, 2)
	var gotURI string
	p.set(func() {
		p.userDoc = func(uri string) (int, string) {
			gotURI = uri
			return http.StatusOK, doc
		}
	})

	r := newTestResolver(clock.Real())
	res, err := r.Lookup(context.Background(), p.domain(), "alice@"+p.domain())
	require.NoError(t, err)

	require.Len(t, res.Keys, 2)
	assert.Equal(t, "k0", res.Keys[0].ID)
	assert.Equal(t, "alice@"+p.domain(), gotURI)
	assert.Contains(t, res.URL, "/users?uri=")
	require.Len(t, res.PublicKeys(), 2)

	sig, err := pairs[1].Sign([]byte("x"))
	require.NoError(t, err)
	assert.NoError(t, keys.Verify(res.PublicKeys()[1], []byte("x"), sig))
}

func TestLookup_ZeroKeysIsNotAnError(t *testing.T) {
	p := newIdP(t)
	p.set(func() {
		p.userDoc = func(string) (int, string) {
			return http.StatusOK, `<XRD><Link rel="describedby" href="x"/><Link rel="public-key" value="garbage"/></XRD>`
		}
	})

	res, err := newTestResolver(clock.Real()).Lookup(context.Background(), p.domain(), "a@b")
	require.NoError(t, err)
	assert.Empty(t, res.Keys)
}

func TestLookup_NoLRDDIsNegativelyCachedWithTTL(t *testing.T) {
	p := newIdP(t)
	p.set(func() {
		p.hostMeta = func(host string) (int, string) {
			return http.StatusOK, `<XRD><Host>` + host + `</Host></XRD>`
		}
	})
	clk := clock.Fake(time.Now())
	r := newTestResolver(clk)
	ctx := context.Background()

	_, err := r.Lookup(ctx, p.domain(), "a@b")
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = r.Lookup(ctx, p.domain(), "a@b")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, int32(1), p.hostMetaHits.Load())

	doc, _ := userXRD(t, 1)
	p.set(func() {
		p.hostMeta = func(host string) (int, string) {
			return http.StatusOK, `<XRD><Host>` + host + `</Host><Link rel="LRDD" template="http://` + host + `/users?uri={uri}"/></XRD>`
		}
		p.userDoc = func(string) (int, string) { return http.StatusOK, doc }
	})

	clk.Advance(5 * time.Minute)
	res, err := r.Lookup(ctx, p.domain(), "a@b")
	require.NoError(t, err)
	assert.Len(t, res.Keys, 1)
	assert.Equal(t, int32(2), p.hostMetaHits.Load())
}

func TestLookup_PositiveCache(t *testing.T) {
	p := newIdP(t)
	doc, _ := userXRD(t, 1)
	p.set(func() { p.userDoc = func(string) (int, string) { return http.StatusOK, doc } })

	clk := clock.Fake(time.Now())
	r := newTestResolver(clk)

	for i := 0; i < 3; i++ {
		_, err := r.Lookup(context.Background(), p.domain(), "a@b")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), p.hostMetaHits.Load())
	assert.Equal(t, int32(3), p.userHits.Load())

	clk.Advance(time.Hour)
	_, err := r.Lookup(context.Background(), p.domain(), "a@b")
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.hostMetaHits.Load())
}

func TestLookup_HostMeta404(t *testing.T) {
	p := newIdP(t)
	p.set(func() { p.hostMeta = func(string) (int, string) { return http.StatusNotFound, "" } })

	_, err := newTestResolver(clock.Real()).Lookup(context.Background(), p.domain(), "a@b")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLookup_ServerErrorIsTransientAndNotCached(t *testing.T) {
	p := newIdP(t)
	p.set(func() { p.hostMeta = func(string) (int, string) { return http.StatusBadGateway, "" } })
	r := newTestResolver(clock.Real())

	_, err := r.Lookup(context.Background(), p.domain(), "a@b")
	require.ErrorIs(t, err, common.ErrorTransientNetwork)
	_, err = r.Lookup(context.Background(), p.domain(), "a@b")
	require.ErrorIs(t, err, common.ErrorTransientNetwork)
	assert.Equal(t, int32(2), p.hostMetaHits.Load())
}

func TestLookup_TimeoutFailsClosed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	r := NewResolver(nil, Options{Timeout: 50 * time.Millisecond, Insecure: true}, clock.Real(), logging.Discard())
	start := time.Now()
	_, err := r.Lookup(context.Background(), strings.TrimPrefix(srv.URL, "http://"), "a@b")
	require.ErrorIs(t, err, common.ErrorTransientNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLookup_EmptyDomain(t *testing.T) {
	_, err := newTestResolver(clock.Real()).Lookup(context.Background(), " ", "a@b")
	assert.ErrorIs(t, err, common.ErrorMalformedAddress)
}

func TestLRDDTemplate_RequiresHost(t *testing.T) {
	doc, err := parseXRD([]byte(`<XRD><Link rel="lrdd" template="http://x/{uri}"/></XRD>`))
	require.NoError(t, err)
	_, ok := lrddTemplate(doc)
	assert.False(t, ok)
}
