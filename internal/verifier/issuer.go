package verifier

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/keys"
	"github.com/dmitrijs2005/idkeeper/internal/netx"
	"golang.org/x/sync/singleflight"
)

// StaticKeys is a fixed set of issuer keys.
type StaticKeys []crypto.PublicKey

func (k StaticKeys) PublicKeys(context.Context) ([]crypto.PublicKey, error) {
	return k, nil
}

// LoadKeyFile reads one public key, as JWK or PEM, from path.
func LoadKeyFile(path string) (StaticKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := keys.ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("issuer key %s: %w", path, err)
	}
	return StaticKeys{pub}, nil
}

// WellKnownKeys fetches the issuer's key from its well-known document and
// keeps it for ttl. Concurrent refreshes share one request.
type WellKnownKeys struct {
	client *http.Client
	url    string
	ttl    time.Duration
	clock  clock.Clock

	group   singleflight.Group
	mu      sync.Mutex
	keys    []crypto.PublicKey
	fetched time.Time
}

func NewWellKnownKeys(client *http.Client, issuerURL string, ttl time.Duration, clk clock.Clock) *WellKnownKeys {
	if client == nil {
		client = http.DefaultClient
	}
	return &WellKnownKeys{
		client: client,
		url:    strings.TrimRight(issuerURL, "/") + common.WellKnownPath,
		ttl:    ttl,
		clock:  clk,
	}
}

func (w *WellKnownKeys) PublicKeys(ctx context.Context) ([]crypto.PublicKey, error) {
	w.mu.Lock()
	if w.keys != nil && w.clock.Now().Sub(w.fetched) < w.ttl {
		k := w.keys
		w.mu.Unlock()
		return k, nil
	}
	w.mu.Unlock()

	v, err, _ := w.group.Do("keys", func() (any, error) {
		pub, err := w.fetch(ctx)
		if err != nil {
			return nil, err
		}
		k := []crypto.PublicKey{pub}
		w.mu.Lock()
		w.keys, w.fetched = k, w.clock.Now()
		w.mu.Unlock()
		return k, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]crypto.PublicKey), nil
}

func (w *WellKnownKeys) fetch(ctx context.Context) (crypto.PublicKey, error) {
	var doc struct {
		PublicKey json.RawMessage `json:"public-key"`
	}
	if err := netx.GetJSON(ctx, w.client, w.url, &doc); err != nil {
		return nil, err
	}
	return keys.ParsePublicJWK(doc.PublicKey)
}
