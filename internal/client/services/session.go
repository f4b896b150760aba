// Package services holds the client's protocol logic: the session view,
// the key vault, the credential cache, the assertion builder and the
// registration poller.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/client/client"
	"github.com/dmitrijs2005/idkeeper/internal/clock"
)

// Session holds the current ClientContext. It is fetched on first use and
// dropped by Clear.
type Session struct {
	api   client.Client
	clock clock.Clock

	mu sync.Mutex
	cc *client.ClientContext
}

func NewSession(api client.Client, clk clock.Clock) *Session {
	return &Session{api: api, clock: clk}
}

// Context returns the current ClientContext, fetching one if needed.
func (s *Session) Context(ctx context.Context) (*client.ClientContext, error) {
	s.mu.Lock()
	cc := s.cc
	s.mu.Unlock()
	if cc != nil {
		return cc, nil
	}
	return s.Refresh(ctx)
}

// Refresh replaces the ClientContext with a fresh one from the server.
func (s *Session) Refresh(ctx context.Context) (*client.ClientContext, error) {
	cc, err := s.api.SessionContext(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cc = cc
	s.mu.Unlock()
	return cc, nil
}

// ServerNow is the server's estimated current time.
func (s *Session) ServerNow(ctx context.Context) (time.Time, error) {
	cc, err := s.Context(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return cc.ServerNow(s.clock.Now()), nil
}

// Clear forgets the ClientContext.
func (s *Session) Clear() {
	s.mu.Lock()
	s.cc = nil
	s.mu.Unlock()
}
