package client

import "time"

// ClientContext is the client's snapshot of its server session. It is
// created by SessionContext and discarded on logout.
type ClientContext struct {
	CSRFToken             string
	Authenticated         bool
	ServerTime            time.Time
	DomainKeyCreationTime time.Time

	// FetchedAt is the local time ServerTime was observed at.
	FetchedAt time.Time
}

// ServerNow estimates the server's clock at local time now.
func (c *ClientContext) ServerNow(now time.Time) time.Time {
	return c.ServerTime.Add(now.Sub(c.FetchedAt))
}
