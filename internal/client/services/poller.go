package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

// PollState is the state of one address in a Poller.
type PollState string

const (
	StateIdle           PollState = "idle"
	StatePolling        PollState = "polling"
	StateComplete       PollState = "complete"
	StateMustAuth       PollState = "mustAuth"
	StateNoRegistration PollState = "noRegistration"
	StateFailed         PollState = "failed"
)

// Statuses reported by the server.
const (
	statusPending        = "pending"
	statusComplete       = "complete"
	statusMustAuth       = "mustAuth"
	statusNoRegistration = "noRegistration"
)

// StatusFunc asks the server about an address.
type StatusFunc func(ctx context.Context, address string) (string, error)

// MarkerClearer forgets that an address was staged on behalf of a site.
type MarkerClearer interface {
	ClearStaged(ctx context.Context, address string) error
}

// PollCallbacks receive the terminal outcome of a poll. Exactly one of them
// runs per poll unless the poll is cancelled.
type PollCallbacks struct {
	OnSuccess func(address string, state PollState)
	OnFailure func(address string, state PollState, err error)
}

type poll struct {
	gen    uint64
	state  PollState
	timer  clock.Timer
	ctx    context.Context
	cancel context.CancelFunc
	cb     PollCallbacks
}

// Poller checks an address's status until it reaches a terminal state.
// Each address has at most one poll and at most one scheduled check.
type Poller struct {
	check    StatusFunc
	markers  MarkerClearer
	clock    clock.Clock
	interval time.Duration
	logger   logging.Logger

	mu    sync.Mutex
	gen   uint64
	polls map[string]*poll
}

// NewPoller builds a Poller that re-checks pending addresses every interval.
func NewPoller(check StatusFunc, markers MarkerClearer, clk clock.Clock, interval time.Duration, logger logging.Logger) *Poller {
	return &Poller{
		check:    check,
		markers:  markers,
		clock:    clk,
		interval: interval,
		logger:   logger.With("module", "poller"),
		polls:    make(map[string]*poll),
	}
}

// Start begins polling address and runs the first check before returning.
// A poll already running for address is cancelled first.
func (p *Poller) Start(ctx context.Context, address string, cb PollCallbacks) {
	pctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.stopLocked(address)
	p.gen++
	gen := p.gen
	p.polls[address] = &poll{gen: gen, state: StatePolling, ctx: pctx, cancel: cancel, cb: cb}
	p.mu.Unlock()

	p.run(address, gen)
}

// Cancel stops polling address without running any callback. It does
// nothing when address is not being polled.
func (p *Poller) Cancel(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked(address)
}

// CancelAll stops every running poll.
func (p *Poller) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for address := range p.polls {
		p.stopLocked(address)
	}
}

// State returns the state of address.
func (p *Poller) State(address string) PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok := p.polls[address]; ok {
		return pl.state
	}
	return StateIdle
}

func (p *Poller) stopLocked(address string) {
	pl, ok := p.polls[address]
	if !ok || pl.state != StatePolling {
		return
	}
	if pl.timer != nil {
		pl.timer.Stop()
		pl.timer = nil
	}
	pl.cancel()
	pl.state = StateIdle
}

// current returns the poll for address if it is still the live poll
// with generation gen.
func (p *Poller) current(address string, gen uint64) *poll {
	pl, ok := p.polls[address]
	if !ok || pl.gen != gen || pl.state != StatePolling {
		return nil
	}
	return pl
}

func (p *Poller) run(address string, gen uint64) {
	p.mu.Lock()
	pl := p.current(address, gen)
	if pl == nil {
		p.mu.Unlock()
		return
	}
	pl.timer = nil
	ctx := pl.ctx
	p.mu.Unlock()

	status, err := p.check(ctx, address)
	p.transition(address, gen, status, err)
}

// transition applies one status answer to the poll for address.
func (p *Poller) transition(address string, gen uint64, status string, err error) {
	p.mu.Lock()
	pl := p.current(address, gen)
	if pl == nil {
		p.mu.Unlock()
		return
	}

	var next PollState
	switch {
	case err != nil:
		next = StateFailed
	case status == statusPending:
		pl.timer = p.clock.AfterFunc(p.interval, func() { p.run(address, gen) })
		p.mu.Unlock()
		return
	case status == statusComplete:
		next = StateComplete
	case status == statusMustAuth:
		next = StateMustAuth
	case status == statusNoRegistration:
		next = StateNoRegistration
	default:
		next = StateFailed
		err = fmt.Errorf("unexpected status %q", status)
	}

	pl.state = next
	ctx, cancel, cb := pl.ctx, pl.cancel, pl.cb
	p.mu.Unlock()
	defer cancel()

	p.logger.Debug(ctx, "poll finished", "address", address, "state", string(next), "error", err)

	if next == StateComplete || next == StateMustAuth {
		if p.markers != nil {
			if merr := p.markers.ClearStaged(ctx, address); merr != nil {
				p.logger.Warn(ctx, "clearing staging marker failed", "address", address, "error", merr)
			}
		}
		if cb.OnSuccess != nil {
			cb.OnSuccess(address, next)
		}
		return
	}

	if cb.OnFailure != nil {
		cb.OnFailure(address, next, err)
	}
}
