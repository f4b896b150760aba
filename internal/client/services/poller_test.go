package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStatus answers status checks from a queue and counts them.
type scriptedStatus struct {
	mu      sync.Mutex
	answers []string
	err     error
	calls   int
}

func (s *scriptedStatus) check(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.answers) == 0 {
		return statusPending, nil
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *scriptedStatus) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeMarkers struct {
	cleared []string
}

func (m *fakeMarkers) ClearStaged(_ context.Context, address string) error {
	m.cleared = append(m.cleared, address)
	return nil
}

type outcomes struct {
	successes []PollState
	failures  []PollState
	errs      []error
}

func (o *outcomes) callbacks() PollCallbacks {
	return PollCallbacks{
		OnSuccess: func(_ string, st PollState) { o.successes = append(o.successes, st) },
		OnFailure: func(_ string, st PollState, err error) {
			o.failures = append(o.failures, st)
			o.errs = append(o.errs, err)
		},
	}
}

func newTestPoller(s *scriptedStatus, m *fakeMarkers) (*Poller, *clock.FakeClock) {
	clk := clock.Fake(testNow)
	return NewPoller(s.check, m, clk, 3*time.Second, logging.Discard()), clk
}

func TestPoller_PendingThenComplete(t *testing.T) {
	s := &scriptedStatus{answers: []string{statusPending, statusPending, statusComplete}}
	m := &fakeMarkers{}
	p, clk := newTestPoller(s, m)
	var o outcomes

	p.Start(context.Background(), "a@example.com", o.callbacks())
	assert.Equal(t, 1, s.count(), "first check runs immediately")
	assert.Equal(t, StatePolling, p.State("a@example.com"))
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(3 * time.Second)
	assert.Equal(t, 2, s.count())
	assert.Equal(t, StatePolling, p.State("a@example.com"))

	clk.Advance(3 * time.Second)
	assert.Equal(t, 3, s.count())
	assert.Equal(t, StateComplete, p.State("a@example.com"))
	assert.Equal(t, []PollState{StateComplete}, o.successes)
	assert.Empty(t, o.failures)
	assert.Equal(t, []string{"a@example.com"}, m.cleared)
	assert.Zero(t, clk.Pending())

	clk.Advance(time.Minute)
	assert.Equal(t, 3, s.count())
}

func TestPoller_NoCheckBeforeInterval(t *testing.T) {
	s := &scriptedStatus{}
	p, clk := newTestPoller(s, &fakeMarkers{})

	p.Start(context.Background(), "a@example.com", PollCallbacks{})
	clk.Advance(3*time.Second - time.Millisecond)
	assert.Equal(t, 1, s.count())
	clk.Advance(time.Millisecond)
	assert.Equal(t, 2, s.count())
}

func TestPoller_MustAuthIsSuccess(t *testing.T) {
	s := &scriptedStatus{answers: []string{statusMustAuth}}
	m := &fakeMarkers{}
	p, _ := newTestPoller(s, m)
	var o outcomes

	p.Start(context.Background(), "a@example.com", o.callbacks())
	assert.Equal(t, []PollState{StateMustAuth}, o.successes)
	assert.Equal(t, StateMustAuth, p.State("a@example.com"))
	assert.Equal(t, []string{"a@example.com"}, m.cleared)
}

func TestPoller_FailuresKeepMarker(t *testing.T) {
	tests := []struct {
		name   string
		status *scriptedStatus
		want   PollState
	}{
		{"no registration", &scriptedStatus{answers: []string{statusNoRegistration}}, StateNoRegistration},
		{"unexpected status", &scriptedStatus{answers: []string{"weird"}}, StateFailed},
		{"transport error", &scriptedStatus{err: errors.New("connection refused")}, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMarkers{}
			p, clk := newTestPoller(tt.status, m)
			var o outcomes

			p.Start(context.Background(), "a@example.com", o.callbacks())
			assert.Equal(t, []PollState{tt.want}, o.failures)
			assert.Empty(t, o.successes)
			assert.Empty(t, m.cleared)
			assert.Equal(t, tt.want, p.State("a@example.com"))
			assert.Zero(t, clk.Pending())
			if tt.want == StateFailed {
				assert.Error(t, o.errs[0])
			}
		})
	}
}

func TestPoller_Cancel(t *testing.T) {
	s := &scriptedStatus{answers: []string{statusPending, statusComplete}}
	p, clk := newTestPoller(s, &fakeMarkers{})
	var o outcomes

	p.Start(context.Background(), "a@example.com", o.callbacks())
	require.Equal(t, 1, clk.Pending())

	p.Cancel("a@example.com")
	assert.Equal(t, StateIdle, p.State("a@example.com"))
	assert.Zero(t, clk.Pending())

	clk.Advance(time.Minute)
	assert.Equal(t, 1, s.count())
	assert.Empty(t, o.successes)
	assert.Empty(t, o.failures)

	// Cancelling again, or cancelling an unknown address, is a no-op.
	p.Cancel("a@example.com")
	p.Cancel("nobody@example.com")
	assert.Equal(t, StateIdle, p.State("nobody@example.com"))
}

func TestPoller_RestartReplacesTimer(t *testing.T) {
	s := &scriptedStatus{}
	p, clk := newTestPoller(s, &fakeMarkers{})
	var first, second outcomes

	p.Start(context.Background(), "a@example.com", first.callbacks())
	clk.Advance(time.Second)
	p.Start(context.Background(), "a@example.com", second.callbacks())
	assert.Equal(t, 2, s.count())
	assert.Equal(t, 1, clk.Pending(), "only one timer per address")

	// The first poll's wake-up at 3s is gone; the second fires at 4s.
	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, s.count())
	clk.Advance(time.Second)
	assert.Equal(t, 3, s.count())

	s.mu.Lock()
	s.answers = []string{statusComplete}
	s.mu.Unlock()
	clk.Advance(3 * time.Second)
	assert.Empty(t, first.successes)
	assert.Equal(t, []PollState{StateComplete}, second.successes)
}

func TestPoller_IndependentAddresses(t *testing.T) {
	s := &scriptedStatus{}
	p, clk := newTestPoller(s, &fakeMarkers{})

	p.Start(context.Background(), "a@example.com", PollCallbacks{})
	p.Start(context.Background(), "b@example.com", PollCallbacks{})
	assert.Equal(t, 2, clk.Pending())

	p.Cancel("a@example.com")
	assert.Equal(t, StateIdle, p.State("a@example.com"))
	assert.Equal(t, StatePolling, p.State("b@example.com"))

	p.CancelAll()
	assert.Zero(t, clk.Pending())
}

// A check that was already running when the poll was cancelled must not
// deliver its answer.
func TestPoller_CancelDuringCheck(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	check := func(ctx context.Context, _ string) (string, error) {
		close(entered)
		<-release
		return statusComplete, ctx.Err()
	}
	clk := clock.Fake(testNow)
	p := NewPoller(check, &fakeMarkers{}, clk, 3*time.Second, logging.Discard())
	var o outcomes

	done := make(chan struct{})
	go func() {
		p.Start(context.Background(), "a@example.com", o.callbacks())
		close(done)
	}()

	<-entered
	p.Cancel("a@example.com")
	close(release)
	<-done

	assert.Empty(t, o.successes)
	assert.Empty(t, o.failures)
	assert.Equal(t, StateIdle, p.State("a@example.com"))
}
