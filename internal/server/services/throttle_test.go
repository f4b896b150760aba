package services

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestThrottle_Allow(t *testing.T) {
	clk := clock.Fake(testNow)
	th := NewThrottle(time.Minute, clk)

	assert.True(t, th.Allow("a@example.com"))
	assert.False(t, th.Allow("a@example.com"))
	assert.True(t, th.Allow("b@example.com"))

	clk.Advance(30 * time.Second)
	assert.False(t, th.Allow("a@example.com"))

	clk.Advance(time.Minute)
	assert.True(t, th.Allow("a@example.com"))
}

func TestThrottle_Prunes(t *testing.T) {
	clk := clock.Fake(testNow)
	th := NewThrottle(time.Minute, clk)

	th.Allow("a@example.com")
	th.Allow("b@example.com")
	clk.Advance(2 * time.Minute)
	th.Allow("c@example.com")

	assert.Len(t, th.limiters, 1)
}

func TestThrottle_Disabled(t *testing.T) {
	th := NewThrottle(0, clock.Fake(testNow))
	for i := 0; i < 5; i++ {
		assert.True(t, th.Allow("a@example.com"))
	}
}
