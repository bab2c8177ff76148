package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("redis-cache")
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "redis-cache", b.Name())
	assert.True(t, b.Allow())
}

func TestBreaker_OpensOnConsecutiveFailures(t *testing.T) {
	b := New("redis-cache", WithFailureThreshold(2))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	// already open: no new transition
	_, change = b.RecordFailure()
	assert.False(t, change.Opened)
}

func TestBreaker_SuccessWhileClosedResetsFailures(t *testing.T) {
	b := New("redis-cache", WithFailureThreshold(2))

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestBreaker_ProbesAfterCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("redis-cache",
		WithFailureThreshold(1),
		WithSuccessThreshold(2),
		WithCooldown(5*time.Second),
		WithClock(clock.Now),
	)

	b.RecordFailure()
	assert.False(t, b.Allow(), "open breaker rejects inside cooldown")

	clock.Advance(5 * time.Second)
	assert.True(t, b.Allow(), "first probe after cooldown")
	assert.False(t, b.Allow(), "one probe per window")

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.True(t, b.Allow())
}

func TestBreaker_FailedProbeKeepsOpen(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("redis-cache", WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Second), WithClock(clock.Now))

	b.RecordFailure()
	clock.Advance(time.Second)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	// success streak restarts after the failed probe
	clock.Advance(time.Second)
	assert.True(t, b.Allow())
	_, change := b.RecordSuccess()
	assert.False(t, change.Closed)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("redis-cache", WithFailureThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
