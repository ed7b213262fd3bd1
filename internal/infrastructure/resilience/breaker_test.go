package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBreaker(s Settings) (*Breaker, *clock, *[]string) {
	c := &clock{now: time.Unix(1700000000, 0)}
	var changes []string
	s.Now = c.Now
	s.OnStateChange = func(_ string, from, to State) {
		changes = append(changes, from.String()+"->"+to.String())
	}
	return New("appspawn", s), c, &changes
}

func fail() error { return errBoom }
func ok() error   { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _, changes := newBreaker(Settings{Threshold: 3, Cooldown: time.Second})

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.ErrorIs(t, b.Do(fail), errBoom)
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State(), "a success resets the streak")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(fail), errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, *changes)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b, c, changes := newBreaker(Settings{Threshold: 1, Cooldown: time.Second, Probes: 2})

	assert.ErrorIs(t, b.Do(fail), errBoom)
	c.Advance(999 * time.Millisecond)
	assert.ErrorIs(t, b.Do(ok), ErrOpen)

	c.Advance(time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, *changes)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, c, _ := newBreaker(Settings{Threshold: 1, Cooldown: time.Second})
	assert.ErrorIs(t, b.Do(fail), errBoom)
	c.Advance(time.Second)

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerLimitsProbes(t *testing.T) {
	b, c, _ := newBreaker(Settings{Threshold: 1, Cooldown: time.Second, Probes: 1})
	assert.ErrorIs(t, b.Do(fail), errBoom)
	c.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	assert.ErrorIs(t, b.Do(ok), ErrOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestCall(t *testing.T) {
	b, _, _ := newBreaker(Settings{Threshold: 1})
	v, err := Call(b, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = Call(b, func() (int, error) { return 0, errBoom })
	assert.ErrorIs(t, err, errBoom)
	_, err = Call(b, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
