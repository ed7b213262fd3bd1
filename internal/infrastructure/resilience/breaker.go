package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the collaborator while the circuit is
// open or every half-open probe slot is taken
var ErrOpen = errors.New("circuit open")

// State is the circuit state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings tune a Breaker. Zero values take the defaults noted per field.
type Settings struct {
	// Threshold consecutive failures open the circuit (5)
	Threshold uint32
	// Cooldown is how long an open circuit rejects calls (30s)
	Cooldown time.Duration
	// Probes calls are let through while half-open; as many successes
	// close the circuit again (1)
	Probes uint32
	// OnStateChange is called with the breaker lock released
	OnStateChange func(name string, from, to State)
	// Now replaces time.Now in tests
	Now func() time.Time
}

// Breaker stops calls to a failing collaborator for a cooldown, then lets a
// few probes decide whether it has recovered
type Breaker struct {
	name     string
	settings Settings

	mu        sync.Mutex
	state     State
	failures  uint32
	inFlight  uint32
	successes uint32
	openUntil time.Time
	epoch     uint64
}

// New creates a closed breaker
func New(name string, s Settings) *Breaker {
	if s.Threshold == 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes == 0 {
		s.Probes = 1
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{name: name, settings: s}
}

// Name returns the collaborator name
func (b *Breaker) Name() string { return b.name }

// State returns the current state, moving an expired open circuit to
// half-open
func (b *Breaker) State() State {
	b.mu.Lock()
	st, changed := b.refreshLocked()
	b.mu.Unlock()
	b.notify(changed)
	return st
}

// Do runs fn unless the circuit rejects it; fn's error counts as a failure
func (b *Breaker) Do(fn func() error) error {
	epoch, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.release(epoch, err == nil)
	return err
}

// Call is Do for functions returning a value
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(func() error {
		v, err := fn()
		out = v
		return err
	})
	return out, err
}

type transition struct {
	from, to State
}

func (b *Breaker) notify(t *transition) {
	if t != nil && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}

func (b *Breaker) acquire() (uint64, error) {
	b.mu.Lock()
	st, changed := b.refreshLocked()
	var err error
	switch st {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if b.inFlight >= b.settings.Probes {
			err = ErrOpen
		} else {
			b.inFlight++
		}
	}
	epoch := b.epoch
	b.mu.Unlock()
	b.notify(changed)
	return epoch, err
}

func (b *Breaker) release(epoch uint64, ok bool) {
	b.mu.Lock()
	var changed *transition
	// results of calls started before the last state change are dropped
	if epoch == b.epoch {
		switch b.state {
		case StateClosed:
			if ok {
				b.failures = 0
			} else if b.failures++; b.failures >= b.settings.Threshold {
				changed = b.setLocked(StateOpen)
			}
		case StateHalfOpen:
			b.inFlight--
			if !ok {
				changed = b.setLocked(StateOpen)
			} else if b.successes++; b.successes >= b.settings.Probes {
				changed = b.setLocked(StateClosed)
			}
		}
	}
	b.mu.Unlock()
	b.notify(changed)
}

func (b *Breaker) refreshLocked() (State, *transition) {
	if b.state == StateOpen && !b.settings.Now().Before(b.openUntil) {
		return StateHalfOpen, b.setLocked(StateHalfOpen)
	}
	return b.state, nil
}

func (b *Breaker) setLocked(to State) *transition {
	from := b.state
	b.state = to
	b.epoch++
	b.failures, b.inFlight, b.successes = 0, 0, 0
	if to == StateOpen {
		b.openUntil = b.settings.Now().Add(b.settings.Cooldown)
	}
	return &transition{from: from, to: to}
}
