package ability

import "sync"

// Lifecycle is a callback a hosted stage-model ability observes
type Lifecycle string

const (
	OnForeground Lifecycle = "ON_FOREGROUND"
	OnBackground Lifecycle = "ON_BACKGROUND"
	OnStop       Lifecycle = "ON_STOP"
)

// StageImpl is the hosted-side half of the stage-model lifecycle contract.
// It turns lifecycle transactions into ability callbacks: a foreground
// request while already foreground produces no second ON_FOREGROUND, and
// the same holds for background.
type StageImpl struct {
	mu     sync.Mutex
	state  State
	events []Lifecycle
	done   func(State)
}

// NewStageImpl creates an implementation in INITIAL. done, if set, is
// invoked after each handled transaction with the state reached, the way a
// hosted process reports AbilityTransitionDone.
func NewStageImpl(done func(State)) *StageImpl {
	return &StageImpl{state: StateInitial, done: done}
}

// HandleTransaction applies a lifecycle transaction and reports it done
func (s *StageImpl) HandleTransaction(target State) {
	switch target {
	case StateForegroundNew:
		s.Foreground()
	case StateBackgroundNew:
		s.Background()
	case StateInitial:
		s.Stop()
	default:
		s.mu.Lock()
		s.state = target
		s.mu.Unlock()
	}
	if s.done != nil {
		s.done(target)
	}
}

// Foreground moves to FOREGROUND_NEW, emitting ON_FOREGROUND unless already
// there. It reports whether a callback was emitted.
func (s *StageImpl) Foreground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateForegroundNew {
		return false
	}
	s.state = StateForegroundNew
	s.events = append(s.events, OnForeground)
	return true
}

// Background moves to BACKGROUND_NEW, emitting ON_BACKGROUND unless already
// there
func (s *StageImpl) Background() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateBackgroundNew {
		return false
	}
	s.state = StateBackgroundNew
	s.events = append(s.events, OnBackground)
	return true
}

// Stop returns to INITIAL
func (s *StageImpl) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateInitial {
		return
	}
	s.state = StateInitial
	s.events = append(s.events, OnStop)
}

// State returns the current state
func (s *StageImpl) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns every callback emitted so far
func (s *StageImpl) Events() []Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Lifecycle(nil), s.events...)
}

// LastEvent returns the most recent callback, or "" if none
func (s *StageImpl) LastEvent() Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return ""
	}
	return s.events[len(s.events)-1]
}

// Count returns how many times ev was emitted
func (s *StageImpl) Count(ev Lifecycle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == ev {
			n++
		}
	}
	return n
}
