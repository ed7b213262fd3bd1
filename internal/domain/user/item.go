package user

import "fmt"

// State is the lifecycle state of one OS user
type State int

const (
	StateBooting State = iota
	StateStarted
	StateStopping
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateBooting:
		return "BOOTING"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Item is one user's state machine. The controller owns every item and
// guards it with its lock.
type Item struct {
	id        int
	state     State
	lastState State
}

// NewItem returns an item in BOOTING
func NewItem(id int) *Item {
	return &Item{id: id, state: StateBooting, lastState: StateBooting}
}

// ID returns the user id
func (i *Item) ID() int { return i.id }

// State returns the current state
func (i *Item) State() State { return i.state }

// LastState returns the state before the last change
func (i *Item) LastState() State { return i.lastState }

// SetState moves the item to s. SHUTDOWN is terminal.
func (i *Item) SetState(s State) {
	if i.state == StateShutdown || i.state == s {
		return
	}
	i.lastState = i.state
	i.state = s
}
