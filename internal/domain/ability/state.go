package ability

import "fmt"

// State is the lifecycle state of an ability record
type State int

const (
	StateInitial State = iota
	StateInactive
	StateActive
	StateBackground
	StateSuspended
	StateInactivating
	StateActivating
	StateMovingBackground
	StateTerminating
	StateForegroundNew
	StateBackgroundNew
	StateForegroundingNew
	StateBackgroundingNew

	// stateNone marks "no transition in flight"; never a record's state
	stateNone State = -1
)

var stateNames = map[State]string{
	StateInitial:          "INITIAL",
	StateInactive:         "INACTIVE",
	StateActive:           "ACTIVE",
	StateBackground:       "BACKGROUND",
	StateSuspended:        "SUSPENDED",
	StateInactivating:     "INACTIVATING",
	StateActivating:       "ACTIVATING",
	StateMovingBackground: "MOVING_BACKGROUND",
	StateTerminating:      "TERMINATING",
	StateForegroundNew:    "FOREGROUND_NEW",
	StateBackgroundNew:    "BACKGROUND_NEW",
	StateForegroundingNew: "FOREGROUNDING_NEW",
	StateBackgroundingNew: "BACKGROUNDING_NEW",
}

// String returns the state name
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "INVALIDATESTATE"
}

// ParseState converts a state name back to a State
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return stateNone, false
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name
func (s *State) UnmarshalText(b []byte) error {
	st, ok := ParseState(string(b))
	if !ok {
		return fmt.Errorf("unknown ability state %q", b)
	}
	*s = st
	return nil
}

// IsTransient reports whether the state is an in-flight transition
func (s State) IsTransient() bool {
	switch s {
	case StateInactivating, StateActivating, StateMovingBackground, StateTerminating,
		StateForegroundingNew, StateBackgroundingNew:
		return true
	}
	return false
}

// transientFor maps a transition target to the state a record shows while
// the transition is in flight
func transientFor(target State) State {
	switch target {
	case StateActive:
		return StateActivating
	case StateInactive:
		return StateInactivating
	case StateBackground:
		return StateMovingBackground
	case StateInitial:
		return StateTerminating
	case StateForegroundNew:
		return StateForegroundingNew
	case StateBackgroundNew:
		return StateBackgroundingNew
	}
	return target
}

// ConnectionState is the state of a service binding
type ConnectionState int

const (
	ConnectionInit ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnecting
	ConnectionDisconnected
)

// String returns the connection state name
func (s ConnectionState) String() string {
	switch s {
	case ConnectionInit:
		return "INIT"
	case ConnectionConnecting:
		return "CONNECTING"
	case ConnectionConnected:
		return "CONNECTED"
	case ConnectionDisconnecting:
		return "DISCONNECTING"
	case ConnectionDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Timeout event ids. The event param is the record id.
const (
	EventLoadTimeout uint32 = iota + 1
	EventActiveTimeout
	EventInactiveTimeout
	EventBackgroundTimeout
	EventTerminateTimeout
	EventForegroundNewTimeout
	EventBackgroundNewTimeout
)

// EventName returns a label for a timeout event id
func EventName(id uint32) string {
	switch id {
	case EventLoadTimeout:
		return "load"
	case EventActiveTimeout:
		return "active"
	case EventInactiveTimeout:
		return "inactive"
	case EventBackgroundTimeout:
		return "background"
	case EventTerminateTimeout:
		return "terminate"
	case EventForegroundNewTimeout:
		return "foreground_new"
	case EventBackgroundNewTimeout:
		return "background_new"
	default:
		return "unknown"
	}
}

func timeoutEventFor(target State) uint32 {
	switch target {
	case StateActive:
		return EventActiveTimeout
	case StateInactive:
		return EventInactiveTimeout
	case StateBackground:
		return EventBackgroundTimeout
	case StateInitial:
		return EventTerminateTimeout
	case StateForegroundNew:
		return EventForegroundNewTimeout
	case StateBackgroundNew:
		return EventBackgroundNewTimeout
	}
	return 0
}
