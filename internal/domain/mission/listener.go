package mission

import (
	"context"
	"sync"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
)

// Listener observes mission changes. Implementations must be comparable.
type Listener interface {
	OnMissionCreated(missionID int)
	OnMissionDestroyed(missionID int)
	OnMissionSnapshotChanged(missionID int)
	OnMissionMovedToFront(missionID int)
	OnMissionLabelUpdated(missionID int)
}

// ListenerController fans mission changes out to listeners on its own
// loop, in the order they happened
type ListenerController struct {
	loop *eventloop.Handler

	mu        sync.Mutex
	listeners []Listener
}

// NewListenerController starts the notification loop
func NewListenerController(name string, log *logging.Logger) *ListenerController {
	return &ListenerController{
		loop: eventloop.New(name, logging.OrNop(log).ForComponent("mission-listener"), nil),
	}
}

// AddMissionListener registers l; registering it again is a no-op
func (c *ListenerController) AddMissionListener(l Listener) error {
	if l == nil {
		return errcode.ErrInvalidValue
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.listeners {
		if existing == l {
			return nil
		}
	}
	c.listeners = append(c.listeners, l)
	return nil
}

// DelMissionListener unregisters l
func (c *ListenerController) DelMissionListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Count returns the number of registered listeners
func (c *ListenerController) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// NotifyMissionCreated reports a new mission
func (c *ListenerController) NotifyMissionCreated(missionID int) {
	c.notify(func(l Listener) { l.OnMissionCreated(missionID) })
}

// NotifyMissionDestroyed reports a removed mission
func (c *ListenerController) NotifyMissionDestroyed(missionID int) {
	c.notify(func(l Listener) { l.OnMissionDestroyed(missionID) })
}

// NotifyMissionSnapshotChanged reports a new snapshot
func (c *ListenerController) NotifyMissionSnapshotChanged(missionID int) {
	c.notify(func(l Listener) { l.OnMissionSnapshotChanged(missionID) })
}

// NotifyMissionMovedToFront reports a mission brought to the foreground
func (c *ListenerController) NotifyMissionMovedToFront(missionID int) {
	c.notify(func(l Listener) { l.OnMissionMovedToFront(missionID) })
}

// NotifyMissionLabelUpdated reports a label change
func (c *ListenerController) NotifyMissionLabelUpdated(missionID int) {
	c.notify(func(l Listener) { l.OnMissionLabelUpdated(missionID) })
}

func (c *ListenerController) notify(call func(Listener)) {
	c.mu.Lock()
	targets := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()
	if len(targets) == 0 {
		return
	}
	c.loop.Post(func() {
		for _, l := range targets {
			call(l)
		}
	})
}

// Flush waits until queued notifications were delivered
func (c *ListenerController) Flush(ctx context.Context) error {
	return c.loop.Flush(ctx)
}

// Close stops delivering notifications
func (c *ListenerController) Close() {
	c.loop.Stop()
}
