package user

import (
	"fmt"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/id"
)

// EventID tags a UserEvent
type EventID int

const (
	EventSystemUserStart EventID = iota + 1
	EventSystemUserCurrent
	EventReportUserSwitch
	EventContinueUserSwitch
	EventUserSwitchTimeout
	EventReportUserSwitchDone
)

func (e EventID) String() string {
	switch e {
	case EventSystemUserStart:
		return "SYSTEM_USER_START"
	case EventSystemUserCurrent:
		return "SYSTEM_USER_CURRENT"
	case EventReportUserSwitch:
		return "REPORT_USER_SWITCH"
	case EventContinueUserSwitch:
		return "CONTINUE_USER_SWITCH"
	case EventUserSwitchTimeout:
		return "USER_SWITCH_TIMEOUT"
	case EventReportUserSwitchDone:
		return "REPORT_USER_SWITCH_DONE"
	default:
		return fmt.Sprintf("EventID(%d)", int(e))
	}
}

// DefaultSwitchTimeout bounds how long a switch waits for observers
const DefaultSwitchTimeout = 3 * time.Second

// UserEvent is the payload of every user event
type UserEvent struct {
	OldUserID int
	NewUserID int
	Item      *Item
	SwitchID  id.SwitchID
}

// EventHandler runs user events one at a time on its own loop
type EventHandler struct {
	loop    *eventloop.Handler
	process func(EventID, UserEvent)
}

// NewEventHandler starts the loop; process receives every event
func NewEventHandler(log *logging.Logger, process func(EventID, UserEvent)) *EventHandler {
	return &EventHandler{
		loop:    eventloop.New("user", log, nil),
		process: process,
	}
}

// SendEvent queues ev for immediate dispatch
func (h *EventHandler) SendEvent(eid EventID, ev UserEvent) bool {
	return h.loop.Post(func() { h.process(eid, ev) })
}

// SendDelayed dispatches ev after delay unless removed first
func (h *EventHandler) SendDelayed(eid EventID, ev UserEvent, delay time.Duration) bool {
	return h.loop.PostTask(taskName(eid, ev), func() { h.process(eid, ev) }, delay)
}

// RemoveEvent cancels a delayed event
func (h *EventHandler) RemoveEvent(eid EventID, ev UserEvent) {
	h.loop.RemoveTask(taskName(eid, ev))
}

// HasEvent reports whether a delayed event is pending
func (h *EventHandler) HasEvent(eid EventID, ev UserEvent) bool {
	return h.loop.HasTask(taskName(eid, ev))
}

// Loop exposes the underlying handler for flushing
func (h *EventHandler) Loop() *eventloop.Handler { return h.loop }

// Stop ends the loop
func (h *EventHandler) Stop() { h.loop.Stop() }

func taskName(eid EventID, ev UserEvent) string {
	return fmt.Sprintf("%s-%d-%s", eid, ev.NewUserID, ev.SwitchID)
}
