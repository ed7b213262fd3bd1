package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/id"
	"go.uber.org/zap"
)

// SystemUserID is the user the service boots under
const SystemUserID = 0

// Broadcast names sent through Broadcaster
const (
	BroadcastUserStarted    = "usual.event.USER_STARTED"
	BroadcastUserBackground = "usual.event.USER_BACKGROUND"
	BroadcastUserForeground = "usual.event.USER_FOREGROUND"
	BroadcastUserSwitched   = "usual.event.USER_SWITCHED"
	BroadcastUserStopping   = "usual.event.USER_STOPPING"
	BroadcastUserStopped    = "usual.event.USER_STOPPED"
)

// Host is the service side of a user switch
type Host interface {
	// SwitchToUser makes newUserID's managers current
	SwitchToUser(oldUserID, newUserID int)
	// ClearUserData drops the managers and persisted missions of userID
	ClearUserData(userID int) error
	KillProcessesByUserID(userID int) error
	StartFreezingScreen()
	StopFreezingScreen()
}

// AccountManager answers whether an OS account exists
type AccountManager interface {
	IsAccountExists(userID int) bool
}

// Broadcaster publishes user lifecycle events
type Broadcaster interface {
	BroadcastUserEvent(event string, userID int)
}

// SwitchObserver follows foreground user switches. Every observer must
// acknowledge OnUserSwitch through Controller.ContinueUserSwitch; the switch
// finishes when all have, or when the switch timeout fires.
type SwitchObserver interface {
	OnUserSwitch(oldUserID, newUserID int)
	OnUserSwitchDone(newUserID int)
}

// Config wires a controller
type Config struct {
	Host          Host
	Accounts      AccountManager
	Broadcaster   Broadcaster
	SwitchTimeout time.Duration
	Logger        *logging.Logger
	Metrics       *monitoring.Metrics
}

type switchState struct {
	id       id.SwitchID
	oldUser  int
	newUser  int
	awaiting int
}

// Controller runs the per-user state machines and foreground switching
type Controller struct {
	host          Host
	accounts      AccountManager
	broadcaster   Broadcaster
	switchTimeout time.Duration
	log           *logging.Logger
	metrics       *monitoring.Metrics
	events        *EventHandler

	// opMu serializes StartUser and StopUser; mu guards the fields below
	// and is never held while calling the host
	opMu      sync.Mutex
	mu        sync.Mutex
	current   int
	items     map[int]*Item
	observers []SwitchObserver
	switching *switchState
}

// NewController creates a controller whose current user is the system user
func NewController(cfg Config) *Controller {
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = DefaultSwitchTimeout
	}
	c := &Controller{
		host:          cfg.Host,
		accounts:      cfg.Accounts,
		broadcaster:   cfg.Broadcaster,
		switchTimeout: cfg.SwitchTimeout,
		log:           logging.OrNop(cfg.Logger).ForComponent("user-controller"),
		metrics:       cfg.Metrics,
		current:       SystemUserID,
		items:         make(map[int]*Item),
	}
	system := NewItem(SystemUserID)
	system.SetState(StateStarted)
	c.items[SystemUserID] = system
	c.events = NewEventHandler(c.log, c.processEvent)
	return c
}

// StartUser boots userID and, when foreground is set, makes it current.
// Starting the current user is a no-op.
func (c *Controller) StartUser(userID int, foreground bool) error {
	if userID < 0 {
		return errcode.InvalidUserID
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.GetCurrentUserID() == userID {
		c.log.Debug("user already current", zap.Int("user_id", userID))
		return nil
	}
	if c.accounts != nil && !c.accounts.IsAccountExists(userID) {
		return errcode.InvalidUserID
	}

	c.mu.Lock()
	item, ok := c.items[userID]
	if !ok {
		item = NewItem(userID)
		c.items[userID] = item
	}
	state := item.State()
	if state == StateStopping || state == StateShutdown {
		c.mu.Unlock()
		return errcode.UserIsStopping
	}
	oldUserID := c.current
	var sw *switchState
	if foreground {
		c.current = userID
		sw = c.beginSwitchLocked(oldUserID, userID)
	}
	c.mu.Unlock()

	if foreground && c.host != nil {
		if oldUserID != SystemUserID {
			c.host.StartFreezingScreen()
		}
		c.host.SwitchToUser(oldUserID, userID)
	}

	needStart := state == StateBooting
	if needStart {
		c.events.SendEvent(EventSystemUserStart, UserEvent{NewUserID: userID, Item: item})
	}
	if foreground {
		ev := UserEvent{OldUserID: oldUserID, NewUserID: userID, Item: item, SwitchID: sw.id}
		c.events.SendEvent(EventSystemUserCurrent, ev)
		c.events.SendEvent(EventReportUserSwitch, ev)
		c.events.SendDelayed(EventUserSwitchTimeout, ev, c.switchTimeout)
	}
	if needStart {
		c.broadcast(BroadcastUserStarted, userID)
	}

	c.mu.Lock()
	if item.State() == StateBooting {
		item.SetState(StateStarted)
	}
	c.updateGaugesLocked()
	c.mu.Unlock()

	if foreground {
		if oldUserID != SystemUserID {
			c.broadcast(BroadcastUserBackground, oldUserID)
		}
		c.broadcast(BroadcastUserForeground, userID)
		c.broadcast(BroadcastUserSwitched, userID)
	}
	c.log.Info("user started", zap.Int("user_id", userID), zap.Bool("foreground", foreground))
	return nil
}

// StopUser shuts a background user down: its processes are killed and its
// managers and persisted missions dropped
func (c *Controller) StopUser(userID int) error {
	if userID <= SystemUserID {
		return errcode.InvalidUserID
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.GetCurrentUserID() == userID {
		return errcode.ErrInvalidValue
	}
	if c.accounts != nil && !c.accounts.IsAccountExists(userID) {
		return errcode.InvalidUserID
	}

	c.mu.Lock()
	item, ok := c.items[userID]
	if !ok || item.State() == StateStopping || item.State() == StateShutdown {
		c.mu.Unlock()
		return nil
	}
	item.SetState(StateStopping)
	c.mu.Unlock()

	c.broadcast(BroadcastUserStopping, userID)
	if c.host != nil {
		if err := c.host.KillProcessesByUserID(userID); err != nil {
			c.log.Warn("kill user processes failed", zap.Int("user_id", userID), zap.Error(err))
		}
		if err := c.host.ClearUserData(userID); err != nil {
			c.log.Warn("clear user data failed", zap.Int("user_id", userID), zap.Error(err))
		}
	}

	c.mu.Lock()
	item.SetState(StateShutdown)
	delete(c.items, userID)
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.broadcast(BroadcastUserStopped, userID)
	c.log.Info("user stopped", zap.Int("user_id", userID))
	return nil
}

// GetCurrentUserID returns the foreground user
func (c *Controller) GetCurrentUserID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// IsCurrentUser reports whether userID is the foreground user
func (c *Controller) IsCurrentUser(userID int) bool {
	return c.GetCurrentUserID() == userID
}

// GetUserState returns the state of a known user
func (c *Controller) GetUserState(userID int) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[userID]
	if !ok {
		return StateShutdown, false
	}
	return item.State(), true
}

// Users returns the known user ids in ascending order
func (c *Controller) Users() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.items))
	for uid := range c.items {
		ids = append(ids, uid)
	}
	sort.Ints(ids)
	return ids
}

// RegisterUserSwitchObserver adds an observer; nil or duplicates are ignored
func (c *Controller) RegisterUserSwitchObserver(o SwitchObserver) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.observers {
		if existing == o {
			return
		}
	}
	c.observers = append(c.observers, o)
}

// UnregisterUserSwitchObserver removes an observer
func (c *Controller) UnregisterUserSwitchObserver(o SwitchObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.observers {
		if existing == o {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// ContinueUserSwitch acknowledges the switch from oldUserID to newUserID.
// Acknowledgements for a switch no longer in progress are ignored.
func (c *Controller) ContinueUserSwitch(oldUserID, newUserID int) {
	c.mu.Lock()
	sw := c.switching
	if sw == nil || sw.oldUser != oldUserID || sw.newUser != newUserID {
		c.mu.Unlock()
		return
	}
	sw.awaiting--
	ready := sw.awaiting <= 0
	c.mu.Unlock()
	if ready {
		c.events.SendEvent(EventContinueUserSwitch, UserEvent{OldUserID: oldUserID, NewUserID: newUserID, SwitchID: sw.id})
	}
}

// Switching reports whether a foreground switch is unfinished
func (c *Controller) Switching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switching != nil
}

// Flush waits for queued user events
func (c *Controller) Flush(ctx context.Context) error {
	return c.events.Loop().Flush(ctx)
}

// Close stops event dispatch
func (c *Controller) Close() {
	c.events.Stop()
}

func (c *Controller) beginSwitchLocked(oldUserID, newUserID int) *switchState {
	if prev := c.switching; prev != nil {
		c.events.RemoveEvent(EventUserSwitchTimeout, UserEvent{NewUserID: prev.newUser, SwitchID: prev.id})
		c.metrics.RecordUserSwitch("superseded")
	}
	c.switching = &switchState{id: id.NewSwitchID(), oldUser: oldUserID, newUser: newUserID}
	return c.switching
}

func (c *Controller) processEvent(eid EventID, ev UserEvent) {
	c.log.Debug("user event", zap.Stringer("event", eid),
		zap.Int("old_user_id", ev.OldUserID), zap.Int("new_user_id", ev.NewUserID))
	switch eid {
	case EventSystemUserStart:
		c.log.Info("system user start", zap.Int("user_id", ev.NewUserID))
	case EventSystemUserCurrent:
		c.metrics.SetCurrentUser(ev.NewUserID)
	case EventReportUserSwitch:
		c.handleReportUserSwitch(ev)
	case EventContinueUserSwitch:
		c.finishUserSwitch(ev, "continued")
	case EventUserSwitchTimeout:
		c.log.Warn("user switch timed out", zap.Int("user_id", ev.NewUserID))
		c.finishUserSwitch(ev, "timeout")
	case EventReportUserSwitchDone:
		for _, o := range c.snapshotObservers() {
			o.OnUserSwitchDone(ev.NewUserID)
		}
	}
}

func (c *Controller) handleReportUserSwitch(ev UserEvent) {
	c.mu.Lock()
	sw := c.switching
	if sw == nil || sw.id != ev.SwitchID {
		c.mu.Unlock()
		return
	}
	observers := append([]SwitchObserver(nil), c.observers...)
	sw.awaiting = len(observers)
	c.mu.Unlock()

	if len(observers) == 0 {
		c.events.SendEvent(EventContinueUserSwitch, ev)
		return
	}
	for _, o := range observers {
		o.OnUserSwitch(ev.OldUserID, ev.NewUserID)
	}
}

// finishUserSwitch runs once per switch; whichever of continue and timeout
// arrives second finds the switch gone
func (c *Controller) finishUserSwitch(ev UserEvent, how string) {
	c.mu.Lock()
	sw := c.switching
	if sw == nil || sw.id != ev.SwitchID {
		c.mu.Unlock()
		return
	}
	c.switching = nil
	c.mu.Unlock()

	c.events.RemoveEvent(EventUserSwitchTimeout, ev)
	c.events.SendEvent(EventReportUserSwitchDone, ev)
	c.metrics.RecordUserSwitch(how)
	if c.host != nil {
		c.host.StopFreezingScreen()
	}
}

func (c *Controller) snapshotObservers() []SwitchObserver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SwitchObserver(nil), c.observers...)
}

func (c *Controller) broadcast(event string, userID int) {
	if c.broadcaster != nil {
		c.broadcaster.BroadcastUserEvent(event, userID)
	}
}

func (c *Controller) updateGaugesLocked() {
	started := 0
	for _, item := range c.items {
		if item.State() == StateStarted {
			started++
		}
	}
	c.metrics.SetUsersStarted(started)
	c.metrics.SetCurrentUser(c.current)
}
