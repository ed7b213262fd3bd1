package connect

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// Services restarted automatically when their process dies
var restartOnDeath = map[string]bool{
	"com.ohos.callui.ServiceAbility": true,
	"com.ohos.contactsdataability":   true,
	"com.ohos.mms.ServiceAbility":    true,
}

// VisibilityFunc decides whether the caller behind callerToken may reach an
// invisible target
type VisibilityFunc func(target *ability.Record, callerToken ability.Token) error

// Option configures a Manager
type Option func(*Manager)

// WithVisibility installs the invisible-target check used on disconnect
func WithVisibility(fn VisibilityFunc) Option {
	return func(m *Manager) { m.visible = fn }
}

// WithRestartMax bounds how many times a service is restarted after death
func WithRestartMax(n int) Option {
	return func(m *Manager) { m.restartMax = n }
}

// Manager tracks the service and extension records of one user and the
// bindings clients hold to them.
type Manager struct {
	userID     int
	env        *ability.Env
	loop       *eventloop.Handler
	log        *logging.Logger
	metrics    *monitoring.Metrics
	visible    VisibilityFunc
	restartMax int

	mu          sync.Mutex
	services    map[string]*ability.Record
	connects    map[ability.ConnectCallback][]*ability.Connection
	terminating []*ability.Record
}

// NewManager starts a connect manager for userID with its own event loop
func NewManager(userID int, env *ability.Env, opts ...Option) *Manager {
	log := logging.OrNop(env.Logger).ForComponent("connect").ForUser(userID)
	m := &Manager{
		userID:     userID,
		env:        env,
		log:        log,
		metrics:    env.Metrics,
		restartMax: 3,
		services:   make(map[string]*ability.Record),
		connects:   make(map[ability.ConnectCallback][]*ability.Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loop = eventloop.New("connect-"+strconv.Itoa(userID), log, nil)
	return m
}

// UserID returns the user the manager serves
func (m *Manager) UserID() int { return m.userID }

// ============================================================================
// Start / stop
// ============================================================================

// StartAbility starts a service. A fresh record is loaded; an ACTIVE one
// receives another command; one still activating is refused.
func (m *Manager) StartAbility(req *ability.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startAbilityLocked(req)
}

func (m *Manager) startAbilityLocked(req *ability.Request) error {
	rec, loaded := m.getOrCreateServiceLocked(req, false)
	if caller, ok := m.lookup(req.CallerToken); ok {
		rec.AddCallerRecord(caller, req.RequestCode)
	}

	switch {
	case !loaded:
		if err := m.loadLocked(rec); err != nil {
			m.metrics.RecordAbilityStart(string(rec.Type()), "error")
			return err
		}
	case rec.State() == ability.StateActive:
		m.commandLocked(rec)
	default:
		m.log.Warn("target service is already activating", zap.String("element", rec.URI()))
		m.metrics.RecordAbilityStart(string(rec.Type()), "activating")
		return errcode.StartServiceAbilityActivating
	}
	m.metrics.RecordAbilityStart(string(rec.Type()), "ok")
	return nil
}

// StopServiceAbility terminates a started service. A service that still has
// connections is only marked as not started and ends with its last
// connection.
func (m *Manager) StopServiceAbility(req *ability.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := req.Element().URI()
	rec := m.services[uri]
	if rec == nil {
		for _, t := range m.terminating {
			if t.URI() == uri {
				return nil
			}
		}
		return errcode.ErrInvalidValue
	}
	if rec.ConnectionCount() > 0 {
		m.log.Info("service still connected, stop deferred", zap.String("element", rec.URI()))
		rec.ResetStartID()
		return nil
	}
	return m.terminateRecordLocked(rec)
}

// TerminateAbility terminates the service behind token, disconnecting all
// of its clients
func (m *Manager) TerminateAbility(token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByTokenLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	return m.terminateRecordLocked(rec)
}

// TerminateAbilityByCaller terminates the service that caller started with
// requestCode
func (m *Manager) TerminateAbilityByCaller(callerToken ability.Token, requestCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	caller, _ := m.lookup(callerToken)
	for _, rec := range m.sortedServicesLocked() {
		for _, c := range rec.Callers() {
			if c.Caller == caller && c.RequestCode == requestCode {
				return m.terminateRecordLocked(rec)
			}
		}
	}
	return errcode.NoFoundAbilityByCaller
}

// ============================================================================
// Connect / disconnect
// ============================================================================

// ConnectAbility binds cb to the service described by req. Binding the same
// callback twice to a service it is connected to is a no-op.
func (m *Manager) ConnectAbility(req *ability.Request, cb ability.ConnectCallback, callerToken ability.Token) error {
	if cb == nil {
		return errcode.ErrInvalidValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, loaded := m.getOrCreateServiceLocked(req, true)
	if loaded {
		if existing := rec.ConnectionFor(cb); existing != nil {
			st := existing.State()
			if st == ability.ConnectionConnecting || st == ability.ConnectionConnected {
				return nil
			}
		}
	}

	conn := ability.NewConnection(callerToken, rec, cb)
	rec.AddConnection(conn)
	m.connects[cb] = append(m.connects[cb], conn)
	m.metrics.IncConnectionsOpened()
	m.updateGaugesLocked()

	switch {
	case !loaded:
		conn.SetState(ability.ConnectionConnecting)
		if err := m.loadLocked(rec); err != nil {
			m.dropConnectionLocked(conn, "load_failed")
			return err
		}
	case rec.State() == ability.StateActive && rec.ConnectionCount() > 1:
		// the service already handed out its remote object
		conn.SetState(ability.ConnectionConnecting)
		m.loop.Post(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if conn.State() == ability.ConnectionConnecting {
				conn.CompleteConnect(errcode.OK)
			}
		})
	case rec.State() == ability.StateActive:
		m.armConnectTimeoutLocked(rec)
		if err := conn.ConnectAbility(); err != nil {
			m.log.Warn("connect ability failed", zap.String("element", rec.URI()), zap.Error(err))
		}
	default:
		conn.SetState(ability.ConnectionConnecting)
		m.log.Debug("target service is activating, connection waits", zap.String("element", rec.URI()))
	}
	return nil
}

// DisconnectAbility drops every binding held by cb. Bindings that are not
// the last of their service complete at once; the last binding waits for
// the service's disconnect-done.
func (m *Manager) DisconnectAbility(cb ability.ConnectCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.connects[cb]
	if !ok {
		return errcode.ConnectionNotExist
	}
	for _, conn := range list {
		target := conn.Target()
		if m.visible != nil && !target.Info().Visible {
			if err := m.visible(target, conn.CallerToken()); err != nil {
				return err
			}
		}
		if err := conn.DisconnectAbility(); err != nil {
			m.log.Error("disconnect ability failed", zap.Int64("connection", conn.ID()), zap.Error(err))
			return err
		}
		switch conn.State() {
		case ability.ConnectionDisconnected:
			m.loop.Post(func() { m.finishDirectDisconnect(conn) })
		case ability.ConnectionDisconnecting:
			m.loop.PostTask(disconnectTaskName(conn), func() { m.handleDisconnectTimeout(conn) }, m.env.Timeouts.Disconnect)
		}
	}
	return nil
}

func (m *Manager) finishDirectDisconnect(conn *ability.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := conn.Target()
	conn.CompleteDisconnect(errcode.OK, false)
	target.RemoveConnection(conn)
	m.removeFromCallbackMapLocked(conn)
	m.metrics.RecordConnectionClosed("disconnect")
	m.terminateIfIdleLocked(target)
	m.updateGaugesLocked()
}

func (m *Manager) handleDisconnectTimeout(conn *ability.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.State() != ability.ConnectionDisconnecting {
		return
	}
	m.log.Warn("disconnect timeout", zap.Int64("connection", conn.ID()), zap.String("element", conn.Target().URI()))
	m.metrics.RecordTimeout("disconnect")
	target := conn.Target()
	conn.CompleteDisconnect(errcode.OK, false)
	target.RemoveConnection(conn)
	m.removeFromCallbackMapLocked(conn)
	m.metrics.RecordConnectionClosed("timeout")
	m.terminateIfIdleLocked(target)
	m.updateGaugesLocked()
}

// ============================================================================
// Hosted process callbacks
// ============================================================================

// AttachAbilityThread binds the hosted process for token and starts the
// INACTIVE handshake
func (m *Manager) AttachAbilityThread(scheduler ability.Scheduler, token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByTokenLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	rec.SetScheduler(scheduler)
	if err := rec.Inactivate(); err != nil {
		return fmt.Errorf("inactivate %s: %w", rec.URI(), err)
	}
	return nil
}

// AbilityTransitionDone handles a lifecycle report from a service process.
// Services report INACTIVE after attach and INITIAL after terminate.
func (m *Manager) AbilityTransitionDone(token ability.Token, state ability.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByTokenLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	switch state {
	case ability.StateInactive:
		if !rec.CompleteTransition(ability.StateInactive) {
			return errcode.ErrInvalidValue
		}
		m.dispatchInactiveLocked(rec)
	case ability.StateInitial:
		if !rec.CompleteTransition(ability.StateInitial) {
			return errcode.ErrInvalidValue
		}
		m.terminateDoneLocked(rec)
	default:
		m.log.Warn("unexpected service transition", zap.Stringer("state", state), zap.String("element", rec.URI()))
		return errcode.ErrInvalidValue
	}
	return nil
}

func (m *Manager) dispatchInactiveLocked(rec *ability.Record) {
	if rec.ConnectionCount() > 0 {
		m.connectServiceLocked(rec)
	}
	if !rec.CreatedByConnect() {
		m.commandLocked(rec)
	}
}

// ScheduleConnectAbilityDone records the service's remote object and
// completes every binding waiting on it
func (m *Manager) ScheduleConnectAbilityDone(token ability.Token, remote ability.RemoteObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByTokenLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	if st := rec.State(); st != ability.StateInactive && st != ability.StateActive {
		return errcode.InvalidConnectionState
	}
	m.loop.RemoveTask(connectTaskName(rec))
	rec.SetRemoteObject(remote)
	rec.SetState(ability.StateActive)
	for _, conn := range rec.Connections() {
		if conn.ScheduleConnectAbilityDone() == nil {
			conn.CompleteConnect(errcode.OK)
		}
	}
	return nil
}

// ScheduleDisconnectAbilityDone completes the binding that was waiting for
// the service to disconnect, terminating the service when it is idle
func (m *Manager) ScheduleDisconnectAbilityDone(token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByTokenLocked(token)
	if rec == nil {
		return errcode.ConnectionNotExist
	}
	conn := rec.DisconnectingConnection()
	if conn == nil {
		return errcode.ConnectionNotExist
	}
	if rec.State() != ability.StateActive {
		return errcode.InvalidConnectionState
	}
	m.loop.RemoveTask(disconnectTaskName(conn))
	if err := conn.ScheduleDisconnectAbilityDone(); err != nil {
		return err
	}
	rec.RemoveConnection(conn)
	m.removeFromCallbackMapLocked(conn)
	m.metrics.RecordConnectionClosed("disconnect")
	m.terminateIfIdleLocked(rec)
	m.updateGaugesLocked()
	return nil
}

// ScheduleCommandAbilityDone marks the last command delivered
func (m *Manager) ScheduleCommandAbilityDone(token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByTokenLocked(token)
	if rec == nil {
		return errcode.ConnectionNotExist
	}
	if st := rec.State(); st != ability.StateInactive && st != ability.StateActive {
		return errcode.InvalidConnectionState
	}
	m.loop.RemoveTask(commandTaskName(rec, rec.StartID()))
	rec.SetState(ability.StateActive)
	return nil
}

// OnAbilityDied tears down every binding of a dead service and restarts it
// when it is one of the always-on services
func (m *Manager) OnAbilityDied(token ability.Token) {
	rec, ok := m.lookup(token)
	if !ok || !rec.Type().IsConnectable() || rec.UserID() != m.userID {
		return
	}
	m.loop.Post(func() { m.handleAbilityDied(rec) })
}

func (m *Manager) handleAbilityDied(rec *ability.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.services[rec.URI()] != rec && !m.isTerminatingLocked(rec) {
		return
	}
	m.log.Warn("service died", zap.String("element", rec.URI()), zap.Int64("record_id", rec.ID()))
	m.metrics.RecordDeath(string(rec.Type()))
	rec.OnProcessDied()
	m.loop.RemoveTask(connectTaskName(rec))

	for _, conn := range rec.Connections() {
		m.loop.RemoveTask(disconnectTaskName(conn))
		conn.CompleteDisconnect(errcode.OK, true)
		rec.RemoveConnection(conn)
		m.removeFromCallbackMapLocked(conn)
		m.metrics.RecordConnectionClosed("died")
	}

	restart := restartOnDeath[rec.Info().Name] && !rec.IsTerminating() && rec.RestartCount() < m.restartMax
	req := rec.Request()
	count := rec.RestartCount()
	m.removeServiceLocked(rec)
	if restart {
		m.log.Info("restarting service", zap.String("element", rec.URI()), zap.Int("restart_count", count+1))
		m.metrics.IncRestarts()
		if err := m.startAbilityLocked(req); err != nil {
			m.log.Error("restart failed", zap.String("element", rec.URI()), zap.Error(err))
		} else if restarted := m.services[req.Element().URI()]; restarted != nil {
			restarted.SetRestartCount(count + 1)
		}
	}
	m.updateGaugesLocked()
}

// OnTimeOut handles a lifecycle timeout routed from the service event
// handler. It reports whether recordID belonged to this manager.
func (m *Manager) OnTimeOut(eventID uint32, recordID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.findByIDLocked(recordID)
	if rec == nil {
		return false
	}
	m.metrics.RecordTimeout(ability.EventName(eventID))
	m.log.Warn("service timeout", zap.String("event", ability.EventName(eventID)), zap.String("element", rec.URI()))

	switch eventID {
	case ability.EventLoadTimeout:
		m.handleLoadTimeoutLocked(rec)
	case ability.EventInactiveTimeout:
		if rec.ForceCompleteTransition(errcode.InnerErr) == ability.StateInactive {
			m.dispatchInactiveLocked(rec)
		}
	case ability.EventTerminateTimeout:
		rec.ForceCompleteTransition(errcode.InnerErr)
		if m.env.AppScheduler != nil {
			if err := m.env.AppScheduler.MoveToBackground(rec.Token()); err != nil {
				m.log.Warn("move to background failed", zap.Error(err))
			}
		}
		m.terminateDoneLocked(rec)
	default:
		rec.ForceCompleteTransition(errcode.InnerErr)
	}
	return true
}

func (m *Manager) handleLoadTimeoutLocked(rec *ability.Record) {
	for _, conn := range rec.Connections() {
		conn.CompleteConnect(errcode.LoadAbilityTimeout)
		rec.RemoveConnection(conn)
		m.removeFromCallbackMapLocked(conn)
		m.metrics.RecordConnectionClosed("load_timeout")
	}
	m.removeServiceLocked(rec)
	if !rec.IsLauncher() && m.env.AppScheduler != nil {
		if err := m.env.AppScheduler.TerminateAbility(rec.Token()); err != nil {
			m.log.Warn("terminate after load timeout failed", zap.Error(err))
		}
	}
	m.updateGaugesLocked()
}

func (m *Manager) handleConnectTimeout(rec *ability.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := rec.ConnectingConnections()
	if len(pending) == 0 {
		return
	}
	m.log.Warn("connect timeout", zap.String("element", rec.URI()), zap.Int("pending", len(pending)))
	m.metrics.RecordTimeout("connect")
	for _, conn := range pending {
		conn.CompleteConnect(errcode.ConnectionTimeout)
		rec.RemoveConnection(conn)
		m.removeFromCallbackMapLocked(conn)
		m.metrics.RecordConnectionClosed("timeout")
	}
	m.updateGaugesLocked()
}

func (m *Manager) handleCommandTimeout(rec *ability.Record, startID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Warn("command timeout", zap.String("element", rec.URI()), zap.Int("start_id", startID))
	m.metrics.RecordTimeout("command")
}

// ============================================================================
// Queries
// ============================================================================

// GetServiceRecordByElementName returns the live record for a service URI
func (m *Manager) GetServiceRecordByElementName(uri string) *ability.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[uri]
}

// GetServiceRecordByToken returns the live or terminating record for token
func (m *Manager) GetServiceRecordByToken(token ability.Token) *ability.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findByTokenLocked(token)
}

// GetConnectRecordListByCallback returns the bindings held by cb
func (m *Manager) GetConnectRecordListByCallback(cb ability.ConnectCallback) []*ability.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ability.Connection(nil), m.connects[cb]...)
}

// HasToken reports whether token belongs to one of this manager's records
func (m *Manager) HasToken(token ability.Token) bool {
	return m.GetServiceRecordByToken(token) != nil
}

// Stats returns the number of live services and bindings
func (m *Manager) Stats() (services, connections int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.connects {
		connections += len(list)
	}
	return len(m.services), connections
}

// Dump returns the service dump lines, services ordered by URI
func (m *Manager) Dump() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []string{fmt.Sprintf("  User ID #%d", m.userID), "  Service Abilities:"}
	for _, rec := range m.sortedServicesLocked() {
		lines = append(lines, rec.DumpService()...)
	}
	if len(m.terminating) > 0 {
		lines = append(lines, "  Terminating Abilities:")
		for _, rec := range m.terminating {
			lines = append(lines, rec.DumpService()...)
		}
	}
	return lines
}

// Flush waits until work posted to the manager's loop so far has run
func (m *Manager) Flush(ctx context.Context) error {
	return m.loop.Flush(ctx)
}

// VisitRecords calls fn for every live and terminating service record while
// the manager is locked; fn must not call back into the manager
func (m *Manager) VisitRecords(fn func(*ability.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.services {
		fn(rec)
	}
	for _, rec := range m.terminating {
		fn(rec)
	}
}

// Close stops the manager's loop and invalidates every service record,
// cancelling its pending timeouts
func (m *Manager) Close() {
	m.loop.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.services {
		rec.RemoveTimeouts()
		rec.Release()
	}
	for _, rec := range m.terminating {
		rec.RemoveTimeouts()
		rec.Release()
	}
	m.services = make(map[string]*ability.Record)
	m.connects = make(map[ability.ConnectCallback][]*ability.Connection)
	m.terminating = nil
}

// ============================================================================
// Internals
// ============================================================================

func (m *Manager) lookup(token ability.Token) (*ability.Record, bool) {
	if token.IsNil() || m.env.Tokens == nil {
		return nil, false
	}
	return m.env.Tokens.Lookup(token)
}

func (m *Manager) getOrCreateServiceLocked(req *ability.Request, byConnect bool) (*ability.Record, bool) {
	uri := req.Element().URI()
	if rec, ok := m.services[uri]; ok {
		return rec, true
	}
	rec := ability.NewRecord(req, m.env)
	rec.SetCreatedByConnect(byConnect)
	m.services[uri] = rec
	m.updateGaugesLocked()
	return rec, false
}

func (m *Manager) loadLocked(rec *ability.Record) error {
	if err := rec.LoadAbility(); err != nil {
		m.log.Error("load service failed", zap.String("element", rec.URI()), zap.Error(err))
		m.removeServiceLocked(rec)
		return err
	}
	return nil
}

func (m *Manager) connectServiceLocked(rec *ability.Record) {
	m.armConnectTimeoutLocked(rec)
	if err := rec.ConnectAbility(); err != nil {
		m.log.Warn("connect ability failed", zap.String("element", rec.URI()), zap.Error(err))
	}
}

func (m *Manager) armConnectTimeoutLocked(rec *ability.Record) {
	m.loop.PostTask(connectTaskName(rec), func() { m.handleConnectTimeout(rec) }, m.env.Timeouts.Connect)
}

func (m *Manager) commandLocked(rec *ability.Record) {
	startID := rec.AddStartID()
	m.loop.PostTask(commandTaskName(rec, startID), func() { m.handleCommandTimeout(rec, startID) }, m.env.Timeouts.Command)
	if err := rec.CommandAbility(); err != nil {
		m.log.Warn("command ability failed", zap.String("element", rec.URI()), zap.Error(err))
	}
}

func (m *Manager) terminateIfIdleLocked(rec *ability.Record) {
	if rec.ConnectionCount() == 0 && rec.StartID() == 0 && !rec.IsTerminating() {
		m.log.Info("service has no connection and was not started, terminating", zap.String("element", rec.URI()))
		if err := m.terminateRecordLocked(rec); err != nil {
			m.log.Warn("terminate idle service failed", zap.Error(err))
		}
	}
}

// terminateRecordLocked moves rec to the terminating list, completes its
// remaining bindings on the loop and asks the process to tear it down
func (m *Manager) terminateRecordLocked(rec *ability.Record) error {
	if rec.IsTerminating() {
		return nil
	}
	if m.services[rec.URI()] == rec {
		delete(m.services, rec.URI())
	}
	m.terminating = append(m.terminating, rec)

	if conns := rec.Connections(); len(conns) > 0 {
		m.loop.Post(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for _, conn := range conns {
				m.loop.RemoveTask(disconnectTaskName(conn))
				conn.CompleteDisconnect(errcode.OK, false)
				rec.RemoveConnection(conn)
				m.removeFromCallbackMapLocked(conn)
				m.metrics.RecordConnectionClosed("terminate")
			}
			m.updateGaugesLocked()
		})
	}
	m.updateGaugesLocked()

	if err := rec.Terminate(); err != nil {
		if rec.Scheduler() == nil {
			// never attached, nothing to tear down in a process
			rec.ForceCompleteTransition(err)
			m.terminateDoneLocked(rec)
			return nil
		}
		return err
	}
	return nil
}

func (m *Manager) terminateDoneLocked(rec *ability.Record) {
	if m.env.AppScheduler != nil {
		if err := m.env.AppScheduler.TerminateAbility(rec.Token()); err != nil {
			m.log.Warn("app scheduler terminate failed", zap.Error(err))
		}
	}
	m.removeServiceLocked(rec)
	m.updateGaugesLocked()
}

// removeServiceLocked forgets rec entirely and invalidates its token
func (m *Manager) removeServiceLocked(rec *ability.Record) {
	if m.services[rec.URI()] == rec {
		delete(m.services, rec.URI())
	}
	for i, t := range m.terminating {
		if t == rec {
			m.terminating = append(m.terminating[:i], m.terminating[i+1:]...)
			break
		}
	}
	m.loop.RemoveTask(connectTaskName(rec))
	m.loop.RemoveTask(commandTaskName(rec, rec.StartID()))
	rec.RemoveTimeouts()
	rec.Release()
}

func (m *Manager) dropConnectionLocked(conn *ability.Connection, reason string) {
	conn.Target().RemoveConnection(conn)
	m.removeFromCallbackMapLocked(conn)
	m.metrics.RecordConnectionClosed(reason)
	m.updateGaugesLocked()
}

func (m *Manager) removeFromCallbackMapLocked(conn *ability.Connection) {
	cb := conn.Callback()
	list := m.connects[cb]
	for i, c := range list {
		if c == conn {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.connects, cb)
		return
	}
	m.connects[cb] = list
}

func (m *Manager) findByTokenLocked(token ability.Token) *ability.Record {
	rec, ok := m.lookup(token)
	if !ok {
		return nil
	}
	if m.services[rec.URI()] == rec || m.isTerminatingLocked(rec) {
		return rec
	}
	return nil
}

func (m *Manager) findByIDLocked(id int64) *ability.Record {
	for _, rec := range m.services {
		if rec.ID() == id {
			return rec
		}
	}
	for _, rec := range m.terminating {
		if rec.ID() == id {
			return rec
		}
	}
	return nil
}

func (m *Manager) isTerminatingLocked(rec *ability.Record) bool {
	for _, t := range m.terminating {
		if t == rec {
			return true
		}
	}
	return false
}

func (m *Manager) sortedServicesLocked() []*ability.Record {
	out := make([]*ability.Record, 0, len(m.services))
	for _, rec := range m.services {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI() < out[j].URI() })
	return out
}

func (m *Manager) updateGaugesLocked() {
	user := strconv.Itoa(m.userID)
	m.metrics.SetServicesLive(user, len(m.services))
	n := 0
	for _, list := range m.connects {
		n += len(list)
	}
	m.metrics.SetConnectionsLive(user, n)
}

func connectTaskName(rec *ability.Record) string {
	return "connect-" + strconv.FormatInt(rec.ID(), 10)
}

func commandTaskName(rec *ability.Record, startID int) string {
	return "command-" + strconv.FormatInt(rec.ID(), 10) + "-" + strconv.Itoa(startID)
}

func disconnectTaskName(conn *ability.Connection) string {
	return "disconnect-" + strconv.FormatInt(conn.ID(), 10)
}

// ServiceElements lists the elements of the live services
func (m *Manager) ServiceElements() []types.ElementName {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ElementName, 0, len(m.services))
	for _, rec := range m.sortedServicesLocked() {
		out = append(out, rec.Element())
	}
	return out
}
