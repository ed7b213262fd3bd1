package ability

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

var recordIDSeq atomic.Int64

// ErrNotAttached is returned when a lifecycle call needs the hosted process
// and none is attached yet.
var ErrNotAttached = errors.New("ability scheduler not attached")

// AbilityResult is a result a callee hands back to the caller that started
// it for a result
type AbilityResult struct {
	RequestCode int
	ResultCode  int
	Want        *types.Want
}

// CallerRecord remembers who started a record and with which request code
type CallerRecord struct {
	RequestCode int
	Caller      *Record
}

// Record is the manager-side state of one ability instance.
//
// A record is owned by exactly one manager and is only touched under that
// manager's lock or from its event loop; Record itself does no locking.
type Record struct {
	id          int64
	token       Token
	env         *Env
	log         *logging.Logger
	info        types.AbilityInfo
	app         types.ApplicationInfo
	want        *types.Want
	requestCode int
	callerToken Token
	userID      int
	setting     types.AbilityStartSetting

	state   State
	pending State
	lastErr error

	scheduler Scheduler
	ready     bool
	loading   bool
	startTime time.Time

	connections      []*Connection
	remote           RemoteObject
	createdByConnect bool
	startID          int
	restartCount     int
	restartTime      time.Time

	callers     []*CallerRecord
	result      *AbilityResult
	missionID   int
	terminating bool
	abnormal    bool
}

// NewRecord creates a record for a resolved request and issues its token
func NewRecord(req *Request, env *Env) *Record {
	r := &Record{
		id:          recordIDSeq.Add(1),
		env:         env,
		info:        req.Info,
		app:         req.App,
		want:        req.Want.Clone(),
		requestCode: req.RequestCode,
		callerToken: req.CallerToken,
		userID:      req.UserID,
		setting:     req.StartSetting,
		state:       StateInitial,
		pending:     stateNone,
		missionID:   -1,
	}
	if r.want == nil {
		r.want = types.NewWant(req.Info.Element())
	}
	r.log = logging.OrNop(env.Logger).With(
		zap.Int64("record_id", r.id),
		zap.String("element", r.info.Element().URI()),
	)
	if env.Tokens != nil {
		r.token = env.Tokens.Issue(r)
	}
	return r
}

// ID returns the record id, also used as the param of its timeout events
func (r *Record) ID() int64 { return r.id }

// Token returns the record's handle
func (r *Record) Token() Token { return r.token }

// Info returns the component metadata
func (r *Record) Info() types.AbilityInfo { return r.info }

// App returns the owning application metadata
func (r *Record) App() types.ApplicationInfo { return r.app }

// Element returns the component element name
func (r *Record) Element() types.ElementName { return r.info.Element() }

// URI returns deviceId/bundleName/abilityName
func (r *Record) URI() string { return r.info.Element().URI() }

// Want returns the want the record was last started with
func (r *Record) Want() *types.Want { return r.want }

// SetWant replaces the want, e.g. on a singleton relaunch
func (r *Record) SetWant(w *types.Want) { r.want = w.Clone() }

// RequestCode returns the request code the record was started with
func (r *Record) RequestCode() int { return r.requestCode }

// CallerToken returns the token of the record that started this one
func (r *Record) CallerToken() Token { return r.callerToken }

// UserID returns the user scope the record lives in
func (r *Record) UserID() int { return r.userID }

// StartSetting returns the window placement hints
func (r *Record) StartSetting() types.AbilityStartSetting { return r.setting }

// Type returns the component type
func (r *Record) Type() types.AbilityType { return r.info.Type }

// IsStageModel reports whether the record uses the stage lifecycle
func (r *Record) IsStageModel() bool { return r.info.IsStageBasedModel }

// IsLauncher reports whether the record is a launcher ability
func (r *Record) IsLauncher() bool {
	return r.info.IsLauncherAbility || r.app.IsLauncherApp
}

// State returns the current lifecycle state
func (r *Record) State() State { return r.state }

// SetState forces the state without any handshake. Used when a process dies
// or a manager restores a record.
func (r *Record) SetState(s State) {
	r.state = s
	r.pending = stateNone
}

// PendingState returns the target of the transition in flight
func (r *Record) PendingState() (State, bool) {
	return r.pending, r.pending != stateNone
}

// LastError returns the error a timed-out transition was forced with
func (r *Record) LastError() error { return r.lastErr }

// IsReady reports whether a hosted process has attached
func (r *Record) IsReady() bool { return r.ready }

// IsLoading reports whether a load is in flight
func (r *Record) IsLoading() bool { return r.loading }

// Scheduler returns the attached hosted process, if any
func (r *Record) Scheduler() Scheduler { return r.scheduler }

// StartTime returns when the record was last loaded
func (r *Record) StartTime() time.Time { return r.startTime }

// MissionID returns the mission the record belongs to, -1 if none
func (r *Record) MissionID() int { return r.missionID }

// SetMissionID binds the record to a mission
func (r *Record) SetMissionID(id int) { r.missionID = id }

// IsTerminating reports whether termination was requested
func (r *Record) IsTerminating() bool { return r.terminating }

// SetTerminating marks the record as being torn down
func (r *Record) SetTerminating(v bool) { r.terminating = v }

// IsAbnormal reports whether the hosted process died under the record
func (r *Record) IsAbnormal() bool { return r.abnormal }

// CreatedByConnect reports whether the record was created by a connect
// request rather than a start request
func (r *Record) CreatedByConnect() bool { return r.createdByConnect }

// SetCreatedByConnect records how the record was created
func (r *Record) SetCreatedByConnect(v bool) { r.createdByConnect = v }

// StartID returns the id of the last command delivered
func (r *Record) StartID() int { return r.startID }

// AddStartID increments and returns the command start id
func (r *Record) AddStartID() int {
	r.startID++
	return r.startID
}

// ResetStartID forgets delivered commands so the service terminates once
// its last connection goes away
func (r *Record) ResetStartID() { r.startID = 0 }

// Request rebuilds the request the record was created from, used to
// restart it after its process died
func (r *Record) Request() *Request {
	return &Request{
		Want:         r.want.Clone(),
		Info:         r.info,
		App:          r.app,
		RequestCode:  r.requestCode,
		CallerToken:  r.callerToken,
		UserID:       r.userID,
		StartSetting: r.setting,
	}
}

// RestartCount returns how many times the record was restarted after death
func (r *Record) RestartCount() int { return r.restartCount }

// SetRestartCount carries the restart count over to a restarted record
func (r *Record) SetRestartCount(n int) {
	r.restartCount = n
	r.restartTime = time.Now()
}

// RemoteObject returns the handle the connected service returned
func (r *Record) RemoteObject() RemoteObject { return r.remote }

// SetRemoteObject stores the handle the service returned on connect
func (r *Record) SetRemoteObject(o RemoteObject) { r.remote = o }

// ============================================================================
// Process hosting
// ============================================================================

// LoadAbility arms the load timeout and asks the app scheduler to host the
// record
func (r *Record) LoadAbility() error {
	r.startTime = time.Now()
	r.loading = true
	r.sendTimeout(EventLoadTimeout, r.env.Timeouts.Load)

	if r.env.AppScheduler == nil {
		return fmt.Errorf("load %s: no app scheduler", r.URI())
	}
	if err := r.env.AppScheduler.LoadAbility(r.token, r.callerToken, r.info, r.app, r.want); err != nil {
		r.removeTimeout(EventLoadTimeout)
		r.loading = false
		return fmt.Errorf("load %s: %w", r.URI(), err)
	}
	r.log.Debug("load requested")
	return nil
}

// SetScheduler binds the hosted process that attached with this record's
// token and cancels the load timeout. A nil scheduler detaches.
func (r *Record) SetScheduler(s Scheduler) {
	if s == nil {
		r.scheduler = nil
		r.ready = false
		return
	}
	r.scheduler = s
	r.ready = true
	r.loading = false
	r.removeTimeout(EventLoadTimeout)
}

// OnProcessDied detaches the hosted process and drops any transition in
// flight
func (r *Record) OnProcessDied() {
	r.removeTimeout(EventLoadTimeout)
	if r.pending != stateNone {
		r.removeTimeout(timeoutEventFor(r.pending))
	}
	r.scheduler = nil
	r.ready = false
	r.loading = false
	r.abnormal = true
	r.state = StateInitial
	r.pending = stateNone
}

// ============================================================================
// Lifecycle transitions
// ============================================================================

// Activate moves the record to ACTIVE (legacy model)
func (r *Record) Activate() error {
	return r.beginTransition(StateActive)
}

// Inactivate moves the record to INACTIVE
func (r *Record) Inactivate() error {
	return r.beginTransition(StateInactive)
}

// MoveToBackground moves the record to BACKGROUND (legacy model)
func (r *Record) MoveToBackground() error {
	return r.beginTransition(StateBackground)
}

// ForegroundNew moves a stage-model record to FOREGROUND_NEW. Repeated
// calls while the record is foreground or already foregrounding fold into
// the transition already observed.
func (r *Record) ForegroundNew() error {
	if r.state == StateForegroundNew || r.state == StateForegroundingNew {
		return nil
	}
	r.notifyApp(StateForegroundNew)
	return r.beginTransition(StateForegroundNew)
}

// BackgroundNew moves a stage-model record to BACKGROUND_NEW, folding
// repeats like ForegroundNew
func (r *Record) BackgroundNew() error {
	if r.state == StateBackgroundNew || r.state == StateBackgroundingNew {
		return nil
	}
	r.notifyApp(StateBackgroundNew)
	return r.beginTransition(StateBackgroundNew)
}

// Terminate asks the hosted process to tear the ability down
func (r *Record) Terminate() error {
	r.terminating = true
	return r.beginTransition(StateInitial)
}

func (r *Record) beginTransition(target State) error {
	if r.pending != stateNone && r.pending != target {
		r.removeTimeout(timeoutEventFor(r.pending))
		r.log.Debug("transition superseded",
			zap.Stringer("from", r.pending), zap.Stringer("to", target))
	}
	r.pending = target
	r.state = transientFor(target)
	r.sendTimeout(timeoutEventFor(target), r.env.timeoutFor(target))

	if r.scheduler == nil {
		r.log.Warn("lifecycle transaction without scheduler", zap.Stringer("target", target))
		return ErrNotAttached
	}
	info := LifecycleInfo{State: target, MissionID: r.missionID}
	if err := r.scheduler.ScheduleAbilityTransaction(r.want, info); err != nil {
		return fmt.Errorf("schedule %s: %w", target, err)
	}
	return nil
}

// CompleteTransition applies a transition reported done by the hosted
// process. It returns false, leaving the record untouched, unless state is
// the target of the transition currently in flight.
func (r *Record) CompleteTransition(state State) bool {
	if r.pending != state {
		r.log.Debug("stale transition done ignored",
			zap.Stringer("reported", state), zap.Stringer("current", r.state))
		return false
	}
	r.removeTimeout(timeoutEventFor(state))
	r.pending = stateNone
	r.state = state
	r.lastErr = nil
	r.env.Metrics.RecordTransition(state.String())
	if r.env.AppScheduler != nil {
		if err := r.env.AppScheduler.UpdateAbilityState(r.token, state); err != nil {
			r.log.Warn("update ability state failed", zap.Error(err))
		}
	}
	return true
}

// ForceCompleteTransition ends the transition in flight as if it succeeded
// and records err. It returns the state the record ends in.
func (r *Record) ForceCompleteTransition(err error) State {
	if r.pending == stateNone {
		return r.state
	}
	target := r.pending
	r.removeTimeout(timeoutEventFor(target))
	r.pending = stateNone
	r.state = target
	r.lastErr = err
	r.log.Warn("transition forced", zap.Stringer("state", target), zap.Error(err))
	return target
}

// ============================================================================
// Service calls
// ============================================================================

// ConnectAbility asks the hosted service to accept a connection
func (r *Record) ConnectAbility() error {
	if r.scheduler == nil {
		return ErrNotAttached
	}
	return r.scheduler.ScheduleConnectAbility(r.want)
}

// DisconnectAbility asks the hosted service to drop its last connection
func (r *Record) DisconnectAbility() error {
	if r.scheduler == nil {
		return ErrNotAttached
	}
	return r.scheduler.ScheduleDisconnectAbility(r.want)
}

// CommandAbility delivers the current start id to the hosted service
func (r *Record) CommandAbility() error {
	if r.scheduler == nil {
		return ErrNotAttached
	}
	return r.scheduler.ScheduleCommandAbility(r.want, r.restartCount > 0, r.startID)
}

// ============================================================================
// Connections
// ============================================================================

// AddConnection appends a binding unless it is already present
func (r *Record) AddConnection(c *Connection) {
	for _, existing := range r.connections {
		if existing == c {
			return
		}
	}
	r.connections = append(r.connections, c)
}

// RemoveConnection drops a binding
func (r *Record) RemoveConnection(c *Connection) {
	for i, existing := range r.connections {
		if existing == c {
			r.connections = append(r.connections[:i], r.connections[i+1:]...)
			return
		}
	}
}

// Connections returns a copy of the binding list
func (r *Record) Connections() []*Connection {
	return append([]*Connection(nil), r.connections...)
}

// ConnectionCount returns the number of bindings
func (r *Record) ConnectionCount() int { return len(r.connections) }

// ConnectionFor returns the binding held by callback, if any
func (r *Record) ConnectionFor(cb ConnectCallback) *Connection {
	for _, c := range r.connections {
		if c.Callback() == cb {
			return c
		}
	}
	return nil
}

// ConnectingConnections returns the bindings waiting for the service to
// accept
func (r *Record) ConnectingConnections() []*Connection {
	var out []*Connection
	for _, c := range r.connections {
		if c.State() == ConnectionConnecting {
			out = append(out, c)
		}
	}
	return out
}

// DisconnectingConnection returns the binding waiting for the service to
// finish disconnecting
func (r *Record) DisconnectingConnection() *Connection {
	for _, c := range r.connections {
		if c.State() == ConnectionDisconnecting {
			return c
		}
	}
	return nil
}

// ============================================================================
// Callers and results
// ============================================================================

// AddCallerRecord remembers caller. A repeated caller and request code moves
// to the end of the list.
func (r *Record) AddCallerRecord(caller *Record, requestCode int) {
	for i, c := range r.callers {
		if c.Caller == caller && c.RequestCode == requestCode {
			r.callers = append(r.callers[:i], r.callers[i+1:]...)
			break
		}
	}
	r.callers = append(r.callers, &CallerRecord{RequestCode: requestCode, Caller: caller})
}

// Callers returns the caller list
func (r *Record) Callers() []*CallerRecord {
	return append([]*CallerRecord(nil), r.callers...)
}

// SaveResultToCallers stores a result on every caller that asked for one
func (r *Record) SaveResultToCallers(resultCode int, want *types.Want) {
	for _, c := range r.callers {
		if c.Caller == nil || c.RequestCode < 0 {
			continue
		}
		c.Caller.result = &AbilityResult{RequestCode: c.RequestCode, ResultCode: resultCode, Want: want.Clone()}
	}
}

// SendResultToCallers delivers stored results to callers that are attached
func (r *Record) SendResultToCallers() {
	for _, c := range r.callers {
		if c.Caller != nil {
			if err := c.Caller.SendResult(); err != nil {
				r.log.Warn("send result failed", zap.Error(err))
			}
		}
	}
}

// PendingResult returns the result waiting to be delivered to this record
func (r *Record) PendingResult() *AbilityResult { return r.result }

// SendResult delivers and clears the pending result
func (r *Record) SendResult() error {
	if r.result == nil {
		return nil
	}
	if r.scheduler == nil {
		return ErrNotAttached
	}
	res := r.result
	r.result = nil
	return r.scheduler.SendResult(res.RequestCode, res.ResultCode, res.Want)
}

// Release invalidates the record's token
func (r *Record) Release() {
	if r.env.Tokens != nil {
		r.env.Tokens.Release(r.token)
	}
}

// RemoveTimeouts cancels every timeout event armed for the record
func (r *Record) RemoveTimeouts() {
	for id := EventLoadTimeout; id <= EventBackgroundNewTimeout; id++ {
		r.removeTimeout(id)
	}
}

func (r *Record) notifyApp(target State) {
	if r.env.AppScheduler == nil {
		return
	}
	var err error
	if target == StateForegroundNew {
		err = r.env.AppScheduler.MoveToForeground(r.token)
	} else {
		err = r.env.AppScheduler.MoveToBackground(r.token)
	}
	if err != nil {
		r.log.Warn("app scheduler move failed", zap.Stringer("target", target), zap.Error(err))
	}
}

func (r *Record) sendTimeout(id uint32, delay time.Duration) {
	if r.env.Events == nil || id == 0 || delay <= 0 {
		return
	}
	r.env.Events.SendEvent(eventloop.Event{ID: id, Param: r.id}, delay)
}

func (r *Record) removeTimeout(id uint32) {
	if r.env.Events == nil || id == 0 {
		return
	}
	r.env.Events.RemoveEvent(id, r.id)
}

// ============================================================================
// Dump
// ============================================================================

// Dump returns the record's lines for the page dump
func (r *Record) Dump() []string {
	lines := []string{
		fmt.Sprintf("      AbilityRecord ID #%d", r.id),
		fmt.Sprintf("        app name [%s]", r.app.Name),
		fmt.Sprintf("        main name [%s]", r.info.Name),
		fmt.Sprintf("        bundle name [%s]", r.info.BundleName),
		fmt.Sprintf("        ability type [%s]", r.info.Type),
		fmt.Sprintf("        state #%s  start time [%d]", r.state, r.startTime.UnixMilli()),
		fmt.Sprintf("        ready #%d  mission #%d", boolInt(r.ready), r.missionID),
	}
	if r.info.IsLauncherAbility {
		lines = append(lines, "        launcher ability #1")
	}
	return lines
}

// DumpService returns the record's lines for the service dump, including
// its connections
func (r *Record) DumpService() []string {
	lines := []string{
		fmt.Sprintf("      AbilityRecord ID #%d   state #%s   start time [%d]", r.id, r.state, r.startTime.UnixMilli()),
		fmt.Sprintf("        main name [%s]", r.info.Name),
		fmt.Sprintf("        bundle name [%s]", r.info.BundleName),
		fmt.Sprintf("        ability type [%s]", r.info.Type),
		fmt.Sprintf("        start id #%d  restart count #%d", r.startID, r.restartCount),
		fmt.Sprintf("        Connections: %d", len(r.connections)),
	}
	for _, c := range r.connections {
		lines = append(lines, c.Dump()...)
	}
	return lines
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
