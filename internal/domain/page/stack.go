package page

import (
	"fmt"
	"image"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// stackMission is an in-memory mission: a stack of records, bottom first
type stackMission struct {
	id      int
	locked  bool
	time    time.Time
	records []*ability.Record
}

func (ms *stackMission) top() *ability.Record {
	if len(ms.records) == 0 {
		return nil
	}
	return ms.records[len(ms.records)-1]
}

func (ms *stackMission) remove(rec *ability.Record) bool {
	for i, r := range ms.records {
		if r == rec {
			ms.records = append(ms.records[:i], ms.records[i+1:]...)
			return true
		}
	}
	return false
}

type abilityStack struct {
	id       int
	missions []*stackMission
}

func (s *abilityStack) top() *stackMission {
	if len(s.missions) == 0 {
		return nil
	}
	return s.missions[len(s.missions)-1]
}

func (s *abilityStack) moveToTop(ms *stackMission) {
	for i, cur := range s.missions {
		if cur == ms {
			s.missions = append(s.missions[:i], s.missions[i+1:]...)
			break
		}
	}
	s.missions = append(s.missions, ms)
}

func (s *abilityStack) remove(ms *stackMission) {
	for i, cur := range s.missions {
		if cur == ms {
			s.missions = append(s.missions[:i], s.missions[i+1:]...)
			return
		}
	}
}

// StackManager is the legacy page manager. Launcher abilities live on their
// own stack, everything else on the default stack; missions are in memory
// only and a record backgrounds in two steps, INACTIVE then BACKGROUND.
type StackManager struct {
	base
	launcher *abilityStack
	dflt     *abilityStack
	current  *abilityStack

	nextMissionID int
	backgrounding map[*ability.Record]bool
	snapshots     map[int]image.Image
}

// NewStackManager creates the legacy manager for one user
func NewStackManager(d Deps) *StackManager {
	m := &StackManager{
		base:          newBase(d, "ability-stack"),
		launcher:      &abilityStack{id: LauncherStackID},
		dflt:          &abilityStack{id: DefaultStackID},
		backgrounding: make(map[*ability.Record]bool),
		snapshots:     make(map[int]image.Image),
	}
	m.current = m.launcher
	return m
}

// StartAbility places the record on the launcher or default stack and
// activates it
func (m *StackManager) StartAbility(req *ability.Request) error {
	if req.Info.Type != types.AbilityTypePage {
		return errcode.TargetAbilityNotPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	target := m.dflt
	if req.Info.IsLauncherAbility {
		target = m.launcher
	}
	caller, _ := m.lookup(req.CallerToken)

	if rec := m.reusableLocked(req, target); rec != nil {
		rec.SetWant(req.Want)
		if caller != nil {
			rec.AddCallerRecord(caller, req.RequestCode)
		}
		m.bringToTopLocked(rec)
		m.metrics.RecordAbilityStart(string(req.Info.Type), "reused")
		return m.activateLocked(rec)
	}

	rec := ability.NewRecord(req, m.env)
	if caller != nil {
		rec.AddCallerRecord(caller, req.RequestCode)
	}

	var ms *stackMission
	if caller != nil && !req.Want.HasFlag(types.FlagAbilityNewMission) {
		if cm, cs := m.missionOfRecordLocked(caller); cm != nil && cs == target {
			ms = cm
		}
	}
	if ms == nil {
		m.nextMissionID++
		ms = &stackMission{id: m.nextMissionID}
		target.missions = append(target.missions, ms)
		m.listeners.NotifyMissionCreated(ms.id)
	}
	ms.records = append(ms.records, rec)
	ms.time = time.Now()
	rec.SetMissionID(ms.id)
	target.moveToTop(ms)
	m.current = target

	if err := m.activateLocked(rec); err != nil {
		m.dropRecordLocked(rec)
		m.metrics.RecordAbilityStart(string(req.Info.Type), "error")
		return err
	}
	m.metrics.RecordAbilityStart(string(req.Info.Type), "ok")
	return nil
}

func (m *StackManager) reusableLocked(req *ability.Request, target *abilityStack) *ability.Record {
	uri := req.Element().URI()
	switch req.Info.LaunchMode {
	case types.LaunchModeSingleton:
		for _, s := range []*abilityStack{m.launcher, m.dflt} {
			for _, ms := range s.missions {
				for _, r := range ms.records {
					if r.URI() == uri {
						return r
					}
				}
			}
		}
	case types.LaunchModeSingleTop:
		if ms := target.top(); ms != nil {
			if r := ms.top(); r != nil && r.URI() == uri {
				return r
			}
		}
	}
	return nil
}

// bringToTopLocked moves rec's mission to the top of its stack and makes
// that stack current
func (m *StackManager) bringToTopLocked(rec *ability.Record) {
	ms, s := m.missionOfRecordLocked(rec)
	if ms == nil {
		return
	}
	if ms.top() != rec {
		ms.remove(rec)
		ms.records = append(ms.records, rec)
	}
	ms.time = time.Now()
	s.moveToTop(ms)
	m.current = s
}

func (m *StackManager) activateLocked(rec *ability.Record) error {
	delete(m.backgrounding, rec)
	if !rec.IsReady() {
		if rec.IsLoading() {
			return nil
		}
		return rec.LoadAbility()
	}
	if rec.State() == ability.StateActive || rec.State() == ability.StateActivating {
		return nil
	}
	return rec.Activate()
}

func (m *StackManager) backgroundLocked(rec *ability.Record) {
	m.backgrounding[rec] = true
	if err := rec.Inactivate(); err != nil {
		m.log.Warn("inactivate failed", zap.String("element", rec.URI()), zap.Error(err))
	}
}

// TerminateAbility finishes the record behind token
func (m *StackManager) TerminateAbility(token ability.Token, resultCode int, resultWant *types.Want) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	if rec.IsLauncher() {
		return errcode.TerminateLauncherDeny
	}
	if rec.IsTerminating() {
		return nil
	}
	rec.SaveResultToCallers(resultCode, resultWant)
	m.terminateLocked(rec)
	return nil
}

// TerminateAbilityByCaller finishes the ability callerToken started with
// requestCode
func (m *StackManager) TerminateAbilityByCaller(callerToken ability.Token, requestCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	caller, ok := m.lookup(callerToken)
	if !ok {
		return errcode.ErrInvalidValue
	}
	for _, rec := range m.allRecordsLocked() {
		for _, c := range rec.Callers() {
			if c.Caller == caller && c.RequestCode == requestCode {
				if rec.IsLauncher() {
					return errcode.TerminateLauncherDeny
				}
				m.terminateLocked(rec)
				return nil
			}
		}
	}
	return errcode.NoFoundAbilityByCaller
}

func (m *StackManager) terminateLocked(rec *ability.Record) {
	rec.SetTerminating(true)
	wasTop := rec == m.topRecordLocked()
	m.detachLocked(rec)
	m.terminating = append(m.terminating, rec)
	if wasTop {
		m.activateTopLocked()
	}

	switch {
	case !rec.IsReady():
		m.finishTerminateLocked(rec)
	case isForeground(rec) || rec.State() == ability.StateInactivating:
		m.backgroundLocked(rec)
	case rec.State() == ability.StateInactive:
		m.backgrounding[rec] = true
		if err := rec.MoveToBackground(); err != nil {
			m.log.Warn("background failed", zap.String("element", rec.URI()), zap.Error(err))
		}
	default:
		if err := rec.Terminate(); err != nil {
			m.log.Warn("terminate failed", zap.String("element", rec.URI()), zap.Error(err))
		}
	}
}

// MinimizeAbility backgrounds an active record
func (m *StackManager) MinimizeAbility(token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordLocked(token)
	if rec == nil || rec.IsTerminating() {
		return errcode.ErrInvalidValue
	}
	if isForeground(rec) {
		m.backgroundLocked(rec)
	}
	return nil
}

// AttachAbilityThread binds a hosted process to its record
func (m *StackManager) AttachAbilityThread(scheduler ability.Scheduler, token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	rec.SetScheduler(scheduler)
	if rec.IsTerminating() {
		return rec.Terminate()
	}
	if rec == m.topRecordLocked() {
		return rec.Activate()
	}
	m.backgroundLocked(rec)
	return nil
}

// AbilityTransitionDone applies a lifecycle report from the hosted process
func (m *StackManager) AbilityTransitionDone(token ability.Token, state ability.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordLocked(token)
	if rec == nil {
		return errcode.ErrInvalidValue
	}
	if !rec.CompleteTransition(state) {
		return errcode.ErrInvalidValue
	}
	m.afterTransitionLocked(rec, state)
	return nil
}

func (m *StackManager) afterTransitionLocked(rec *ability.Record, state ability.State) {
	switch state {
	case ability.StateActive:
		m.onActiveLocked(rec)
	case ability.StateInactive:
		if m.backgrounding[rec] {
			if err := rec.MoveToBackground(); err != nil {
				m.log.Warn("background failed", zap.String("element", rec.URI()), zap.Error(err))
			}
		}
	case ability.StateBackground:
		delete(m.backgrounding, rec)
		if rec.IsTerminating() {
			if err := rec.Terminate(); err != nil {
				m.log.Warn("terminate failed", zap.String("element", rec.URI()), zap.Error(err))
			}
		}
	case ability.StateInitial:
		delete(m.backgrounding, rec)
		m.finishTerminateLocked(rec)
	}
}

func (m *StackManager) onActiveLocked(rec *ability.Record) {
	if rec != m.topRecordLocked() {
		m.backgroundLocked(rec)
		return
	}
	if ms, _ := m.missionOfRecordLocked(rec); ms != nil {
		ms.time = time.Now()
		m.listeners.NotifyMissionMovedToFront(ms.id)
	}
	if err := rec.SendResult(); err != nil {
		m.log.Warn("send result failed", zap.String("element", rec.URI()), zap.Error(err))
	}
	for _, other := range m.allRecordsLocked() {
		if other != rec && isForeground(other) {
			m.backgroundLocked(other)
		}
	}
}

// OnAbilityDied drops the record of a dead process; the launcher is
// reloaded instead
func (m *StackManager) OnAbilityDied(token ability.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordLocked(token)
	if rec == nil {
		return
	}
	m.metrics.RecordDeath(string(rec.Type()))
	rec.OnProcessDied()
	delete(m.backgrounding, rec)

	if m.isTerminatingLocked(rec) {
		m.removeTerminatingLocked(rec)
		rec.SendResultToCallers()
		rec.Release()
		return
	}
	if rec.IsLauncher() {
		if err := rec.LoadAbility(); err != nil {
			m.log.Error("launcher reload failed", zap.Error(err))
		}
		return
	}
	m.dropRecordLocked(rec)
}

// OnTimeOut handles a lifecycle timeout for one of this manager's records
func (m *StackManager) OnTimeOut(eventID uint32, recordID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordByIDLocked(recordID)
	if rec == nil {
		return false
	}
	m.metrics.RecordTimeout(ability.EventName(eventID))
	m.log.Warn("lifecycle timeout",
		zap.String("event", ability.EventName(eventID)), zap.String("element", rec.URI()))

	switch eventID {
	case ability.EventLoadTimeout:
		if m.isTerminatingLocked(rec) {
			m.finishTerminateLocked(rec)
			return true
		}
		if rec.IsLauncher() {
			if err := rec.LoadAbility(); err != nil {
				m.log.Error("launcher reload failed", zap.Error(err))
			}
			return true
		}
		if m.env.AppScheduler != nil {
			_ = m.env.AppScheduler.TerminateAbility(rec.Token())
		}
		m.dropRecordLocked(rec)
	case ability.EventTerminateTimeout:
		rec.ForceCompleteTransition(errcode.InnerErr)
		delete(m.backgrounding, rec)
		m.finishTerminateLocked(rec)
	default:
		if _, ok := rec.PendingState(); !ok {
			return true
		}
		m.afterTransitionLocked(rec, rec.ForceCompleteTransition(errcode.InnerErr))
	}
	return true
}

func (m *StackManager) dropRecordLocked(rec *ability.Record) {
	wasTop := rec == m.topRecordLocked()
	m.detachLocked(rec)
	delete(m.backgrounding, rec)
	rec.RemoveTimeouts()
	rec.Release()
	if wasTop {
		m.activateTopLocked()
	}
}

// detachLocked removes rec from its mission, dropping the mission once
// empty
func (m *StackManager) detachLocked(rec *ability.Record) {
	ms, s := m.missionOfRecordLocked(rec)
	if ms == nil {
		return
	}
	ms.remove(rec)
	if len(ms.records) > 0 {
		return
	}
	s.remove(ms)
	delete(m.snapshots, ms.id)
	m.listeners.NotifyMissionDestroyed(ms.id)
	if len(s.missions) == 0 && s == m.current {
		m.current = m.launcher
	}
}

func (m *StackManager) activateTopLocked() {
	top := m.topRecordLocked()
	if top == nil || isForeground(top) {
		return
	}
	if err := m.activateLocked(top); err != nil {
		m.log.Warn("activate next ability failed", zap.String("element", top.URI()), zap.Error(err))
	}
}

// GetAbilityRecordByToken returns the live or terminating record of token
func (m *StackManager) GetAbilityRecordByToken(token ability.Token) *ability.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(token)
}

// HasToken reports whether token belongs to this manager
func (m *StackManager) HasToken(token ability.Token) bool {
	return m.GetAbilityRecordByToken(token) != nil
}

// TopAbility returns the top record of the current stack
func (m *StackManager) TopAbility() *ability.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topRecordLocked()
}

// MoveMissionToFront makes a mission the top of its stack and activates it
func (m *StackManager) MoveMissionToFront(missionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, s := m.missionByIDLocked(missionID)
	if ms == nil {
		return errcode.MissionNotFound
	}
	s.moveToTop(ms)
	m.current = s
	return m.activateLocked(ms.top())
}

// CleanMission terminates every record of an unlocked mission
func (m *StackManager) CleanMission(missionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, s := m.missionByIDLocked(missionID)
	if ms == nil {
		return errcode.MissionNotFound
	}
	if ms.locked {
		return errcode.ErrInvalidValue
	}
	if s == m.launcher {
		return errcode.TerminateLauncherDeny
	}
	m.cleanLocked(ms)
	return nil
}

func (m *StackManager) cleanLocked(ms *stackMission) {
	records := append([]*ability.Record(nil), ms.records...)
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].IsTerminating() {
			m.terminateLocked(records[i])
		}
	}
}

// CleanAllMissions cleans every unlocked mission of the default stack
func (m *StackManager) CleanAllMissions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range append([]*stackMission(nil), m.dflt.missions...) {
		if !ms.locked {
			m.cleanLocked(ms)
		}
	}
	return nil
}

// SetMissionLockedState locks or unlocks a mission against cleaning
func (m *StackManager) SetMissionLockedState(missionID int, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _ := m.missionByIDLocked(missionID)
	if ms == nil {
		return errcode.MissionNotFound
	}
	ms.locked = locked
	return nil
}

// GetMissionIDByToken returns the mission of token, or -1
func (m *StackManager) GetMissionIDByToken(token ability.Token) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lookup(token)
	if !ok {
		return -1
	}
	if ms, _ := m.missionOfRecordLocked(rec); ms != nil {
		return ms.id
	}
	return -1
}

// GetMissionInfos returns up to numMax missions of the default stack, top
// first
func (m *StackManager) GetMissionInfos(numMax int) ([]types.MissionInfo, error) {
	if numMax < 0 {
		return nil, errcode.ErrInvalidValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.MissionInfo
	for i := len(m.dflt.missions) - 1; i >= 0; i-- {
		if numMax > 0 && len(out) == numMax {
			break
		}
		out = append(out, m.infoLocked(m.dflt.missions[i]))
	}
	return out, nil
}

// GetMissionInfo returns one mission
func (m *StackManager) GetMissionInfo(missionID int) (types.MissionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _ := m.missionByIDLocked(missionID)
	if ms == nil {
		return types.MissionInfo{}, errcode.MissionNotFound
	}
	return m.infoLocked(ms), nil
}

func (m *StackManager) infoLocked(ms *stackMission) types.MissionInfo {
	info := types.MissionInfo{
		ID:           ms.id,
		RunningState: types.MissionRunning,
		LockedState:  ms.locked,
		Time:         ms.time,
	}
	if top := ms.top(); top != nil {
		info.Label = top.Info().Label
		info.IconPath = top.Info().IconPath
		info.Continuable = top.Info().Continuable
	}
	if len(ms.records) > 0 {
		info.Want = ms.records[0].Want().Clone()
	}
	return info
}

// GetMissionSnapshot returns the last snapshot of a mission
func (m *StackManager) GetMissionSnapshot(missionID int) (types.MissionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _ := m.missionByIDLocked(missionID)
	if ms == nil {
		return types.MissionSnapshot{}, errcode.MissionNotFound
	}
	img, ok := m.snapshots[missionID]
	if !ok {
		return types.MissionSnapshot{}, errcode.MissionNotFound
	}
	snap := types.MissionSnapshot{Snapshot: img}
	if len(ms.records) > 0 {
		snap.Topology = ms.records[0].Element()
	}
	return snap, nil
}

// UpdateMissionSnapshot keeps a snapshot for a live mission
func (m *StackManager) UpdateMissionSnapshot(missionID int, img image.Image) error {
	if img == nil {
		return errcode.ErrInvalidValue
	}
	m.mu.Lock()
	ms, _ := m.missionByIDLocked(missionID)
	if ms != nil {
		m.snapshots[missionID] = img
	}
	m.mu.Unlock()
	if ms == nil {
		return errcode.MissionNotFound
	}
	m.listeners.NotifyMissionSnapshotChanged(missionID)
	return nil
}

// UninstallApp drops every record of an uninstalled bundle
func (m *StackManager) UninstallApp(bundleName string, uid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.allRecordsLocked() {
		if rec.Info().BundleName == bundleName && rec.App().UID == uid {
			m.dropRecordLocked(rec)
		}
	}
}

// Dump returns both stacks, launcher first
func (m *StackManager) Dump() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []string{fmt.Sprintf("User ID #%d", m.userID)}
	lines = append(lines, m.dumpStackLocked(m.launcher)...)
	lines = append(lines, m.dumpStackLocked(m.dflt)...)
	return append(lines, m.terminatingDumpLocked()...)
}

// DumpStack returns one stack
func (m *StackManager) DumpStack(stackID int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch stackID {
	case LauncherStackID:
		return m.dumpStackLocked(m.launcher)
	case DefaultStackID:
		return m.dumpStackLocked(m.dflt)
	}
	return nil
}

func (m *StackManager) dumpStackLocked(s *abilityStack) []string {
	lines := []string{fmt.Sprintf("  Stack ID #%d", s.id)}
	for i := len(s.missions) - 1; i >= 0; i-- {
		lines = append(lines, m.dumpMissionLocked(s.missions[i])...)
	}
	return lines
}

func (m *StackManager) dumpMissionLocked(ms *stackMission) []string {
	bottom := ""
	if len(ms.records) > 0 {
		bottom = ms.records[0].App().Name
	}
	lines := []string{fmt.Sprintf("    MissionRecord ID #%d  bottom app [%s]  lockedState #%t", ms.id, bottom, ms.locked)}
	for i := len(ms.records) - 1; i >= 0; i-- {
		lines = append(lines, ms.records[i].Dump()...)
	}
	return lines
}

// DumpMission returns one mission, or nothing
func (m *StackManager) DumpMission(missionID int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, _ := m.missionByIDLocked(missionID)
	if ms == nil {
		return nil
	}
	return m.dumpMissionLocked(ms)
}

// DumpMissionInfos returns the default stack's missions as mission infos
func (m *StackManager) DumpMissionInfos() []string {
	infos, _ := m.GetMissionInfos(0)
	lines := []string{fmt.Sprintf("User ID #%d", m.userID), "  MissionInfos:"}
	for _, info := range infos {
		lines = append(lines, missionLine(info.ID, "", info.LockedState))
	}
	return lines
}

// VisitRecords calls fn for every record of both stacks and every
// terminating record while the manager is locked; fn must not call back
// into the manager
func (m *StackManager) VisitRecords(fn func(*ability.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.allRecordsLocked() {
		fn(rec)
	}
	for _, rec := range m.terminating {
		fn(rec)
	}
}

// VisitTop calls fn with the top record of the current stack, nil if there
// is none, while the manager is locked
func (m *StackManager) VisitTop(fn func(*ability.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.topRecordLocked())
}

// Close drops every record of both stacks, invalidating its token and
// cancelling its timeouts
func (m *StackManager) Close() {
	m.mu.Lock()
	for _, rec := range m.allRecordsLocked() {
		m.forgetRecord(rec)
	}
	for _, rec := range m.terminating {
		m.forgetRecord(rec)
	}
	m.launcher.missions = nil
	m.dflt.missions = nil
	m.terminating = nil
	m.backgrounding = make(map[*ability.Record]bool)
	m.mu.Unlock()
	m.base.Close()
}

// Stats returns the mission and record counts
func (m *StackManager) Stats() (missions, abilities int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	missions = len(m.launcher.missions) + len(m.dflt.missions)
	return missions, len(m.allRecordsLocked()) + len(m.terminating)
}

func (m *StackManager) topRecordLocked() *ability.Record {
	if ms := m.current.top(); ms != nil {
		return ms.top()
	}
	return nil
}

func (m *StackManager) allRecordsLocked() []*ability.Record {
	var out []*ability.Record
	for _, s := range []*abilityStack{m.launcher, m.dflt} {
		for _, ms := range s.missions {
			out = append(out, ms.records...)
		}
	}
	return out
}

func (m *StackManager) missionOfRecordLocked(rec *ability.Record) (*stackMission, *abilityStack) {
	for _, s := range []*abilityStack{m.launcher, m.dflt} {
		for _, ms := range s.missions {
			for _, r := range ms.records {
				if r == rec {
					return ms, s
				}
			}
		}
	}
	return nil, nil
}

func (m *StackManager) missionByIDLocked(id int) (*stackMission, *abilityStack) {
	for _, s := range []*abilityStack{m.launcher, m.dflt} {
		for _, ms := range s.missions {
			if ms.id == id {
				return ms, s
			}
		}
	}
	return nil, nil
}

func (m *StackManager) recordLocked(token ability.Token) *ability.Record {
	rec, ok := m.lookup(token)
	if !ok {
		return nil
	}
	if m.isTerminatingLocked(rec) {
		return rec
	}
	if ms, _ := m.missionOfRecordLocked(rec); ms != nil {
		return rec
	}
	return nil
}

func (m *StackManager) recordByIDLocked(id int64) *ability.Record {
	for _, rec := range m.allRecordsLocked() {
		if rec.ID() == id {
			return rec
		}
	}
	return m.terminatingByIDLocked(id)
}
