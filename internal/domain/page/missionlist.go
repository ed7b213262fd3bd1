package page

import (
	"errors"
	"image"
	"strconv"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/mission"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// liveMission is a mission currently holding an ability record
type liveMission struct {
	id        int
	name      string
	singleton bool
	locked    bool
	record    *ability.Record
}

// MissionListManager keeps one page record per mission and orders live
// missions most recently foregrounded first. Mission metadata lives in the
// user's InfoMgr and survives restarts.
type MissionListManager struct {
	base
	info     *mission.InfoMgr
	missions []*liveMission
}

// NewMissionListManager creates the manager for one user
func NewMissionListManager(d Deps) (*MissionListManager, error) {
	if d.Env == nil || d.Missions == nil {
		return nil, errors.New("mission list manager: env and mission store are required")
	}
	return &MissionListManager{
		base: newBase(d, "mission-list"),
		info: d.Missions,
	}, nil
}

// StartAbility places the request in a mission chosen by launch mode and
// brings it to the foreground
func (m *MissionListManager) StartAbility(req *ability.Request) error {
	if req.Info.Type != types.AbilityTypePage {
		return errcode.TargetAbilityNotPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	caller, _ := m.lookup(req.CallerToken)
	lm, reused, err := m.missionForLocked(req)
	if err != nil {
		m.metrics.RecordAbilityStart(string(req.Info.Type), "error")
		return err
	}

	if reused {
		rec := lm.record
		rec.SetWant(req.Want)
		if caller != nil {
			rec.AddCallerRecord(caller, req.RequestCode)
		}
		m.moveToTopLocked(lm)
		m.metrics.RecordAbilityStart(string(req.Info.Type), "reused")
		return m.foregroundLocked(rec)
	}

	rec := ability.NewRecord(req, m.env)
	rec.SetMissionID(lm.id)
	if caller != nil {
		rec.AddCallerRecord(caller, req.RequestCode)
	}
	lm.record = rec
	m.moveToTopLocked(lm)
	if err := m.foregroundLocked(rec); err != nil {
		m.removeRecordLocked(rec, false)
		m.metrics.RecordAbilityStart(string(req.Info.Type), "error")
		return err
	}
	m.metrics.RecordAbilityStart(string(req.Info.Type), "ok")
	return nil
}

// missionForLocked picks the mission a request lands in. reused is true
// when the mission already holds a live record for the request.
func (m *MissionListManager) missionForLocked(req *ability.Request) (*liveMission, bool, error) {
	if id := missionIDParam(req.Want); id > 0 {
		if lm := m.liveByIDLocked(id); lm != nil {
			return lm, true, nil
		}
		inner, err := m.info.GetInnerMissionInfoByID(id)
		if err != nil {
			return nil, false, err
		}
		return m.reviveLocked(inner, req)
	}

	element := req.Element()
	switch req.Info.LaunchMode {
	case types.LaunchModeSingleton:
		name := mission.NameFor(element)
		for _, lm := range m.missions {
			if lm.singleton && lm.name == name {
				return lm, true, nil
			}
		}
		if inner, ok := m.info.FindReusedSingletonMission(name); ok {
			return m.reviveLocked(inner, req)
		}
	case types.LaunchModeSingleTop:
		if top := m.topLocked(); top != nil && top.record.URI() == element.URI() {
			return top, true, nil
		}
	}
	return m.createMissionLocked(req)
}

func (m *MissionListManager) reviveLocked(inner *mission.InnerMissionInfo, req *ability.Request) (*liveMission, bool, error) {
	inner.MissionInfo.RunningState = types.MissionRunning
	inner.MissionInfo.Want = req.Want.Clone()
	inner.MissionInfo.Time = time.Now()
	if err := m.info.UpdateMissionInfo(inner); err != nil {
		return nil, false, err
	}
	lm := &liveMission{
		id:        inner.ID(),
		name:      inner.MissionName,
		singleton: inner.IsSingletonMode,
		locked:    inner.MissionInfo.LockedState,
	}
	m.missions = append(m.missions, lm)
	return lm, false, nil
}

func (m *MissionListManager) createMissionLocked(req *ability.Request) (*liveMission, bool, error) {
	id, err := m.info.GenerateMissionID()
	if err != nil {
		return nil, false, err
	}
	singleton := req.Info.LaunchMode == types.LaunchModeSingleton
	inner := &mission.InnerMissionInfo{
		MissionInfo: types.MissionInfo{
			ID:           id,
			RunningState: types.MissionRunning,
			Continuable:  req.Info.Continuable,
			Time:         time.Now(),
			Label:        req.Info.Label,
			IconPath:     req.Info.IconPath,
			Want:         req.Want.Clone(),
		},
		IsSingletonMode: singleton,
		StartMethod:     mission.StartMethodNormal,
		BundleName:      req.Info.BundleName,
		UID:             req.App.UID,
	}
	if singleton {
		inner.MissionName = mission.NameFor(req.Element())
	}
	if err := m.info.AddMissionInfo(inner); err != nil {
		_ = m.info.DeleteMissionInfo(id)
		return nil, false, err
	}
	m.listeners.NotifyMissionCreated(id)

	lm := &liveMission{id: id, name: inner.MissionName, singleton: singleton}
	m.missions = append(m.missions, lm)
	return lm, false, nil
}

// foregroundLocked loads an unattached record or moves an attached one to
// the foreground
func (m *MissionListManager) foregroundLocked(rec *ability.Record) error {
	if !rec.IsReady() {
		if rec.IsLoading() {
			return nil
		}
		return rec.LoadAbility()
	}
	if rec.IsStageModel() {
		return rec.ForegroundNew()
	}
	if rec.State() == ability.StateActive || rec.State() == ability.StateActivating {
		return nil
	}
	return rec.Activate()
}

func (m *MissionListManager) backgroundLocked(rec *ability.Record) {
	var err error
	if rec.IsStageModel() {
		err = rec.BackgroundNew()
	} else {
		err = rec.MoveToBackground()
	}
	if err != nil {
		m.log.Warn("background failed", zap.String("element", rec.URI()), zap.Error(err))
	}
}

// TerminateAbility finishes the record behind token and stores its result
// for the callers
func (m *MissionListManager) TerminateAbility(token ability.Token, resultCode int, resultWant *types.Want) error {
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
func (m *MissionListManager) TerminateAbilityByCaller(callerToken ability.Token, requestCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	caller, ok := m.lookup(callerToken)
	if !ok {
		return errcode.ErrInvalidValue
	}
	for _, lm := range m.missions {
		for _, c := range lm.record.Callers() {
			if c.Caller == caller && c.RequestCode == requestCode {
				if lm.record.IsLauncher() {
					return errcode.TerminateLauncherDeny
				}
				m.terminateLocked(lm.record)
				return nil
			}
		}
	}
	return errcode.NoFoundAbilityByCaller
}

func (m *MissionListManager) terminateLocked(rec *ability.Record) {
	rec.SetTerminating(true)
	wasTop := m.isTopLocked(rec)
	m.detachLocked(rec, false)
	m.terminating = append(m.terminating, rec)
	if wasTop {
		m.foregroundTopLocked()
	}

	switch {
	case !rec.IsReady():
		m.finishTerminateLocked(rec)
	case isForeground(rec):
		m.backgroundLocked(rec)
	default:
		if err := rec.Terminate(); err != nil {
			m.log.Warn("terminate failed", zap.String("element", rec.URI()), zap.Error(err))
		}
	}
}

// MinimizeAbility moves a foreground record to the background
func (m *MissionListManager) MinimizeAbility(token ability.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm := m.missionOfLocked(token)
	if lm == nil {
		return errcode.ErrInvalidValue
	}
	if isForeground(lm.record) {
		m.backgroundLocked(lm.record)
	}
	return nil
}

// AttachAbilityThread binds a hosted process to its record and drives the
// record to where the mission list wants it
func (m *MissionListManager) AttachAbilityThread(scheduler ability.Scheduler, token ability.Token) error {
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
	if m.isTopLocked(rec) {
		return m.foregroundLocked(rec)
	}
	m.backgroundLocked(rec)
	return nil
}

// AbilityTransitionDone applies a lifecycle report from the hosted process
func (m *MissionListManager) AbilityTransitionDone(token ability.Token, state ability.State) error {
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

func (m *MissionListManager) afterTransitionLocked(rec *ability.Record, state ability.State) {
	switch state {
	case ability.StateForegroundNew, ability.StateActive:
		m.onForegroundLocked(rec)
	case ability.StateBackgroundNew, ability.StateBackground:
		if rec.IsTerminating() {
			if err := rec.Terminate(); err != nil {
				m.log.Warn("terminate failed", zap.String("element", rec.URI()), zap.Error(err))
			}
		}
	case ability.StateInitial:
		m.finishTerminateLocked(rec)
	}
}

func (m *MissionListManager) onForegroundLocked(rec *ability.Record) {
	top := m.topLocked()
	if top == nil || top.record != rec {
		m.backgroundLocked(rec)
		return
	}
	if err := m.info.UpdateMissionTimeStamp(top.id, time.Now()); err != nil {
		m.log.Warn("mission timestamp update failed", zap.Int("mission_id", top.id), zap.Error(err))
	}
	m.listeners.NotifyMissionMovedToFront(top.id)
	if err := rec.SendResult(); err != nil {
		m.log.Warn("send result failed", zap.String("element", rec.URI()), zap.Error(err))
	}
	for _, lm := range m.missions[1:] {
		if isForeground(lm.record) {
			m.backgroundLocked(lm.record)
		}
	}
}

// OnAbilityDied cleans up after a hosted process that went away. The
// launcher is reloaded; any other record is dropped with its mission.
func (m *MissionListManager) OnAbilityDied(token ability.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recordLocked(token)
	if rec == nil {
		return
	}
	m.metrics.RecordDeath(string(rec.Type()))
	rec.OnProcessDied()

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
	m.removeRecordLocked(rec, false)
}

// OnTimeOut handles a lifecycle timeout for one of this manager's records.
// It reports whether the record was found.
func (m *MissionListManager) OnTimeOut(eventID uint32, recordID int64) bool {
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
		m.removeRecordLocked(rec, false)
	case ability.EventTerminateTimeout:
		rec.ForceCompleteTransition(errcode.InnerErr)
		m.finishTerminateLocked(rec)
	default:
		if _, ok := rec.PendingState(); !ok {
			return true
		}
		m.afterTransitionLocked(rec, rec.ForceCompleteTransition(errcode.InnerErr))
	}
	return true
}

// removeRecordLocked drops a record without a lifecycle handshake
func (m *MissionListManager) removeRecordLocked(rec *ability.Record, deleteLocked bool) {
	wasTop := m.isTopLocked(rec)
	m.detachLocked(rec, deleteLocked)
	rec.RemoveTimeouts()
	rec.Release()
	if wasTop {
		m.foregroundTopLocked()
	}
}

// detachLocked takes rec's mission off the live list. Unlocked missions
// are deleted; locked ones stay in the store as not running.
func (m *MissionListManager) detachLocked(rec *ability.Record, deleteLocked bool) {
	idx := -1
	for i, lm := range m.missions {
		if lm.record == rec {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	lm := m.missions[idx]
	m.missions = append(m.missions[:idx], m.missions[idx+1:]...)

	if lm.locked && !deleteLocked {
		inner, err := m.info.GetInnerMissionInfoByID(lm.id)
		if err != nil {
			return
		}
		inner.MissionInfo.RunningState = types.MissionNotRunning
		if err := m.info.UpdateMissionInfo(inner); err != nil {
			m.log.Warn("mission update failed", zap.Int("mission_id", lm.id), zap.Error(err))
		}
		return
	}
	if err := m.info.DeleteMissionInfo(lm.id); err != nil {
		m.log.Warn("mission delete failed", zap.Int("mission_id", lm.id), zap.Error(err))
	}
	m.listeners.NotifyMissionDestroyed(lm.id)
}

func (m *MissionListManager) foregroundTopLocked() {
	top := m.topLocked()
	if top == nil || isForeground(top.record) {
		return
	}
	if err := m.foregroundLocked(top.record); err != nil {
		m.log.Warn("foreground next mission failed", zap.Int("mission_id", top.id), zap.Error(err))
	}
}

// GetAbilityRecordByToken returns the live or terminating record of token
func (m *MissionListManager) GetAbilityRecordByToken(token ability.Token) *ability.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(token)
}

// HasToken reports whether token belongs to this manager
func (m *MissionListManager) HasToken(token ability.Token) bool {
	return m.GetAbilityRecordByToken(token) != nil
}

// TopAbility returns the record of the most recent mission
func (m *MissionListManager) TopAbility() *ability.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if top := m.topLocked(); top != nil {
		return top.record
	}
	return nil
}

// MoveMissionToFront brings a live mission to the foreground
func (m *MissionListManager) MoveMissionToFront(missionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm := m.liveByIDLocked(missionID)
	if lm == nil {
		return errcode.MissionNotFound
	}
	m.moveToTopLocked(lm)
	return m.foregroundLocked(lm.record)
}

// MissionWant returns the want a mission was last started with, so a
// mission without a live record can be relaunched
func (m *MissionListManager) MissionWant(missionID int) (*types.Want, error) {
	info, err := m.info.GetMissionInfoByID(missionID)
	if err != nil {
		return nil, err
	}
	if info.Want == nil {
		return nil, errcode.MissionNotFound
	}
	want := info.Want.Clone()
	want.SetParam(ParamMissionID, missionID)
	return want, nil
}

// CleanMission terminates a mission's record and deletes the mission.
// Locked missions are refused.
func (m *MissionListManager) CleanMission(missionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleanLocked(missionID)
}

func (m *MissionListManager) cleanLocked(missionID int) error {
	if lm := m.liveByIDLocked(missionID); lm != nil {
		if lm.locked {
			return errcode.ErrInvalidValue
		}
		if lm.record.IsLauncher() {
			return errcode.TerminateLauncherDeny
		}
		m.terminateLocked(lm.record)
		return nil
	}
	inner, err := m.info.GetInnerMissionInfoByID(missionID)
	if err != nil {
		return errcode.MissionNotFound
	}
	if inner.MissionInfo.LockedState {
		return errcode.ErrInvalidValue
	}
	if err := m.info.DeleteMissionInfo(missionID); err != nil {
		return err
	}
	m.listeners.NotifyMissionDestroyed(missionID)
	return nil
}

// CleanAllMissions cleans every unlocked mission except the launcher's
func (m *MissionListManager) CleanAllMissions() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lm := range append([]*liveMission(nil), m.missions...) {
		if lm.locked || lm.record.IsLauncher() {
			continue
		}
		m.terminateLocked(lm.record)
	}

	live := make(map[int]bool, len(m.missions))
	for _, lm := range m.missions {
		live[lm.id] = true
	}
	infos, err := m.info.GetMissionInfos(0)
	if err != nil {
		return err
	}
	for _, info := range infos {
		if live[info.ID] || info.LockedState {
			continue
		}
		if err := m.info.DeleteMissionInfo(info.ID); err == nil {
			m.listeners.NotifyMissionDestroyed(info.ID)
		}
	}
	return nil
}

// SetMissionLockedState locks or unlocks a mission against cleaning
func (m *MissionListManager) SetMissionLockedState(missionID int, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inner, err := m.info.GetInnerMissionInfoByID(missionID)
	if err != nil {
		return err
	}
	inner.MissionInfo.LockedState = locked
	if err := m.info.UpdateMissionInfo(inner); err != nil {
		return err
	}
	if lm := m.liveByIDLocked(missionID); lm != nil {
		lm.locked = locked
	}
	return nil
}

// GetMissionIDByToken returns the mission of token, or -1
func (m *MissionListManager) GetMissionIDByToken(token ability.Token) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lm := m.missionOfLocked(token); lm != nil {
		return lm.id
	}
	return -1
}

// GetMissionInfos returns up to numMax missions, most recent first; zero
// returns all
func (m *MissionListManager) GetMissionInfos(numMax int) ([]types.MissionInfo, error) {
	return m.info.GetMissionInfos(numMax)
}

// GetMissionInfo returns one mission
func (m *MissionListManager) GetMissionInfo(missionID int) (types.MissionInfo, error) {
	return m.info.GetMissionInfoByID(missionID)
}

// GetMissionSnapshot returns a mission's last snapshot
func (m *MissionListManager) GetMissionSnapshot(missionID int) (types.MissionSnapshot, error) {
	return m.info.GetMissionSnapshot(missionID)
}

// UpdateMissionSnapshot stores a snapshot and notifies listeners
func (m *MissionListManager) UpdateMissionSnapshot(missionID int, img image.Image) error {
	if img == nil {
		return errcode.ErrInvalidValue
	}
	if err := m.info.UpdateMissionSnapshot(missionID, img); err != nil {
		return err
	}
	m.listeners.NotifyMissionSnapshotChanged(missionID)
	return nil
}

// UninstallApp drops every mission of an uninstalled bundle, locked or not
func (m *MissionListManager) UninstallApp(bundleName string, uid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.info.HandleUnInstallApp(bundleName, uid) {
		if lm := m.liveByIDLocked(id); lm != nil {
			m.removeRecordLocked(lm.record, true)
			continue
		}
		if err := m.info.DeleteMissionInfo(id); err == nil {
			m.listeners.NotifyMissionDestroyed(id)
		}
	}
}

// Dump returns the live mission list
func (m *MissionListManager) Dump() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []string{"User ID #" + strconv.Itoa(m.userID), "  MissionList:"}
	for _, lm := range m.missions {
		lines = append(lines, missionLine(lm.id, lm.name, lm.locked))
		lines = append(lines, lm.record.Dump()...)
	}
	return append(lines, m.terminatingDumpLocked()...)
}

// DumpStack returns the launcher missions for LauncherStackID and the rest
// for any other id
func (m *MissionListManager) DumpStack(stackID int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []string{"  Stack ID #" + strconv.Itoa(stackID)}
	for _, lm := range m.missions {
		if lm.record.IsLauncher() != (stackID == LauncherStackID) {
			continue
		}
		lines = append(lines, missionLine(lm.id, lm.name, lm.locked))
		lines = append(lines, lm.record.Dump()...)
	}
	return lines
}

// DumpMission returns one live mission, or nothing
func (m *MissionListManager) DumpMission(missionID int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm := m.liveByIDLocked(missionID)
	if lm == nil {
		return nil
	}
	return append([]string{missionLine(lm.id, lm.name, lm.locked)}, lm.record.Dump()...)
}

// DumpMissionInfos returns the persisted mission list
func (m *MissionListManager) DumpMissionInfos() []string {
	return m.info.Dump()
}

// VisitRecords calls fn for every live and terminating record while the
// manager is locked; fn must not call back into the manager
func (m *MissionListManager) VisitRecords(fn func(*ability.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lm := range m.missions {
		fn(lm.record)
	}
	for _, rec := range m.terminating {
		fn(rec)
	}
}

// VisitTop calls fn with the top record, nil if there is none, while the
// manager is locked
func (m *MissionListManager) VisitTop(fn func(*ability.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rec *ability.Record
	if top := m.topLocked(); top != nil {
		rec = top.record
	}
	fn(rec)
}

// Close drops every live record, invalidating its token and cancelling its
// timeouts. Persisted missions are kept.
func (m *MissionListManager) Close() {
	m.mu.Lock()
	for _, lm := range m.missions {
		m.forgetRecord(lm.record)
	}
	for _, rec := range m.terminating {
		m.forgetRecord(rec)
	}
	m.missions = nil
	m.terminating = nil
	m.mu.Unlock()
	m.base.Close()
}

// Stats returns the live mission and record counts
func (m *MissionListManager) Stats() (missions, abilities int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.missions), len(m.missions) + len(m.terminating)
}

func (m *MissionListManager) topLocked() *liveMission {
	if len(m.missions) == 0 {
		return nil
	}
	return m.missions[0]
}

func (m *MissionListManager) isTopLocked(rec *ability.Record) bool {
	top := m.topLocked()
	return top != nil && top.record == rec
}

func (m *MissionListManager) moveToTopLocked(lm *liveMission) {
	for i, cur := range m.missions {
		if cur == lm {
			copy(m.missions[1:i+1], m.missions[:i])
			m.missions[0] = lm
			return
		}
	}
	m.missions = append([]*liveMission{lm}, m.missions...)
}

func (m *MissionListManager) liveByIDLocked(id int) *liveMission {
	for _, lm := range m.missions {
		if lm.id == id {
			return lm
		}
	}
	return nil
}

func (m *MissionListManager) missionOfLocked(token ability.Token) *liveMission {
	rec, ok := m.lookup(token)
	if !ok {
		return nil
	}
	for _, lm := range m.missions {
		if lm.record == rec {
			return lm
		}
	}
	return nil
}

func (m *MissionListManager) recordLocked(token ability.Token) *ability.Record {
	rec, ok := m.lookup(token)
	if !ok {
		return nil
	}
	if m.isTerminatingLocked(rec) {
		return rec
	}
	for _, lm := range m.missions {
		if lm.record == rec {
			return rec
		}
	}
	return nil
}

func (m *MissionListManager) recordByIDLocked(id int64) *ability.Record {
	for _, lm := range m.missions {
		if lm.record.ID() == id {
			return lm.record
		}
	}
	return m.terminatingByIDLocked(id)
}
