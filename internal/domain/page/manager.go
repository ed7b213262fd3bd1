package page

import (
	"fmt"
	"image"
	"strconv"
	"sync"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/mission"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

// ParamMissionID asks StartAbility to bring the ability back into an
// existing mission instead of creating one
const ParamMissionID = "ohos.aafwk.param.missionId"

// Stack ids used in dumps
const (
	LauncherStackID = 0
	DefaultStackID  = 1
)

// Manager drives the page abilities of one user and the missions grouping
// them. Two implementations exist; one is chosen when the service boots and
// used for the whole run.
type Manager interface {
	StartAbility(req *ability.Request) error
	TerminateAbility(token ability.Token, resultCode int, resultWant *types.Want) error
	TerminateAbilityByCaller(callerToken ability.Token, requestCode int) error
	MinimizeAbility(token ability.Token) error

	AttachAbilityThread(scheduler ability.Scheduler, token ability.Token) error
	AbilityTransitionDone(token ability.Token, state ability.State) error
	OnAbilityDied(token ability.Token)
	OnTimeOut(eventID uint32, recordID int64) bool

	GetAbilityRecordByToken(token ability.Token) *ability.Record
	HasToken(token ability.Token) bool
	TopAbility() *ability.Record

	MoveMissionToFront(missionID int) error
	CleanMission(missionID int) error
	CleanAllMissions() error
	SetMissionLockedState(missionID int, locked bool) error
	GetMissionIDByToken(token ability.Token) int
	// GetMissionInfos returns up to numMax missions; zero means all
	GetMissionInfos(numMax int) ([]types.MissionInfo, error)
	GetMissionInfo(missionID int) (types.MissionInfo, error)
	GetMissionSnapshot(missionID int) (types.MissionSnapshot, error)
	UpdateMissionSnapshot(missionID int, img image.Image) error
	RegisterMissionListener(l mission.Listener) error
	UnregisterMissionListener(l mission.Listener) error
	UninstallApp(bundleName string, uid int)

	Dump() []string
	DumpStack(stackID int) []string
	DumpMission(missionID int) []string
	DumpMissionInfos() []string
	// VisitRecords and VisitTop run fn under the manager lock
	VisitRecords(fn func(*ability.Record))
	VisitTop(fn func(*ability.Record))
	Stats() (missions, abilities int)
	// Close invalidates every live record and stops listener delivery
	Close()
}

// Deps are what a page manager is built from
type Deps struct {
	UserID int
	Env    *ability.Env
	// Missions is the user's mission store. Only the mission list manager
	// uses it.
	Missions *mission.InfoMgr
}

// Factory builds the page manager of one user
type Factory func(d Deps) (Manager, error)

// NewMissionListFactory returns the factory of the mission list manager
func NewMissionListFactory() Factory {
	return func(d Deps) (Manager, error) {
		m, err := NewMissionListManager(d)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// NewStackFactory returns the factory of the legacy stack manager
func NewStackFactory() Factory {
	return func(d Deps) (Manager, error) {
		return NewStackManager(d), nil
	}
}

// base holds what both managers share: the lock, the records being torn
// down and the listener fan-out
type base struct {
	userID    int
	env       *ability.Env
	log       *logging.Logger
	metrics   *monitoring.Metrics
	listeners *mission.ListenerController

	mu          sync.Mutex
	terminating []*ability.Record
}

func newBase(d Deps, component string) base {
	log := logging.OrNop(d.Env.Logger).ForComponent(component).ForUser(d.UserID)
	return base{
		userID:    d.UserID,
		env:       d.Env,
		log:       log,
		metrics:   d.Env.Metrics,
		listeners: mission.NewListenerController("missions-"+strconv.Itoa(d.UserID), log),
	}
}

func (b *base) lookup(token ability.Token) (*ability.Record, bool) {
	if token.IsNil() || b.env.Tokens == nil {
		return nil, false
	}
	return b.env.Tokens.Lookup(token)
}

func (b *base) isTerminatingLocked(rec *ability.Record) bool {
	for _, t := range b.terminating {
		if t == rec {
			return true
		}
	}
	return false
}

func (b *base) removeTerminatingLocked(rec *ability.Record) {
	for i, t := range b.terminating {
		if t == rec {
			b.terminating = append(b.terminating[:i], b.terminating[i+1:]...)
			return
		}
	}
}

func (b *base) terminatingByIDLocked(id int64) *ability.Record {
	for _, t := range b.terminating {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// finishTerminateLocked tells the app scheduler the record is gone, hands
// its result to callers and invalidates its token
func (b *base) finishTerminateLocked(rec *ability.Record) {
	if b.env.AppScheduler != nil {
		if err := b.env.AppScheduler.TerminateAbility(rec.Token()); err != nil {
			b.log.Warn("app scheduler terminate failed", zap.String("element", rec.URI()), zap.Error(err))
		}
	}
	b.removeTerminatingLocked(rec)
	rec.RemoveTimeouts()
	rec.SendResultToCallers()
	rec.Release()
}

func (b *base) terminatingDumpLocked() []string {
	if len(b.terminating) == 0 {
		return nil
	}
	lines := []string{"  Terminating Abilities:"}
	for _, rec := range b.terminating {
		lines = append(lines, rec.Dump()...)
	}
	return lines
}

// RegisterMissionListener adds a mission observer
func (b *base) RegisterMissionListener(l mission.Listener) error {
	return b.listeners.AddMissionListener(l)
}

// UnregisterMissionListener removes a mission observer
func (b *base) UnregisterMissionListener(l mission.Listener) error {
	b.listeners.DelMissionListener(l)
	return nil
}

// Listeners exposes the notification fan-out, mainly for tests
func (b *base) Listeners() *mission.ListenerController { return b.listeners }

// Close stops listener delivery
func (b *base) Close() {
	b.listeners.Close()
}

// forgetRecord invalidates a record without a lifecycle handshake
func (b *base) forgetRecord(rec *ability.Record) {
	rec.RemoveTimeouts()
	rec.Release()
}

func isForeground(rec *ability.Record) bool {
	switch rec.State() {
	case ability.StateForegroundNew, ability.StateForegroundingNew, ability.StateActive, ability.StateActivating:
		return true
	}
	return false
}

func missionIDParam(want *types.Want) int {
	if want == nil {
		return 0
	}
	return want.IntParam(ParamMissionID, 0)
}

func missionLine(id int, name string, locked bool) string {
	return fmt.Sprintf("    Mission ID #%d  mission name #[%s]  lockedState #%t", id, name, locked)
}

var (
	_ Manager = (*MissionListManager)(nil)
	_ Manager = (*StackManager)(nil)
)
