package mission

import (
	"fmt"
	"image"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"go.uber.org/zap"
)

const drainTimeout = 2 * time.Second

// Store is the persistence surface InfoMgr writes through
type Store interface {
	LoadAllMissionInfo() ([]*InnerMissionInfo, error)
	SaveMissionInfo(info *InnerMissionInfo) bool
	DeleteMissionInfo(missionID int) bool
	SaveMissionSnapshot(missionID int, img image.Image) bool
	GetMissionSnapshot(missionID int) (image.Image, bool)
}

// Config bounds the mission id pool
type Config struct {
	MinID   int
	MaxID   int
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// InfoMgr keeps one user's missions, most recent first, and allocates
// mission ids.
//
// An id is allocated from GenerateMissionID until DeleteMissionInfo, whether
// or not the mission was ever added; allocated maps each id to whether it
// has been persisted.
type InfoMgr struct {
	userID  int
	store   Store
	minID   int
	maxID   int
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	cursor    int
	missions  []*InnerMissionInfo
	allocated map[int]bool
}

// NewInfoMgr creates an empty manager; call Init to load persisted missions
func NewInfoMgr(userID int, store Store, cfg Config) *InfoMgr {
	if cfg.MinID <= 0 {
		cfg.MinID = 1
	}
	if cfg.MaxID < cfg.MinID {
		cfg.MaxID = cfg.MinID
	}
	return &InfoMgr{
		userID:    userID,
		store:     store,
		minID:     cfg.MinID,
		maxID:     cfg.MaxID,
		log:       logging.OrNop(cfg.Logger).ForComponent("mission-info").ForUser(userID),
		metrics:   cfg.Metrics,
		cursor:    cfg.MinID,
		allocated: make(map[int]bool),
	}
}

// Init loads the persisted missions. Missions with out-of-range or
// duplicate ids are dropped.
func (m *InfoMgr) Init() error {
	infos, err := m.store.LoadAllMissionInfo()
	if err != nil {
		return fmt.Errorf("load missions for user %d: %w", m.userID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range infos {
		id := info.ID()
		if id < m.minID || id > m.maxID || m.allocated[id] {
			m.log.Warn("ignoring persisted mission", zap.Int("mission_id", id))
			continue
		}
		m.allocated[id] = true
		m.insertSortedLocked(info)
	}
	m.updateGaugeLocked()
	return nil
}

// GenerateMissionID allocates the next free id after the cursor, wrapping
// from the top of the pool to the bottom
func (m *InfoMgr) GenerateMissionID() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	span := m.maxID - m.minID + 1
	id := m.cursor
	for i := 0; i < span; i++ {
		if id > m.maxID {
			id = m.minID
		}
		if _, taken := m.allocated[id]; !taken {
			m.allocated[id] = false
			m.cursor = id + 1
			return id, nil
		}
		id++
	}
	m.log.Error("mission id space exhausted", zap.Int("allocated", len(m.allocated)))
	return 0, errcode.MissionIDExhausted
}

// AddMissionInfo persists and inserts a mission. The id must not belong to
// a mission already present.
func (m *InfoMgr) AddMissionInfo(info *InnerMissionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := info.ID()
	if m.allocated[id] || m.indexLocked(id) >= 0 {
		m.log.Warn("mission already exists", zap.Int("mission_id", id))
		return errcode.ErrInvalidValue
	}
	info = info.Clone()
	if !m.store.SaveMissionInfo(info) {
		return errcode.InnerErr
	}
	m.insertSortedLocked(info)
	m.allocated[id] = true
	m.updateGaugeLocked()
	return nil
}

// UpdateMissionInfo replaces a mission, moving it only when its time
// changed
func (m *InfoMgr) UpdateMissionInfo(info *InnerMissionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(info.Clone())
}

func (m *InfoMgr) updateLocked(info *InnerMissionInfo) error {
	idx := m.indexLocked(info.ID())
	if idx < 0 {
		return errcode.MissionNotFound
	}
	if m.missions[idx].Equal(info) {
		return nil
	}
	if !m.store.SaveMissionInfo(info) {
		return errcode.InnerErr
	}
	if m.missions[idx].MissionInfo.Time.Equal(info.MissionInfo.Time) {
		m.missions[idx] = info
		return nil
	}
	m.missions = append(m.missions[:idx], m.missions[idx+1:]...)
	m.insertSortedLocked(info)
	return nil
}

// DeleteMissionInfo releases an id and removes its mission. Ids never
// persisted and unknown ids are released without touching disk.
func (m *InfoMgr) DeleteMissionInfo(missionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(missionID)
}

func (m *InfoMgr) deleteLocked(missionID int) error {
	persisted, ok := m.allocated[missionID]
	if !ok {
		return nil
	}
	if !persisted {
		delete(m.allocated, missionID)
		return nil
	}
	if !m.store.DeleteMissionInfo(missionID) {
		return errcode.InnerErr
	}
	if idx := m.indexLocked(missionID); idx >= 0 {
		m.missions = append(m.missions[:idx], m.missions[idx+1:]...)
	}
	delete(m.allocated, missionID)
	m.updateGaugeLocked()
	return nil
}

// DeleteAllMissionInfos deletes every unlocked mission and returns the ids
// removed
func (m *InfoMgr) DeleteAllMissionInfos() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int
	for _, info := range append([]*InnerMissionInfo(nil), m.missions...) {
		if info.MissionInfo.LockedState {
			continue
		}
		if err := m.deleteLocked(info.ID()); err != nil {
			m.log.Warn("delete mission failed", zap.Int("mission_id", info.ID()), zap.Error(err))
			continue
		}
		ids = append(ids, info.ID())
	}
	return ids
}

// GetMissionInfos returns up to numMax missions, most recent first. Zero
// means all of them.
func (m *InfoMgr) GetMissionInfos(numMax int) ([]types.MissionInfo, error) {
	if numMax < 0 {
		return nil, errcode.ErrInvalidValue
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.missions)
	if numMax > 0 && numMax < n {
		n = numMax
	}
	out := make([]types.MissionInfo, 0, n)
	for _, info := range m.missions[:n] {
		mi := info.MissionInfo
		mi.Want = mi.Want.Clone()
		out = append(out, mi)
	}
	return out, nil
}

// GetMissionInfoByID returns the public view of a mission
func (m *InfoMgr) GetMissionInfoByID(missionID int) (types.MissionInfo, error) {
	inner, err := m.GetInnerMissionInfoByID(missionID)
	if err != nil {
		return types.MissionInfo{}, err
	}
	return inner.MissionInfo, nil
}

// GetInnerMissionInfoByID returns a copy of a mission
func (m *InfoMgr) GetInnerMissionInfoByID(missionID int) (*InnerMissionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(missionID)
	if idx < 0 {
		return nil, errcode.MissionNotFound
	}
	return m.missions[idx].Clone(), nil
}

// FindReusedSingletonMission returns the singleton mission named name
func (m *InfoMgr) FindReusedSingletonMission(name string) (*InnerMissionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.missions {
		if info.IsSingletonMode && info.MissionName == name {
			return info.Clone(), true
		}
	}
	return nil, false
}

// UpdateMissionTimeStamp moves a mission to its place for t
func (m *InfoMgr) UpdateMissionTimeStamp(missionID int, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(missionID)
	if idx < 0 {
		return errcode.MissionNotFound
	}
	info := m.missions[idx].Clone()
	info.MissionInfo.Time = t
	return m.updateLocked(info)
}

// UpdateMissionLabel changes a mission's label
func (m *InfoMgr) UpdateMissionLabel(missionID int, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(missionID)
	if idx < 0 {
		return errcode.MissionNotFound
	}
	info := m.missions[idx].Clone()
	info.MissionInfo.Label = label
	return m.updateLocked(info)
}

// HandleUnInstallApp returns the missions owned by an uninstalled bundle
func (m *InfoMgr) HandleUnInstallApp(bundleName string, uid int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for _, info := range m.missions {
		if info.BundleName == bundleName && info.UID == uid {
			ids = append(ids, info.ID())
		}
	}
	return ids
}

// GetMissionSnapshot returns the snapshot of an existing mission
func (m *InfoMgr) GetMissionSnapshot(missionID int) (types.MissionSnapshot, error) {
	m.mu.Lock()
	idx := m.indexLocked(missionID)
	var topology types.ElementName
	if idx >= 0 && m.missions[idx].MissionInfo.Want != nil {
		topology = m.missions[idx].MissionInfo.Want.Element
	}
	m.mu.Unlock()
	if idx < 0 {
		return types.MissionSnapshot{}, errcode.MissionNotFound
	}

	img, ok := m.store.GetMissionSnapshot(missionID)
	if !ok {
		return types.MissionSnapshot{}, errcode.MissionNotFound
	}
	return types.MissionSnapshot{Topology: topology, Snapshot: img}, nil
}

// UpdateMissionSnapshot stores a new snapshot for an existing mission
func (m *InfoMgr) UpdateMissionSnapshot(missionID int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(missionID) < 0 {
		return errcode.MissionNotFound
	}
	if !m.store.SaveMissionSnapshot(missionID, img) {
		return errcode.InnerErr
	}
	return nil
}

// Len returns the number of missions
func (m *InfoMgr) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.missions)
}

// IsAllocated reports whether id is currently handed out
func (m *InfoMgr) IsAllocated(missionID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.allocated[missionID]
	return ok
}

// Dump returns the mission infos dump lines
func (m *InfoMgr) Dump() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := []string{fmt.Sprintf("User ID #%d", m.userID), "  MissionInfos:"}
	for _, info := range m.missions {
		lines = append(lines, info.Dump()...)
	}
	return lines
}

func (m *InfoMgr) indexLocked(missionID int) int {
	for i, info := range m.missions {
		if info.ID() == missionID {
			return i
		}
	}
	return -1
}

// insertSortedLocked keeps missions ordered by time, newest first; equal
// times keep insertion order
func (m *InfoMgr) insertSortedLocked(info *InnerMissionInfo) {
	t := info.MissionInfo.Time
	idx := sort.Search(len(m.missions), func(i int) bool {
		return m.missions[i].MissionInfo.Time.Before(t)
	})
	m.missions = append(m.missions, nil)
	copy(m.missions[idx+1:], m.missions[idx:])
	m.missions[idx] = info
}

func (m *InfoMgr) updateGaugeLocked() {
	m.metrics.SetMissions(strconv.Itoa(m.userID), len(m.missions))
}
