package mission

import (
	"context"
	"image"
	"strconv"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/eventloop"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/paths"
	"go.uber.org/zap"
)

// PersistenceMgr runs every mutating disk operation of one user's missions
// on its own loop. Mutators return as soon as the work is queued and report
// false only when the loop no longer accepts work.
type PersistenceMgr struct {
	storage *DataStorage
	loop    *eventloop.Handler
	log     *logging.Logger
}

// NewPersistenceMgr starts the persistence loop for userID
func NewPersistenceMgr(layout paths.Layout, userID int, log *logging.Logger, metrics *monitoring.Metrics) *PersistenceMgr {
	log = logging.OrNop(log).ForComponent("mission-persistence").ForUser(userID)
	return &PersistenceMgr{
		storage: NewDataStorage(layout, userID, log, metrics),
		loop:    eventloop.New("mission-"+strconv.Itoa(userID), log, nil),
		log:     log,
	}
}

// Storage exposes the underlying file storage
func (p *PersistenceMgr) Storage() *DataStorage { return p.storage }

// LoadAllMissionInfo reads the persisted missions synchronously; it is only
// used while a user's managers are being built
func (p *PersistenceMgr) LoadAllMissionInfo() ([]*InnerMissionInfo, error) {
	return p.storage.LoadAllMissionInfo()
}

// SaveMissionInfo queues a write of info
func (p *PersistenceMgr) SaveMissionInfo(info *InnerMissionInfo) bool {
	snapshot := info.Clone()
	return p.loop.Post(func() {
		if err := p.storage.SaveMissionInfo(snapshot); err != nil {
			p.log.Error("save mission failed", zap.Int("mission_id", snapshot.ID()), zap.Error(err))
		}
	})
}

// DeleteMissionInfo queues removal of a mission's files
func (p *PersistenceMgr) DeleteMissionInfo(missionID int) bool {
	return p.loop.Post(func() {
		if err := p.storage.DeleteMissionInfo(missionID); err != nil {
			p.log.Error("delete mission failed", zap.Int("mission_id", missionID), zap.Error(err))
		}
	})
}

// RemoveUserDir queues removal of everything persisted for the user
func (p *PersistenceMgr) RemoveUserDir() bool {
	return p.loop.Post(func() {
		if err := p.storage.RemoveUserDir(); err != nil {
			p.log.Error("remove user dir failed", zap.Error(err))
		}
	})
}

// SaveMissionSnapshot makes img visible to readers at once and queues the
// png write
func (p *PersistenceMgr) SaveMissionSnapshot(missionID int, img image.Image) bool {
	p.storage.CacheSnapshot(missionID, img)
	return p.loop.Post(func() {
		if err := p.storage.SaveMissionSnapshot(missionID, img); err != nil {
			p.log.Error("save snapshot failed", zap.Int("mission_id", missionID), zap.Error(err))
		}
	})
}

// GetMissionSnapshot returns a mission's snapshot from cache or disk
func (p *PersistenceMgr) GetMissionSnapshot(missionID int) (image.Image, bool) {
	return p.storage.GetMissionSnapshot(missionID)
}

// Flush waits for queued disk work to finish
func (p *PersistenceMgr) Flush(ctx context.Context) error {
	return p.loop.Flush(ctx)
}

// Close drains queued writes and stops the loop
func (p *PersistenceMgr) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := p.loop.Flush(ctx); err != nil {
		p.log.Warn("mission writes not drained before close", zap.Error(err))
	}
	p.loop.Stop()
}
