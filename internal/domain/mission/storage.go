package mission

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/paths"
	"go.uber.org/zap"
)

// DataStorage reads and writes one user's mission files:
//
//	<base>/<userId>/MissionInfo/mission_<id>.json
//	<base>/<userId>/MissionInfo/mission_<id>.png
//
// Snapshots are cached in memory per mission id.
type DataStorage struct {
	layout  paths.Layout
	userID  int
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.Mutex
	snapshots map[int]image.Image
}

// NewDataStorage creates the storage for userID under layout
func NewDataStorage(layout paths.Layout, userID int, log *logging.Logger, metrics *monitoring.Metrics) *DataStorage {
	return &DataStorage{
		layout:    layout,
		userID:    userID,
		log:       logging.OrNop(log).ForComponent("mission-storage").ForUser(userID),
		metrics:   metrics,
		snapshots: make(map[int]image.Image),
	}
}

// Dir returns the user's mission directory
func (s *DataStorage) Dir() string {
	return s.layout.MissionDir(s.userID)
}

// LoadAllMissionInfo reads every mission file. Files that cannot be read or
// decoded, or whose name disagrees with their content, are skipped.
func (s *DataStorage) LoadAllMissionInfo() ([]*InnerMissionInfo, error) {
	dir := s.Dir()
	names, err := doublestar.Glob(os.DirFS(dir), paths.MissionFileGlob)
	if err != nil {
		return nil, fmt.Errorf("list missions in %s: %w", dir, err)
	}

	infos := make([]*InnerMissionInfo, 0, len(names))
	for _, name := range names {
		id, err := paths.ParseMissionFileName(name)
		if err != nil {
			s.log.Warn("skipping unrecognised mission file", zap.String("file", name))
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s.log.Warn("skipping unreadable mission file", zap.String("file", name), zap.Error(err))
			continue
		}
		var info InnerMissionInfo
		if err := info.UnmarshalJSON(data); err != nil {
			s.log.Warn("skipping malformed mission file", zap.String("file", name), zap.Error(err))
			continue
		}
		if info.ID() != id {
			s.log.Warn("skipping mission file with mismatched id",
				zap.String("file", name), zap.Int("mission_id", info.ID()))
			continue
		}
		infos = append(infos, &info)
	}
	s.log.Info("missions loaded", zap.Int("count", len(infos)), zap.Int("files", len(names)))
	return infos, nil
}

// SaveMissionInfo writes a mission file atomically
func (s *DataStorage) SaveMissionInfo(info *InnerMissionInfo) error {
	data, err := info.MarshalJSON()
	if err != nil {
		s.metrics.RecordMissionWrite("save", "error")
		return fmt.Errorf("encode mission %d: %w", info.ID(), err)
	}
	if err := s.writeFile(s.layout.MissionFile(s.userID, info.ID()), data); err != nil {
		s.metrics.RecordMissionWrite("save", "error")
		return err
	}
	s.metrics.RecordMissionWrite("save", "ok")
	return nil
}

// DeleteMissionInfo removes a mission's files and cached snapshot. Missing
// files are not an error.
func (s *DataStorage) DeleteMissionInfo(missionID int) error {
	s.mu.Lock()
	delete(s.snapshots, missionID)
	s.mu.Unlock()

	var errs []error
	for _, p := range []string{s.layout.MissionFile(s.userID, missionID), s.layout.SnapshotFile(s.userID, missionID)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.metrics.RecordMissionWrite("delete", "error")
		return err
	}
	s.metrics.RecordMissionWrite("delete", "ok")
	return nil
}

// RemoveUserDir deletes everything persisted for the user
func (s *DataStorage) RemoveUserDir() error {
	s.mu.Lock()
	s.snapshots = make(map[int]image.Image)
	s.mu.Unlock()

	dir := s.layout.UserDir(s.userID)
	if err := os.RemoveAll(dir); err != nil {
		s.metrics.RecordMissionWrite("remove_user", "error")
		return fmt.Errorf("remove user dir %s: %w", dir, err)
	}
	s.metrics.RecordMissionWrite("remove_user", "ok")
	return nil
}

// CacheSnapshot replaces the in-memory snapshot of a mission
func (s *DataStorage) CacheSnapshot(missionID int, img image.Image) {
	s.mu.Lock()
	s.snapshots[missionID] = img
	s.mu.Unlock()
}

// SaveMissionSnapshot caches img and writes it as png
func (s *DataStorage) SaveMissionSnapshot(missionID int, img image.Image) error {
	s.CacheSnapshot(missionID, img)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.metrics.RecordMissionWrite("snapshot", "error")
		return fmt.Errorf("encode snapshot %d: %w", missionID, err)
	}
	if err := s.writeFile(s.layout.SnapshotFile(s.userID, missionID), buf.Bytes()); err != nil {
		s.metrics.RecordMissionWrite("snapshot", "error")
		return err
	}
	s.metrics.RecordMissionWrite("snapshot", "ok")
	return nil
}

// GetMissionSnapshot returns the cached snapshot, reading it from disk on a
// cache miss
func (s *DataStorage) GetMissionSnapshot(missionID int) (image.Image, bool) {
	s.mu.Lock()
	img, ok := s.snapshots[missionID]
	s.mu.Unlock()
	if ok {
		return img, true
	}

	f, err := os.Open(s.layout.SnapshotFile(s.userID, missionID))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	img, err = png.Decode(f)
	if err != nil {
		s.log.Warn("unreadable snapshot", zap.Int("mission_id", missionID), zap.Error(err))
		return nil, false
	}
	s.CacheSnapshot(missionID, img)
	return img, true
}

// writeFile writes data to path via a temp file and rename
func (s *DataStorage) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating mission directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".mission-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp mission file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp mission file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming mission file: %w", err)
	}
	success = true
	return nil
}
