package paths

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// DefaultBase is the root of the ability manager's persisted state.
const DefaultBase = "/data/service/el1/public/AbilityManagerService"

// MissionInfoDir is the per-user directory holding mission files
const MissionInfoDir = "MissionInfo"

const (
	missionFilePrefix = "mission_"
	jsonSuffix        = ".json"
	pngSuffix         = ".png"
)

// Layout resolves paths under a base directory
type Layout struct {
	Base string
}

// NewLayout creates a layout rooted at base, falling back to DefaultBase
func NewLayout(base string) Layout {
	if base == "" {
		base = DefaultBase
	}
	return Layout{Base: base}
}

// UserDir returns <base>/<userId>
func (l Layout) UserDir(userID int) string {
	return filepath.Join(l.Base, strconv.Itoa(userID))
}

// MissionDir returns <base>/<userId>/MissionInfo
func (l Layout) MissionDir(userID int) string {
	return filepath.Join(l.UserDir(userID), MissionInfoDir)
}

// MissionFile returns <base>/<userId>/MissionInfo/mission_<id>.json
func (l Layout) MissionFile(userID, missionID int) string {
	return filepath.Join(l.MissionDir(userID), MissionFileName(missionID))
}

// SnapshotFile returns <base>/<userId>/MissionInfo/mission_<id>.png
func (l Layout) SnapshotFile(userID, missionID int) string {
	return filepath.Join(l.MissionDir(userID), missionFilePrefix+strconv.Itoa(missionID)+pngSuffix)
}

// MissionFileName returns mission_<id>.json
func MissionFileName(missionID int) string {
	return missionFilePrefix + strconv.Itoa(missionID) + jsonSuffix
}

// MissionFileGlob matches every mission json file in a mission directory
const MissionFileGlob = missionFilePrefix + "*" + jsonSuffix

// ParseMissionFileName extracts the mission id from mission_<id>.json
func ParseMissionFileName(name string) (int, error) {
	base := filepath.Base(name)
	if len(base) <= len(missionFilePrefix)+len(jsonSuffix) ||
		base[:len(missionFilePrefix)] != missionFilePrefix ||
		base[len(base)-len(jsonSuffix):] != jsonSuffix {
		return 0, fmt.Errorf("not a mission file: %s", name)
	}
	id, err := strconv.Atoi(base[len(missionFilePrefix) : len(base)-len(jsonSuffix)])
	if err != nil {
		return 0, fmt.Errorf("not a mission file: %s: %w", name, err)
	}
	return id, nil
}

// ValidateUserID checks a user id is usable as a directory name
func ValidateUserID(userID int) error {
	if userID < 0 {
		return fmt.Errorf("user ID cannot be negative: %d", userID)
	}
	return nil
}
