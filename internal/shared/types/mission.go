package types

import (
	"image"
	"time"
)

// MissionInfo is the public view of one top-level task
type MissionInfo struct {
	ID           int       `json:"id"`
	RunningState int       `json:"running_state"`
	LockedState  bool      `json:"locked_state"`
	Continuable  bool      `json:"continuable"`
	Time         time.Time `json:"time"`
	Label        string    `json:"label"`
	IconPath     string    `json:"icon_path"`
	Want         *Want     `json:"want,omitempty"`
}

// Running states of a mission
const (
	MissionNotRunning = -1
	MissionRunning    = 0
)

// MissionSnapshot is the captured image of a mission's top window
type MissionSnapshot struct {
	Topology ElementName `json:"topology"`
	Snapshot image.Image `json:"-"`
}
