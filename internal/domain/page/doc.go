// Package page manages page abilities and the missions that group them.
//
// MissionListManager is the current model: one record per mission, missions
// persisted through the mission package. StackManager is the legacy model
// with a launcher stack and a default stack of in-memory missions. The
// service picks one at boot.
package page
