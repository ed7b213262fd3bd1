// Package paths provides the on-disk layout of the ability manager.
//
// # Directory Structure
//
//	/data/service/el1/public/AbilityManagerService/
//	  ├── 0/                       (system user)
//	  │   └── MissionInfo/
//	  │       ├── mission_1.json
//	  │       └── mission_1.png
//	  └── 100/
//	      └── MissionInfo/
//
// # Usage
//
//	layout := paths.NewLayout(cfg.AMS.DataDir)
//	file := layout.MissionFile(100, 7) // .../100/MissionInfo/mission_7.json
package paths
