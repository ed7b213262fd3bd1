// Package types provides shared data structures for the ability manager.
//
// This package defines the descriptors every layer passes around: launch
// requests, component metadata supplied by the bundle manager, and the
// mission records shown in the recent-tasks list.
//
// Core Types:
//   - Want: Launch request naming a target component plus parameters
//   - ElementName: device/bundle/ability triple identifying a component
//   - AbilityInfo, ApplicationInfo, BundleInfo: read-only bundle metadata
//   - ExtensionAbilityInfo: metadata for extension components
//   - RunningProcessInfo: process information reported by the app scheduler
//
// Mission Types:
//   - MissionInfo: public view of one top-level task
//   - MissionSnapshot: captured image of a mission's top window
//
// Example Usage:
//
//	want := types.NewWant(types.ElementName{
//	    BundleName:  "com.example.mail",
//	    AbilityName: "MainAbility",
//	})
//	want.SetParam("account", "work")
package types
