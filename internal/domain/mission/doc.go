// Package mission keeps the ordered list of a user's missions, allocates
// their ids and persists them with their snapshots.
//
// InfoMgr is the in-memory view, PersistenceMgr moves disk writes onto a
// dedicated loop and DataStorage owns the file format. ListenerController
// delivers change notifications to registered observers.
package mission
