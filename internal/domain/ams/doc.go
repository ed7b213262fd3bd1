// Package ams is the ability manager service.
//
// Every request is checked against the caller (token, user, visibility,
// permissions) before it reaches a manager. Each user gets a connect
// manager and a page manager the first time it is touched; which page
// manager depends on whether the service runs with the mission list model.
// The service loop receives every lifecycle timeout and hands it to the
// manager that owns the record.
package ams
