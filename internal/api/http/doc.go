// Package http exposes the ability manager over a JSON admin API.
//
// Callers state their identity with the X-Caller-UID, X-Caller-PID and
// X-Caller-Token headers. Hosted processes report lifecycle progress on
// the /v1/ipc routes and name the endpoint the manager calls them back on.
//
// Failures carry the numeric result code and its name:
//
//	{"success": false, "code": 27262977, "code_name": "CHECK_PERMISSION_FAILED", "error": "..."}
package http
