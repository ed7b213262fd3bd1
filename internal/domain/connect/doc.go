// Package connect manages service and extension abilities for one user:
// starting and stopping them, binding clients to them and tearing both down
// when a hosted process dies or misses a handshake deadline.
//
// Lifecycle timeouts (load, inactive, terminate) arrive through OnTimeOut
// from the service-wide event handler. Connect, command and disconnect
// deadlines are named tasks on the manager's own loop.
package connect
