// Package user runs the OS user state machines (BOOTING, STARTED, STOPPING,
// SHUTDOWN) and foreground user switching. Every switch step is a UserEvent
// dispatched on the controller's own loop.
package user
