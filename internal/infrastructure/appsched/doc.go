// Package appsched is the ability manager's client for the app spawner,
// the service that starts processes and hosts abilities in them.
package appsched
