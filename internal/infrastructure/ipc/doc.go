// Package ipc carries the ability manager's outbound calls to hosted
// processes and to connection clients over HTTP.
//
// A process registers an endpoint when it attaches an ability or binds to a
// service. Dialer turns the endpoint into a RemoteScheduler or a
// RemoteCallback; each call becomes a JSON POST to endpoint+path:
//
//	/transaction /connect /disconnect /command /result
//	/connect-done /disconnect-done
package ipc
