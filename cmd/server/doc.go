// Package main runs the ability manager service.
//
// The manager starts, stops and tracks abilities for every OS user. It
// talks to the app spawner over HTTP, reads bundle manifests from disk and
// serves an admin API with a websocket event stream.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - An optional yaml or toml startup file
//   - CLI flags, which override both
//
// Usage:
//
//	./server -port 8000 -appspawn http://localhost:8810 -bundles /system/etc/bundles
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
