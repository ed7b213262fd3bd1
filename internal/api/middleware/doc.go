// Package middleware holds the gin middleware of the admin API: CORS,
// per-caller rate limits, gzip for dump output, request ids and request
// logging.
package middleware
