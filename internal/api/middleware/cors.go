package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Caller identity headers. A hosted process or tool states who it is; the
// service trusts them the way a binder call trusts the kernel supplied uid.
const (
	HeaderCallerUID   = "X-Caller-UID"
	HeaderCallerPID   = "X-Caller-PID"
	HeaderCallerToken = "X-Caller-Token"
	HeaderRequestID   = "X-Request-ID"
)

// DefaultCORSConfig lets browser tools on any origin drive the admin API.
// Credentials stay off; identity travels in the caller headers.
func DefaultCORSConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AddAllowHeaders("Accept", "Accept-Encoding",
		HeaderCallerUID, HeaderCallerPID, HeaderCallerToken, HeaderRequestID)
	cfg.ExposeHeaders = []string{HeaderRequestID}
	return cfg
}

// CORS answers preflights and tags responses for cross-origin callers
func CORS(cfg cors.Config) gin.HandlerFunc {
	return cors.New(cfg)
}
