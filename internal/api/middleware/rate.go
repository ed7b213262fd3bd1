package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops the bucket of a caller not seen for this long
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           10 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet keeps one token bucket per caller key
type limiterSet struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.IdleTTL > 0 && now.Sub(s.lastSweep) > s.cfg.IdleTTL {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.cfg.IdleTTL {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func callerKey(c *gin.Context) string {
	if uid := c.GetHeader(HeaderCallerUID); uid != "" {
		return "uid:" + uid
	}
	return "ip:" + c.ClientIP()
}

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
}

// RateLimit limits each caller separately. Callers are told apart by the
// caller uid header, falling back to the client IP.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	set := &limiterSet{cfg: cfg, buckets: make(map[string]*bucket), lastSweep: time.Now()}
	return func(c *gin.Context) {
		if !set.allow(callerKey(c), time.Now()) {
			tooMany(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			tooMany(c)
			return
		}
		c.Next()
	}
}
