package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

// Middleware records one request sample per call. Requests are labeled by
// route template, so /v1/missions/:id stays one series whatever the id.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		begin := time.Now()
		in := max(c.Request.ContentLength, 0)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		out := max(int64(c.Writer.Size()), 0)
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(begin), in, out)
	}
}

// Timer times one collaborator call, e.g. a request to the app spawner.
type Timer struct {
	m              *Metrics
	target, method string
	begin          time.Time
}

// NewTimer starts timing method on target
func NewTimer(m *Metrics, target, method string) *Timer {
	return &Timer{m: m, target: target, method: method, begin: time.Now()}
}

// Stop records the call with its outcome, e.g. "ok", "error", "rejected"
func (t *Timer) Stop(status string) {
	t.m.RecordCollaboratorCall(t.target, t.method, status, time.Since(t.begin))
}
