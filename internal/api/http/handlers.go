package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/ipc"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// Catalog is the part of the bundle manager the admin API manages
type Catalog interface {
	Bundles() []string
	GetBundleInfo(name string, userID int) (types.BundleInfo, bool)
	Uninstall(name string) bool
}

// Options wires Handlers
type Options struct {
	Service  *ams.Service
	Dialer   *ipc.Dialer
	Catalog  Catalog
	Gatherer prometheus.Gatherer
	Metrics  *monitoring.Metrics
	Logger   *logging.Logger
}

// Handlers serves the admin API
type Handlers struct {
	svc      *ams.Service
	dialer   *ipc.Dialer
	catalog  Catalog
	gatherer prometheus.Gatherer
	metrics  *monitoring.Metrics
	log      *logging.Logger
	started  time.Time
}

// NewHandlers creates the handlers
func NewHandlers(opts Options) *Handlers {
	return &Handlers{
		svc:      opts.Service,
		dialer:   opts.Dialer,
		catalog:  opts.Catalog,
		gatherer: opts.Gatherer,
		metrics:  opts.Metrics,
		log:      logging.OrNop(opts.Logger).ForComponent("api"),
		started:  time.Now(),
	}
}

// Root describes the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "ability-manager",
		"version": Version,
	})
}

// Health reports readiness and the live counts
func (h *Handlers) Health(c *gin.Context) {
	stats := h.svc.Stats()
	status := http.StatusOK
	state := "healthy"
	if !stats.Ready {
		status = http.StatusServiceUnavailable
		state = "starting"
	}
	c.JSON(status, gin.H{
		"status":         state,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"screen_frozen":  h.svc.ScreenFrozen(),
		"stats":          stats,
	})
}

// MetricsJSON returns the in-process counters
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}
