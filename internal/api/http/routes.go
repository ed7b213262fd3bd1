package http

import (
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/openharmony/aafwk-standard-sub013/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/metrics/json", h.MetricsJSON)

	v1 := r.Group("/v1")

	abilities := v1.Group("/abilities")
	abilities.POST("/start", h.StartAbility)
	abilities.POST("/terminate-by-caller", h.TerminateAbilityByCaller)
	abilities.GET("/top", h.TopAbility)
	abilities.POST("/:token/terminate", h.TerminateAbility)
	abilities.POST("/:token/minimize", h.MinimizeAbility)
	abilities.GET("/:token/mission", h.AbilityMission)

	v1.POST("/services/stop", h.StopService)
	v1.POST("/connections", h.Connect)
	v1.DELETE("/connections", h.Disconnect)

	// hosted processes report back here
	ipc := v1.Group("/ipc/:token")
	ipc.POST("/attach", h.Attach)
	ipc.POST("/transition-done", h.TransitionDone)
	ipc.POST("/connect-done", h.ConnectDone)
	ipc.POST("/disconnect-done", h.DisconnectDone)
	ipc.POST("/command-done", h.CommandDone)
	ipc.POST("/died", h.Died)

	missions := v1.Group("/missions")
	missions.GET("", h.ListMissions)
	missions.DELETE("", h.CleanAllMissions)
	missions.GET("/:id", h.GetMission)
	missions.DELETE("/:id", h.CleanMission)
	missions.POST("/:id/front", h.MoveMissionToFront)
	missions.POST("/:id/lock", h.LockMission)
	missions.POST("/:id/unlock", h.UnlockMission)
	missions.GET("/:id/snapshot", h.GetSnapshot)
	missions.PUT("/:id/snapshot", h.PutSnapshot)

	users := v1.Group("/users")
	users.GET("/current", h.CurrentUser)
	users.POST("/:id/start", h.StartUser)
	users.POST("/:id/stop", h.StopUser)

	apps := v1.Group("/apps")
	apps.GET("", h.ListBundles)
	apps.DELETE("/:bundle", h.KillApp)
	apps.POST("/:bundle/uninstall", h.UninstallApp)

	dump := v1.Group("", middleware.Gzip(gzip.BestSpeed))
	dump.POST("/dump", h.Dump)
	dump.POST("/dumpsys", h.DumpSys)
}
