package http

import (
	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
	"go.uber.org/zap"
)

// StartUser switches to a user, starting it first if needed
func (h *Handlers) StartUser(c *gin.Context) {
	h.userOp(c, "StartUser", h.svc.StartUser)
}

// StopUser stops a background user
func (h *Handlers) StopUser(c *gin.Context) {
	h.userOp(c, "StopUser", h.svc.StopUser)
}

func (h *Handlers) userOp(c *gin.Context, op string, fn func(ams.Caller, int) error) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	done := h.track(op)
	err := fn(caller, id)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, gin.H{"user_id": id})
}

// CurrentUser returns the foreground user
func (h *Handlers) CurrentUser(c *gin.Context) {
	succeed(c, gin.H{"user_id": h.svc.GetCurrentUserID()})
}

// ============================================================================
// Apps
// ============================================================================

// ListBundles returns the installed bundle names
func (h *Handlers) ListBundles(c *gin.Context) {
	names := h.catalog.Bundles()
	succeed(c, gin.H{"bundles": names, "count": len(names)})
}

// KillApp kills every process of a bundle
func (h *Handlers) KillApp(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	if caller.UID >= ams.FirstApplicationUID {
		fail(c, errcode.CheckPermissionFailed)
		return
	}
	bundle := c.Param("bundle")
	done := h.track("KillProcess")
	err := h.svc.KillProcess(bundle)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, gin.H{"bundle": bundle})
}

// UninstallApp removes a bundle from the catalog and drops its missions.
// The missions of the current user's installation are dropped unless
// ?uid= names another one.
func (h *Handlers) UninstallApp(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	if caller.UID >= ams.FirstApplicationUID {
		fail(c, errcode.CheckPermissionFailed)
		return
	}
	bundle := c.Param("bundle")
	info, found := h.catalog.GetBundleInfo(bundle, h.svc.GetCurrentUserID())
	if !found {
		fail(c, errcode.ResolveAbilityErr)
		return
	}
	uid := info.UID
	if raw := c.Query("uid"); raw != "" {
		v, ok := atoi(raw)
		if !ok {
			badRequest(c, "invalid uid: "+raw)
			return
		}
		uid = v
	}
	h.catalog.Uninstall(bundle)
	h.svc.UninstallApp(bundle, uid)
	h.log.Info("bundle uninstalled", zap.String("bundle", bundle), zap.Int("uid", uid))
	succeed(c, gin.H{"bundle": bundle, "uid": uid})
}
