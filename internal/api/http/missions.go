package http

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
)

// maxSnapshotBytes bounds an uploaded snapshot
const maxSnapshotBytes = 16 << 20

var snapshotTypes = []string{"image/png", "image/jpeg", "image/gif"}

// missionOp runs fn for the caller and the :id parameter
func (h *Handlers) missionOp(c *gin.Context, op string, fn func(ams.Caller, int) error) {
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
	succeed(c, gin.H{"mission_id": id})
}

// ListMissions returns up to ?max= missions of the current user
func (h *Handlers) ListMissions(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	numMax := 20
	if raw := c.Query("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "invalid max: "+raw)
			return
		}
		numMax = n
	}
	infos, err := h.svc.GetMissionInfos(caller, numMax)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, gin.H{"missions": infos, "count": len(infos)})
}

// GetMission returns one mission
func (h *Handlers) GetMission(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	info, err := h.svc.GetMissionInfo(caller, id)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, gin.H{"mission": info})
}

// MoveMissionToFront brings a mission to the foreground
func (h *Handlers) MoveMissionToFront(c *gin.Context) {
	h.missionOp(c, "MoveMissionToFront", h.svc.MoveMissionToFront)
}

// CleanMission removes a mission that is not locked
func (h *Handlers) CleanMission(c *gin.Context) {
	h.missionOp(c, "CleanMission", h.svc.CleanMission)
}

// LockMission protects a mission from cleanup
func (h *Handlers) LockMission(c *gin.Context) {
	h.missionOp(c, "LockMissionForCleanup", h.svc.LockMissionForCleanup)
}

// UnlockMission lifts the cleanup lock
func (h *Handlers) UnlockMission(c *gin.Context) {
	h.missionOp(c, "UnlockMissionForCleanup", h.svc.UnlockMissionForCleanup)
}

// CleanAllMissions removes every unlocked mission of the current user
func (h *Handlers) CleanAllMissions(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	done := h.track("CleanAllMissions")
	err := h.svc.CleanAllMissions(caller)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

// GetSnapshot returns the mission snapshot as a PNG. The captured element
// is in the X-Mission-Topology header.
func (h *Handlers) GetSnapshot(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	snap, err := h.svc.GetMissionSnapshot(caller, id)
	if err != nil {
		fail(c, err)
		return
	}
	if snap.Snapshot == nil {
		fail(c, errcode.MissionNotFound)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, snap.Snapshot); err != nil {
		fail(c, err)
		return
	}
	c.Header("X-Mission-Topology", snap.Topology.URI())
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// PutSnapshot stores an uploaded PNG, JPEG or GIF as the mission snapshot
func (h *Handlers) PutSnapshot(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes+1))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(data) > maxSnapshotBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "snapshot too large"})
		return
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), snapshotTypes...) {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"success": false,
			"error":   "unsupported snapshot type " + mt.String(),
		})
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		badRequest(c, "decode snapshot: "+err.Error())
		return
	}
	done := h.track("UpdateMissionSnapshot")
	err = h.svc.UpdateMissionSnapshot(caller, id, img)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	b := img.Bounds()
	succeed(c, gin.H{"mission_id": id, "width": b.Dx(), "height": b.Dy(), "mime": mt.String()})
}
