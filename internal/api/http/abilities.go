package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/utils"
)

// wantRequest names the target either as a structured want or as a want
// uri
type wantRequest struct {
	Want *types.Want `json:"want"`
	URI  string      `json:"uri"`
}

func (r wantRequest) resolve() (*types.Want, error) {
	want := r.Want
	if r.URI != "" {
		parsed, err := types.ParseWantURI(r.URI)
		if err != nil {
			return nil, err
		}
		want = parsed
	}
	if want == nil || want.Element.IsEmpty() {
		return nil, errors.New("want or uri is required")
	}
	if err := utils.ValidateWant(want); err != nil {
		return nil, err
	}
	if want.Params == nil {
		want.Params = types.Params{}
	}
	return want, nil
}

type startRequest struct {
	wantRequest
	UserID      *int                      `json:"user_id"`
	RequestCode *int                      `json:"request_code"`
	Setting     types.AbilityStartSetting `json:"setting"`
}

// StartAbility starts the ability a want names
func (h *Handlers) StartAbility(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	want, err := req.resolve()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	opts := ams.DefaultStartOptions()
	if req.UserID != nil {
		opts.UserID = *req.UserID
	}
	if req.RequestCode != nil {
		opts.RequestCode = *req.RequestCode
	}
	opts.Setting = req.Setting

	done := h.track("StartAbility")
	err = h.svc.StartAbility(want, caller, opts)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, gin.H{"element": want.Element})
}

type terminateRequest struct {
	ResultCode int         `json:"result_code"`
	ResultWant *types.Want `json:"result_want"`
}

// TerminateAbility finishes the ability behind a token
func (h *Handlers) TerminateAbility(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	var req terminateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	done := h.track("TerminateAbility")
	err := h.svc.TerminateAbility(tok, req.ResultCode, req.ResultWant)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

type terminateByCallerRequest struct {
	CallerToken string `json:"caller_token" binding:"required"`
	RequestCode int    `json:"request_code"`
}

// TerminateAbilityByCaller finishes the ability a caller started for a
// result
func (h *Handlers) TerminateAbilityByCaller(c *gin.Context) {
	var req terminateByCallerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tok, err := ability.ParseToken(req.CallerToken)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	done := h.track("TerminateAbilityByCaller")
	err = h.svc.TerminateAbilityByCaller(tok, req.RequestCode)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

// MinimizeAbility moves the ability behind a token to the background
func (h *Handlers) MinimizeAbility(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	done := h.track("MinimizeAbility")
	err := h.svc.MinimizeAbility(tok)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

// TopAbility returns the element of the foreground ability
func (h *Handlers) TopAbility(c *gin.Context) {
	top := h.svc.GetTopAbility()
	if top.IsEmpty() {
		c.JSON(http.StatusOK, gin.H{"success": true, "element": nil})
		return
	}
	succeed(c, gin.H{"element": top})
}

// AbilityMission returns the mission holding a token
func (h *Handlers) AbilityMission(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	succeed(c, gin.H{"mission_id": h.svc.GetMissionIDByToken(tok)})
}

type stopServiceRequest struct {
	wantRequest
	UserID *int `json:"user_id"`
}

// StopService stops a started service
func (h *Handlers) StopService(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	var req stopServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	want, err := req.resolve()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := ams.UserIDFromCaller
	if req.UserID != nil {
		userID = *req.UserID
	}
	done := h.track("StopServiceAbility")
	err = h.svc.StopServiceAbility(want, caller, userID)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

type connectRequest struct {
	wantRequest
	Callback string `json:"callback" binding:"required"`
	UserID   *int   `json:"user_id"`
}

// Connect binds the client listening at the callback endpoint to a service
func (h *Handlers) Connect(c *gin.Context) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	want, err := req.resolve()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	cb, err := h.dialer.ConnectCallback(req.Callback)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := ams.UserIDFromCaller
	if req.UserID != nil {
		userID = *req.UserID
	}
	done := h.track("ConnectAbility")
	err = h.svc.ConnectAbility(want, cb, caller, userID)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, gin.H{"element": want.Element})
}

type disconnectRequest struct {
	Callback string `json:"callback" binding:"required"`
}

// Disconnect releases every connection of the client at the callback
// endpoint
func (h *Handlers) Disconnect(c *gin.Context) {
	var req disconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cb, known := h.dialer.LookupCallback(req.Callback)
	if !known {
		badRequest(c, "unknown callback endpoint "+req.Callback)
		return
	}
	done := h.track("DisconnectAbility")
	err := h.svc.DisconnectAbility(cb)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}
