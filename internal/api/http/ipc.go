package http

import (
	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
)

type attachRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// Attach binds the hosted process listening at endpoint to a token
func (h *Handlers) Attach(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	scheduler, err := h.dialer.Scheduler(req.Endpoint)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	done := h.track("AttachAbilityThread")
	err = h.svc.AttachAbilityThread(scheduler, tok)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

type transitionRequest struct {
	State ability.State `json:"state"`
}

// TransitionDone reports a finished lifecycle transaction
func (h *Handlers) TransitionDone(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	done := h.track("AbilityTransitionDone")
	err := h.svc.AbilityTransitionDone(tok, req.State)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

type connectDoneRequest struct {
	Remote string `json:"remote"`
}

// ConnectDone reports the remote object a service returned on connect
func (h *Handlers) ConnectDone(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	var req connectDoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	done := h.track("ScheduleConnectAbilityDone")
	err := h.svc.ScheduleConnectAbilityDone(tok, ability.RemoteObject(req.Remote))
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}

// DisconnectDone reports a service finished its disconnect
func (h *Handlers) DisconnectDone(c *gin.Context) {
	h.tokenOnly(c, "ScheduleDisconnectAbilityDone", h.svc.ScheduleDisconnectAbilityDone)
}

// CommandDone reports a service handled a start command
func (h *Handlers) CommandDone(c *gin.Context) {
	h.tokenOnly(c, "ScheduleCommandAbilityDone", h.svc.ScheduleCommandAbilityDone)
}

// Died reports that the process hosting a token is gone
func (h *Handlers) Died(c *gin.Context) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	h.svc.OnAbilityDied(tok)
	succeed(c, nil)
}

func (h *Handlers) tokenOnly(c *gin.Context, op string, fn func(ability.Token) error) {
	tok, ok := tokenParam(c)
	if !ok {
		return
	}
	done := h.track(op)
	err := fn(tok)
	done(err)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, nil)
}
