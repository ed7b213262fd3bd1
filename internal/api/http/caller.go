package http

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/api/middleware"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ability"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
)

// callerFrom reads the caller identity headers. The uid is required; pid
// and token are optional.
func callerFrom(c *gin.Context) (ams.Caller, error) {
	raw := c.GetHeader(middleware.HeaderCallerUID)
	if raw == "" {
		return ams.Caller{}, fmt.Errorf("missing %s header", middleware.HeaderCallerUID)
	}
	uid, err := strconv.Atoi(raw)
	if err != nil || uid < 0 {
		return ams.Caller{}, fmt.Errorf("invalid %s header %q", middleware.HeaderCallerUID, raw)
	}
	caller := ams.Caller{UID: uid}
	if raw := c.GetHeader(middleware.HeaderCallerPID); raw != "" {
		if caller.PID, err = strconv.Atoi(raw); err != nil {
			return ams.Caller{}, fmt.Errorf("invalid %s header %q", middleware.HeaderCallerPID, raw)
		}
	}
	if raw := c.GetHeader(middleware.HeaderCallerToken); raw != "" {
		if caller.Token, err = ability.ParseToken(raw); err != nil {
			return ams.Caller{}, fmt.Errorf("invalid %s header: %w", middleware.HeaderCallerToken, err)
		}
	}
	return caller, nil
}

// withCaller resolves the caller or aborts the request
func withCaller(c *gin.Context) (ams.Caller, bool) {
	caller, err := callerFrom(c)
	if err != nil {
		badRequest(c, err.Error())
		return ams.Caller{}, false
	}
	return caller, true
}

func tokenParam(c *gin.Context) (ability.Token, bool) {
	tok, err := ability.ParseToken(c.Param("token"))
	if err != nil {
		badRequest(c, "invalid token: "+err.Error())
		return ability.NilToken, false
	}
	return tok, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name+": "+c.Param(name))
		return 0, false
	}
	return v, true
}
