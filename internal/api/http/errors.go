package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/resilience"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
)

// statusFor maps a result code onto an HTTP status
func statusFor(code errcode.Code) int {
	switch code {
	case errcode.OK:
		return http.StatusOK
	case errcode.ErrInvalidValue, errcode.InvalidUserID, errcode.TargetAbilityNotService,
		errcode.TargetAbilityNotPage, errcode.WrongInterfaceCall:
		return http.StatusBadRequest
	case errcode.CheckPermissionFailed, errcode.CallerIsNotSystemApp,
		errcode.AbilityVisibleFalseDenyRequest, errcode.TerminateLauncherDeny:
		return http.StatusForbidden
	case errcode.ResolveAbilityErr, errcode.NoFoundAbilityByCaller,
		errcode.MissionNotFound, errcode.ConnectionNotExist:
		return http.StatusNotFound
	case errcode.StartServiceAbilityActivating, errcode.InvalidConnectionState, errcode.UserIsStopping:
		return http.StatusConflict
	case errcode.LoadAbilityTimeout, errcode.ConnectionTimeout, errcode.CommandTimeout:
		return http.StatusGatewayTimeout
	case errcode.MissionIDExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its result code
func fail(c *gin.Context, err error) {
	code := errcode.FromError(err)
	status := statusFor(code)
	if errors.Is(err, resilience.ErrOpen) {
		status = http.StatusServiceUnavailable
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"success":   false,
		"code":      int(code),
		"code_name": code.Name(),
		"error":     err.Error(),
	})
}

// badRequest rejects a malformed request body or parameter
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success":   false,
		"code":      int(errcode.ErrInvalidValue),
		"code_name": errcode.ErrInvalidValue.Name(),
		"error":     msg,
	})
}

func succeed(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
