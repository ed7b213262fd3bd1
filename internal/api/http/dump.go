package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/ams"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/utils"
)

type dumpRequest struct {
	Args []string `json:"args"`
}

func atoi(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	return v, err == nil
}

// Dump runs the dump command. The answer is plain text, one line per
// entry.
func (h *Handlers) Dump(c *gin.Context) {
	h.dump(c, h.svc.Dump)
}

// DumpSys runs the dumpsys command
func (h *Handlers) DumpSys(c *gin.Context) {
	h.dump(c, h.svc.DumpSys)
}

func (h *Handlers) dump(c *gin.Context, fn func([]string) []string) {
	caller, ok := withCaller(c)
	if !ok {
		return
	}
	if caller.UID >= ams.FirstApplicationUID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "dump is reserved to system callers"})
		return
	}
	var req dumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := utils.ValidateArgs(req.Args); err != nil {
		badRequest(c, err.Error())
		return
	}
	lines := fn(req.Args)
	c.String(http.StatusOK, strings.Join(lines, "\n")+"\n")
}
