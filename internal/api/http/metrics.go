package http

import (
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"github.com/openharmony/aafwk-standard-sub013/internal/shared/errcode"
)

// track times one service operation; the returned func records its result
// code
func (h *Handlers) track(op string) func(err error) {
	timer := monitoring.NewTimer(h.metrics, "ams", op)
	return func(err error) {
		timer.Stop(errcode.FromError(err).Name())
	}
}
