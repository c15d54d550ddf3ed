package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/voice-intake/internal/audit"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

func (h *Handler) AuditTrail(c *gin.Context) {
	if h.Audit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50302, "audit store not configured")
		return
	}
	trail, err := h.Audit.Trail(c.Request.Context(), c.Param("session_id"))
	if errors.Is(err, audit.ErrNotFound) {
		common.Fail(c, http.StatusNotFound, 40401, "no audit trail for session")
		return
	}
	if err != nil {
		failErr(c, err, "failed to load audit trail")
		return
	}
	common.OK(c, trail)
}
