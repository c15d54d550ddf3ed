package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

type startSessionReq struct {
	PatientID string            `json:"patient_id"`
	Metadata  map[string]string `json:"metadata"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.Intake.StartSession(c.Request.Context(), req.PatientID, req.Metadata)
	if err != nil {
		failErr(c, err, "failed to start session")
		return
	}
	common.OK(c, gin.H{
		"session_id": sess.ID,
		"status":     sess.Status,
		"state":      sess.Stage,
		"created_at": sess.CreatedAt,
	})
}

type sendMessageReq struct {
	Message string `json:"message" binding:"required"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		common.Fail(c, http.StatusBadRequest, 40002, "session_id required")
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "message required")
		return
	}

	res, err := h.Intake.ProcessTurn(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		failErr(c, err, "failed to process turn")
		return
	}
	common.OK(c, res)
}

func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.Intake.EndSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		failErr(c, err, "failed to end session")
		return
	}
	common.OK(c, gin.H{
		"session_id":   sess.ID,
		"status":       sess.Status,
		"medical_data": sess.MedicalData,
		"triage_level": sess.TriageLevel,
		"ended_at":     sess.EndedAt,
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Intake.GetSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		failErr(c, err, "failed to load session")
		return
	}
	common.OK(c, sess)
}

func (h *Handler) ExtractNow(c *gin.Context) {
	sessionID := c.Param("session_id")
	ex, n, err := h.Intake.ExtractNow(c.Request.Context(), sessionID)
	if err != nil {
		failErr(c, err, "failed to extract")
		return
	}
	common.OK(c, gin.H{
		"session_id":        sessionID,
		"extraction":        ex,
		"transcript_length": n,
	})
}
