package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

type transcribeReq struct {
	Audio      string `json:"audio" binding:"required"`
	SampleRate int    `json:"sample_rate"`
	Language   string `json:"language"`
}

func (h *Handler) Transcribe(c *gin.Context) {
	var req transcribeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40003, "audio required")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil || len(audio) == 0 {
		common.Fail(c, http.StatusBadRequest, 40004, "audio must be base64")
		return
	}

	tr, err := h.STT.Transcribe(c.Request.Context(), audio, req.SampleRate, req.Language)
	if err != nil {
		failErr(c, err, "failed to transcribe")
		return
	}
	common.OK(c, tr)
}

type synthesizeReq struct {
	Text  string `json:"text" binding:"required"`
	Voice string `json:"voice"`
}

func (h *Handler) Synthesize(c *gin.Context) {
	var req synthesizeReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		common.Fail(c, http.StatusBadRequest, 40005, "text required")
		return
	}
	voice := req.Voice
	if voice == "" {
		voice = h.Voice
	}

	sp, err := h.TTS.Synthesize(c.Request.Context(), req.Text, voice)
	if err != nil {
		failErr(c, err, "failed to synthesize")
		return
	}
	common.OK(c, gin.H{
		"audio_base64": base64.StdEncoding.EncodeToString(sp.Audio),
		"duration_ms":  sp.DurationMs,
	})
}
