package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/audit"
	"github.com/suPer8Hu/voice-intake/internal/common"
	"github.com/suPer8Hu/voice-intake/internal/intake"
	"github.com/suPer8Hu/voice-intake/internal/realtime"
	"github.com/suPer8Hu/voice-intake/internal/speech"
)

type Handler struct {
	Intake *intake.Service
	STT    speech.Transcriber
	TTS    speech.Synthesizer
	Voice  string
	Loop   *realtime.Loop
	// Audit is nil when the server runs without a database.
	Audit *audit.Repo

	upgrader websocket.Upgrader
}

type Deps struct {
	Intake *intake.Service
	STT    speech.Transcriber
	TTS    speech.Synthesizer
	Voice  string
	Loop   *realtime.Loop
	Audit  *audit.Repo
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		Intake: d.Intake,
		STT:    d.STT,
		TTS:    d.TTS,
		Voice:  d.Voice,
		Loop:   d.Loop,
		Audit:  d.Audit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "healthy"})
}

// failErr maps domain errors onto HTTP statuses. Unavailability is checked first because a
// failed turn may wrap it.
func failErr(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, intake.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 40001, err.Error())
	case errors.Is(err, common.ErrServiceUnavailable):
		common.Fail(c, http.StatusServiceUnavailable, 50301, err.Error())
	case errors.Is(err, intake.ErrTurnFailed):
		common.Fail(c, http.StatusBadGateway, 50201, err.Error())
	case errors.Is(err, speech.ErrSynthesisFailed):
		common.Fail(c, http.StatusBadGateway, 50202, err.Error())
	case errors.Is(err, speech.ErrTranscriptionFailed):
		common.Fail(c, http.StatusUnprocessableEntity, 42201, err.Error())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		common.Fail(c, http.StatusInternalServerError, 50001, fallback)
	}
}
