package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/voice-intake/internal/common"
)

// VoiceSocket upgrades to a websocket and hands the connection to the realtime loop until
// the client sends an end frame or goes away.
func (h *Handler) VoiceSocket(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		common.Fail(c, http.StatusBadRequest, 40002, "session_id required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	err = h.Loop.Run(c.Request.Context(), sessionID, conn)
	switch {
	case err == nil:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF):
		log.Debug().Str("session_id", sessionID).Msg("Client closed websocket")
	default:
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Realtime loop ended with error")
	}
}
