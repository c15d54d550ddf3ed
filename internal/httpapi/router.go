package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/voice-intake/internal/common"
	"github.com/suPer8Hu/voice-intake/internal/httpapi/handlers"
	"github.com/suPer8Hu/voice-intake/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	// sessions
	v1.POST("/sessions", h.StartSession)
	v1.GET("/sessions/:session_id", h.GetSession)
	v1.POST("/sessions/:session_id/messages", h.SendMessage)
	v1.POST("/sessions/:session_id/end", h.EndSession)
	v1.POST("/sessions/:session_id/extract", h.ExtractNow)

	// collaborator pass-throughs
	v1.POST("/stt/transcribe", h.Transcribe)
	v1.POST("/tts/synthesize", h.Synthesize)

	// clinician (JWT required)
	clinician := v1.Group("/clinician")
	clinician.Use(middleware.AuthRequired(jwtSecret))
	clinician.GET("/sessions/:session_id/audit", h.AuditTrail)

	r.GET("/ws/voice/:session_id", h.VoiceSocket)
	return r
}
