package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/rpg-chat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.POST("/login", h.Login)

	// JWT only when both a secret and an admin password hash are configured.
	authed := api.Group("")
	if h.Cfg.AuthEnabled() {
		authed.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	}

	chars := authed.Group("/characters")
	chars.GET("", h.ListCharacters)
	chars.POST("", h.CreateCharacter)
	chars.GET("/:id", h.GetCharacter)
	chars.PATCH("/:id", h.PatchCharacter)
	chars.DELETE("/:id", h.DeleteCharacter)
	chars.POST("/:id/reset", h.ResetCharacter)
	chars.POST("/:id/clone", h.CloneCharacter)
	chars.GET("/:id/meta", h.GetCharacterMeta)
	chars.PUT("/:id/meta", h.PutCharacterMeta)
	chars.POST("/:id/meta", h.PutCharacterMeta)
	chars.POST("/:id/extract-meta", h.ExtractCharacterMeta)

	sessions := authed.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("/:id", h.GetSession)
	sessions.POST("/:id/control", h.SetController)
	sessions.POST("/:id/end", h.EndSession)
	sessions.GET("/:id/turns", h.ListTurns)

	cv := authed.Group("/convo")
	cv.POST("/turn", h.Turn)
	cv.POST("/turn/async", h.TurnAsync)
	cv.GET("/jobs/:job_id", h.GetJob)
	cv.GET("/ws", h.TurnSocket)

	rag := authed.Group("/rag")
	rag.POST("/search", h.Search)
	rag.POST("/review", h.Review)

	authed.GET("/exports/transcripts/:session_id", h.ExportTranscript)
	return r
}
