package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/config"
	"github.com/suPer8Hu/rpg-chat/internal/convo"
	"github.com/suPer8Hu/rpg-chat/internal/retrieval"
	"github.com/suPer8Hu/rpg-chat/internal/reviewer"
	"github.com/suPer8Hu/rpg-chat/internal/transcript"
)

// Convo is the turn orchestrator as seen by the HTTP layer.
type Convo interface {
	Run(ctx context.Context, req convo.Request) (*convo.Response, error)
	Search(ctx context.Context, characterID, query string, k int) ([]retrieval.Scored, error)
}

type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	Cfg        config.Config
	Chat       *chat.Service
	Convo      Convo
	Reviewer   *reviewer.Selector
	Transcript *transcript.Writer
	// Jobs is nil when RabbitMQ is not configured; the async endpoint then
	// answers 503.
	Jobs JobPublisher
	// Providers is reported by /health.
	Providers []string
	Log       *zap.Logger
}

func NewHandler(cfg config.Config, svc *chat.Service, cv Convo, sel *reviewer.Selector, tr *transcript.Writer, jobs JobPublisher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Cfg:        cfg,
		Chat:       svc,
		Convo:      cv,
		Reviewer:   sel,
		Transcript: tr,
		Jobs:       jobs,
		Log:        log,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"providers": h.Providers,
		"async":     h.Jobs != nil,
		"auth":      h.Cfg.AuthEnabled(),
	})
}
