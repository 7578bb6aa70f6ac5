package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/reviewer"
)

type searchReq struct {
	CharacterID string `json:"character_id"`
	Query       string `json:"query"`
	K           int    `json:"k"`
}

// Search scores a character's profile, timeline, documents and memories.
func (h *Handler) Search(c *gin.Context) {
	var req searchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	results, err := h.Convo.Search(c.Request.Context(), req.CharacterID, req.Query, req.K)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"results": results})
}

type reviewReq struct {
	CharacterID string               `json:"character_id"`
	Provider    string               `json:"provider"`
	Model       string               `json:"model"`
	StyleShort  bool                 `json:"style_short"`
	Candidates  []reviewer.Candidate `json:"candidates"`
}

func (h *Handler) Review(c *gin.Context) {
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	provider := req.Provider
	if p := c.GetHeader(ProviderHeader); p != "" {
		provider = p
	}
	sel := h.Reviewer.Select(c.Request.Context(), reviewer.Request{
		CharacterID: req.CharacterID,
		Provider:    provider,
		Model:       req.Model,
		APIKey:      c.GetHeader(ProviderKeyHeader),
		Candidates:  req.Candidates,
		StyleShort:  req.StyleShort,
	})
	common.OK(c, sel)
}

// ExportTranscript downloads a session's transcript as plain text.
func (h *Handler) ExportTranscript(c *gin.Context) {
	sid := c.Param("session_id")
	if _, err := h.Chat.GetSession(c.Request.Context(), sid); err != nil {
		h.failErr(c, err)
		return
	}
	text, err := h.Transcript.Read(sid)
	if err != nil {
		h.failErr(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.log"`, sid))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}
