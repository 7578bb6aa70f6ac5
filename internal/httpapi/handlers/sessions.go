package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/common"
)

func (h *Handler) CreateSession(c *gin.Context) {
	var req chat.SessionInput
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.Chat.CreateSession(c.Request.Context(), req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"session": sess})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Chat.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"session": sess})
}

type controlReq struct {
	CharacterID string `json:"character_id"`
	Controller  string `json:"controller"`
}

func (h *Handler) SetController(c *gin.Context) {
	var req controlReq
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	if err := h.Chat.SetController(c.Request.Context(), c.Param("id"), req.CharacterID, req.Controller); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"character_id": req.CharacterID, "controller": req.Controller})
}

func (h *Handler) EndSession(c *gin.Context) {
	if err := h.Chat.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"ended": true})
}

// ListTurns pages newest first; pass next_before_id back as before_id.
func (h *Handler) ListTurns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			beforeID = n
		}
	}

	turns, err := h.Chat.ListTurns(c.Request.Context(), c.Param("id"), limit, beforeID)
	if err != nil {
		h.failErr(c, err)
		return
	}

	var nextBeforeID uint64
	if len(turns) > 0 {
		nextBeforeID = turns[len(turns)-1].ID
	}
	common.OK(c, gin.H{
		"turns":          turns,
		"next_before_id": nextBeforeID,
	})
}
