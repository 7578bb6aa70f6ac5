package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/facts"
)

func (h *Handler) ListCharacters(c *gin.Context) {
	list, err := h.Chat.ListCharacters(c.Request.Context())
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"characters": list})
}

func (h *Handler) CreateCharacter(c *gin.Context) {
	var req chat.CharacterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	ch, err := h.Chat.CreateCharacter(c.Request.Context(), req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"character": ch})
}

func (h *Handler) GetCharacter(c *gin.Context) {
	ch, err := h.Chat.GetCharacter(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"character": ch})
}

func (h *Handler) PatchCharacter(c *gin.Context) {
	var req chat.CharacterPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	ch, err := h.Chat.PatchCharacter(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"character": ch})
}

func (h *Handler) DeleteCharacter(c *gin.Context) {
	if err := h.Chat.DeleteCharacter(c.Request.Context(), c.Param("id")); err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

// ResetCharacter restores the base snapshot and forgets memories and timeline.
func (h *Handler) ResetCharacter(c *gin.Context) {
	ch, err := h.Chat.ResetCharacter(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"character": ch})
}

func (h *Handler) CloneCharacter(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req) // allow empty body

	ch, err := h.Chat.CloneCharacter(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"character": ch})
}

// Facts ("meta" on the wire)

func (h *Handler) GetCharacterMeta(c *gin.Context) {
	f, err := h.Chat.GetFacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"meta": f})
}

func (h *Handler) PutCharacterMeta(c *gin.Context) {
	var req facts.Facts
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	f, err := h.Chat.SaveFacts(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"meta": f})
}

func (h *Handler) ExtractCharacterMeta(c *gin.Context) {
	f, err := h.Chat.ExtractFacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"meta": f})
}
