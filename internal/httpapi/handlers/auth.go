package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/rpg-chat/internal/auth"
	"github.com/suPer8Hu/rpg-chat/internal/common"
)

const tokenTTL = 24 * time.Hour

type loginReq struct {
	Password string `json:"password" binding:"required"`
}

// Login exchanges the admin password for a bearer token.
func (h *Handler) Login(c *gin.Context) {
	if !h.Cfg.AuthEnabled() {
		common.Fail(c, http.StatusNotFound, 40400, "auth disabled")
		return
	}
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	if !auth.CheckPassword(h.Cfg.AdminPasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid password")
		return
	}
	token, err := auth.SignJWT("admin", h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, gin.H{"token": token, "expires_in": int(tokenTTL.Seconds())})
}
