package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/rpg-chat/internal/apperr"
	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/httpapi/middleware"
)

// classify maps err onto an HTTP status, an envelope code and the message
// shown to the caller. Provider and timeout errors keep the backend's detail.
func classify(err error) (status, code int, msg string) {
	msg = err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindProvider && ae.Kind != apperr.KindTimeout {
		msg = ae.Message
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, 10001, msg
	case apperr.KindNotFound:
		return http.StatusNotFound, 40400, msg
	case apperr.KindConflict:
		return http.StatusConflict, 40900, msg
	case apperr.KindProvider:
		return http.StatusBadGateway, 50201, msg
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout, 50401, msg
	default:
		return http.StatusInternalServerError, 50001, "internal error"
	}
}

func (h *Handler) failErr(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
	}
	common.Fail(c, status, code, msg)
}

func invalidJSON(c *gin.Context) {
	common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
