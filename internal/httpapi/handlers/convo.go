package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suPer8Hu/rpg-chat/internal/apperr"
	"github.com/suPer8Hu/rpg-chat/internal/chat"
	"github.com/suPer8Hu/rpg-chat/internal/common"
	"github.com/suPer8Hu/rpg-chat/internal/convo"
)

const (
	ProviderHeader    = "X-Provider"
	ProviderKeyHeader = "X-Provider-Key"
	IdempotencyHeader = "Idempotency-Key"
)

// withOverrides applies the provider headers and the debug query flag.
func withOverrides(c *gin.Context, req *convo.Request) {
	if p := strings.TrimSpace(c.GetHeader(ProviderHeader)); p != "" {
		req.Provider = p
	}
	if k := strings.TrimSpace(c.GetHeader(ProviderKeyHeader)); k != "" {
		req.APIKey = k
	}
	switch c.Query("debug") {
	case "1", "true":
		req.Debug = true
	}
}

// Turn runs one turn synchronously. A policy block is still a 200 with
// blocked set.
func (h *Handler) Turn(c *gin.Context) {
	var req convo.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	withOverrides(c, &req)

	resp, err := h.Convo.Run(c.Request.Context(), req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	common.OK(c, resp)
}

func validateTurn(req convo.Request) error {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.PlayerText) == "" || len(req.Characters) == 0 {
		return apperr.Validation("session_id, player_text and characters required")
	}
	return nil
}

// TurnAsync stores the turn as a job and publishes its id. Repeating the same
// Idempotency-Key returns the first job and publishes nothing.
func (h *Handler) TurnAsync(c *gin.Context) {
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async turns disabled")
		return
	}

	var req convo.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	withOverrides(c, &req)
	if req.APIKey != "" {
		// the key would have to be stored with the job
		common.Fail(c, http.StatusBadRequest, 10004, "provider key not accepted for async turns")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := validateTurn(req); err != nil {
		h.failErr(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := h.Chat.GetSession(ctx, req.SessionID); err != nil {
		h.failErr(c, err)
		return
	}

	body, err := json.Marshal(req)
	if err != nil {
		h.failErr(c, err)
		return
	}
	jobID, err := common.NewULID()
	if err != nil {
		h.failErr(c, err)
		return
	}

	j := &chat.Job{
		ID:             jobID,
		SessionID:      req.SessionID,
		Request:        string(body),
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}

	repo := h.Chat.Repo()
	created := true
	if idempoKeyPtr == nil {
		err = repo.CreateJob(ctx, j)
	} else {
		j, created, err = repo.CreateJobOrGetExisting(ctx, j)
	}
	if err != nil {
		h.failErr(c, err)
		return
	}

	if created {
		if err := h.Jobs.PublishJob(ctx, j.ID); err != nil {
			h.Log.Error("publish job", zap.String("job_id", j.ID), zap.Error(err))
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID, "status": j.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Chat.Repo().GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if isRecordNotFound(err) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		h.failErr(c, err)
		return
	}

	var result json.RawMessage
	if j.Result != nil {
		result = json.RawMessage(*j.Result)
	}
	common.OK(c, gin.H{
		"job": gin.H{
			"id":         j.ID,
			"session_id": j.SessionID,
			"status":     j.Status,
			"attempts":   j.Attempts,
			"result":     result,
			"error":      j.Error,
			"created_at": j.CreatedAt,
			"updated_at": j.UpdatedAt,
		},
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsReply mirrors the HTTP envelope.
type wsReply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// TurnSocket answers each inbound turn request in order on one connection.
// Provider headers given on the upgrade request apply to every turn.
func (h *Handler) TurnSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Log.Warn("ws read", zap.Error(err))
			}
			return
		}

		var req convo.Request
		if err := json.Unmarshal(msg, &req); err != nil {
			if werr := conn.WriteJSON(wsReply{Code: 10001, Message: "invalid json"}); werr != nil {
				return
			}
			continue
		}
		withOverrides(c, &req)

		reply := wsReply{Message: "ok"}
		resp, err := h.Convo.Run(ctx, req)
		if err != nil {
			_, reply.Code, reply.Message = classify(err)
			if reply.Code == 50001 {
				h.Log.Error("ws turn failed", zap.String("session_id", req.SessionID), zap.Error(err))
			}
		} else {
			reply.Data = resp
		}
		if err := conn.WriteJSON(reply); err != nil {
			h.Log.Warn("ws write", zap.Error(err))
			return
		}
	}
}
