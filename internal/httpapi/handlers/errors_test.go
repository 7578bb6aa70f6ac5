package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suPer8Hu/rpg-chat/internal/apperr"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
		msg    string
	}{
		{"validation", apperr.Validation("name required"), http.StatusBadRequest, 10001, "name required"},
		{"not found hides cause", apperr.NotFound("session not found", errors.New("record not found")), http.StatusNotFound, 40400, "session not found"},
		{"conflict", apperr.Conflict("unknown player"), http.StatusConflict, 40900, "unknown player"},
		{"provider keeps detail", apperr.Provider("model call failed", errors.New("401 bad key")), http.StatusBadGateway, 50201, "model call failed: 401 bad key"},
		{"timeout", apperr.Timeout("model call timed out", errors.New("context deadline exceeded")), http.StatusGatewayTimeout, 50401, "model call timed out: context deadline exceeded"},
		{"wrapped", fmt.Errorf("turn: %w", apperr.Validation("bad")), http.StatusBadRequest, 10001, "bad"},
		{"plain", errors.New("disk full"), http.StatusInternalServerError, 50001, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, msg := classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.msg, msg)
		})
	}
}
