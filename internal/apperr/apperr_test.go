package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := fmt.Errorf("turn: %w", Provider("model call failed", base))

	assert.Equal(t, KindProvider, KindOf(err))
	assert.True(t, Is(err, KindProvider))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "turn: model call failed: dial tcp: refused", err.Error())

	assert.Equal(t, KindInternal, KindOf(base))
	assert.False(t, Is(nil, KindInternal))
	assert.Equal(t, "missing session_id", Validation("missing session_id").Error())
	assert.Equal(t, KindConflict, KindOf(Conflict("confirm")))
}
