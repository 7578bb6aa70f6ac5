package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/rpg-chat/internal/reviewer"
)

var _ reviewer.Cache = (*Store)(nil)

func TestReviewerKey(t *testing.T) {
	assert.Equal(t, "reviewer:selected:01J", reviewerKey("01J"))
}

func TestDecodeIDs(t *testing.T) {
	ids, err := decodeIDs([]byte(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = decodeIDs([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, []string{}, ids)

	_, err = decodeIDs([]byte(`{`))
	assert.Error(t, err)
}

func TestUnreachableRedisSurfacesError(t *testing.T) {
	s := New("127.0.0.1:1", "", 0, time.Minute)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, _, err := s.Get(ctx, "s1")
	assert.Error(t, err)
}
