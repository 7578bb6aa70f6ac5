package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRead(t *testing.T) {
	w := New(t.TempDir())
	require.NoError(t, w.Append("s1", "player: hi"))
	require.NoError(t, w.Append("s1", "Olive: hello"))

	got, err := w.Read("s1")
	require.NoError(t, err)
	assert.Equal(t, "player: hi\nOlive: hello\n", got)

	empty, err := w.Read("other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTail(t *testing.T) {
	w := New(t.TempDir())
	require.NoError(t, w.Append("s1", strings.Repeat("a", 10)))
	require.NoError(t, w.Append("s1", "tail"))

	got, err := w.Tail("s1", 5)
	require.NoError(t, err)
	assert.Equal(t, "tail\n", got)

	got, err = w.Tail("s1", 1000)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10)+"\ntail\n", got)

	got, err = w.Tail("nope", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
