package docstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/rpg-chat/internal/retrieval"
)

func newStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	profiles := filepath.Join(t.TempDir(), "profiles")
	docs := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	return New(profiles, docs), profiles, docs
}

func write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestInitBundle(t *testing.T) {
	s, profiles, _ := newStore(t)
	require.NoError(t, s.InitBundle("c1", "Olive", "You are Olive."))

	prof, ok := s.Profile("c1")
	require.True(t, ok)
	assert.Equal(t, "# Olive\n\nYou are Olive.\n", prof)

	sys, err := os.ReadFile(filepath.Join(profiles, "c1", "prompt", "system.md"))
	require.NoError(t, err)
	assert.Equal(t, "You are Olive.", string(sys))

	// existing files survive a second init
	write(t, filepath.Join(profiles, "c1", "profile.md"), "edited")
	require.NoError(t, s.InitBundle("c1", "Olive", "changed"))
	prof, _ = s.Profile("c1")
	assert.Equal(t, "edited", prof)
}

func TestPrompts(t *testing.T) {
	s, profiles, docs := newStore(t)
	write(t, filepath.Join(docs, DefaultGuidelinesFile), "be kind")
	write(t, filepath.Join(profiles, "c1", "prompt", "generic.md"), "own rules")
	write(t, filepath.Join(profiles, "c2", "prompt", "short", "index.md"), "short two")
	write(t, filepath.Join(profiles, "c1", "prompt", "reviewer.md"), "review this")

	assert.Equal(t, "own rules", s.GenericGuidelines("c1"))
	assert.Equal(t, "be kind", s.GenericGuidelines("c2"))
	assert.Equal(t, "be kind", s.GenericGuidelines(""))
	assert.Equal(t, "short two", s.ShortPrompt("c2"))
	assert.Equal(t, "", s.ShortPrompt("c1"))
	assert.Equal(t, "review this", s.ReviewerPrompt("c1"))
}

func TestRAGDocs(t *testing.T) {
	s, profiles, _ := newStore(t)
	root := filepath.Join(profiles, "c1")
	write(t, filepath.Join(root, "profile.md"), "Olive grew up by the sea")
	write(t, filepath.Join(root, "timeline.md"), "   ")
	write(t, filepath.Join(root, "docs", "b.md"), "boats")
	write(t, filepath.Join(root, "docs", "a.txt"), "anchors")
	write(t, filepath.Join(root, "docs", "c.pdf"), "binary")

	got, err := s.RAGDocs("c1")
	require.NoError(t, err)
	assert.Equal(t, []retrieval.Doc{
		{ID: "profile", Source: "profile", Title: "profile", Text: "Olive grew up by the sea"},
		{ID: "doc:a.txt", Source: "a.txt", Title: "a.txt", Text: "anchors"},
		{ID: "doc:b.md", Source: "b.md", Title: "b.md", Text: "boats"},
	}, got)

	texts, err := s.Texts("c1")
	require.NoError(t, err)
	assert.Len(t, texts, 4)

	none, err := s.RAGDocs("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriteDocAndUpdate(t *testing.T) {
	s, _, _ := newStore(t)
	p, err := s.WriteDoc("c1", ProfileDocName("Max  Power"), "# Max Power")
	require.NoError(t, err)
	assert.Equal(t, "Max_Power_profile.md", filepath.Base(p))

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	p, err = s.AppendUpdate("c1", "got a cat", "tail of transcript", at)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-06T07-08-09-000Z.md", filepath.Base(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "> got a cat\n\ntail of transcript", string(b))

	// the update lives in a subdirectory and is not a top-level doc
	docs, err := s.RAGDocs("c1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, strings.HasPrefix(docs[0].ID, "doc:Max_Power"))

	require.NoError(t, s.RemoveBundle("c1"))
	_, ok := s.Profile("c1")
	assert.False(t, ok)
}

func TestWatchDropsCachedGuidelines(t *testing.T) {
	s, _, docs := newStore(t)
	p := filepath.Join(docs, DefaultGuidelinesFile)
	write(t, p, "v1")
	assert.Equal(t, "v1", s.GenericGuidelines(""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, nil) }()
	defer func() {
		cancel()
		<-done
	}()

	// the watcher may not be registered yet, so keep rewriting until it notices
	require.Eventually(t, func() bool {
		_ = os.WriteFile(p, []byte("v2"), 0o644)
		return s.GenericGuidelines("") == "v2"
	}, 5*time.Second, 50*time.Millisecond)
}
