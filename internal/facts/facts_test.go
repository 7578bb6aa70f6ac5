package facts

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestExtractRules(t *testing.T) {
	now := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	f := ExtractRules("Olive", now,
		"You are Olive.\nAge: 31\nNicknames: Liv, O ;  Ollie",
		"Birth Year: 1993\r\naliases: The Captain\nage: 32 (updated)",
	)
	require.NotNil(t, f.Age)
	assert.Equal(t, 32, *f.Age)
	require.NotNil(t, f.BirthYear)
	assert.Equal(t, 1993, *f.BirthYear)
	assert.Equal(t, []string{"Liv", "O", "Ollie"}, f.Nicknames)
	assert.Equal(t, []string{"The Captain"}, f.Aliases)
	assert.Equal(t, "2024-03-09", f.StoryStart)
	assert.Equal(t, "rules", f.Provenance.Reason)
	assert.True(t, f.ReviewerHints.PreferBrief)
	assert.True(t, f.Boundaries.DisallowMinorsContent)
}

func TestLine(t *testing.T) {
	age := 30
	f := Facts{Name: "Olive", Nicknames: []string{"Liv", "O"}, Age: &age, StoryStart: "2024-01-01"}
	assert.Equal(t, "Facts: name=Olive; nicknames=Liv/O; age=30; story_start=2024-01-01", f.Line())
	assert.Equal(t, "Facts: name=Max", Facts{Name: "Max"}.Line())
}

func TestStore(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&Record{}))
	s := NewStore(gdb)
	ctx := context.Background()

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(ctx, "c1", Facts{Name: "Olive", Aliases: []string{"Cap"}}))
	require.NoError(t, s.Save(ctx, "c1", Facts{Name: "Olive", Nicknames: []string{"Liv"}}))

	got, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Liv"}, got.Nicknames)
	assert.Empty(t, got.Aliases)

	require.NoError(t, s.Delete(ctx, "c1"))
	got, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
