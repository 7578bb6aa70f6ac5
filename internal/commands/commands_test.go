package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ConsecutiveCommands(t *testing.T) {
	p := Parse("/LLM a\n/Olive hi\n/scene move\nHi there")
	require.Len(t, p.Commands, 3)
	assert.Equal(t, Command{Kind: KindLLM, Text: "a"}, p.Commands[0])
	assert.Equal(t, Command{Kind: KindNPC, Name: "Olive", Text: "hi"}, p.Commands[1])
	assert.Equal(t, Command{Kind: KindScene, Text: "move"}, p.Commands[2])
	assert.Equal(t, "Hi there", p.Remainder)
}

func TestParse_NoCommands(t *testing.T) {
	p := Parse("   just talking\nstill talking  ")
	assert.Empty(t, p.Commands)
	assert.Equal(t, "just talking\nstill talking", p.Remainder)
}

func TestParse_LoneSlashHalts(t *testing.T) {
	p := Parse("/scene dusk\n/\n/LLM later")
	require.Len(t, p.Commands, 1)
	assert.Equal(t, "/\n/LLM later", p.Remainder)

	p = Parse("/")
	assert.Empty(t, p.Commands)
	assert.Equal(t, "/", p.Remainder)
}

func TestParse_CommandAfterTextIsRemainder(t *testing.T) {
	p := Parse("hello\n/scene rain")
	assert.Empty(t, p.Commands)
	assert.Equal(t, "hello\n/scene rain", p.Remainder)
}

func TestParse_OnlyCommandsEmptyRemainder(t *testing.T) {
	p := Parse("/reseed")
	require.Len(t, p.Commands, 1)
	assert.Equal(t, ReseedAll, p.Commands[0].Target)
	assert.Equal(t, "", p.Remainder)
}

func TestParse_Reseed(t *testing.T) {
	cases := map[string]ReseedTarget{
		"/reseed prompts": ReseedPrompts,
		"/reseed PROFILE": ReseedProfile,
		"/reread all":     ReseedAll,
		"/reread":         ReseedAll,
		"/reseed bogus":   ReseedAll,
	}
	for in, want := range cases {
		p := Parse(in)
		require.Len(t, p.Commands, 1, in)
		assert.Equal(t, KindReseed, p.Commands[0].Kind, in)
		assert.Equal(t, want, p.Commands[0].Target, in)
	}
}

func TestParse_AddCharacterAndCharUpdate(t *testing.T) {
	p := Parse("/addcharacter Max Power - the neighbour\n/charupdate Olive - got a cat\n/charupdate\nok")
	require.Len(t, p.Commands, 3)
	assert.Equal(t, Command{Kind: KindAddChar, Name: "Max Power", Note: "the neighbour"}, p.Commands[0])
	assert.Equal(t, Command{Kind: KindCharUpdate, Name: "Olive", Note: "got a cat"}, p.Commands[1])
	assert.Equal(t, Command{Kind: KindCharUpdate}, p.Commands[2])
	assert.Equal(t, "ok", p.Remainder)
}

func TestParse_AddCharacterWithoutNameHalts(t *testing.T) {
	p := Parse("/addcharacter\nhello")
	assert.Empty(t, p.Commands)
	assert.Equal(t, "/addcharacter\nhello", p.Remainder)
}

func TestParse_KeywordsBeatNPC(t *testing.T) {
	p := Parse("/scene x\n/llm y")
	require.Len(t, p.Commands, 2)
	assert.Equal(t, KindScene, p.Commands[0].Kind)
	assert.Equal(t, KindLLM, p.Commands[1].Kind)
}

func TestParsed_Helpers(t *testing.T) {
	p := Parse("/Olive hi\n/reseed profile\n/Max yo")
	tgt, ok := p.Reseed()
	assert.True(t, ok)
	assert.Equal(t, ReseedProfile, tgt)
	assert.Len(t, p.Of(KindNPC), 2)
}
