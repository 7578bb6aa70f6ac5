package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/rpg-chat/internal/ai"
)

type fakeProvider struct {
	reply   string
	err     error
	gotMsgs []ai.Message
	gotOpts ai.Options
}

func (f *fakeProvider) Chat(_ context.Context, msgs []ai.Message) (string, error) {
	f.gotMsgs = msgs
	return f.reply, f.err
}

type fakeGenerator struct {
	fakeProvider
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

func registryWith(name string, p ai.Provider, opts *ai.Options) *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register(name, func(_ context.Context, o ai.Options) (ai.Provider, error) {
		if opts != nil {
			*opts = o
		}
		return p, nil
	})
	return reg
}

func intp(n int) *int { return &n }

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{
		"": ProviderStub, "mock": ProviderStub, "local": ProviderLocal,
		"OLLAMA": ProviderLocal, "hosted": ProviderOpenAI, "gemini": ProviderGemini,
	} {
		got, err := ParseProvider(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseProvider("claude-on-a-toaster")
	assert.Error(t, err)
}

func TestRouter_Stub(t *testing.T) {
	r := NewRouter(ai.NewRegistry())
	out, err := r.Generate(context.Background(), Request{
		Provider:   ProviderStub,
		Characters: []Character{{Name: "Olive"}, {Name: "Max"}},
		PlayerText: strings.Repeat("a", 200),
	})
	require.NoError(t, err)
	require.Len(t, out.Turns, 1)
	assert.Equal(t, "Olive", out.Turns[0].Speaker)
	assert.Equal(t, "(Olive) Heard: "+strings.Repeat("a", 160), out.Turns[0].Text)
	assert.True(t, out.Turns[0].Speak)
}

func TestRouter_LocalRepairsAndFallsBack(t *testing.T) {
	g := &fakeGenerator{fakeProvider: fakeProvider{reply: "<think>x</think>```json\n{\"turns\":[{\"speaker\":\"Max\",\"text\":\"yo\"}]}\n```"}}
	var opts ai.Options
	r := NewRouter(registryWith("ollama", g, &opts))

	out, err := r.Generate(context.Background(), Request{
		Provider: ProviderLocal, Model: "llama", Characters: []Character{{Name: "Max"}}, PlayerText: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "llama", opts.Model)
	assert.Equal(t, "yo", out.Turns[0].Text)
	assert.True(t, strings.HasSuffix(g.prompt, "\nUser: hi"))

	g.reply = "just prose"
	out, err = r.Generate(context.Background(), Request{Provider: ProviderLocal, Characters: []Character{{Name: "Max"}}})
	require.NoError(t, err)
	assert.Equal(t, NarratorFallback("just prose"), out)

	g.err = errors.New("connection refused")
	_, err = r.Generate(context.Background(), Request{Provider: ProviderLocal})
	assert.ErrorContains(t, err, "connection refused")
}

func TestRouter_HostedStrict(t *testing.T) {
	p := &fakeProvider{reply: "```json\n{\"turns\":[{\"speaker\":\"Olive\",\"text\":\"hi\",\"speak\":true}]}\n```"}
	var opts ai.Options
	r := NewRouter(registryWith("openai", p, &opts))

	out, err := r.Generate(context.Background(), Request{Provider: ProviderOpenAI, APIKey: "k", Characters: []Character{{Name: "Olive"}}})
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Turns[0].Text)
	assert.Equal(t, "k", opts.APIKey)
	assert.True(t, opts.JSON)
	require.Len(t, p.gotMsgs, 2)
	assert.Equal(t, ai.RoleSystem, p.gotMsgs[0].Role)

	p.reply = "sorry, I can't"
	_, err = r.Generate(context.Background(), Request{Provider: ProviderOpenAI})
	var mal *MalformedOutputError
	require.ErrorAs(t, err, &mal)
	assert.Equal(t, "openai", mal.Backend)

	p.reply = "   "
	_, err = r.Generate(context.Background(), Request{Provider: ProviderOpenAI})
	require.ErrorAs(t, err, &mal)
}

func TestBuildSystemPrompt(t *testing.T) {
	s := BuildSystemPrompt(PromptInput{
		Characters: []Character{
			{Name: "Olive", Age: intp(30)},
			{Name: "Max", BirthYear: intp(1990)},
			{Name: "Ghost"},
		},
		NarrativeTime:  time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		PlayerLabel:    "Ellis",
		PlayerActingAs: []string{"Ghost"},
		PlayerAliases:  []string{"El", "E"},
		ExtraContext:   "Facts: name=Olive",
	})
	assert.Contains(t, s, "Characters: Olive (30), Max (30), Ghost.")
	assert.Contains(t, s, `exactly one of: ["Olive", "Max", "Ghost"]`)
	assert.Contains(t, s, "Keep language PG-13")
	assert.Contains(t, s, "The human player is Ellis, speaking as Ghost. Do not generate turns for Ghost")
	assert.Contains(t, s, "Player may be referred to as: El, E.")
	assert.True(t, strings.HasSuffix(s, "Context (use if helpful):\nFacts: name=Olive"))

	mature := BuildSystemPrompt(PromptInput{Characters: []Character{{Name: "Olive"}}, Mature: true})
	assert.Contains(t, mature, "Do not include sexual content involving minors")
	assert.NotContains(t, mature, "Context (use if helpful)")
	assert.NotContains(t, mature, "human player")
}

func TestAgeAt(t *testing.T) {
	at := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	_, ok := AgeAt(Character{}, at)
	assert.False(t, ok)
	a, ok := AgeAt(Character{BirthYear: intp(2010)}, at)
	assert.True(t, ok)
	assert.Equal(t, 0, a)
}
