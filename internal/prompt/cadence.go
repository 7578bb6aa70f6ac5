package prompt

import "github.com/suPer8Hu/rpg-chat/internal/commands"

// Every is the number of player turns between guideline injections.
const Every = 5

// Cadence is the per-session counter deciding when heavier context goes back
// into the prompt. It is persisted on the session row between turns.
type Cadence struct {
	PlayerTurns  int
	SinceContext int
}

// Gate says which optional blocks the current turn carries.
type Gate struct {
	Prompts bool
	Profile bool
	// Invalidate drops the cached reviewer selection for the session.
	Invalidate bool
}

// Step advances the cadence by one player turn. reseed is the target of a
// /reseed command in this message, or "" when there was none.
func (c *Cadence) Step(reseed commands.ReseedTarget) Gate {
	c.PlayerTurns++

	due := c.PlayerTurns == 1 || c.SinceContext+1 >= Every
	forcePrompts := reseed == commands.ReseedPrompts || reseed == commands.ReseedAll
	forceProfile := reseed == commands.ReseedProfile || reseed == commands.ReseedAll

	g := Gate{
		Prompts: due || forcePrompts,
		Profile: c.PlayerTurns == 1 || forceProfile,
	}
	if g.Prompts {
		c.SinceContext = 0
	} else {
		c.SinceContext++
	}
	g.Invalidate = g.Prompts || reseed != ""
	return g
}
