package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat-style model endpoint returning the assistant text.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Options are per-call overrides; empty fields fall back to the factory's defaults.
type Options struct {
	Model  string
	APIKey string
	// JSON asks the endpoint for a JSON object response where supported.
	JSON bool
}

// split returns the concatenated system messages and the remaining user text.
func split(messages []Message) (system, user string) {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		default:
			if user != "" {
				user += "\n"
			}
			user += m.Content
		}
	}
	return system, user
}
