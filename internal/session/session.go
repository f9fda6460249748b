package session

import (
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultModel is the known-good free-tier model substituted for an absent or
// blank model identifier.
const DefaultModel = "meta-llama/llama-3.3-70b-instruct:free"

const (
	defaultSystemPrompt = "You are a helpful assistant."
	placeholderUserTurn = "Hello"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is one pending chat request awaiting its stream attempt. It is
// created by POST /prepare and consumed by at most one GET /stream call.
type Session struct {
	ID        string
	Model     string
	Messages  []Message
	CreatedAt time.Time
}

// normalize guards the relay against upstream rejection of malformed
// conversations: a blank model falls back to the free-tier default, and the
// message sequence always carries a system turn first and a user turn last.
func normalize(model string, messages []Message) (string, []Message) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}

	hasSystem := false
	hasUser := false
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			hasSystem = true
		case RoleUser:
			hasUser = true
		}
	}

	out := make([]Message, 0, len(messages)+2)
	if !hasSystem {
		out = append(out, Message{Role: RoleSystem, Content: defaultSystemPrompt})
	}
	out = append(out, messages...)
	if !hasUser {
		out = append(out, Message{Role: RoleUser, Content: placeholderUserTurn})
	}

	return model, out
}
