package domain

// Roles used by the upstream chatbot when it appends turns to a conversation list.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is the provider-agnostic chat message shape. It is both the
// JSON element stored in a conversation list and the prompt message sent to
// the text-generation service.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
