package domain

import "strings"

// Placeholder values shown for conversations that have no thread yet.
const (
	NoSummary       = "Sem resumo disponível"
	NameNotProvided = "Nome não fornecido"
	NotClassified   = "Não classificado"
)

// ContactLinkPrefix is prepended to a ConversationKey to build the WhatsApp
// contact link; the key itself has the country code stripped.
const ContactLinkPrefix = "https://wa.me/55"

// KnownNumber is one phone number found among the raw inbound message records,
// with the newest createdAt seen for it.
type KnownNumber struct {
	Phone    string
	LatestAt int64
}

// AnalysisRow is the enriched, persisted record for one conversation.
type AnalysisRow struct {
	Selected         bool   `json:"selected"`
	Phone            string `json:"phone"`
	CreatedAt        string `json:"created_at"`
	Summary          string `json:"summary"`
	MessagesSnapshot string `json:"messages_snapshot"`
	UserMessageCount int    `json:"user_message_count"`
	Status           string `json:"status"`
	UserName         string `json:"user_name"`
	ThreadID         string `json:"thread_id"`
	ContactLink      string `json:"contact_link"`
	AreaCode         string `json:"area_code"`
}

// AnalysisFields are the four fields produced by the conversation analyzer.
// LastActivity is the raw model output; it is normalized when merged into a row.
type AnalysisFields struct {
	Summary      string
	LastActivity string
	UserName     string
	Status       string
}

// PlaceholderFields returns the fields used for a conversation without a thread.
func PlaceholderFields() AnalysisFields {
	return AnalysisFields{
		Summary:  NoSummary,
		UserName: NameNotProvided,
		Status:   NotClassified,
	}
}

// ContactLink returns the WhatsApp link for a conversation key.
func ContactLink(key string) string {
	return ContactLinkPrefix + key
}

// AreaCode returns the first two digits of a conversation key.
func AreaCode(key string) string {
	if len(key) < 2 {
		return key
	}
	return key[:2]
}

// FlattenLines joins multi-line text into a single line.
func FlattenLines(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	return strings.Join(lines, " ")
}
