package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType tags the variant of a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a message body. Exactly one payload field is
// meaningful for a given Type; consumers must switch on Type
// exhaustively when merging deltas into a buffer.
type Part struct {
	Type       PartType    `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolCall records a tool invocation requested by the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolResult records the outcome of a tool invocation.
type ToolResult struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// Attachment is a file reference carried by a user message. Set at
// submission time, never mutated.
type Attachment struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// Message is one entry in a chat. Once sealed into the message log it
// is immutable; while a turn is streaming, the in-progress assistant
// message lives in the controller's private buffer, not here.
type Message struct {
	ID             uuid.UUID    `json:"id"`
	ChatID         uuid.UUID    `json:"chatId"`
	Role           Role         `json:"role"`
	Parts          []Part       `json:"parts"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	SequenceNumber int          `json:"sequenceNumber"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Text concatenates the message's text parts in order.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// NewUserMessage builds an unsealed user message.
func NewUserMessage(chatID uuid.UUID, text string, attachments []Attachment) *Message {
	return &Message{
		ID:          uuid.New(),
		ChatID:      chatID,
		Role:        RoleUser,
		Parts:       []Part{{Type: PartText, Text: text}},
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
}

// Chat is the conversation container row.
type Chat struct {
	ID          uuid.UUID
	OwnerID     string
	WorkspaceID string
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TitleMaxLength caps auto-generated chat titles.
const TitleMaxLength = 50

// TitleFromMessage derives a chat title from the first user message.
// Truncates at a word boundary when possible.
func TitleFromMessage(message string) string {
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) <= TitleMaxLength {
		return message
	}

	truncated := string(runes[:TitleMaxLength])
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > TitleMaxLength/2 {
		truncated = truncated[:lastSpace]
	}

	return strings.TrimSpace(truncated) + "..."
}
