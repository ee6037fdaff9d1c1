package models

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is an opaque reference to content attached to a message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// Message is one turn of a conversation. SkillID references the skill that
// produced an assistant turn; built-in identifiers are nulled before
// persistence because they are not rows in the skills table.
type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	BotID       string       `json:"bot_id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	SkillID     *string      `json:"skill_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// MemorySource records how a memory fact was obtained.
type MemorySource string

const (
	MemoryUserStated MemorySource = "user_stated"
	MemoryInferred   MemorySource = "inferred"
	MemoryDocument   MemorySource = "document"
)

// MemoryFact is a durable key/value fact about the user.
type MemoryFact struct {
	ID         string       `json:"id"`
	BotID      string       `json:"bot_id"`
	UserID     string       `json:"user_id"`
	Key        string       `json:"key"`
	Value      string       `json:"value"`
	Source     MemorySource `json:"source"`
	Confidence float64      `json:"confidence"`
	CreatedAt  time.Time    `json:"created_at"`
}
