// Package models defines the shared domain types for the Kilo runtime.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Bot is a user-owned assistant with its own personality and a dedicated
// Postgres schema for skill data tables.
type Bot struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Personality string    `json:"personality,omitempty"`
	Soul        *Soul     `json:"soul,omitempty"`
	SchemaName  string    `json:"schema_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Soul is a five-layer structured personality definition. Empty layers are
// omitted from prompts.
type Soul struct {
	Traits            []string `json:"traits,omitempty"`
	Values            []string `json:"values,omitempty"`
	Style             []string `json:"style,omitempty"`
	Rules             []string `json:"rules,omitempty"`
	DecisionFramework []string `json:"decision_framework,omitempty"`
}

// Empty reports whether every layer of the soul is empty.
func (s *Soul) Empty() bool {
	if s == nil {
		return true
	}
	return len(s.Traits) == 0 && len(s.Values) == 0 && len(s.Style) == 0 &&
		len(s.Rules) == 0 && len(s.DecisionFramework) == 0
}

// NewBotID returns a fresh bot identifier.
func NewBotID() string {
	return uuid.NewString()
}

// BotSchemaName derives the namespaced schema name for a bot from its ID:
// "bot_" plus the first eight hex characters.
func BotSchemaName(botID string) string {
	hex := strings.ReplaceAll(botID, "-", "")
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return "bot_" + strings.ToLower(hex)
}
