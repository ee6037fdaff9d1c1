package models

import (
	"encoding/json"
	"strings"
	"time"
)

// OutputFormat describes how a skill's response should be rendered.
type OutputFormat string

const (
	OutputText           OutputFormat = "text"
	OutputStructuredCard OutputFormat = "structured_card"
	OutputNotification   OutputFormat = "notification"
	OutputAction         OutputFormat = "action"
)

// Valid reports whether the format is one of the closed set.
func (f OutputFormat) Valid() bool {
	switch f {
	case OutputText, OutputStructuredCard, OutputNotification, OutputAction:
		return true
	}
	return false
}

// SkillProvenance records how a skill came to exist.
type SkillProvenance string

const (
	CreatedBySystem       SkillProvenance = "system"
	CreatedByConversation SkillProvenance = "user_conversation"
	CreatedByProposal     SkillProvenance = "auto_proposed"
)

// BuiltinIDPrefix prefixes identifiers of system-provided in-process skills.
// These identifiers are never persisted as message foreign keys.
const BuiltinIDPrefix = "builtin-"

// IsBuiltinSkillID reports whether id names a built-in skill handler.
func IsBuiltinSkillID(id string) bool {
	return strings.HasPrefix(id, BuiltinIDPrefix)
}

// SkillDefinition is a persistent capability owned by a bot.
type SkillDefinition struct {
	ID              string          `json:"id"`
	BotID           string          `json:"bot_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	TriggerPatterns []string        `json:"trigger_patterns"`
	BehaviorPrompt  string          `json:"behavior_prompt"`
	InputSchema     json.RawMessage `json:"input_schema,omitempty"`
	OutputFormat    OutputFormat    `json:"output_format"`
	Schedule        string          `json:"schedule,omitempty"` // 5-field cron, empty when unscheduled

	// DataTable is the skill's own table inside the bot schema, empty when
	// the skill stores nothing. ReadableTables is the allowed-read set.
	DataTable      string   `json:"data_table,omitempty"`
	ReadableTables []string `json:"readable_tables,omitempty"`
	GeneratedDDL   string   `json:"generated_ddl,omitempty"`

	RequiredIntegrations []string        `json:"required_integrations,omitempty"`
	CreatedBy            SkillProvenance `json:"created_by"`
	Version              int             `json:"version"`
	PerformanceScore     float64         `json:"performance_score"`
	Active               bool            `json:"active"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Scheduled reports whether the skill carries a cron schedule.
func (s *SkillDefinition) Scheduled() bool {
	return strings.TrimSpace(s.Schedule) != ""
}

// SkillProposal is a structured suggestion for a new skill, produced by the
// proposer or the learning flow. It is emitted as a side effect and never
// persisted by the runtime itself.
type SkillProposal struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	TriggerPatterns      []string        `json:"trigger_patterns"`
	BehaviorPrompt       string          `json:"behavior_prompt,omitempty"`
	Fields               []ProposalField `json:"fields,omitempty"`
	Schedule             string          `json:"schedule,omitempty"`
	OutputFormat         OutputFormat    `json:"output_format"`
	RequiredIntegrations []string        `json:"required_integrations,omitempty"`
	Confidence           float64         `json:"confidence"`
}

// ProposalField describes a data field a proposed skill would store.
type ProposalField struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}
