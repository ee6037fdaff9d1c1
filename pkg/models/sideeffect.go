package models

import (
	"encoding/json"
	"time"
)

// SideEffectType tags the variants of SideEffect.
type SideEffectType string

const (
	EffectMemoryWrite          SideEffectType = "memory_write"
	EffectSkillDataWrite       SideEffectType = "skill_data_write"
	EffectScheduleNotification SideEffectType = "schedule_notification"
	EffectSkillProposal        SideEffectType = "skill_proposal"
	EffectAnalyticsEvent       SideEffectType = "analytics_event"
	EffectAPICall              SideEffectType = "api_call"
	EffectLearningProposal     SideEffectType = "learning_proposal"
)

// SideEffect is a tagged union describing work the caller must perform after
// the message returns. Exactly one payload field is non-nil, matching Type.
// Side effects are emitted, never executed by the runtime.
type SideEffect struct {
	Type SideEffectType `json:"type"`

	MemoryWrite          *MemoryWriteEffect          `json:"memory_write,omitempty"`
	SkillDataWrite       *SkillDataWriteEffect       `json:"skill_data_write,omitempty"`
	ScheduleNotification *ScheduleNotificationEffect `json:"schedule_notification,omitempty"`
	SkillProposal        *SkillProposal              `json:"skill_proposal,omitempty"`
	AnalyticsEvent       *AnalyticsEventEffect       `json:"analytics_event,omitempty"`
	APICall              *APICallEffect              `json:"api_call,omitempty"`
	LearningProposal     *LearningProposalEffect     `json:"learning_proposal,omitempty"`
}

// MemoryWriteEffect carries facts extracted from the user's message.
type MemoryWriteEffect struct {
	Facts []MemoryFact `json:"facts"`
}

// SkillDataWriteOp enumerates the write operations a skill may request.
type SkillDataWriteOp string

const (
	SkillDataInsert SkillDataWriteOp = "insert"
	SkillDataUpdate SkillDataWriteOp = "update"
	SkillDataDelete SkillDataWriteOp = "delete"
)

// SkillDataWriteEffect is a deferred write against a skill's data table.
type SkillDataWriteEffect struct {
	SkillID string           `json:"skill_id"`
	Table   string           `json:"table"`
	Op      SkillDataWriteOp `json:"op"`
	Data    json.RawMessage  `json:"data"`
	RowID   string           `json:"row_id,omitempty"`
}

// ScheduleNotificationEffect defers a notification to the caller's scheduler.
type ScheduleNotificationEffect struct {
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
	Recurring string    `json:"recurring,omitempty"` // cron expression when repeating
}

// AnalyticsEventEffect is an opaque analytics datapoint.
type AnalyticsEventEffect struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// APICallEffect records one outbound tool invocation.
type APICallEffect struct {
	ToolName  string `json:"tool_name"`
	Endpoint  string `json:"endpoint"`
	Status    int    `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

// LearningProposalEffect carries the outcome of a web-research learning flow.
type LearningProposalEffect struct {
	ServiceName   string          `json:"service_name"`
	BaseURL       string          `json:"base_url"`
	AuthType      AuthType        `json:"auth_type"`
	EndpointCount int             `json:"endpoint_count"`
	Skills        []SkillProposal `json:"skills,omitempty"`
}
