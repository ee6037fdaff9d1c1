package models

import "time"

// TaskType is a coarse label selecting an LLM route.
type TaskType string

const (
	TaskSimpleQA         TaskType = "simple_qa"
	TaskSkillExecution   TaskType = "skill_execution"
	TaskSkillGeneration  TaskType = "skill_generation"
	TaskComplexReasoning TaskType = "complex_reasoning"
	TaskDataAnalysis     TaskType = "data_analysis"
	TaskDocExtraction    TaskType = "doc_extraction"
)

// UsageRecord attributes one LLM call to a user. CostUSD is computed at
// insert time and never recomputed.
type UsageRecord struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	BotID            string    `json:"bot_id,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	MessageID        string    `json:"message_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	TaskType         TaskType  `json:"task_type"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// ModelPricing is the per-million-token price sheet for one model.
type ModelPricing struct {
	Model          string  `json:"model"`
	Provider       string  `json:"provider"`
	InputCostPerM  float64 `json:"input_cost_per_m"`
	OutputCostPerM float64 `json:"output_cost_per_m"`
}
