// Package storage defines the repository contracts for durable state and
// provides their Postgres implementations.
package storage

import (
	"context"
	"time"

	"github.com/kilohq/kilo/pkg/models"
)

// BotStore persists bots. Creation and deletion manage the bot's dedicated
// schema in the same transaction as the row.
type BotStore interface {
	Create(ctx context.Context, bot *models.Bot) error
	Get(ctx context.Context, id string) (*models.Bot, error)
	List(ctx context.Context, userID string) ([]*models.Bot, error)
	Update(ctx context.Context, bot *models.Bot) error
	// Delete drops the bot's schema cascade and the row atomically.
	Delete(ctx context.Context, id string) error
}

// SkillStore persists skill definitions.
type SkillStore interface {
	Create(ctx context.Context, skill *models.SkillDefinition) error
	Get(ctx context.Context, id string) (*models.SkillDefinition, error)
	ListActive(ctx context.Context, botID string) ([]*models.SkillDefinition, error)
	List(ctx context.Context, botID string) ([]*models.SkillDefinition, error)
	CountByBot(ctx context.Context, botID string) (int, error)
	// Update bumps Version by one on every write.
	Update(ctx context.Context, skill *models.SkillDefinition) error
	Delete(ctx context.Context, id string) error
}

// ToolStore persists external API bindings.
type ToolStore interface {
	Create(ctx context.Context, tool *models.ToolEntry) error
	Get(ctx context.Context, id string) (*models.ToolEntry, error)
	GetByName(ctx context.Context, botID, name string) (*models.ToolEntry, error)
	ListActive(ctx context.Context, botID string) ([]*models.ToolEntry, error)
	Update(ctx context.Context, tool *models.ToolEntry) error
	Delete(ctx context.Context, id string) error
}

// MessageStore persists conversation turns.
type MessageStore interface {
	// Create nulls builtin skill identifiers before writing.
	Create(ctx context.Context, msg *models.Message) error
	Recent(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	LastAssistant(ctx context.Context, sessionID string) (*models.Message, error)
}

// MemoryStore persists extracted user facts.
type MemoryStore interface {
	Upsert(ctx context.Context, fact *models.MemoryFact) error
	List(ctx context.Context, botID, userID string, limit int) ([]*models.MemoryFact, error)
}

// PricingStore reads the model price sheet.
type PricingStore interface {
	Get(ctx context.Context, model string) (*models.ModelPricing, error)
	List(ctx context.Context) ([]*models.ModelPricing, error)
}

// UsageStore persists LLM usage records and serves aggregations.
type UsageStore interface {
	Insert(ctx context.Context, rec *models.UsageRecord) error
	Summary(ctx context.Context, userID string, start, end time.Time) (*UsageSummary, error)
	Breakdown(ctx context.Context, userID, groupBy string) ([]*UsageBucket, error)
}

// DismissalStore remembers dismissed skill proposals for suppression.
type DismissalStore interface {
	Record(ctx context.Context, botID, proposalName string, at time.Time) error
	RecentNames(ctx context.Context, botID string, since time.Time) ([]string, error)
}

// UsageSummary aggregates spend over a window.
type UsageSummary struct {
	UserID           string  `json:"user_id"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// UsageBucket is one group of a usage breakdown.
type UsageBucket struct {
	Key              string  `json:"key"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// StoreSet groups the repositories behind one handle.
type StoreSet struct {
	Bots       BotStore
	Skills     SkillStore
	Tools      ToolStore
	Messages   MessageStore
	Memories   MemoryStore
	Pricing    PricingStore
	Usage      UsageStore
	Dismissals DismissalStore

	closer func() error
}

// Close releases the underlying pool.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
