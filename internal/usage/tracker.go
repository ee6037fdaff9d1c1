// Package usage attributes LLM spend to users. Recording is asynchronous
// and never affects the serving path.
package usage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/pkg/models"
)

const recordTimeout = 5 * time.Second

// CalculateCost prices one call from per-million-token rates, rounded to
// six decimals so stored values are stable across reads.
func CalculateCost(promptTokens, completionTokens int64, pricing *models.ModelPricing) float64 {
	if pricing == nil {
		return 0
	}
	cost := float64(promptTokens)/1_000_000*pricing.InputCostPerM +
		float64(completionTokens)/1_000_000*pricing.OutputCostPerM
	return math.Round(cost*1e6) / 1e6
}

// Tracker persists usage records in the background. Failures are logged
// and dropped; the caller never sees them.
type Tracker struct {
	store   storage.UsageStore
	pricing storage.PricingStore
	logger  *observability.Logger

	wg sync.WaitGroup
}

func NewTracker(store storage.UsageStore, pricing storage.PricingStore, logger *observability.Logger) *Tracker {
	return &Tracker{store: store, pricing: pricing, logger: logger}
}

// Record prices and persists the record asynchronously. Cost is computed
// once at insert and never recomputed.
func (t *Tracker) Record(rec *models.UsageRecord) {
	if rec == nil || rec.UserID == "" {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}

		pricing, err := t.pricing.Get(ctx, rec.Model)
		if err != nil {
			t.logger.Warn(ctx, "no pricing for model, recording zero cost",
				"model", rec.Model, "error", err)
		}
		rec.CostUSD = CalculateCost(rec.PromptTokens, rec.CompletionTokens, pricing)

		if err := t.store.Insert(ctx, rec); err != nil {
			t.logger.Error(ctx, "usage record dropped",
				"user_id", rec.UserID, "model", rec.Model, "error", err)
		}
	}()
}

// Flush waits for in-flight records. For shutdown and tests.
func (t *Tracker) Flush() {
	t.wg.Wait()
}
