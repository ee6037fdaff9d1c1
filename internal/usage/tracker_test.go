package usage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/pkg/models"
)

var sonnetPricing = &models.ModelPricing{
	Model: "claude-sonnet-4-5", Provider: "anthropic",
	InputCostPerM: 3, OutputCostPerM: 15,
}

func TestCalculateCostSonnet(t *testing.T) {
	got := CalculateCost(1000, 500, sonnetPricing)
	if got != 0.0105 {
		t.Fatalf("cost = %v, want 0.0105", got)
	}
}

func TestCalculateCostMillionTokensDrift(t *testing.T) {
	got := CalculateCost(1_000_000, 1_000_000, sonnetPricing)
	if math.Abs(got-18.0) > 0.01 {
		t.Fatalf("cost = %v, drift exceeds a penny", got)
	}
}

func TestCalculateCostNilPricing(t *testing.T) {
	if got := CalculateCost(1000, 500, nil); got != 0 {
		t.Fatalf("cost = %v, want 0", got)
	}
}

type stubUsageStore struct {
	mu   sync.Mutex
	recs []*models.UsageRecord
	err  error
}

func (s *stubUsageStore) Insert(_ context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *stubUsageStore) Summary(context.Context, string, time.Time, time.Time) (*storage.UsageSummary, error) {
	return nil, nil
}

func (s *stubUsageStore) Breakdown(context.Context, string, string) ([]*storage.UsageBucket, error) {
	return nil, nil
}

type stubPricingStore struct {
	pricing *models.ModelPricing
}

func (s *stubPricingStore) Get(context.Context, string) (*models.ModelPricing, error) {
	if s.pricing == nil {
		return nil, errors.New("no pricing")
	}
	return s.pricing, nil
}

func (s *stubPricingStore) List(context.Context) ([]*models.ModelPricing, error) {
	return nil, nil
}

func TestRecordComputesCostAtInsert(t *testing.T) {
	store := &stubUsageStore{}
	tracker := NewTracker(store, &stubPricingStore{pricing: sonnetPricing}, observability.NewNopLogger())

	tracker.Record(&models.UsageRecord{
		UserID: "user-1", Model: "claude-sonnet-4-5",
		PromptTokens: 1000, CompletionTokens: 500,
	})
	tracker.Flush()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(store.recs))
	}
	rec := store.recs[0]
	if rec.CostUSD != 0.0105 {
		t.Errorf("cost = %v, want 0.0105", rec.CostUSD)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Errorf("record not stamped: %+v", rec)
	}
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	store := &stubUsageStore{err: errors.New("db down")}
	tracker := NewTracker(store, &stubPricingStore{pricing: sonnetPricing}, observability.NewNopLogger())

	tracker.Record(&models.UsageRecord{UserID: "user-1", Model: "claude-sonnet-4-5"})
	tracker.Flush()
}

func TestRecordIgnoresUnattributed(t *testing.T) {
	store := &stubUsageStore{}
	tracker := NewTracker(store, &stubPricingStore{pricing: sonnetPricing}, observability.NewNopLogger())

	tracker.Record(&models.UsageRecord{Model: "claude-sonnet-4-5"})
	tracker.Flush()
	if len(store.recs) != 0 {
		t.Fatalf("unattributed record stored: %+v", store.recs)
	}
}
