package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/pkg/models"
)

type fakeProvider struct {
	name      string
	available bool
	err       error
	resp      *Response

	mu       sync.Mutex
	requests []*Request
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return f.available }

func (f *fakeProvider) Complete(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	copied := *req
	f.requests = append(f.requests, &copied)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.Model = req.Model
	resp.Provider = f.name
	return &resp, nil
}

func (f *fakeProvider) lastRequest(t *testing.T) *Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("provider was never called")
	}
	return f.requests[len(f.requests)-1]
}

func testRoutes() map[models.TaskType]Route {
	return map[models.TaskType]Route{
		models.TaskSkillExecution: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Fallback: "openai", FallbackModel: "gpt-4o",
		},
		models.TaskComplexReasoning: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Fallback: "openai", FallbackModel: "gpt-4o",
			Thinking:  &ThinkingConfig{BudgetTokens: 10000},
			MaxTokens: 4096,
		},
	}
}

func TestGatewayUsesPrimaryRoute(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: true, resp: &Response{Content: "hi"}}
	fallback := &fakeProvider{name: "openai", available: true, resp: &Response{Content: "fb"}}
	g := NewGateway(testRoutes(), []Provider{primary, fallback}, observability.NewNopLogger(), nil)

	resp, err := g.Complete(context.Background(), models.TaskSkillExecution, &Request{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Provider != "anthropic" || resp.Model != "claude-sonnet-4-5" {
		t.Errorf("resp = %+v", resp)
	}
	if got := primary.lastRequest(t); got.MaxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want default", got.MaxTokens)
	}
	if len(fallback.requests) != 0 {
		t.Error("fallback called despite primary success")
	}
}

func TestGatewayFallbackStripsThinking(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: true, err: errors.New("overloaded")}
	fallback := &fakeProvider{name: "openai", available: true, resp: &Response{Content: "fb"}}
	g := NewGateway(testRoutes(), []Provider{primary, fallback}, observability.NewNopLogger(), nil)

	temp := 0.7
	resp, err := g.Complete(context.Background(), models.TaskComplexReasoning, &Request{Temperature: &temp})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider = %q, want fallback", resp.Provider)
	}

	primaryReq := primary.lastRequest(t)
	if primaryReq.Thinking == nil {
		t.Error("primary request lost thinking config")
	}
	if primaryReq.Temperature != nil {
		t.Error("thinking request carries temperature")
	}

	fallbackReq := fallback.lastRequest(t)
	if fallbackReq.Thinking != nil {
		t.Error("fallback request carries thinking config")
	}
	if fallbackReq.MaxTokens != DefaultMaxTokens {
		t.Errorf("fallback maxTokens = %d, want default", fallbackReq.MaxTokens)
	}
}

func TestGatewayAllProvidersFailed(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: true, err: errors.New("down")}
	fallback := &fakeProvider{name: "openai", available: true, err: errors.New("down too")}
	g := NewGateway(testRoutes(), []Provider{primary, fallback}, observability.NewNopLogger(), nil)

	_, err := g.Complete(context.Background(), models.TaskSkillExecution, &Request{})
	if !kiloerr.Is(err, kiloerr.CodeLLMAllFailed) {
		t.Fatalf("err = %v, want all_providers_failed", err)
	}
}

func TestGatewaySkipsUnavailablePrimary(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: false, resp: &Response{}}
	fallback := &fakeProvider{name: "openai", available: true, resp: &Response{Content: "fb"}}
	g := NewGateway(testRoutes(), []Provider{primary, fallback}, observability.NewNopLogger(), nil)

	resp, err := g.Complete(context.Background(), models.TaskSkillExecution, &Request{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider = %q", resp.Provider)
	}
	if len(primary.requests) != 0 {
		t.Error("unavailable primary was called")
	}
}

func TestGatewayUnknownTaskUsesDefaultRoute(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: true, resp: &Response{Content: "ok"}}
	g := NewGateway(testRoutes(), []Provider{primary}, observability.NewNopLogger(), nil)

	if _, err := g.Complete(context.Background(), models.TaskType("mystery"), &Request{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

type captureRecorder struct {
	mu   sync.Mutex
	recs []*models.UsageRecord
}

func (c *captureRecorder) Record(rec *models.UsageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
}

func TestTrackedGatewayAttributesCalls(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: true,
		resp: &Response{Content: "ok", PromptTokens: 100, CompletionTokens: 50}}
	g := NewGateway(testRoutes(), []Provider{primary}, observability.NewNopLogger(), nil)
	rec := &captureRecorder{}
	tracked := NewTrackedGateway(g, rec)

	ctx := WithAttribution(context.Background(), Attribution{
		UserID: "user-1", BotID: "bot-1", SessionID: "sess-1",
	})
	if _, err := tracked.Complete(ctx, models.TaskSkillExecution, &Request{}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.recs))
	}
	r := rec.recs[0]
	if r.UserID != "user-1" || r.BotID != "bot-1" || r.PromptTokens != 100 || r.CompletionTokens != 50 {
		t.Errorf("record = %+v", r)
	}
	if r.TaskType != models.TaskSkillExecution {
		t.Errorf("task = %s", r.TaskType)
	}
}

func TestTrackedGatewaySkipsFailedCalls(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", available: true, err: errors.New("down")}
	g := NewGateway(map[models.TaskType]Route{
		models.TaskSkillExecution: {Primary: "anthropic", PrimaryModel: "m"},
	}, []Provider{primary}, observability.NewNopLogger(), nil)
	rec := &captureRecorder{}
	tracked := NewTrackedGateway(g, rec)

	if _, err := tracked.Complete(context.Background(), models.TaskSkillExecution, &Request{}); err == nil {
		t.Fatal("expected failure")
	}
	if len(rec.recs) != 0 {
		t.Errorf("failed call recorded: %+v", rec.recs)
	}
}
