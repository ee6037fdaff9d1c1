package llm

import (
	"context"
	"time"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/pkg/models"
)

const (
	// DefaultMaxTokens applies when a route sets no limit, and always on the
	// fallback path.
	DefaultMaxTokens = 2048

	completionTimeout = 30 * time.Second
	thinkingTimeout   = 60 * time.Second
)

// Route selects providers and models for one task type.
type Route struct {
	Primary       string
	PrimaryModel  string
	Fallback      string
	FallbackModel string
	Thinking      *ThinkingConfig
	MaxTokens     int64
}

// DefaultRoutes is the standard task routing table: Anthropic primary for
// everything, OpenAI fallback for the cheap tasks.
func DefaultRoutes() map[models.TaskType]Route {
	return map[models.TaskType]Route{
		models.TaskSimpleQA: {
			Primary: "anthropic", PrimaryModel: "claude-3-5-haiku-latest",
			Fallback: "openai", FallbackModel: "gpt-4o-mini",
		},
		models.TaskSkillExecution: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Fallback: "openai", FallbackModel: "gpt-4o",
		},
		models.TaskSkillGeneration: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Thinking:  &ThinkingConfig{BudgetTokens: 8000},
			MaxTokens: 8192,
		},
		models.TaskComplexReasoning: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Fallback: "openai", FallbackModel: "gpt-4o",
			Thinking:  &ThinkingConfig{BudgetTokens: 10000},
			MaxTokens: 4096,
		},
		models.TaskDataAnalysis: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Fallback: "openai", FallbackModel: "gpt-4o",
			MaxTokens: 4096,
		},
		models.TaskDocExtraction: {
			Primary: "anthropic", PrimaryModel: "claude-sonnet-4-5",
			Fallback: "openai", FallbackModel: "gpt-4o",
			MaxTokens: 8192,
		},
	}
}

// Gateway resolves task types to routes and drives primary/fallback
// completion. Routing table and provider set are read-only after
// construction.
type Gateway struct {
	routes    map[models.TaskType]Route
	providers map[string]Provider
	fallback  Route
	logger    *observability.Logger
	metrics   *observability.Metrics
}

func NewGateway(routes map[models.TaskType]Route, providers []Provider, logger *observability.Logger, metrics *observability.Metrics) *Gateway {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	g := &Gateway{
		routes:    routes,
		providers: byName,
		logger:    logger,
		metrics:   metrics,
	}
	// Last-resort route for unknown task types.
	if r, ok := routes[models.TaskSkillExecution]; ok {
		g.fallback = r
	} else {
		for _, r := range routes {
			g.fallback = r
			break
		}
	}
	return g
}

// Complete routes the request by task, tries the primary provider, then the
// fallback with thinking stripped and default token budget. Both failing is
// an all-providers-failed error.
func (g *Gateway) Complete(ctx context.Context, task models.TaskType, req *Request) (*Response, error) {
	route, ok := g.routes[task]
	if !ok {
		route = g.fallback
	}

	var lastErr error
	if primary, ok := g.providers[route.Primary]; ok && primary.Available() {
		primaryReq := *req
		primaryReq.Model = route.PrimaryModel
		primaryReq.MaxTokens = route.MaxTokens
		if primaryReq.MaxTokens <= 0 {
			primaryReq.MaxTokens = DefaultMaxTokens
		}
		primaryReq.Thinking = route.Thinking
		if route.Thinking != nil {
			// Thinking and temperature are mutually exclusive.
			primaryReq.Temperature = nil
		}

		resp, err := g.call(ctx, primary, &primaryReq, task)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		g.logger.Warn(ctx, "primary provider failed, trying fallback",
			"provider", route.Primary, "task", string(task), "error", err)
	}

	if fallback, ok := g.providers[route.Fallback]; ok && route.Fallback != "" && fallback.Available() {
		fallbackReq := *req
		fallbackReq.Model = route.FallbackModel
		fallbackReq.MaxTokens = DefaultMaxTokens
		fallbackReq.Thinking = nil

		resp, err := g.call(ctx, fallback, &fallbackReq, task)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	return nil, allFailed(task, lastErr)
}

func allFailed(task models.TaskType, lastErr error) error {
	if lastErr != nil {
		return kiloerr.Wrap(lastErr, kiloerr.CodeLLMAllFailed, "all providers failed").
			WithDetail("task", string(task))
	}
	return kiloerr.New(kiloerr.CodeLLMAllFailed, "no available provider").
		WithDetail("task", string(task))
}

func (g *Gateway) call(ctx context.Context, provider Provider, req *Request, task models.TaskType) (*Response, error) {
	timeout := completionTimeout
	if req.Thinking != nil {
		timeout = thinkingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Complete(ctx, req)
	elapsed := time.Since(start)

	if g.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		g.metrics.LLMRequestDuration.WithLabelValues(provider.Name(), string(task)).Observe(elapsed.Seconds())
		g.metrics.LLMRequestCounter.WithLabelValues(provider.Name(), string(task), status).Inc()
		if resp != nil {
			g.metrics.LLMTokensUsed.WithLabelValues(provider.Name(), "prompt").Add(float64(resp.PromptTokens))
			g.metrics.LLMTokensUsed.WithLabelValues(provider.Name(), "completion").Add(float64(resp.CompletionTokens))
		}
	}
	return resp, err
}
