package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects runtime counters and latency histograms.
type Metrics struct {
	// MessagesProcessed counts pipeline runs.
	// Labels: outcome (skill|builtin|general|learning|clarification|error)
	MessagesProcessed *prometheus.CounterVec

	// LLMRequestDuration measures LLM call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutions counts outbound API tool calls.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// CacheOps counts cache operations.
	// Labels: op (get|set|invalidate), result (hit|miss|error|ok)
	CacheOps *prometheus.CounterVec

	// HTTPRequestDuration measures API request latency in seconds.
	// Labels: method, path, status
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers metrics on the given registerer. Passing
// nil registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto{reg}

	return &Metrics{
		MessagesProcessed: factory.counterVec(prometheus.CounterOpts{
			Namespace: "kilo",
			Name:      "messages_processed_total",
			Help:      "Messages routed through the orchestrator pipeline.",
		}, []string{"outcome"}),
		LLMRequestDuration: factory.histogramVec(prometheus.HistogramOpts{
			Namespace: "kilo",
			Name:      "llm_request_duration_seconds",
			Help:      "LLM API call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		LLMRequestCounter: factory.counterVec(prometheus.CounterOpts{
			Namespace: "kilo",
			Name:      "llm_requests_total",
			Help:      "LLM API calls by outcome.",
		}, []string{"provider", "model", "status"}),
		LLMTokensUsed: factory.counterVec(prometheus.CounterOpts{
			Namespace: "kilo",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by LLM calls.",
		}, []string{"provider", "model", "type"}),
		ToolExecutions: factory.counterVec(prometheus.CounterOpts{
			Namespace: "kilo",
			Name:      "tool_executions_total",
			Help:      "Outbound API tool invocations.",
		}, []string{"tool", "status"}),
		CacheOps: factory.counterVec(prometheus.CounterOpts{
			Namespace: "kilo",
			Name:      "cache_ops_total",
			Help:      "Cache operations by result.",
		}, []string{"op", "result"}),
		HTTPRequestDuration: factory.histogramVec(prometheus.HistogramOpts{
			Namespace: "kilo",
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path", "status"}),
	}
}

// promauto mirrors the promauto package against an explicit registerer so
// tests can use isolated registries.
type promauto struct {
	reg prometheus.Registerer
}

func (p promauto) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	p.reg.MustRegister(v)
	return v
}

func (p promauto) histogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	p.reg.MustRegister(v)
	return v
}
