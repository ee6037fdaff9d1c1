// Package httptool executes outbound HTTPS calls for bot tool integrations
// with SSRF protection, a hard body cap, and bounded timeouts.
package httptool

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/internal/net/ssrf"
)

const (
	// DefaultTimeout bounds a tool call unless the caller overrides it.
	DefaultTimeout = 10 * time.Second

	// MaxBodyBytes caps the response body; anything past it is truncated.
	MaxBodyBytes = 512 * 1024

	userAgent = "kilo-runtime/1.0"
)

// Request describes one outbound call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	// Body is serialized as JSON for non-GET methods when non-nil.
	Body    any
	Timeout time.Duration
}

// Response is the executor's result. Body is the parsed JSON value when the
// payload parses, otherwise the raw string.
type Response struct {
	Status    int   `json:"status"`
	Body      any   `json:"body"`
	Truncated bool  `json:"truncated"`
	LatencyMs int64 `json:"latency_ms"`
}

// Executor performs guarded outbound HTTP.
type Executor struct {
	client *http.Client
}

// NewExecutor creates an executor. The client timeout is left unset; per-call
// deadlines come from the request context so cancellation propagates.
func NewExecutor() *Executor {
	return &Executor{client: &http.Client{}}
}

// NewExecutorWithClient injects a client, for tests.
func NewExecutorWithClient(client *http.Client) *Executor {
	return &Executor{client: client}
}

// Validate rejects a target URL before any socket is opened: the scheme must
// be https and the host must not name loopback or private address space.
func Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeToolExecution, "invalid URL")
	}
	if parsed.Scheme != "https" {
		return kiloerr.Newf(kiloerr.CodeToolExecution, "scheme must be https, got %q", parsed.Scheme)
	}
	if err := ssrf.CheckHost(parsed.Hostname()); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeToolExecution, "host blocked")
	}
	return nil
}

// Execute performs the call. The URL is validated first; the body is read
// through a cap and flagged truncated on overflow.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	if err := Validate(req.URL); err != nil {
		return nil, err
	}
	return e.execute(ctx, req)
}

func (e *Executor) execute(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	jsonBody := false
	if req.Body != nil && method != http.MethodGet {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeToolExecution, "encode request body")
		}
		bodyReader = bytes.NewReader(payload)
		jsonBody = true
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeToolExecution, "build request")
	}
	httpReq.Header.Set("User-Agent", userAgent)
	if jsonBody {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, kiloerr.New(kiloerr.CodeToolExecution, "request timed out")
		}
		return nil, kiloerr.Wrap(err, kiloerr.CodeToolExecution, "request failed")
	}
	defer resp.Body.Close()

	// Read one byte past the cap to detect overflow.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeToolExecution, "read response body")
	}
	truncated := false
	if len(raw) > MaxBodyBytes {
		raw = raw[:MaxBodyBytes]
		truncated = true
	}

	out := &Response{
		Status:    resp.StatusCode,
		Truncated: truncated,
		LatencyMs: time.Since(start).Milliseconds(),
	}

	var parsed any
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		out.Body = parsed
	} else {
		out.Body = string(raw)
	}
	return out, nil
}
