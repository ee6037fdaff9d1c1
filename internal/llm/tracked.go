package llm

import (
	"context"
	"time"

	"github.com/kilohq/kilo/pkg/models"
)

// Attribution ties an LLM call to the user and conversation it served.
type Attribution struct {
	UserID    string
	BotID     string
	SessionID string
	MessageID string
}

type attributionKey struct{}

// WithAttribution stores a per-call attribution carrier on the context.
// Concurrent requests each carry their own; nothing is shared.
func WithAttribution(ctx context.Context, attr Attribution) context.Context {
	return context.WithValue(ctx, attributionKey{}, attr)
}

// AttributionFrom reads the carrier; the zero value means unattributed.
func AttributionFrom(ctx context.Context) Attribution {
	attr, _ := ctx.Value(attributionKey{}).(Attribution)
	return attr
}

// UsageRecorder receives one record per completed LLM call.
type UsageRecorder interface {
	Record(rec *models.UsageRecord)
}

// TrackedGateway decorates a gateway port with fire-and-forget usage
// recording. Recording never extends or fails the caller's request.
type TrackedGateway struct {
	inner    Port
	recorder UsageRecorder
}

func NewTrackedGateway(inner Port, recorder UsageRecorder) *TrackedGateway {
	return &TrackedGateway{inner: inner, recorder: recorder}
}

func (t *TrackedGateway) Complete(ctx context.Context, task models.TaskType, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := t.inner.Complete(ctx, task, req)
	if err != nil || resp == nil {
		return resp, err
	}

	attr := AttributionFrom(ctx)
	t.recorder.Record(&models.UsageRecord{
		UserID:           attr.UserID,
		BotID:            attr.BotID,
		SessionID:        attr.SessionID,
		MessageID:        attr.MessageID,
		Provider:         resp.Provider,
		Model:            resp.Model,
		TaskType:         task,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	})
	return resp, nil
}
