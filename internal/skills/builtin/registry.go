// Package builtin provides in-process skill handlers that answer a message
// directly, bypassing the LLM entirely.
package builtin

import (
	"strings"
	"time"

	"github.com/kilohq/kilo/pkg/models"
)

// Response is a handler's answer. SkillID carries a builtin-* identifier
// that is never persisted as a skill foreign key.
type Response struct {
	Content          string
	SkillID          string
	SuggestedActions []string
}

// Handler answers a message when its Matches check accepts it. Clock is
// injected so date-sensitive handlers are testable.
type Handler interface {
	ID() string
	Matches(message string) bool
	Handle(message string, now time.Time) (*Response, error)
}

// Registry holds the fixed handler set. Read-only after construction.
type Registry struct {
	handlers []Handler
}

// NewRegistry wires the three standard handlers. Order matters: date math
// is checked before time so "how many days until" is not mistaken for a
// current-time query.
func NewRegistry() *Registry {
	return &Registry{handlers: []Handler{
		newDateMathHandler(),
		newTimeHandler(),
		newRandomHandler(),
	}}
}

// Match returns the first handler accepting the message, or nil.
func (r *Registry) Match(message string) Handler {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, h := range r.handlers {
		if h.Matches(normalized) {
			return h
		}
	}
	return nil
}

// Definitions lists the builtin handlers as skill definitions so they can
// appear in capability listings alongside persistent skills.
func (r *Registry) Definitions() []*models.SkillDefinition {
	defs := make([]*models.SkillDefinition, 0, len(r.handlers))
	for _, h := range r.handlers {
		defs = append(defs, &models.SkillDefinition{
			ID:        h.ID(),
			Name:      strings.TrimPrefix(h.ID(), models.BuiltinIDPrefix),
			CreatedBy: models.CreatedBySystem,
			Active:    true,
		})
	}
	return defs
}
