// Package memory extracts durable user facts from message text with a
// fixed regex family. No LLM is involved; precision is preferred over
// recall.
package memory

import (
	"regexp"
	"strings"

	"github.com/kilohq/kilo/pkg/models"
)

type rule struct {
	pattern    *regexp.Regexp
	key        string
	source     models.MemorySource
	confidence float64
}

// Ordered most specific first. Each rule captures the fact value in group 1.
var rules = []rule{
	{regexp.MustCompile(`(?i)\bmy name is\s+([A-Za-z][A-Za-z .'-]{1,50})`), "name", models.MemoryUserStated, 0.95},
	{regexp.MustCompile(`(?i)\bcall me\s+([A-Za-z][A-Za-z .'-]{1,50})`), "preferred_name", models.MemoryUserStated, 0.9},
	{regexp.MustCompile(`(?i)\bmy birthday is\s+([A-Za-z0-9 ,/-]{3,40})`), "birthday", models.MemoryUserStated, 0.95},
	{regexp.MustCompile(`(?i)\bi live in\s+([A-Za-z][A-Za-z .,'-]{1,60})`), "location", models.MemoryUserStated, 0.9},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) from\s+([A-Za-z][A-Za-z .,'-]{1,60})`), "hometown", models.MemoryUserStated, 0.85},
	{regexp.MustCompile(`(?i)\bi work (?:at|for)\s+([A-Za-z0-9][A-Za-z0-9 .,&'-]{1,60})`), "employer", models.MemoryUserStated, 0.9},
	{regexp.MustCompile(`(?i)\bi work as\s+(?:a |an )?([A-Za-z][A-Za-z .,'-]{1,60})`), "occupation", models.MemoryUserStated, 0.9},
	{regexp.MustCompile(`(?i)\bmy (?:time ?zone|tz) is\s+([A-Za-z_/+-]{2,40})`), "timezone", models.MemoryUserStated, 0.95},
	{regexp.MustCompile(`(?i)\bmy email is\s+(\S+@\S+\.\S+)`), "email", models.MemoryUserStated, 0.95},
	{regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to\s+([A-Za-z][A-Za-z ,'-]{1,60})`), "allergies", models.MemoryUserStated, 0.95},
	{regexp.MustCompile(`(?i)\bi (?:really )?(?:love|like)\s+([A-Za-z][A-Za-z ,'-]{2,60})`), "likes", models.MemoryInferred, 0.6},
	{regexp.MustCompile(`(?i)\bi (?:hate|dislike|can't stand)\s+([A-Za-z][A-Za-z ,'-]{2,60})`), "dislikes", models.MemoryInferred, 0.6},
	{regexp.MustCompile(`(?i)\bi prefer\s+([A-Za-z][A-Za-z ,'-]{2,60})`), "preference", models.MemoryInferred, 0.65},
}

// Extract returns the facts stated in the message. Duplicate keys keep the
// first (most specific) rule's hit.
func Extract(message string) []*models.MemoryFact {
	var facts []*models.MemoryFact
	seen := make(map[string]struct{})
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		if _, dup := seen[r.key]; dup {
			continue
		}
		value := cleanValue(m[1])
		if value == "" {
			continue
		}
		seen[r.key] = struct{}{}
		facts = append(facts, &models.MemoryFact{
			Key:        r.key,
			Value:      value,
			Source:     r.source,
			Confidence: r.confidence,
		})
	}
	return facts
}

// cleanValue trims trailing clause connectives so "Berlin and I work at X"
// stores just "Berlin".
func cleanValue(v string) string {
	v = strings.TrimSpace(strings.Trim(v, ".!?,"))
	for _, sep := range []string{" and ", " but ", " so ", " because "} {
		if idx := strings.Index(strings.ToLower(v), sep); idx > 0 {
			v = v[:idx]
		}
	}
	return strings.TrimSpace(v)
}
