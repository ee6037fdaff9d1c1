// Package learning turns "learn how to use X" requests into researched API
// bindings and skill proposals.
package learning

import (
	"regexp"
	"strings"
)

// Intent is a detected request to learn a new capability.
type Intent struct {
	Capability string
	Confidence float64
}

type intentRule struct {
	pattern    *regexp.Regexp
	confidence float64
}

// Ordered most specific first. "connect to" sits after "can you connect to"
// so the politer phrasing keeps its lower confidence.
var intentRules = []intentRule{
	{regexp.MustCompile(`(?i)\blearn how to use\s+(.+?)\??$`), 0.95},
	{regexp.MustCompile(`(?i)\bintegrate with\s+(.+?)\??$`), 0.9},
	{regexp.MustCompile(`(?i)\badd\s+(.+?)\s+integration\b`), 0.9},
	{regexp.MustCompile(`(?i)\bset up\s+(.+?)\??$`), 0.85},
	{regexp.MustCompile(`(?i)\bi want you to use\s+(.+?)\??$`), 0.75},
	{regexp.MustCompile(`(?i)\bcan you (?:use|connect to)\s+(.+?)\??$`), 0.7},
	{regexp.MustCompile(`(?i)\bconnect to\s+(.+?)\??$`), 0.9},
	{regexp.MustCompile(`(?i)\blearn (?:how )?to\s+(.+?)\??$`), 0.6},
}

var trailingNoise = regexp.MustCompile(`(?i)\s+(api|integration|service|platform|tool)\s*$`)

// startsWithVerb rejects phrases like "tell me a joke" as service names.
var leadingVerbs = map[string]struct{}{
	"tell": {}, "make": {}, "create": {}, "write": {}, "send": {}, "get": {},
	"do": {}, "find": {}, "show": {}, "give": {}, "help": {}, "play": {},
	"read": {}, "say": {}, "be": {}, "remember": {}, "track": {}, "remind": {},
}

// Detect runs the ordered intent rules against the raw message. Returns nil
// when no rule matches or the extracted capability is unusable.
func Detect(message string) *Intent {
	for _, rule := range intentRules {
		m := rule.pattern.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		capability := CleanCapability(m[1])
		if capability == "" || len(capability) > 100 {
			return nil
		}
		return &Intent{Capability: capability, Confidence: rule.confidence}
	}
	return nil
}

// CleanCapability strips trailing category words and title-cases the phrase.
func CleanCapability(raw string) string {
	s := strings.TrimSpace(strings.Trim(raw, ".!?,"))
	s = trailingNoise.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// LooksLikeServiceName reports whether the capability reads as a product
// name rather than a task description. Task-like phrases get the open
// "which API?" clarification instead of "shall I research X?".
func LooksLikeServiceName(name string) bool {
	words := strings.Fields(name)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	_, verb := leadingVerbs[strings.ToLower(words[0])]
	return !verb
}
