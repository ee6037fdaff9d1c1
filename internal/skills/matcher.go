// Package skills implements intent matching, structural validation, and
// proposal of new skills from conversation signals.
package skills

import (
	"regexp"
	"strings"

	"github.com/kilohq/kilo/pkg/models"
)

// Thresholds for the fast matcher. A score below KeepThreshold is no match;
// at or above DefinitiveThreshold the match skips any second-phase check.
const (
	KeepThreshold       = 0.4
	DefinitiveThreshold = 0.7

	// Patterns longer than this many tokens are scored on their first
	// maxPatternTokens tokens. Trigger patterns are short phrases; a
	// multi-clause pattern would otherwise be unmatchable because every
	// token must appear in the message.
	maxPatternTokens = 12

	defaultHistoryDepth = 5
)

// ContextRequirements declares which context a matched skill needs loaded
// before prompt composition. The loads run as one parallel fan-out.
type ContextRequirements struct {
	HistoryDepth   bool
	HistoryLimit   int
	NeedsMemory    bool
	NeedsRAG       bool
	NeedsSkillData bool
}

// Match is the outcome of intent matching for one message.
type Match struct {
	Skill      *models.SkillDefinition
	Pattern    string
	Score      float64
	Definitive bool

	Context  ContextRequirements
	TaskType models.TaskType
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "how": {}, "i": {},
	"in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "please": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"was": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {},
	"will": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize lowercases, strips non-alphanumerics, and drops single-character
// tokens and stop words.
func Tokenize(s string) []string {
	fields := strings.Fields(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Matcher scores a message against the trigger patterns of active skills.
type Matcher struct{}

func NewMatcher() *Matcher { return &Matcher{} }

// Match returns the best-scoring skill for the message, or nil when no
// pattern clears the keep threshold. A pattern contributes only when every
// one of its tokens appears in the message; single-word coincidences never
// drive a match.
func (m *Matcher) Match(message string, skills []*models.SkillDefinition) *Match {
	msgTokens := Tokenize(message)
	if len(msgTokens) == 0 {
		return nil
	}
	msgSet := make(map[string]struct{}, len(msgTokens))
	for _, t := range msgTokens {
		msgSet[t] = struct{}{}
	}

	var best *Match
	for _, skill := range skills {
		if !skill.Active {
			continue
		}
		for _, pattern := range skill.TriggerPatterns {
			score, ok := scorePattern(pattern, msgSet, len(msgSet))
			if !ok || score < KeepThreshold {
				continue
			}
			if best == nil || score > best.Score {
				best = &Match{Skill: skill, Pattern: pattern, Score: score}
			}
		}
	}
	if best == nil {
		return nil
	}

	best.Definitive = best.Score >= DefinitiveThreshold
	best.Context = deriveContext(best.Skill)
	best.TaskType = preferTask(best.Skill)
	return best
}

func scorePattern(pattern string, msgSet map[string]struct{}, msgSize int) (float64, bool) {
	tokens := Tokenize(pattern)
	if len(tokens) == 0 {
		return 0, false
	}
	if len(tokens) > maxPatternTokens {
		tokens = tokens[:maxPatternTokens]
	}

	overlap := 0
	for _, t := range tokens {
		if _, ok := msgSet[t]; !ok {
			return 0, false
		}
		overlap++
	}

	recall := float64(overlap) / float64(len(tokens))
	precision := float64(overlap) / float64(msgSize)
	return 0.7*recall + 0.3*precision, true
}

var skillDataHints = regexp.MustCompile(`(?i)\b(show|list|query|report|summar|total|how (much|many))\b`)
var ragHints = regexp.MustCompile(`(?i)knowledge|document|uploaded`)

func deriveContext(skill *models.SkillDefinition) ContextRequirements {
	reqs := ContextRequirements{
		HistoryDepth: true,
		HistoryLimit: defaultHistoryDepth,
	}
	if skill.Scheduled() {
		// Scheduled runs have no conversational context to carry.
		reqs.HistoryDepth = false
		reqs.HistoryLimit = 0
	}
	reqs.NeedsMemory = skill.DataTable == ""
	reqs.NeedsRAG = ragHints.MatchString(skill.BehaviorPrompt)
	reqs.NeedsSkillData = len(skill.ReadableTables) > 0 ||
		skillDataHints.MatchString(skill.Description+" "+strings.Join(skill.TriggerPatterns, " "))
	return reqs
}

func preferTask(skill *models.SkillDefinition) models.TaskType {
	switch {
	case len(skill.ReadableTables) > 1:
		return models.TaskDataAnalysis
	case skill.Scheduled():
		return models.TaskSimpleQA
	default:
		return models.TaskSkillExecution
	}
}
