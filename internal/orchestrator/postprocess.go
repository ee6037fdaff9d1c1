package orchestrator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kilohq/kilo/pkg/models"
)

const refusalText = "I can't help with that. If you're going through something difficult, " +
	"please reach out to someone you trust or a qualified professional."

// unsafePatterns force a refusal regardless of what the model produced.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(kill|harm|hurt)\s+(yourself|myself|themselves)\b`),
	regexp.MustCompile(`(?i)\bhow to (commit|attempt) suicide\b`),
	regexp.MustCompile(`(?i)\byou (should|must) take \d+\s?(mg|milligrams|pills|tablets)\b`),
	regexp.MustCompile(`(?i)\bstop taking your (medication|meds|prescription)\b`),
	regexp.MustCompile(`(?i)\bi diagnose you with\b`),
	regexp.MustCompile(`(?i)\byou (definitely|certainly) have (cancer|depression|diabetes)\b`),
	regexp.MustCompile(`(?i)\bguaranteed (returns?|profits?)\b`),
	regexp.MustCompile(`(?i)\b(put|invest) (all|everything) (of )?your (money|savings)\b`),
	regexp.MustCompile(`(?i)\byou (will|are sure to) win (the|this) (case|lawsuit)\b`),
}

// disclaimerDomains append a caution line when the response wanders into
// regulated territory without tripping the refusal patterns.
var disclaimerDomains = []struct {
	pattern *regexp.Regexp
	text    string
}{
	{
		regexp.MustCompile(`(?i)\b(symptom|diagnosis|dosage|prescription|medication|treatment plan)\b`),
		"\n\n_This is general information, not medical advice. Consult a healthcare professional._",
	},
	{
		regexp.MustCompile(`(?i)\b(lawsuit|legal liability|contract dispute|sue|statute of limitations)\b`),
		"\n\n_This is general information, not legal advice. Consult a licensed attorney._",
	},
	{
		regexp.MustCompile(`(?i)\b(investment advice|stock pick|portfolio allocation|buy (stocks|shares|crypto))\b`),
		"\n\n_This is general information, not financial advice. Consult a qualified advisor._",
	},
}

var jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)```")

// Processed is the post-processor's output.
type Processed struct {
	Content          string
	StructuredData   map[string]any
	SuggestedActions []string
}

// Postprocess applies safety substitution, domain disclaimers, structured
// card extraction, and suggested-action synthesis to a raw model response.
func Postprocess(content string, skill *models.SkillDefinition) Processed {
	out := Processed{Content: content}

	for _, pattern := range unsafePatterns {
		if pattern.MatchString(content) {
			out.Content = refusalText
			return out
		}
	}

	for _, domain := range disclaimerDomains {
		if domain.pattern.MatchString(out.Content) {
			out.Content += domain.text
			break
		}
	}

	if skill != nil && skill.OutputFormat == models.OutputStructuredCard {
		out.StructuredData = parseCard(out.Content)
	}
	out.SuggestedActions = suggestActions(skill)
	return out
}

// parseCard pulls the first ```json fenced block into a map. Missing or
// malformed blocks yield nil, never an error.
func parseCard(content string) map[string]any {
	m := jsonFence.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	var card map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &card); err != nil {
		return nil
	}
	return card
}

// suggestActions derives up to 3 follow-up prompts from the skill shape.
func suggestActions(skill *models.SkillDefinition) []string {
	if skill == nil {
		return nil
	}
	var actions []string
	if len(skill.ReadableTables) > 0 {
		actions = append(actions, "Show my "+strings.ToLower(skill.Name)+" data")
	}
	if skill.DataTable != "" {
		actions = append(actions, "Add another entry")
	}
	if skill.Scheduled() {
		actions = append(actions, "Change the schedule")
	}
	if len(actions) < 3 && len(skill.TriggerPatterns) > 0 {
		actions = append(actions, titleFirst(skill.TriggerPatterns[0]))
	}
	if len(actions) > 3 {
		actions = actions[:3]
	}
	return actions
}

func titleFirst(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
