package skills

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kilohq/kilo/pkg/models"
)

// Limits for stage-1 structural validation.
const (
	maxNameLen       = 100
	maxPatternLen    = 200
	maxBehaviorLen   = 5000
	maxSchemaProps   = 30
	minPatternCount  = 2
	minCronIntervalM = 15
)

// Issue is one validation finding tied to a field and rule.
type Issue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Conflict records a trigger-pattern overlap with an existing skill.
type Conflict struct {
	NewPattern      string   `json:"new_pattern"`
	ExistingSkill   string   `json:"existing_skill"`
	ExistingPattern string   `json:"existing_pattern"`
	Similarity      float64  `json:"similarity"`
	Resolutions     []string `json:"resolution_options"`
}

// ValidationResult is the outcome of both stages. Stage is "schema" or
// "trigger_overlap" when Valid is false; warnings survive across stages.
type ValidationResult struct {
	Valid     bool       `json:"valid"`
	Stage     string     `json:"stage,omitempty"`
	Issues    []Issue    `json:"issues,omitempty"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)you are now`),
	regexp.MustCompile(`(?i)forget your system prompt`),
	regexp.MustCompile(`(?i)disregard all`),
	regexp.MustCompile(`(?i)override safety`),
	regexp.MustCompile(`(?i)new instructions:`),
	regexp.MustCompile(`(?i)pretend (you|to be)`),
}

// OverlapThreshold is the Jaccard similarity at which two trigger patterns
// are considered the same intent.
const OverlapThreshold = 0.7

// Validator checks a skill definition before persistence.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

// Validate runs both stages in order and short-circuits on the first failing
// stage. Warnings collected before the failure are preserved.
func (v *Validator) Validate(skill *models.SkillDefinition, existing []*models.SkillDefinition) *ValidationResult {
	result := v.validateStructure(skill)
	if !result.Valid {
		return result
	}
	if conflicts := findOverlaps(skill, existing); len(conflicts) > 0 {
		result.Valid = false
		result.Stage = "trigger_overlap"
		result.Conflicts = conflicts
	}
	return result
}

func (v *Validator) validateStructure(skill *models.SkillDefinition) *ValidationResult {
	result := &ValidationResult{Valid: true}
	fail := func(field, rule, msg string) {
		result.Valid = false
		result.Stage = "schema"
		result.Issues = append(result.Issues, Issue{Field: field, Rule: rule, Message: msg})
	}

	name := strings.TrimSpace(skill.Name)
	if name == "" {
		fail("name", "required", "skill name is required")
	} else if len(name) > maxNameLen {
		fail("name", "max_length", fmt.Sprintf("skill name exceeds %d characters", maxNameLen))
	}

	if len(skill.TriggerPatterns) < minPatternCount {
		fail("triggerPatterns", "min_count",
			fmt.Sprintf("at least %d trigger patterns are required", minPatternCount))
	}
	seen := make(map[string]int, len(skill.TriggerPatterns))
	for i, pattern := range skill.TriggerPatterns {
		if len(pattern) > maxPatternLen {
			fail(fmt.Sprintf("triggerPatterns[%d]", i), "max_length",
				fmt.Sprintf("trigger pattern exceeds %d characters", maxPatternLen))
		}
		// Patterns must be pairwise distinct after normalization.
		norm := strings.Join(strings.Fields(strings.ToLower(pattern)), " ")
		if j, dup := seen[norm]; dup {
			fail(fmt.Sprintf("triggerPatterns[%d]", i), "duplicate",
				fmt.Sprintf("duplicates trigger pattern %d", j))
		} else {
			seen[norm] = i
		}
	}
	if len(skill.TriggerPatterns) < 3 {
		result.Warnings = append(result.Warnings,
			"fewer than 3 trigger patterns reduce match coverage")
	}

	behavior := strings.TrimSpace(skill.BehaviorPrompt)
	switch {
	case behavior == "":
		fail("behaviorPrompt", "required", "behavior prompt is required")
	case len(behavior) > maxBehaviorLen:
		fail("behaviorPrompt", "max_length",
			fmt.Sprintf("behavior prompt exceeds %d characters", maxBehaviorLen))
	default:
		for _, pat := range injectionPatterns {
			if pat.MatchString(behavior) {
				fail("behaviorPrompt", "injection_detected",
					"behavior prompt contains a prompt-injection pattern")
				break
			}
		}
	}
	if behavior != "" && len(behavior) < 50 {
		result.Warnings = append(result.Warnings,
			"behavior prompt under 50 characters may underspecify the skill")
	}

	if len(skill.InputSchema) > 0 {
		validateInputSchema(skill.InputSchema, fail)
	}

	if !skill.OutputFormat.Valid() {
		fail("outputFormat", "invalid_value",
			fmt.Sprintf("output format %q is not supported", skill.OutputFormat))
	}

	if skill.Scheduled() {
		if err := validateCron(skill.Schedule); err != nil {
			fail("schedule", "invalid_cron", err.Error())
		}
	}
	return result
}

func validateInputSchema(raw json.RawMessage, fail func(field, rule, msg string)) {
	var schema struct {
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		fail("inputSchema", "invalid_json", "input schema is not valid JSON")
		return
	}
	if _, err := jsonschema.CompileString("input_schema.json", string(raw)); err != nil {
		fail("inputSchema", "invalid_schema", "input schema is not a valid JSON Schema")
		return
	}
	if len(schema.Properties) > maxSchemaProps {
		fail("inputSchema", "max_properties",
			fmt.Sprintf("input schema exceeds %d properties", maxSchemaProps))
	}
	for name, prop := range schema.Properties {
		if _, ok := prop["type"]; !ok {
			fail("inputSchema."+name, "missing_type", "schema property has no type")
		}
	}
}

// validateCron checks a 5-field cron expression and rejects schedules that
// would fire more often than every 15 minutes.
func validateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("schedule must be a 5-field cron expression")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	// The parser accepts any legal expression; the frequency floor is ours.
	minute := fields[0]
	switch {
	case minute == "*":
		return fmt.Errorf("schedule fires every minute; minimum interval is %d minutes", minCronIntervalM)
	case strings.HasPrefix(minute, "*/"):
		step, err := strconv.Atoi(minute[2:])
		if err != nil {
			return fmt.Errorf("invalid minute step %q", minute)
		}
		if step < minCronIntervalM {
			return fmt.Errorf("minute step %d is below the %d-minute minimum", step, minCronIntervalM)
		}
	case strings.Contains(minute, ","):
		// A fixed minute list within one hour can still violate the minimum.
		parts := strings.Split(minute, ",")
		mins := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || n > 59 {
				return fmt.Errorf("invalid minute value %q", p)
			}
			mins = append(mins, n)
		}
		for i := 1; i < len(mins); i++ {
			if mins[i]-mins[i-1] < minCronIntervalM {
				return fmt.Errorf("minute list fires more often than every %d minutes", minCronIntervalM)
			}
		}
	default:
		if _, err := strconv.Atoi(minute); err != nil {
			return fmt.Errorf("invalid minute field %q", minute)
		}
	}
	return nil
}

func findOverlaps(skill *models.SkillDefinition, existing []*models.SkillDefinition) []Conflict {
	var conflicts []Conflict
	for _, newPattern := range skill.TriggerPatterns {
		newSet := overlapTokens(newPattern)
		if len(newSet) == 0 {
			continue
		}
		for _, other := range existing {
			if other.ID == skill.ID || !other.Active {
				continue
			}
			for _, oldPattern := range other.TriggerPatterns {
				sim := jaccard(newSet, overlapTokens(oldPattern))
				if sim >= OverlapThreshold {
					conflicts = append(conflicts, Conflict{
						NewPattern:      newPattern,
						ExistingSkill:   other.Name,
						ExistingPattern: oldPattern,
						Similarity:      sim,
						Resolutions:     []string{"keep_both", "merge", "replace"},
					})
				}
			}
		}
	}
	return conflicts
}

// overlapTokens keeps lowercased alphanumeric tokens longer than 2 chars.
// Unlike the matcher's tokenizer it applies no stop-word list.
func overlapTokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(nonAlnum.ReplaceAllString(strings.ToLower(s), " ")) {
		if len(f) > 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
