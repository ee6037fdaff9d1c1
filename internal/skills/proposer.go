package skills

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kilohq/kilo/pkg/models"
)

// DismissalWindow is how long a dismissed proposal suppresses similar ones.
const DismissalWindowDays = 7

// DismissalSimilarity is the name-token Jaccard above which a past dismissal
// suppresses a new proposal.
const DismissalSimilarity = 0.6

// Repeatability signals, one regex family per category. The proposer only
// fires when at least one category matches.
var signalCategories = map[string]*regexp.Regexp{
	"temporal":    regexp.MustCompile(`(?i)\b(every (day|week|month|morning|evening|night)|daily|weekly|monthly|each (day|week|month)|always|whenever|again)\b`),
	"tracking":    regexp.MustCompile(`(?i)\b(keep track|track my|tracking|monitor|watch my|count my)\b`),
	"templating":  regexp.MustCompile(`(?i)\b(remind me|send me|tell me|notify me|alert me|message me)\b`),
	"aggregation": regexp.MustCompile(`(?i)\b(log|record|save|note down|write down|add up|total|sum)\b`),
}

var (
	trackIntent    = regexp.MustCompile(`(?i)(?:keep track of|track my)\s+(.+?)(?:\s+(?:every\s+\w+|each\s+\w+|daily|weekly|monthly))?\.?$`)
	remindIntent   = regexp.MustCompile(`(?i)remind me to\s+(.+?)\s+(?:at|every)\s+(.+?)\.?$`)
	remindIntentRv = regexp.MustCompile(`(?i)(?:at|every)\s+(.+?)\s+remind me to\s+(.+?)\.?$`)
	periodicIntent = regexp.MustCompile(`(?i)every\s+(\w+)\s+(?:send|tell)\s+me\s+(.+?)\.?$`)
	logIntent      = regexp.MustCompile(`(?i)(?:log|record) my\s+(.+?)\.?$`)
)

// timingSchedules maps coarse timing phrases to cron expressions. Ordered
// most-specific first: "day" is a substring of the weekday names and must
// only match once those are ruled out.
var timingSchedules = []struct {
	phrase string
	cron   string
}{
	{"monday", "0 9 * * 1"},
	{"tuesday", "0 9 * * 2"},
	{"wednesday", "0 9 * * 3"},
	{"thursday", "0 9 * * 4"},
	{"friday", "0 9 * * 5"},
	{"saturday", "0 9 * * 6"},
	{"sunday", "0 9 * * 0"},
	{"morning", "0 8 * * *"},
	{"evening", "0 18 * * *"},
	{"night", "0 21 * * *"},
	{"noon", "0 12 * * *"},
	{"week", "0 9 * * 1"},
	{"month", "0 9 1 * *"},
	{"hour", "0 * * * *"},
	{"day", "0 9 * * *"},
}

// Proposer turns repeatable needs expressed in conversation into structured
// skill proposals. Only consulted when no skill matched.
type Proposer struct{}

func NewProposer() *Proposer { return &Proposer{} }

// Propose inspects the message for repeatability signals and extracts a
// coarse intent. Dismissed names from the suppression window veto similar
// proposals. Returns nil when nothing proposable is found.
func (p *Proposer) Propose(message string, dismissedNames []string) *models.SkillProposal {
	signals := 0
	for _, pat := range signalCategories {
		if pat.MatchString(message) {
			signals++
		}
	}
	if signals == 0 {
		return nil
	}

	proposal := extractIntent(message)
	if proposal == nil {
		return nil
	}
	for _, dismissed := range dismissedNames {
		if jaccard(overlapTokens(proposal.Name), overlapTokens(dismissed)) >= DismissalSimilarity {
			return nil
		}
	}

	proposal.Confidence = 0.3 * float64(signals)
	if proposal.Confidence > 0.9 {
		proposal.Confidence = 0.9
	}
	return proposal
}

func extractIntent(message string) *models.SkillProposal {
	if m := remindIntent.FindStringSubmatch(message); m != nil {
		return reminderProposal(m[1], m[2])
	}
	if m := remindIntentRv.FindStringSubmatch(message); m != nil {
		return reminderProposal(m[2], m[1])
	}
	if m := periodicIntent.FindStringSubmatch(message); m != nil {
		name := titleCase(m[1] + " " + trimSubject(m[2]))
		return &models.SkillProposal{
			Name:            name,
			Description:     "Periodically sends: " + strings.TrimSpace(m[2]),
			TriggerPatterns: []string{strings.ToLower(trimSubject(m[2])), "send update"},
			Schedule:        scheduleFor(m[1]),
			OutputFormat:    models.OutputNotification,
		}
	}
	if m := trackIntent.FindStringSubmatch(message); m != nil {
		subject := trimSubject(m[1])
		return &models.SkillProposal{
			Name:            titleCase(subject) + " Tracker",
			Description:     "Tracks " + subject + " over time",
			TriggerPatterns: []string{"track " + subject, "show my " + subject},
			Fields: []models.ProposalField{
				{Name: "description", Required: true},
			},
			OutputFormat: models.OutputText,
		}
	}
	if m := logIntent.FindStringSubmatch(message); m != nil {
		subject := trimSubject(m[1])
		return &models.SkillProposal{
			Name:            titleCase(subject) + " Log",
			Description:     "Records " + subject + " entries",
			TriggerPatterns: []string{"log " + subject, "record " + subject},
			Fields: []models.ProposalField{
				{Name: "entry", Required: true},
				{Name: "date", Required: false},
			},
			OutputFormat: models.OutputText,
		}
	}
	return nil
}

func reminderProposal(task, when string) *models.SkillProposal {
	task = trimSubject(task)
	return &models.SkillProposal{
		Name:            titleCase(task) + " Reminder",
		Description:     "Reminds you to " + task,
		TriggerPatterns: []string{"remind me to " + task, task + " reminder"},
		Schedule:        scheduleFor(when),
		OutputFormat:    models.OutputNotification,
	}
}

func scheduleFor(when string) string {
	lowered := strings.ToLower(when)
	for _, entry := range timingSchedules {
		if strings.Contains(lowered, entry.phrase) {
			return entry.cron
		}
	}
	return "0 9 * * *"
}

// trimSubject drops trailing filler words and punctuation from an extracted
// subject phrase.
func trimSubject(s string) string {
	s = strings.TrimSpace(strings.Trim(s, ".!?,"))
	for _, suffix := range []string{" please", " for me", " too", " as well"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(s))
}
