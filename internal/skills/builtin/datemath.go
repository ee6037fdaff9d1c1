package builtin

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// holidays maps well-known holiday names to (month, day). Fixed-date only;
// movable feasts are out of scope.
var holidays = map[string]struct {
	month time.Month
	day   int
}{
	"christmas":        {time.December, 25},
	"christmas eve":    {time.December, 24},
	"new year":         {time.January, 1},
	"new year's":       {time.January, 1},
	"new years":        {time.January, 1},
	"valentine's day":  {time.February, 14},
	"valentines day":   {time.February, 14},
	"halloween":        {time.October, 31},
	"independence day": {time.July, 4},
	"fourth of july":   {time.July, 4},
	"st patrick's day": {time.March, 17},
	"april fools":      {time.April, 1},
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

var (
	dateMathQuery = regexp.MustCompile(`\bdays? (until|till|since|between|ago|from now)\b|\bhow long (until|since)\b|\bnext (sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b|\bwhat (date|day) (is|was|will)\b.*\b(ago|from now|next)\b`)
	offsetExpr    = regexp.MustCompile(`(\d+)\s+(day|week|month|year)s?\s+(ago|from now)`)
	betweenExpr   = regexp.MustCompile(`days? between\s+(.+?)\s+and\s+(.+?)\??$`)
	untilExpr     = regexp.MustCompile(`(?:days? (?:until|till)|how long until)\s+(.+?)\??$`)
	sinceExpr     = regexp.MustCompile(`(?:days? since|how long since)\s+(.+?)\??$`)
	nextWeekday   = regexp.MustCompile(`next (sunday|monday|tuesday|wednesday|thursday|friday|saturday)`)
	explicitDate  = regexp.MustCompile(`(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?`)
)

type dateMathHandler struct{}

func newDateMathHandler() *dateMathHandler { return &dateMathHandler{} }

func (h *dateMathHandler) ID() string { return "builtin-date-math" }

func (h *dateMathHandler) Matches(message string) bool {
	return dateMathQuery.MatchString(message)
}

func (h *dateMathHandler) Handle(message string, now time.Time) (*Response, error) {
	lower := strings.ToLower(message)
	today := midnight(now)

	var content string
	switch {
	case betweenExpr.MatchString(lower):
		m := betweenExpr.FindStringSubmatch(lower)
		a, okA := parseDate(m[1], today)
		b, okB := parseDate(m[2], today)
		if !okA || !okB {
			content = "I couldn't parse both dates. Try something like \"days between March 1 and July 4\"."
			break
		}
		delta := absDays(a, b)
		content = fmt.Sprintf("There are **%d days** between %s and %s.",
			delta, a.Format("January 2, 2006"), b.Format("January 2, 2006"))

	case untilExpr.MatchString(lower):
		m := untilExpr.FindStringSubmatch(lower)
		target, ok := parseDate(m[1], today)
		if !ok {
			content = "I couldn't work out that date. Try a holiday name, \"next Friday\", or \"July 4\"."
			break
		}
		delta := daysBetween(today, target)
		if delta < 0 {
			// Target already passed this year; report distance to the next one.
			nextYear := target.AddDate(1, 0, 0)
			content = fmt.Sprintf("%s passed %d days ago. The next one is in **%d days** (%s).",
				titleWords(m[1]), -delta, daysBetween(today, nextYear), nextYear.Format("January 2, 2006"))
		} else {
			content = fmt.Sprintf("**%d days** until %s (%s).",
				delta, titleWords(m[1]), target.Format("January 2, 2006"))
		}

	case sinceExpr.MatchString(lower):
		m := sinceExpr.FindStringSubmatch(lower)
		target, ok := parseDate(m[1], today)
		if !ok {
			content = "I couldn't work out that date."
			break
		}
		content = fmt.Sprintf("It's been **%d days** since %s (%s).",
			absDays(today, target), titleWords(m[1]), target.Format("January 2, 2006"))

	case offsetExpr.MatchString(lower):
		m := offsetExpr.FindStringSubmatch(lower)
		n, _ := strconv.Atoi(m[1])
		target := applyOffset(today, n, m[2], m[3] == "ago")
		content = fmt.Sprintf("That's **%s**.", target.Format("Monday, January 2, 2006"))

	case nextWeekday.MatchString(lower):
		m := nextWeekday.FindStringSubmatch(lower)
		target := nextOccurrence(today, weekdays[m[1]])
		content = fmt.Sprintf("Next %s is **%s** (%d days away).",
			titleWords(m[1]), target.Format("January 2, 2006"), daysBetween(today, target))

	default:
		content = "I can compute day offsets, \"days until\", and \"days between\" questions."
	}

	return &Response{
		Content: content,
		SkillID: h.ID(),
		SuggestedActions: []string{
			"How many days until New Year?",
			"What date is 30 days from now?",
		},
	}, nil
}

// parseDate resolves a free-text date phrase against the reference day.
// Holiday names resolve to this year's occurrence even when past; the caller
// decides how to report past targets.
func parseDate(phrase string, today time.Time) (time.Time, bool) {
	phrase = strings.TrimSpace(strings.Trim(phrase, ".!?,"))

	for name, h := range holidays {
		if strings.Contains(phrase, name) {
			return time.Date(today.Year(), h.month, h.day, 0, 0, 0, 0, today.Location()), true
		}
	}
	switch phrase {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	}
	if m := nextWeekday.FindStringSubmatch(phrase); m != nil {
		return nextOccurrence(today, weekdays[m[1]]), true
	}
	if wd, ok := weekdays[phrase]; ok {
		return nextOccurrence(today, wd), true
	}
	if m := explicitDate.FindStringSubmatch(phrase); m != nil {
		day, _ := strconv.Atoi(m[2])
		year := today.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		return time.Date(year, months[m[1]], day, 0, 0, 0, 0, today.Location()), true
	}
	if m := offsetExpr.FindStringSubmatch(phrase); m != nil {
		n, _ := strconv.Atoi(m[1])
		return applyOffset(today, n, m[2], m[3] == "ago"), true
	}
	return time.Time{}, false
}

func applyOffset(today time.Time, n int, unit string, ago bool) time.Time {
	if ago {
		n = -n
	}
	switch unit {
	case "day":
		return today.AddDate(0, 0, n)
	case "week":
		return today.AddDate(0, 0, 7*n)
	case "month":
		return today.AddDate(0, n, 0)
	default:
		return today.AddDate(n, 0, 0)
	}
}

func nextOccurrence(today time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return today.AddDate(0, 0, delta)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween is b minus a in whole days on midnight-normalized values.
// Rounded, not truncated: a DST transition makes one local day 23 or 25
// hours and truncation would drop it.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func absDays(a, b time.Time) int {
	d := daysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}
