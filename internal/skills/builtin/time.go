package builtin

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// cityZones maps city names and common abbreviations to IANA zones. Closed
// table; unknown cities fall back to UTC.
var cityZones = map[string]string{
	"tokyo":         "Asia/Tokyo",
	"osaka":         "Asia/Tokyo",
	"jst":           "Asia/Tokyo",
	"seoul":         "Asia/Seoul",
	"beijing":       "Asia/Shanghai",
	"shanghai":      "Asia/Shanghai",
	"hong kong":     "Asia/Hong_Kong",
	"singapore":     "Asia/Singapore",
	"mumbai":        "Asia/Kolkata",
	"delhi":         "Asia/Kolkata",
	"ist":           "Asia/Kolkata",
	"dubai":         "Asia/Dubai",
	"moscow":        "Europe/Moscow",
	"istanbul":      "Europe/Istanbul",
	"athens":        "Europe/Athens",
	"cairo":         "Africa/Cairo",
	"johannesburg":  "Africa/Johannesburg",
	"berlin":        "Europe/Berlin",
	"munich":        "Europe/Berlin",
	"paris":         "Europe/Paris",
	"madrid":        "Europe/Madrid",
	"rome":          "Europe/Rome",
	"amsterdam":     "Europe/Amsterdam",
	"zurich":        "Europe/Zurich",
	"stockholm":     "Europe/Stockholm",
	"cet":           "Europe/Paris",
	"london":        "Europe/London",
	"dublin":        "Europe/Dublin",
	"gmt":           "Europe/London",
	"bst":           "Europe/London",
	"utc":           "UTC",
	"new york":      "America/New_York",
	"nyc":           "America/New_York",
	"boston":        "America/New_York",
	"miami":         "America/New_York",
	"toronto":       "America/Toronto",
	"est":           "America/New_York",
	"edt":           "America/New_York",
	"chicago":       "America/Chicago",
	"dallas":        "America/Chicago",
	"cst":           "America/Chicago",
	"denver":        "America/Denver",
	"mst":           "America/Denver",
	"los angeles":   "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"pst":           "America/Los_Angeles",
	"pdt":           "America/Los_Angeles",
	"mexico city":   "America/Mexico_City",
	"sao paulo":     "America/Sao_Paulo",
	"buenos aires":  "America/Argentina/Buenos_Aires",
	"sydney":        "Australia/Sydney",
	"melbourne":     "Australia/Melbourne",
	"auckland":      "Pacific/Auckland",
	"honolulu":      "Pacific/Honolulu",
}

var timeQuery = regexp.MustCompile(`\bwhat('?s| is)? (the )?(time|day|date)\b|\btime is it\b|\bcurrent (time|date)\b|\btoday'?s date\b|\bwhat day is\b`)

type timeHandler struct{}

func newTimeHandler() *timeHandler { return &timeHandler{} }

func (h *timeHandler) ID() string { return "builtin-time" }

func (h *timeHandler) Matches(message string) bool {
	return timeQuery.MatchString(message)
}

func (h *timeHandler) Handle(message string, now time.Time) (*Response, error) {
	lower := strings.ToLower(message)
	zoneName, zoneLabel := extractZone(lower)
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		loc = time.UTC
		zoneName = "UTC"
	}
	local := now.In(loc)

	var content string
	if wantsDay(lower) {
		content = fmt.Sprintf("It's **%s** in %s (%s).",
			local.Format("Monday, January 2, 2006"), zoneLabel, zoneName)
	} else {
		content = fmt.Sprintf("It's **%s** in %s (%s).",
			local.Format("3:04 PM"), zoneLabel, zoneName)
	}
	return &Response{
		Content: content,
		SkillID: h.ID(),
		SuggestedActions: []string{
			"What's the date today?",
			"What time is it in London?",
		},
	}, nil
}

// wantsDay distinguishes "what day/date" from "what time".
func wantsDay(message string) bool {
	if strings.Contains(message, "time") {
		return false
	}
	return strings.Contains(message, "day") || strings.Contains(message, "date")
}

// extractZone returns the IANA zone and a display label for the first known
// city or abbreviation in the message. Longer names are checked first so
// "new york" wins over a hypothetical "york".
func extractZone(message string) (zone, label string) {
	bestLen := 0
	zone, label = "UTC", "UTC"
	for name, z := range cityZones {
		if len(name) <= bestLen {
			continue
		}
		if containsWord(message, name) {
			zone = z
			bestLen = len(name)
			if len(name) <= 4 && name == strings.ToLower(name) {
				label = strings.ToUpper(name)
			} else {
				label = titleWords(name)
			}
		}
	}
	return zone, label
}

func containsWord(haystack, needle string) bool {
	idx := strings.Index(haystack, needle)
	for idx >= 0 {
		before := idx == 0 || !isWordChar(haystack[idx-1])
		afterIdx := idx + len(needle)
		after := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], needle)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
