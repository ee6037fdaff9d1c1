package learning

import (
	"fmt"
	"regexp"
	"strings"
)

// Clarification responses embed this marker so the next turn can resume the
// flow. It is an HTML comment, invisible in rendered output.
const markerPrefix = "<!-- learning-clarification:"
const markerSuffix = " -->"

var markerPattern = regexp.MustCompile(`<!-- learning-clarification:(.+?) -->`)

var negativeTokens = []string{"no", "nope", "never mind", "nevermind", "cancel", "stop", "forget"}

// knownServices maps capability keywords to well-known brand names so a
// bare "yes" after "shall I look into payments?" resolves sensibly.
var knownServices = map[string]string{
	"payment":   "Stripe",
	"payments":  "Stripe",
	"email":     "SendGrid",
	"sms":       "Twilio",
	"text":      "Twilio",
	"weather":   "OpenWeatherMap",
	"calendar":  "Google Calendar",
	"maps":      "Google Maps",
	"music":     "Spotify",
	"design":    "Canva",
	"translate": "DeepL",
	"slack":     "Slack",
	"github":    "GitHub",
	"crypto":    "CoinGecko",
	"stocks":    "Alpha Vantage",
}

// Marker renders the hidden marker for a capability.
func Marker(capability string) string {
	return markerPrefix + capability + markerSuffix
}

// ExtractMarker pulls the capability out of a previous assistant message,
// or "" when no marker is present.
func ExtractMarker(content string) string {
	m := markerPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ClarificationPrompt builds the user-facing clarification for a
// medium-confidence intent, with the marker embedded near the head.
func ClarificationPrompt(capability string) string {
	if LooksLikeServiceName(capability) {
		return fmt.Sprintf("%s\nIt sounds like you'd like me to learn %s. Shall I research its API and set it up?",
			Marker(capability), capability)
	}
	return fmt.Sprintf("%s\nI can learn new services for %q. Which API should I look into?",
		Marker(capability), strings.ToLower(capability))
}

// ResolveReply classifies the user's reply to a clarification. The returned
// query is the web-search query to run; ok=false aborts the flow.
func ResolveReply(capability, reply string) (query string, ok bool) {
	trimmed := strings.ToLower(strings.TrimSpace(strings.Trim(reply, ".!?,")))

	for _, neg := range negativeTokens {
		if trimmed == neg || strings.HasPrefix(trimmed, neg+" ") {
			return "", false
		}
	}

	// A reply that itself names an API or service is the query verbatim.
	if strings.Contains(trimmed, "api") || strings.Contains(trimmed, "service") {
		return strings.TrimSpace(reply), true
	}

	if isAffirmative(trimmed) {
		for keyword, brand := range knownServices {
			if strings.Contains(strings.ToLower(capability), keyword) {
				return brand + " API", true
			}
		}
		return capability + " API", true
	}

	// Short non-negative replies name the service directly.
	if len(strings.Fields(trimmed)) < 8 {
		return strings.TrimSpace(reply) + " API", true
	}
	return "", false
}

func isAffirmative(reply string) bool {
	switch reply {
	case "yes", "yeah", "yep", "sure", "ok", "okay", "please", "yes please", "go ahead", "do it", "sounds good":
		return true
	}
	return false
}
