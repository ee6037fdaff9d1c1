package builtin

import (
	"math"
	"regexp"
	"strings"
	"testing"
	"time"
)

var pinned = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func handle(t *testing.T, message string) *Response {
	t.Helper()
	reg := NewRegistry()
	h := reg.Match(strings.ToLower(message))
	if h == nil {
		t.Fatalf("no builtin handler matched %q", message)
	}
	resp, err := h.Handle(strings.ToLower(message), pinned)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return resp
}

func TestTimeInTokyo(t *testing.T) {
	resp := handle(t, "what time is it in Tokyo?")
	if resp.SkillID != "builtin-time" {
		t.Errorf("skill = %q", resp.SkillID)
	}
	if !regexp.MustCompile(`It's \*\*.+\*\*`).MatchString(resp.Content) {
		t.Errorf("content = %q, want bold time", resp.Content)
	}
	if !strings.Contains(resp.Content, "Asia/Tokyo") {
		t.Errorf("content = %q, want zone name", resp.Content)
	}
}

func TestTimeDistinguishesDayFromTime(t *testing.T) {
	resp := handle(t, "what day is it in London?")
	if !strings.Contains(resp.Content, "Monday") {
		t.Errorf("content = %q, want weekday for a day query", resp.Content)
	}
	resp = handle(t, "what time is it in London?")
	if strings.Contains(resp.Content, "Monday") {
		t.Errorf("content = %q, time query should not print weekday", resp.Content)
	}
}

func TestDaysUntilChristmas(t *testing.T) {
	resp := handle(t, "how many days until Christmas?")
	if resp.SkillID != "builtin-date-math" {
		t.Errorf("skill = %q", resp.SkillID)
	}
	if !strings.Contains(resp.Content, "**193 days**") {
		t.Errorf("content = %q, want **193 days**", resp.Content)
	}
}

func TestDaysUntilPastDateReportsNextYear(t *testing.T) {
	// April fools 2026 passed before the pinned clock.
	resp := handle(t, "how many days until april fools?")
	if !strings.Contains(resp.Content, "passed") || !strings.Contains(resp.Content, "next one") {
		t.Errorf("content = %q, want past-date phrasing", resp.Content)
	}
}

func TestDaysBetween(t *testing.T) {
	resp := handle(t, "days between March 1 and July 4?")
	if !strings.Contains(resp.Content, "**125 days**") {
		t.Errorf("content = %q, want **125 days**", resp.Content)
	}
}

func TestNextFriday(t *testing.T) {
	// 2026-06-15 is a Monday; next Friday is June 19.
	resp := handle(t, "when is next friday?")
	if !strings.Contains(resp.Content, "June 19, 2026") {
		t.Errorf("content = %q, want June 19, 2026", resp.Content)
	}
}

func TestOffsetFromNow(t *testing.T) {
	resp := handle(t, "what date is 30 days from now?")
	if !strings.Contains(resp.Content, "July 15, 2026") {
		t.Errorf("content = %q, want July 15, 2026", resp.Content)
	}
}

func TestRandomUUID(t *testing.T) {
	resp := handle(t, "generate a uuid")
	if resp.SkillID != "builtin-random" {
		t.Errorf("skill = %q", resp.SkillID)
	}
	uuidRe := regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}`)
	if !uuidRe.MatchString(resp.Content) {
		t.Errorf("content = %q, want a v4 UUID", resp.Content)
	}
}

func TestRandomIntRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		n, err := randomInt(-3, 3)
		if err != nil {
			t.Fatalf("randomInt: %v", err)
		}
		if n < -3 || n > 3 {
			t.Fatalf("n = %d out of range", n)
		}
	}
}

func TestRandomIntFullInt64Range(t *testing.T) {
	// hi-lo wraps to -1 here; the span covers all of uint64 and must not
	// be fed to the rejection-sampling modulus.
	for i := 0; i < 20; i++ {
		if _, err := randomInt(math.MinInt64, math.MaxInt64); err != nil {
			t.Fatalf("randomInt: %v", err)
		}
	}
	resp := handle(t, "random number between -9223372036854775808 and 9223372036854775807")
	if !strings.Contains(resp.Content, "Your random number") {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestDaysBetweenSpansSpringForward(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("zone data unavailable: %v", err)
	}
	// US DST starts March 8 2026; the local day is 23 hours long.
	a := time.Date(2026, time.March, 7, 0, 0, 0, 0, loc)
	b := time.Date(2026, time.March, 9, 0, 0, 0, 0, loc)
	if got := daysBetween(a, b); got != 2 {
		t.Errorf("daysBetween = %d, want 2", got)
	}
	// And the 25-hour fall-back day in the other direction.
	a = time.Date(2026, time.October, 31, 0, 0, 0, 0, loc)
	b = time.Date(2026, time.November, 2, 0, 0, 0, 0, loc)
	if got := daysBetween(a, b); got != 2 {
		t.Errorf("daysBetween across fall back = %d, want 2", got)
	}
}

func TestPasswordLengthClamped(t *testing.T) {
	resp := handle(t, "generate a password")
	if !strings.Contains(resp.Content, "16-character") {
		t.Errorf("content = %q, want default length", resp.Content)
	}
	resp = handle(t, "make me a 4 character password")
	if !strings.Contains(resp.Content, "8-character") {
		t.Errorf("content = %q, want clamped minimum", resp.Content)
	}
}

func TestDateMathWinsOverTimeHandler(t *testing.T) {
	resp := handle(t, "how many days until christmas?")
	if resp.SkillID != "builtin-date-math" {
		t.Errorf("skill = %q, want builtin-date-math", resp.SkillID)
	}
}

func TestNoMatchForPlainConversation(t *testing.T) {
	if h := NewRegistry().Match("tell me about the weather"); h != nil {
		t.Fatalf("unexpected builtin match: %v", h.ID())
	}
}
