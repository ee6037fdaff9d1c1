package cache

import (
	"context"
	"testing"
	"time"
)

func TestKeyBuilders(t *testing.T) {
	if got := BotConfigKey("b1"); got != "bot:b1:config" {
		t.Errorf("BotConfigKey = %q", got)
	}
	if got := BotSkillsKey("b1"); got != "bot:b1:skills" {
		t.Errorf("BotSkillsKey = %q", got)
	}
	if got := BotSchemasKey("b1"); got != "bot:b1:schemas" {
		t.Errorf("BotSchemasKey = %q", got)
	}
	if got := PricingKey("claude-sonnet-4"); got != "pricing:claude-sonnet-4" {
		t.Errorf("PricingKey = %q", got)
	}
}

func TestDisabledCacheIsSafe(t *testing.T) {
	c, err := New("", nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	var out map[string]any
	if c.Get(ctx, "k", &out) {
		t.Error("disabled cache reported a hit")
	}
	c.Set(ctx, "k", map[string]any{"a": 1}, time.Minute)
	c.InvalidateBot(ctx, "b1")
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	var nilCache *Cache
	if nilCache.Get(ctx, "k", &out) {
		t.Error("nil cache reported a hit")
	}
	nilCache.Set(ctx, "k", 1, 0)
}

func TestReviveTimestamps(t *testing.T) {
	stamp := "2026-01-02T15:04:05Z"
	want, _ := time.Parse(time.RFC3339, stamp)

	m := map[string]any{
		"created_at": stamp,
		"name":       "not a date",
		"nested":     map[string]any{"updated_at": "2026-06-15T12:00:00.123+02:00"},
		"list":       []any{stamp, "plain"},
		"count":      float64(3),
	}
	reviveTimestamps(&m)

	if got, ok := m["created_at"].(time.Time); !ok || !got.Equal(want) {
		t.Errorf("created_at = %#v, want %v", m["created_at"], want)
	}
	if _, ok := m["name"].(string); !ok {
		t.Errorf("name revived incorrectly: %#v", m["name"])
	}
	nested := m["nested"].(map[string]any)
	if _, ok := nested["updated_at"].(time.Time); !ok {
		t.Errorf("nested updated_at not revived: %#v", nested["updated_at"])
	}
	list := m["list"].([]any)
	if _, ok := list[0].(time.Time); !ok {
		t.Errorf("list[0] not revived: %#v", list[0])
	}
	if list[1] != "plain" {
		t.Errorf("list[1] = %#v", list[1])
	}
}

func TestIsoTimestampShape(t *testing.T) {
	matches := []string{
		"2026-01-02T15:04:05Z",
		"2026-01-02T15:04:05.999Z",
		"2026-01-02T15:04:05+05:30",
	}
	for _, s := range matches {
		if !isoTimestamp.MatchString(s) {
			t.Errorf("%q should look like a timestamp", s)
		}
	}
	nonMatches := []string{
		"2026-01-02",
		"15:04:05",
		"not a date",
		"2026-01-02T15:04:05",
		"99999-01-02T15:04:05Z",
	}
	for _, s := range nonMatches {
		if isoTimestamp.MatchString(s) {
			t.Errorf("%q should not look like a timestamp", s)
		}
	}
}
