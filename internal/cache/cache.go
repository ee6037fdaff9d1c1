// Package cache is a write-through JSON cache over Redis for bot config,
// active skills, table schemas, and model pricing.
//
// Every operation is bounded by a 100 ms timeout; on timeout or error the
// caller falls through to the source of truth. Explicit invalidation is the
// primary freshness mechanism, TTLs are the safety net.
package cache

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilohq/kilo/internal/observability"
)

const (
	// OpTimeout is the hard ceiling on any single cache operation.
	OpTimeout = 100 * time.Millisecond

	// DefaultTTL is the safety-net expiry for bot-scoped entries.
	DefaultTTL = time.Hour

	// PricingTTL is the expiry for model pricing entries.
	PricingTTL = 24 * time.Hour
)

// Cache wraps a Redis client. A nil Cache (or one whose backend is down)
// degrades to a no-op: reads miss, writes vanish.
type Cache struct {
	client  *redis.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New connects to Redis from a URL. An empty URL yields a disabled cache.
func New(url string, logger *observability.Logger, metrics *observability.Metrics) (*Cache, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	c := &Cache{logger: logger, metrics: metrics}
	if url == "" {
		return c, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	c.client = redis.NewClient(opts)
	return c, nil
}

// Close releases the underlying client. Safe on a disabled cache.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Key builders. A bot's freshness triple is (config, skills, schemas).

func BotConfigKey(botID string) string  { return "bot:" + botID + ":config" }
func BotSkillsKey(botID string) string  { return "bot:" + botID + ":skills" }
func BotSchemasKey(botID string) string { return "bot:" + botID + ":schemas" }
func PricingKey(model string) string    { return "pricing:" + model }

// Get reads a key into dest. Returns false on miss, timeout, decode failure,
// or any backend error; the caller then loads from the source of truth.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.count("get", "miss")
		return false
	}
	if err != nil {
		c.count("get", "error")
		c.logger.Warn(ctx, "cache get failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.count("get", "error")
		c.logger.Warn(ctx, "cache entry undecodable", "key", key, "error", err)
		return false
	}
	reviveTimestamps(dest)
	c.count("get", "hit")
	return true
}

// Set serializes value as JSON under key with the given TTL. Failures are
// logged and swallowed; the next read falls through to the database.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.count("set", "error")
		c.logger.Warn(ctx, "cache set failed", "key", key, "error", err)
		return
	}
	c.count("set", "ok")
}

// InvalidateBot deletes the bot's freshness triple in a single DEL, so no
// reader can observe a partially invalidated bot.
func (c *Cache) InvalidateBot(ctx context.Context, botID string) {
	c.Invalidate(ctx, BotConfigKey(botID), BotSkillsKey(botID), BotSchemasKey(botID))
}

// Invalidate deletes the given keys in one command.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, OpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.count("invalidate", "error")
		c.logger.Warn(ctx, "cache invalidate failed", "keys", len(keys), "error", err)
		return
	}
	c.count("invalidate", "ok")
}

func (c *Cache) count(op, result string) {
	if c.metrics != nil {
		c.metrics.CacheOps.WithLabelValues(op, result).Inc()
	}
}

// isoTimestamp recognizes RFC 3339-shaped strings for revival.
var isoTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})$`)

// reviveTimestamps walks decoded generic JSON and converts ISO-8601-looking
// strings back into time.Time. Typed destinations already get this from
// encoding/json; only map/any destinations need the walk.
func reviveTimestamps(dest any) {
	switch v := dest.(type) {
	case *any:
		*v = reviveValue(*v)
	case *map[string]any:
		for key, val := range *v {
			(*v)[key] = reviveValue(val)
		}
	case *[]any:
		for i, val := range *v {
			(*v)[i] = reviveValue(val)
		}
	}
}

func reviveValue(v any) any {
	switch val := v.(type) {
	case string:
		if isoTimestamp.MatchString(val) {
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				return ts
			}
		}
		return val
	case map[string]any:
		for k, inner := range val {
			val[k] = reviveValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = reviveValue(inner)
		}
		return val
	default:
		return v
	}
}
