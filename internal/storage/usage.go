package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

type pgUsageStore struct {
	db *sql.DB
}

func (s *pgUsageStore) Insert(ctx context.Context, rec *models.UsageRecord) error {
	if rec == nil || rec.ID == "" {
		return kiloerr.New(kiloerr.CodeUsageTracking, "usage record is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_records
			(id, user_id, bot_id, session_id, message_id, provider, model, task_type,
			 prompt_tokens, completion_tokens, cost_usd, latency_ms, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.ID, rec.UserID, nullString(rec.BotID), nullString(rec.SessionID),
		nullString(rec.MessageID), rec.Provider, rec.Model, string(rec.TaskType),
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeUsageTracking, "insert usage record")
	}
	return nil
}

func (s *pgUsageStore) Summary(ctx context.Context, userID string, start, end time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), coalesce(sum(prompt_tokens), 0), coalesce(sum(completion_tokens), 0),
			coalesce(sum(cost_usd), 0)
		 FROM usage_records
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, start, end).
		Scan(&summary.Requests, &summary.PromptTokens, &summary.CompletionTokens, &summary.CostUSD)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeUsageTracking, "usage summary")
	}
	return summary, nil
}

// Breakdown groups a user's usage by model, bot, day, or month. The group
// expression is chosen from a fixed table, never from caller input.
func (s *pgUsageStore) Breakdown(ctx context.Context, userID, groupBy string) ([]*UsageBucket, error) {
	var keyExpr string
	switch groupBy {
	case "model":
		keyExpr = "model"
	case "bot":
		keyExpr = "coalesce(bot_id::text, '')"
	case "day":
		keyExpr = "to_char(created_at, 'YYYY-MM-DD')"
	case "month":
		keyExpr = "to_char(created_at, 'YYYY-MM')"
	default:
		return nil, kiloerr.Newf(kiloerr.CodeUsageTracking, "unsupported group %q", groupBy)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyExpr+` AS key, count(*), coalesce(sum(prompt_tokens), 0),
			coalesce(sum(completion_tokens), 0), coalesce(sum(cost_usd), 0)
		 FROM usage_records WHERE user_id = $1
		 GROUP BY key ORDER BY key`, userID)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeUsageTracking, "usage breakdown")
	}
	defer rows.Close()

	var buckets []*UsageBucket
	for rows.Next() {
		var b UsageBucket
		if err := rows.Scan(&b.Key, &b.Requests, &b.PromptTokens, &b.CompletionTokens, &b.CostUSD); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeUsageTracking, "scan usage bucket")
		}
		buckets = append(buckets, &b)
	}
	return buckets, rows.Err()
}
