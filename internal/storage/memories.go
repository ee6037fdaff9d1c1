package storage

import (
	"context"
	"database/sql"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

type pgMemoryStore struct {
	db *sql.DB
}

// Upsert writes a fact keyed by (bot_id, user_id, key). A repeated key
// replaces the value only when the new confidence is at least as high.
func (s *pgMemoryStore) Upsert(ctx context.Context, fact *models.MemoryFact) error {
	if fact == nil || fact.Key == "" {
		return kiloerr.New(kiloerr.CodeDatabase, "memory fact is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, bot_id, user_id, key, value, source, confidence, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (bot_id, user_id, key) DO UPDATE
		 SET value = EXCLUDED.value, source = EXCLUDED.source, confidence = EXCLUDED.confidence
		 WHERE memories.confidence <= EXCLUDED.confidence`,
		fact.ID, fact.BotID, fact.UserID, fact.Key, fact.Value,
		string(fact.Source), fact.Confidence, fact.CreatedAt,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "upsert memory")
	}
	return nil
}

// List returns the most recent facts for a bot's user, newest first.
func (s *pgMemoryStore) List(ctx context.Context, botID, userID string, limit int) ([]*models.MemoryFact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bot_id, user_id, key, value, source, confidence, created_at
		 FROM memories WHERE bot_id = $1 AND user_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		botID, userID, limit)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "list memories")
	}
	defer rows.Close()

	var facts []*models.MemoryFact
	for rows.Next() {
		var fact models.MemoryFact
		var source string
		err := rows.Scan(&fact.ID, &fact.BotID, &fact.UserID, &fact.Key, &fact.Value,
			&source, &fact.Confidence, &fact.CreatedAt)
		if err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan memory")
		}
		fact.Source = models.MemorySource(source)
		facts = append(facts, &fact)
	}
	return facts, rows.Err()
}
