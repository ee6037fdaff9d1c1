package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

type pgMessageStore struct {
	db *sql.DB
}

// Create persists one turn. Built-in skill identifiers are not rows in the
// skills table, so they are nulled before the write; the builtin ID lives
// only on the in-flight response.
func (s *pgMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return kiloerr.New(kiloerr.CodeDatabase, "message is required")
	}

	var skillID any
	if msg.SkillID != nil && !models.IsBuiltinSkillID(*msg.SkillID) {
		skillID = *msg.SkillID
	}

	var attachments any
	if len(msg.Attachments) > 0 {
		encoded, err := json.Marshal(msg.Attachments)
		if err != nil {
			return kiloerr.Wrap(err, kiloerr.CodeDatabase, "encode attachments")
		}
		attachments = encoded
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, bot_id, role, content, attachments, skill_id, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		msg.ID, msg.SessionID, msg.BotID, string(msg.Role), msg.Content,
		attachments, skillID, msg.CreatedAt,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "insert message")
	}
	return nil
}

// Recent returns up to limit turns for a session in chronological order.
func (s *pgMessageStore) Recent(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, bot_id, role, content, attachments, skill_id, created_at
		 FROM messages WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "load history")
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "iterate history")
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LastAssistant returns the most recent assistant turn, or nil when the
// session has none.
func (s *pgMessageStore) LastAssistant(ctx context.Context, sessionID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, bot_id, role, content, attachments, skill_id, created_at
		 FROM messages WHERE session_id = $1 AND role = 'assistant'
		 ORDER BY created_at DESC LIMIT 1`, sessionID)
	msg, err := scanMessage(row)
	if kiloerr.Is(err, kiloerr.CodeDatabase) {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return msg, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var role string
	var attachments []byte
	var skillID sql.NullString

	err := row.Scan(&msg.ID, &msg.SessionID, &msg.BotID, &role, &msg.Content,
		&attachments, &skillID, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan message")
	}

	msg.Role = models.Role(role)
	if skillID.Valid {
		msg.SkillID = &skillID.String
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "decode attachments")
		}
	}
	return &msg, nil
}
