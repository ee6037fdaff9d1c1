package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

// OpenDB opens and pings a Postgres pool. Callers that need raw pool access
// (DDL generation, guarded skill-data queries) share this handle with the
// store set.
func OpenDB(dsn string, maxConns int) (*sql.DB, error) {
	if dsn == "" {
		return nil, kiloerr.New(kiloerr.CodeDatabase, "database URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "open database")
	}
	if maxConns <= 0 {
		maxConns = 20
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "ping database")
	}
	return db, nil
}

// NewPostgresStores opens a pool and returns the full store set.
func NewPostgresStores(dsn string, maxConns int) (StoreSet, error) {
	db, err := OpenDB(dsn, maxConns)
	if err != nil {
		return StoreSet{}, err
	}
	return NewStoresFromDB(db), nil
}

// NewStoresFromDB builds the store set over an existing pool. The pool is
// closed by StoreSet.Close.
func NewStoresFromDB(db *sql.DB) StoreSet {
	return StoreSet{
		Bots:       &pgBotStore{db: db},
		Skills:     &pgSkillStore{db: db},
		Tools:      &pgToolStore{db: db},
		Messages:   &pgMessageStore{db: db},
		Memories:   &pgMemoryStore{db: db},
		Pricing:    &pgPricingStore{db: db},
		Usage:      &pgUsageStore{db: db},
		Dismissals: &pgDismissalStore{db: db},
		closer:     db.Close,
	}
}

type pgBotStore struct {
	db *sql.DB
}

// Create inserts the bot row and creates its dedicated schema in one
// transaction, so a failed schema never leaves an orphan row.
func (s *pgBotStore) Create(ctx context.Context, bot *models.Bot) error {
	if bot == nil || bot.ID == "" {
		return kiloerr.New(kiloerr.CodeDatabase, "bot is required")
	}
	if bot.SchemaName == "" {
		bot.SchemaName = models.BotSchemaName(bot.ID)
	}
	soul, err := marshalSoul(bot.Soul)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "begin create bot")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bots (id, user_id, name, personality, soul, schema_name, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		bot.ID, bot.UserID, bot.Name, bot.Personality, soul, bot.SchemaName,
		bot.CreatedAt, bot.UpdatedAt,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "insert bot")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", pq.QuoteIdentifier(bot.SchemaName))); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeSchemaCreation, "create bot schema")
	}
	if err := tx.Commit(); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "commit create bot")
	}
	return nil
}

func (s *pgBotStore) Get(ctx context.Context, id string) (*models.Bot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, personality, soul, schema_name, created_at, updated_at
		 FROM bots WHERE id = $1`, id)
	return scanBot(row)
}

func (s *pgBotStore) List(ctx context.Context, userID string) ([]*models.Bot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, personality, soul, schema_name, created_at, updated_at
		 FROM bots WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "list bots")
	}
	defer rows.Close()

	var bots []*models.Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

func (s *pgBotStore) Update(ctx context.Context, bot *models.Bot) error {
	soul, err := marshalSoul(bot.Soul)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bots SET name = $2, personality = $3, soul = $4, updated_at = now() WHERE id = $1`,
		bot.ID, bot.Name, bot.Personality, soul)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "update bot")
	}
	return requireRow(res, kiloerr.CodeBotNotFound, "bot not found")
}

// Delete drops the bot's schema cascade and the row in one transaction.
func (s *pgBotStore) Delete(ctx context.Context, id string) error {
	bot, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "begin delete bot")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pq.QuoteIdentifier(bot.SchemaName))); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "drop bot schema")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bots WHERE id = $1`, id); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "delete bot")
	}
	if err := tx.Commit(); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "commit delete bot")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*models.Bot, error) {
	var bot models.Bot
	var soul []byte
	err := row.Scan(&bot.ID, &bot.UserID, &bot.Name, &bot.Personality, &soul,
		&bot.SchemaName, &bot.CreatedAt, &bot.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, kiloerr.New(kiloerr.CodeBotNotFound, "bot not found")
	}
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan bot")
	}
	if len(soul) > 0 {
		bot.Soul = &models.Soul{}
		if err := json.Unmarshal(soul, bot.Soul); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "decode soul")
		}
		if bot.Soul.Empty() {
			bot.Soul = nil
		}
	}
	return &bot, nil
}

func marshalSoul(soul *models.Soul) ([]byte, error) {
	if soul.Empty() {
		return nil, nil
	}
	payload, err := json.Marshal(soul)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "encode soul")
	}
	return payload, nil
}

func requireRow(res sql.Result, code kiloerr.Code, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "rows affected")
	}
	if n == 0 {
		return kiloerr.New(code, msg)
	}
	return nil
}
