package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kilohq/kilo/internal/cache"
	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/internal/prompt"
	"github.com/kilohq/kilo/internal/sqlguard"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/pkg/models"
)

// dismissalWindow is how far back proposal dismissals suppress re-proposing.
const dismissalWindow = 7 * 24 * time.Hour

// Loader is the data port the pipeline fans out over: the selective context
// fetchers plus tool bindings. Implementations must be safe for concurrent
// calls within one message.
type Loader interface {
	BotConfig(ctx context.Context, botID string) (*models.Bot, error)
	ActiveSkills(ctx context.Context, botID string) ([]*models.SkillDefinition, error)
	History(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	LastAssistant(ctx context.Context, sessionID string) (*models.Message, error)
	Memory(ctx context.Context, botID, userID string) ([]*models.MemoryFact, error)
	RAGChunks(ctx context.Context, botID, query string) ([]string, error)
	SkillData(ctx context.Context, bot *models.Bot, skill *models.SkillDefinition) (*prompt.Snapshot, error)
	TableSchemas(ctx context.Context, bot *models.Bot, tables []string) ([]prompt.TableSchema, error)
	Tools(ctx context.Context, botID string, names []string) ([]*models.ToolEntry, error)
	RecentDismissals(ctx context.Context, botID string) ([]string, error)
}

// StoreLoader serves the Loader port from Postgres with a cache-first read
// path for bot config, skills, and table schemas.
type StoreLoader struct {
	stores storage.StoreSet
	cache  *cache.Cache
	guard  *sqlguard.Executor
	db     *sql.DB
}

func NewStoreLoader(stores storage.StoreSet, c *cache.Cache, guard *sqlguard.Executor, db *sql.DB) *StoreLoader {
	return &StoreLoader{stores: stores, cache: c, guard: guard, db: db}
}

func (l *StoreLoader) BotConfig(ctx context.Context, botID string) (*models.Bot, error) {
	var bot models.Bot
	if l.cache.Get(ctx, cache.BotConfigKey(botID), &bot) {
		return &bot, nil
	}
	loaded, err := l.stores.Bots.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	l.cache.Set(ctx, cache.BotConfigKey(botID), loaded, cache.DefaultTTL)
	return loaded, nil
}

func (l *StoreLoader) ActiveSkills(ctx context.Context, botID string) ([]*models.SkillDefinition, error) {
	var skills []*models.SkillDefinition
	if l.cache.Get(ctx, cache.BotSkillsKey(botID), &skills) {
		return skills, nil
	}
	skills, err := l.stores.Skills.ListActive(ctx, botID)
	if err != nil {
		return nil, err
	}
	l.cache.Set(ctx, cache.BotSkillsKey(botID), skills, cache.DefaultTTL)
	return skills, nil
}

func (l *StoreLoader) History(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	return l.stores.Messages.Recent(ctx, sessionID, limit)
}

func (l *StoreLoader) LastAssistant(ctx context.Context, sessionID string) (*models.Message, error) {
	return l.stores.Messages.LastAssistant(ctx, sessionID)
}

func (l *StoreLoader) Memory(ctx context.Context, botID, userID string) ([]*models.MemoryFact, error) {
	return l.stores.Memories.List(ctx, botID, userID, 0)
}

// RAGChunks is a seam for a retrieval engine. The runtime ships none, so
// skills that request RAG context get an empty section.
func (l *StoreLoader) RAGChunks(ctx context.Context, botID, query string) ([]string, error) {
	return nil, nil
}

// SkillData previews the skill's own table through the sandboxed executor:
// newest rows first plus a total count.
func (l *StoreLoader) SkillData(ctx context.Context, bot *models.Bot, skill *models.SkillDefinition) (*prompt.Snapshot, error) {
	table := skill.DataTable
	if table == "" {
		if len(skill.ReadableTables) == 0 {
			return nil, nil
		}
		table = skill.ReadableTables[0]
	}
	allowed := append([]string{table}, skill.ReadableTables...)

	preview, err := l.guard.Query(ctx,
		fmt.Sprintf("SELECT * FROM %s ORDER BY created_at DESC LIMIT 10", table),
		bot.SchemaName, allowed)
	if err != nil {
		return nil, err
	}
	count, err := l.guard.Query(ctx,
		fmt.Sprintf("SELECT count(*) AS total FROM %s", table),
		bot.SchemaName, allowed)
	if err != nil {
		return nil, err
	}

	total := 0
	if len(count.Rows) > 0 {
		switch v := count.Rows[0]["total"].(type) {
		case int64:
			total = int(v)
		case string:
			fmt.Sscanf(v, "%d", &total)
		}
	}
	return &prompt.Snapshot{Rows: preview.Rows, Total: total}, nil
}

// TableSchemas introspects the bot schema's column layout, cache-first.
func (l *StoreLoader) TableSchemas(ctx context.Context, bot *models.Bot, tables []string) ([]prompt.TableSchema, error) {
	if len(tables) == 0 {
		return nil, nil
	}

	var all []prompt.TableSchema
	if !l.cache.Get(ctx, cache.BotSchemasKey(bot.ID), &all) {
		loaded, err := l.introspect(ctx, bot.SchemaName)
		if err != nil {
			return nil, err
		}
		all = loaded
		l.cache.Set(ctx, cache.BotSchemasKey(bot.ID), all, cache.DefaultTTL)
	}

	wanted := make(map[string]bool, len(tables))
	for _, t := range tables {
		wanted[t] = true
	}
	out := make([]prompt.TableSchema, 0, len(tables))
	for _, schema := range all {
		if wanted[schema.Name] {
			out = append(out, schema)
		}
	}
	return out, nil
}

func (l *StoreLoader) introspect(ctx context.Context, schemaName string) ([]prompt.TableSchema, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`, schemaName)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "introspect bot schema")
	}
	defer rows.Close()

	var out []prompt.TableSchema
	byName := map[string]int{}
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan column")
		}
		idx, ok := byName[table]
		if !ok {
			out = append(out, prompt.TableSchema{Name: table})
			idx = len(out) - 1
			byName[table] = idx
		}
		out[idx].Columns = append(out[idx].Columns, prompt.Column{
			Name:    column,
			Type:    dataType,
			NotNull: nullable == "NO",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "iterate columns")
	}
	return out, nil
}

// Tools loads the active bindings named by a skill's required integrations.
// Unknown names are skipped, not errors: a skill may reference an
// integration the user has not configured yet.
func (l *StoreLoader) Tools(ctx context.Context, botID string, names []string) ([]*models.ToolEntry, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]*models.ToolEntry, 0, len(names))
	for _, name := range names {
		tool, err := l.stores.Tools.GetByName(ctx, botID, name)
		if err != nil {
			if kiloerr.Is(err, kiloerr.CodeToolNotFound) {
				continue
			}
			return nil, err
		}
		if tool.Active {
			out = append(out, tool)
		}
	}
	return out, nil
}

func (l *StoreLoader) RecentDismissals(ctx context.Context, botID string) ([]string, error) {
	return l.stores.Dismissals.RecentNames(ctx, botID, time.Now().Add(-dismissalWindow))
}
