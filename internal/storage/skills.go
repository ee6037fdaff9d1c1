package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

type pgSkillStore struct {
	db *sql.DB
}

const skillColumns = `id, bot_id, name, description, trigger_patterns, behavior_prompt,
	input_schema, output_format, schedule, data_table, readable_tables, generated_ddl,
	required_integrations, created_by, version, performance_score, active, created_at, updated_at`

func (s *pgSkillStore) Create(ctx context.Context, skill *models.SkillDefinition) error {
	if skill == nil || skill.ID == "" {
		return kiloerr.New(kiloerr.CodeDatabase, "skill is required")
	}
	if skill.Version == 0 {
		skill.Version = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skills (`+skillColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		skill.ID, skill.BotID, skill.Name, skill.Description,
		pq.Array(skill.TriggerPatterns), skill.BehaviorPrompt,
		nullJSON(skill.InputSchema), string(skill.OutputFormat), nullString(skill.Schedule),
		nullString(skill.DataTable), pq.Array(skill.ReadableTables), nullString(skill.GeneratedDDL),
		pq.Array(skill.RequiredIntegrations), string(skill.CreatedBy),
		skill.Version, skill.PerformanceScore, skill.Active,
		skill.CreatedAt, skill.UpdatedAt,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "insert skill")
	}
	return nil
}

func (s *pgSkillStore) Get(ctx context.Context, id string) (*models.SkillDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = $1`, id)
	return scanSkill(row)
}

func (s *pgSkillStore) ListActive(ctx context.Context, botID string) ([]*models.SkillDefinition, error) {
	return s.list(ctx, `SELECT `+skillColumns+` FROM skills WHERE bot_id = $1 AND active ORDER BY created_at`, botID)
}

func (s *pgSkillStore) List(ctx context.Context, botID string) ([]*models.SkillDefinition, error) {
	return s.list(ctx, `SELECT `+skillColumns+` FROM skills WHERE bot_id = $1 ORDER BY created_at`, botID)
}

func (s *pgSkillStore) list(ctx context.Context, query, botID string) ([]*models.SkillDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, botID)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "list skills")
	}
	defer rows.Close()

	var skills []*models.SkillDefinition
	for rows.Next() {
		skill, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

func (s *pgSkillStore) CountByBot(ctx context.Context, botID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM skills WHERE bot_id = $1`, botID).Scan(&n)
	if err != nil {
		return 0, kiloerr.Wrap(err, kiloerr.CodeDatabase, "count skills")
	}
	return n, nil
}

// Update rewrites the mutable fields and bumps version monotonically.
func (s *pgSkillStore) Update(ctx context.Context, skill *models.SkillDefinition) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE skills SET
			name = $2, description = $3, trigger_patterns = $4, behavior_prompt = $5,
			input_schema = $6, output_format = $7, schedule = $8, data_table = $9,
			readable_tables = $10, generated_ddl = $11, required_integrations = $12,
			performance_score = $13, active = $14,
			version = version + 1, updated_at = now()
		 WHERE id = $1`,
		skill.ID, skill.Name, skill.Description, pq.Array(skill.TriggerPatterns),
		skill.BehaviorPrompt, nullJSON(skill.InputSchema), string(skill.OutputFormat),
		nullString(skill.Schedule), nullString(skill.DataTable),
		pq.Array(skill.ReadableTables), nullString(skill.GeneratedDDL),
		pq.Array(skill.RequiredIntegrations), skill.PerformanceScore, skill.Active,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "update skill")
	}
	return requireRow(res, kiloerr.CodeSkillNotFound, "skill not found")
}

func (s *pgSkillStore) Delete(ctx context.Context, id string) error {
	// messages.skill_id is ON DELETE SET NULL, so history survives.
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = $1`, id)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "delete skill")
	}
	return requireRow(res, kiloerr.CodeSkillNotFound, "skill not found")
}

func scanSkill(row rowScanner) (*models.SkillDefinition, error) {
	var skill models.SkillDefinition
	var inputSchema []byte
	var outputFormat, createdBy string
	var schedule, dataTable, ddl sql.NullString
	var triggers, readable, integrations []string

	err := row.Scan(
		&skill.ID, &skill.BotID, &skill.Name, &skill.Description,
		pq.Array(&triggers), &skill.BehaviorPrompt,
		&inputSchema, &outputFormat, &schedule,
		&dataTable, pq.Array(&readable), &ddl,
		pq.Array(&integrations), &createdBy,
		&skill.Version, &skill.PerformanceScore, &skill.Active,
		&skill.CreatedAt, &skill.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, kiloerr.New(kiloerr.CodeSkillNotFound, "skill not found")
	}
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan skill")
	}

	skill.TriggerPatterns = triggers
	skill.ReadableTables = readable
	skill.RequiredIntegrations = integrations
	skill.InputSchema = json.RawMessage(inputSchema)
	skill.OutputFormat = models.OutputFormat(outputFormat)
	skill.CreatedBy = models.SkillProvenance(createdBy)
	skill.Schedule = schedule.String
	skill.DataTable = dataTable.String
	skill.GeneratedDDL = ddl.String
	return &skill, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
