// Package schemagen turns a skill's input JSON-Schema into a relational
// table inside the owning bot's namespaced Postgres schema.
package schemagen

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/kilohq/kilo/internal/kiloerr"
)

// Column is one generated column of a skill data table.
type Column struct {
	Name     string
	SQLType  string
	NotNull  bool
	Check    string // optional CHECK expression for enum-backed columns
	Indexed  bool
	JSONType string // source JSON-Schema type, for diagnostics
}

// TablePlan is the resolved DDL for a skill data table.
type TablePlan struct {
	SchemaName string
	TableName  string
	Columns    []Column
	DDL        []string // CREATE TABLE followed by CREATE INDEX statements
}

// propertySchema is the subset of JSON-Schema the generator understands.
type propertySchema struct {
	Type   string   `json:"type"`
	Format string   `json:"format"`
	Enum   []string `json:"enum"`
}

type inputSchema struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// mapColumnType translates one JSON-Schema property to a SQL type and an
// optional CHECK constraint.
func mapColumnType(name string, prop propertySchema) (sqlType, check string) {
	switch prop.Type {
	case "string":
		switch {
		case prop.Format == "date":
			return "DATE", ""
		case prop.Format == "date-time":
			return "TIMESTAMPTZ", ""
		case len(prop.Enum) > 0:
			quoted := make([]string, len(prop.Enum))
			for i, v := range prop.Enum {
				quoted[i] = pq.QuoteLiteral(v)
			}
			return "TEXT", fmt.Sprintf("%s IN (%s)", pq.QuoteIdentifier(name), strings.Join(quoted, ", "))
		default:
			return "TEXT", ""
		}
	case "integer":
		return "INTEGER", ""
	case "number":
		return "DOUBLE PRECISION", ""
	case "boolean":
		return "BOOLEAN", ""
	case "array", "object":
		return "JSONB", ""
	default:
		return "JSONB", ""
	}
}

// scalarType reports whether a mapped SQL type can carry a b-tree index
// under the generator's index policy.
func scalarType(sqlType string) bool {
	return sqlType != "JSONB"
}

// Plan resolves the table plan for a skill without touching the database.
// The table name is the base name; collision handling happens in
// CreateSkillTable where the schema contents are visible.
func Plan(schemaName, skillName, skillID string, rawSchema json.RawMessage) (*TablePlan, error) {
	var parsed inputSchema
	if len(rawSchema) > 0 {
		if err := json.Unmarshal(rawSchema, &parsed); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeSchemaCreation, "parse input schema")
		}
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, r := range parsed.Required {
		required[r] = true
	}

	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]Column, 0, len(names))
	seen := map[string]bool{"id": true, "created_at": true, "updated_at": true, "skill_id": true}
	for _, name := range names {
		var prop propertySchema
		if err := json.Unmarshal(parsed.Properties[name], &prop); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeSchemaCreation, "parse property "+name)
		}
		ident := SanitizeIdentifier(name)
		for seen[ident] {
			ident = ident + "_x"
			if len(ident) > maxIdentifierLen {
				ident = ident[:maxIdentifierLen]
			}
		}
		seen[ident] = true

		sqlType, check := mapColumnType(ident, prop)
		col := Column{
			Name:     ident,
			SQLType:  sqlType,
			NotNull:  required[name],
			Check:    check,
			JSONType: prop.Type,
		}
		// Index dates and required fields, but only scalar columns.
		if scalarType(sqlType) && (sqlType == "DATE" || sqlType == "TIMESTAMPTZ" || col.NotNull) {
			col.Indexed = true
		}
		columns = append(columns, col)
	}

	return &TablePlan{
		SchemaName: schemaName,
		TableName:  baseTableName(skillName),
		Columns:    columns,
	}, nil
}

// buildDDL renders the CREATE TABLE and CREATE INDEX statements for a plan.
func buildDDL(plan *TablePlan) []string {
	qualified := pq.QuoteIdentifier(plan.SchemaName) + "." + pq.QuoteIdentifier(plan.TableName)

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(qualified)
	b.WriteString(" (\n")
	b.WriteString("  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),\n")
	b.WriteString("  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	b.WriteString("  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	b.WriteString("  skill_id UUID NOT NULL")

	for _, col := range plan.Columns {
		b.WriteString(",\n  ")
		b.WriteString(pq.QuoteIdentifier(col.Name))
		b.WriteString(" ")
		b.WriteString(col.SQLType)
		if col.NotNull {
			b.WriteString(" NOT NULL")
		}
		if col.Check != "" {
			b.WriteString(" CHECK (" + col.Check + ")")
		}
	}
	b.WriteString("\n)")

	stmts := []string{b.String()}
	for _, col := range plan.Columns {
		if !col.Indexed {
			continue
		}
		idx := fmt.Sprintf("idx_%s_%s", plan.TableName, col.Name)
		if len(idx) > maxIdentifierLen {
			idx = idx[:maxIdentifierLen]
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX %s ON %s (%s)",
			pq.QuoteIdentifier(idx), qualified, pq.QuoteIdentifier(col.Name),
		))
	}
	return stmts
}

// Generator creates and evolves skill data tables.
type Generator struct {
	db *sql.DB
}

// NewGenerator wires a generator to the shared connection pool.
func NewGenerator(db *sql.DB) *Generator {
	return &Generator{db: db}
}

// CreateSkillTable creates the table for a skill inside the bot schema and
// returns the final plan, including the collision-resolved table name and
// the DDL snapshot. On name collision it retries with _2 through _100.
func (g *Generator) CreateSkillTable(ctx context.Context, schemaName, skillName, skillID string, rawSchema json.RawMessage) (*TablePlan, error) {
	plan, err := Plan(schemaName, skillName, skillID, rawSchema)
	if err != nil {
		return nil, err
	}

	base := plan.TableName
	for attempt := 1; attempt <= 100; attempt++ {
		name := base
		if attempt > 1 {
			name = fmt.Sprintf("%s_%d", base, attempt)
		}
		if len(name) > maxIdentifierLen {
			name = name[:maxIdentifierLen]
		}
		exists, err := g.tableExists(ctx, schemaName, name)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		plan.TableName = name
		plan.DDL = buildDDL(plan)
		for _, stmt := range plan.DDL {
			if _, err := g.db.ExecContext(ctx, stmt); err != nil {
				return nil, kiloerr.Wrap(err, kiloerr.CodeSchemaCreation, "execute DDL")
			}
		}
		return plan, nil
	}
	return nil, kiloerr.Newf(kiloerr.CodeSchemaCreation, "no free table name for %q in %s", skillName, schemaName)
}

// AddColumn adds one column to an existing skill table. Columns are only
// ever added; nothing is dropped when an input schema shrinks.
func (g *Generator) AddColumn(ctx context.Context, schemaName, tableName, propName string, rawProp json.RawMessage) (Column, error) {
	var prop propertySchema
	if err := json.Unmarshal(rawProp, &prop); err != nil {
		return Column{}, kiloerr.Wrap(err, kiloerr.CodeSchemaCreation, "parse property")
	}
	ident := SanitizeIdentifier(propName)
	sqlType, check := mapColumnType(ident, prop)

	stmt := fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN %s %s",
		pq.QuoteIdentifier(schemaName), pq.QuoteIdentifier(tableName),
		pq.QuoteIdentifier(ident), sqlType)
	if check != "" {
		stmt += " CHECK (" + check + ")"
	}
	if _, err := g.db.ExecContext(ctx, stmt); err != nil {
		return Column{}, kiloerr.Wrap(err, kiloerr.CodeSchemaCreation, "add column")
	}
	return Column{Name: ident, SQLType: sqlType, Check: check, JSONType: prop.Type}, nil
}

func (g *Generator) tableExists(ctx context.Context, schemaName, tableName string) (bool, error) {
	var one int
	err := g.db.QueryRowContext(ctx,
		`SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2`,
		schemaName, tableName,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, kiloerr.Wrap(err, kiloerr.CodeDatabase, "check table existence")
	}
	return true, nil
}
