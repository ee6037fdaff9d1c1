package sqlguard

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kilohq/kilo/internal/kiloerr"
)

// QueryTimeout is the hard ceiling on a guarded read.
const QueryTimeout = 5 * time.Second

// Result is the outcome of a guarded read.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
}

// Executor runs guarded queries with the bot's schema as the search path.
type Executor struct {
	db *sql.DB
}

// NewExecutor wires the executor to the shared pool.
func NewExecutor(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Query validates and executes a read. The search path is set inside the
// transaction only, so concurrent queries for other bots are unaffected.
func (e *Executor) Query(ctx context.Context, query, schemaName string, allowedTables []string) (*Result, error) {
	validated, err := ValidateQuery(query, schemaName, allowedTables)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "begin query transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// SET LOCAL scopes the search path to this transaction.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", pq.QuoteIdentifier(schemaName))); err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "set search path")
	}

	rows, err := tx.QueryContext(ctx, validated)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "execute skill query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "read columns")
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		if len(result.Rows) >= MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan row")
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "iterate rows")
	}

	if err := tx.Commit(); err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "commit query transaction")
	}
	return result, nil
}

// Insert writes one row of column-value pairs into the caller-declared
// table. It bypasses the query parser entirely; identifiers are quoted and
// values bound as parameters.
func (e *Executor) Insert(ctx context.Context, schemaName, table, skillID string, data map[string]any) error {
	if len(data) == 0 {
		return kiloerr.New(kiloerr.CodeDatabase, "insert requires at least one column")
	}

	cols := make([]string, 0, len(data)+1)
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols)+1)
	placeholders := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		quoted = append(quoted, pq.QuoteIdentifier(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, data[col])
	}
	quoted = append(quoted, "skill_id")
	placeholders = append(placeholders, fmt.Sprintf("$%d", len(cols)+1))
	args = append(args, skillID)

	stmt := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		pq.QuoteIdentifier(schemaName), pq.QuoteIdentifier(table),
		strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "insert skill data")
	}
	return nil
}

// Update updates one row by id in the caller-declared table.
func (e *Executor) Update(ctx context.Context, schemaName, table, rowID string, data map[string]any) error {
	if len(data) == 0 {
		return kiloerr.New(kiloerr.CodeDatabase, "update requires at least one column")
	}

	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1))
		args = append(args, data[col])
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, rowID)

	stmt := fmt.Sprintf("UPDATE %s.%s SET %s WHERE id = $%d",
		pq.QuoteIdentifier(schemaName), pq.QuoteIdentifier(table),
		strings.Join(sets, ", "), len(cols)+1)

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "update skill data")
	}
	return nil
}
