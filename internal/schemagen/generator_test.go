package schemagen

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSanitizeIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"amount", "amount"},
		{"Total Amount", "total_amount"},
		{"weird--name!!", "weird_name"},
		{"_leading_", "leading"},
		{"select", "col_select"},
		{"user", "col_user"},
		{"9lives", "col_9lives"},
		{"", "col"},
		{strings.Repeat("a", 80), strings.Repeat("a", 63)},
	}
	for _, tc := range cases {
		if got := SanitizeIdentifier(tc.in); got != tc.want {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBaseTableName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Expense Tracker", "expenses"},
		{"Workout Log", "workouts"},
		{"Habit Manager", "habits"},
		{"Trip Planner", "trips"},
		{"Mood", "moods"},
		{"", "skill_datas"},
	}
	for _, tc := range cases {
		if got := baseTableName(tc.in); got != tc.want {
			t.Errorf("baseTableName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

const sampleSchema = `{
	"properties": {
		"amount": {"type": "number"},
		"category": {"type": "string", "enum": ["food", "travel"]},
		"spent_on": {"type": "string", "format": "date"},
		"logged_at": {"type": "string", "format": "date-time"},
		"note": {"type": "string"},
		"count": {"type": "integer"},
		"flagged": {"type": "boolean"},
		"tags": {"type": "array"},
		"meta": {"type": "object"}
	},
	"required": ["amount", "category"]
}`

func TestPlanColumnMapping(t *testing.T) {
	plan, err := Plan("bot_deadbeef", "Expense Tracker", "skill-1", json.RawMessage(sampleSchema))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.TableName != "expenses" {
		t.Errorf("TableName = %q, want expenses", plan.TableName)
	}

	types := map[string]string{}
	notNull := map[string]bool{}
	indexed := map[string]bool{}
	for _, col := range plan.Columns {
		types[col.Name] = col.SQLType
		notNull[col.Name] = col.NotNull
		indexed[col.Name] = col.Indexed
	}

	wantTypes := map[string]string{
		"amount":    "DOUBLE PRECISION",
		"category":  "TEXT",
		"spent_on":  "DATE",
		"logged_at": "TIMESTAMPTZ",
		"note":      "TEXT",
		"count":     "INTEGER",
		"flagged":   "BOOLEAN",
		"tags":      "JSONB",
		"meta":      "JSONB",
	}
	for name, want := range wantTypes {
		if types[name] != want {
			t.Errorf("column %s type = %q, want %q", name, types[name], want)
		}
	}

	if !notNull["amount"] || !notNull["category"] {
		t.Error("required properties must map to NOT NULL")
	}
	if notNull["note"] {
		t.Error("optional property mapped to NOT NULL")
	}

	// Dates and required scalars are indexed; JSONB never is.
	for _, name := range []string{"spent_on", "logged_at", "amount", "category"} {
		if !indexed[name] {
			t.Errorf("column %s should be indexed", name)
		}
	}
	for _, name := range []string{"tags", "meta", "note"} {
		if indexed[name] {
			t.Errorf("column %s should not be indexed", name)
		}
	}
}

func TestPlanEnumCheck(t *testing.T) {
	plan, err := Plan("bot_x", "Mood", "s", json.RawMessage(sampleSchema))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	var category *Column
	for i := range plan.Columns {
		if plan.Columns[i].Name == "category" {
			category = &plan.Columns[i]
		}
	}
	if category == nil {
		t.Fatal("category column missing")
	}
	if !strings.Contains(category.Check, "'food'") || !strings.Contains(category.Check, "'travel'") {
		t.Errorf("Check = %q, want enum values", category.Check)
	}
}

func TestBuildDDLMandatoryColumns(t *testing.T) {
	plan, _ := Plan("bot_x", "Expense Tracker", "s", json.RawMessage(sampleSchema))
	plan.DDL = buildDDL(plan)
	create := plan.DDL[0]
	for _, want := range []string{
		"id UUID PRIMARY KEY DEFAULT gen_random_uuid()",
		"created_at TIMESTAMPTZ NOT NULL DEFAULT now()",
		"updated_at TIMESTAMPTZ NOT NULL DEFAULT now()",
		"skill_id UUID NOT NULL",
	} {
		if !strings.Contains(create, want) {
			t.Errorf("CREATE TABLE missing %q:\n%s", want, create)
		}
	}
	if len(plan.DDL) < 2 {
		t.Fatal("expected index statements")
	}
}

func TestCreateSkillTableCollision(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// First candidate exists, second is free.
	mock.ExpectQuery(`SELECT 1 FROM information_schema.tables`).
		WithArgs("bot_x", "expenses").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(`SELECT 1 FROM information_schema.tables`).
		WithArgs("bot_x", "expenses_2").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX`).WillReturnResult(sqlmock.NewResult(0, 0))

	gen := NewGenerator(db)
	schema := json.RawMessage(`{"properties":{"amount":{"type":"number"}},"required":["amount"]}`)
	plan, err := gen.CreateSkillTable(context.Background(), "bot_x", "Expense Tracker", "skill-1", schema)
	if err != nil {
		t.Fatalf("CreateSkillTable: %v", err)
	}
	if plan.TableName != "expenses_2" {
		t.Errorf("TableName = %q, want expenses_2", plan.TableName)
	}
}

func TestAddColumnNeverDrops(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`ALTER TABLE "bot_x"\."expenses" ADD COLUMN "vendor" TEXT`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	gen := NewGenerator(db)
	col, err := gen.AddColumn(context.Background(), "bot_x", "expenses", "vendor", json.RawMessage(`{"type":"string"}`))
	if err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if col.Name != "vendor" || col.SQLType != "TEXT" {
		t.Errorf("col = %+v", col)
	}
}
