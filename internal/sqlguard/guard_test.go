package sqlguard

import (
	"strings"
	"testing"
)

func TestValidateQueryPrefix(t *testing.T) {
	allowed := []string{"expenses"}
	if _, err := ValidateQuery("SELECT * FROM expenses", "bot_x", allowed); err != nil {
		t.Errorf("SELECT rejected: %v", err)
	}
	if _, err := ValidateQuery("WITH t AS (SELECT * FROM expenses) SELECT * FROM t", "bot_x", allowed); err != nil {
		t.Errorf("WITH rejected: %v", err)
	}
	for _, q := range []string{
		"UPDATE expenses SET x = 1",
		"EXPLAIN SELECT 1",
		"",
		"  ",
	} {
		if _, err := ValidateQuery(q, "bot_x", allowed); err == nil {
			t.Errorf("%q accepted, want rejection", q)
		}
	}
}

func TestValidateQueryForbiddenKeywords(t *testing.T) {
	allowed := []string{"expenses"}
	rejected := []string{
		"SELECT * FROM expenses WHERE id IN (SELECT id FROM x); DROP TABLE expenses",
		"SELECT * FROM expenses; DELETE FROM expenses",
		"SELECT 1 INTO new_table FROM expenses",
		"select * from expenses where note = 'x' and 1=1 union select * from expenses -- insert",
		"SELECT * FROM expenses WHERE x = 1 SET y = 2",
	}
	for _, q := range rejected {
		if _, err := ValidateQuery(q, "bot_x", allowed); err == nil {
			t.Errorf("%q accepted, want rejection", q)
		}
	}

	// Keyword as substring of an identifier is fine: "updated_at" is not
	// the whole word UPDATE.
	ok := "SELECT updated_at FROM expenses"
	if _, err := ValidateQuery(ok, "bot_x", []string{"expenses"}); err != nil {
		t.Errorf("%q rejected: %v", ok, err)
	}
}

func TestValidateQueryMultiStatement(t *testing.T) {
	if _, err := ValidateQuery("SELECT * FROM expenses; SELECT * FROM expenses", "bot_x", []string{"expenses"}); err == nil {
		t.Error("multi-statement accepted")
	}
	// A bare trailing terminator is harmless.
	if _, err := ValidateQuery("SELECT * FROM expenses;", "bot_x", []string{"expenses"}); err != nil {
		t.Errorf("trailing semicolon rejected: %v", err)
	}
}

func TestValidateQueryTableReferences(t *testing.T) {
	allowed := []string{"expenses", "budgets"}

	if _, err := ValidateQuery("SELECT * FROM expenses JOIN budgets ON true", "bot_x", allowed); err != nil {
		t.Errorf("allowed join rejected: %v", err)
	}
	if _, err := ValidateQuery(`SELECT * FROM bot_x.anything`, "bot_x", allowed); err != nil {
		t.Errorf("own-schema reference rejected: %v", err)
	}
	if _, err := ValidateQuery("SELECT * FROM secrets", "bot_x", allowed); err == nil {
		t.Error("unlisted table accepted")
	}
	if _, err := ValidateQuery("SELECT * FROM other_schema.expenses", "bot_x", allowed); err == nil {
		t.Error("foreign schema accepted")
	}
}

func TestValidateQueryCTENamesNotTables(t *testing.T) {
	q := "WITH totals AS (SELECT * FROM expenses) SELECT * FROM totals"
	if _, err := ValidateQuery(q, "bot_x", []string{"expenses"}); err != nil {
		t.Errorf("CTE reference rejected: %v", err)
	}
}

func TestValidateQueryAppendsLimit(t *testing.T) {
	got, err := ValidateQuery("SELECT * FROM expenses", "bot_x", []string{"expenses"})
	if err != nil {
		t.Fatalf("ValidateQuery: %v", err)
	}
	if !strings.HasSuffix(got, "LIMIT 1000") {
		t.Errorf("query = %q, want LIMIT 1000 suffix", got)
	}

	got, err = ValidateQuery("SELECT * FROM expenses LIMIT 5", "bot_x", []string{"expenses"})
	if err != nil {
		t.Fatalf("ValidateQuery: %v", err)
	}
	if strings.Count(got, "LIMIT") != 1 {
		t.Errorf("query = %q, want single LIMIT", got)
	}
}
