package web

import (
	"context"
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/sqlguard"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/pkg/models"
)

func TestApplyMemoryWrite(t *testing.T) {
	memories := &memMemories{}
	applier := NewEffectApplier(storage.StoreSet{Memories: memories}, nil, nil, observability.NewNopLogger())

	applier.Apply(context.Background(), "bot-1", "user-1", []models.SideEffect{{
		Type: models.EffectMemoryWrite,
		MemoryWrite: &models.MemoryWriteEffect{Facts: []models.MemoryFact{
			{BotID: "bot-1", UserID: "user-1", Key: "name", Value: "Alice"},
			{BotID: "bot-1", UserID: "user-1", Key: "city", Value: "Lisbon"},
		}},
	}})

	if len(memories.facts) != 2 {
		t.Fatalf("upserted %d facts, want 2", len(memories.facts))
	}
	if memories.facts[0].Value != "Alice" {
		t.Errorf("fact = %+v", memories.facts[0])
	}
}

func TestApplySkillDataInsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "bot_1"\."expenses"`).
		WithArgs(float64(12), "lunch", "skill-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	skills := &memSkills{skills: []*models.SkillDefinition{{
		ID: "skill-1",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"amount": {"type": "number"},
				"category": {"type": "string"}
			},
			"required": ["amount"]
		}`),
	}}}

	applier := NewEffectApplier(storage.StoreSet{Skills: skills},
		sqlguard.NewExecutor(db), nil, observability.NewNopLogger())
	applier.Apply(context.Background(), "1", "user-1", []models.SideEffect{{
		Type: models.EffectSkillDataWrite,
		SkillDataWrite: &models.SkillDataWriteEffect{
			SkillID: "skill-1",
			Table:   "expenses",
			Op:      models.SkillDataInsert,
			Data:    json.RawMessage(`{"amount": 12, "category": "lunch"}`),
		},
	}})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("insert not executed: %v", err)
	}
}

func TestApplyRejectsNonconformingSkillData(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	// No expectations: the write must never reach the database.

	skills := &memSkills{skills: []*models.SkillDefinition{{
		ID: "skill-1",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"amount": {"type": "number"}},
			"required": ["amount"]
		}`),
	}}}

	applier := NewEffectApplier(storage.StoreSet{Skills: skills},
		sqlguard.NewExecutor(db), nil, observability.NewNopLogger())
	applier.Apply(context.Background(), "1", "user-1", []models.SideEffect{{
		Type: models.EffectSkillDataWrite,
		SkillDataWrite: &models.SkillDataWriteEffect{
			SkillID: "skill-1",
			Table:   "expenses",
			Op:      models.SkillDataInsert,
			Data:    json.RawMessage(`{"category": "lunch"}`),
		},
	}})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database traffic: %v", err)
	}
}

func TestApplySkipsMalformedSkillData(t *testing.T) {
	applier := NewEffectApplier(storage.StoreSet{}, nil, nil, observability.NewNopLogger())
	// A nil executor would panic if the write were attempted.
	applier.Apply(context.Background(), "bot-1", "user-1", []models.SideEffect{{
		Type: models.EffectSkillDataWrite,
		SkillDataWrite: &models.SkillDataWriteEffect{
			Table: "expenses",
			Op:    models.SkillDataInsert,
			Data:  json.RawMessage(`{broken`),
		},
	}})
}
