package storage

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

func newMock(t *testing.T) (StoreSet, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStoresFromDB(db), mock
}

func TestBotCreateRunsSchemaInSameTransaction(t *testing.T) {
	stores, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bots`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`CREATE SCHEMA "bot_[0-9a-f]{8}"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	bot := &models.Bot{
		ID:        "4f3c2a1b-0000-4000-8000-000000000001",
		UserID:    "user-1",
		Name:      "Kilo",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := stores.Bots.Create(context.Background(), bot); err != nil {
		t.Fatalf("create bot: %v", err)
	}
	if bot.SchemaName != "bot_4f3c2a1b" {
		t.Errorf("schema name = %q, want bot_4f3c2a1b", bot.SchemaName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestBotCreateRollsBackOnSchemaFailure(t *testing.T) {
	stores, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bots`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`CREATE SCHEMA`).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	bot := &models.Bot{ID: "4f3c2a1b-0000-4000-8000-000000000001", UserID: "u"}
	err := stores.Bots.Create(context.Background(), bot)
	if !kiloerr.Is(err, kiloerr.CodeSchemaCreation) {
		t.Fatalf("err = %v, want schema_creation", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestMessageCreateNullsBuiltinSkillID(t *testing.T) {
	stores, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs("msg-1", "sess-1", "bot-1", "assistant", "It's **3:42 PM**",
			nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	builtin := "builtin-time"
	msg := &models.Message{
		ID:        "msg-1",
		SessionID: "sess-1",
		BotID:     "bot-1",
		Role:      models.RoleAssistant,
		Content:   "It's **3:42 PM**",
		SkillID:   &builtin,
		CreatedAt: time.Now(),
	}
	if err := stores.Messages.Create(context.Background(), msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestMessageCreateKeepsRealSkillID(t *testing.T) {
	stores, mock := newMock(t)

	skillID := "9a8b7c6d-0000-4000-8000-000000000002"
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs("msg-2", "sess-1", "bot-1", "assistant", "Logged it.",
			nil, skillID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &models.Message{
		ID:        "msg-2",
		SessionID: "sess-1",
		BotID:     "bot-1",
		Role:      models.RoleAssistant,
		Content:   "Logged it.",
		SkillID:   &skillID,
		CreatedAt: time.Now(),
	}
	if err := stores.Messages.Create(context.Background(), msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestRecentReturnsChronologicalOrder(t *testing.T) {
	stores, mock := newMock(t)

	cols := []string{"id", "session_id", "bot_id", "role", "content", "attachments", "skill_id", "created_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE session_id`).
		WithArgs("sess-1", 5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m3", "sess-1", "bot-1", "assistant", "third", nil, nil, now).
			AddRow("m2", "sess-1", "bot-1", "user", "second", nil, nil, now.Add(-time.Minute)).
			AddRow("m1", "sess-1", "bot-1", "user", "first", nil, nil, now.Add(-2*time.Minute)))

	msgs, err := stores.Messages.Recent(context.Background(), "sess-1", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[2].ID != "m3" {
		t.Errorf("order = [%s %s %s], want oldest first", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
}

func TestSkillUpdateBumpsVersion(t *testing.T) {
	stores, mock := newMock(t)

	mock.ExpectExec(`UPDATE skills SET[\s\S]+version = version \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	skill := &models.SkillDefinition{
		ID:              "skill-1",
		Name:            "Expense Tracker",
		TriggerPatterns: []string{"log expense", "track spending"},
		OutputFormat:    models.OutputText,
	}
	if err := stores.Skills.Update(context.Background(), skill); err != nil {
		t.Fatalf("update skill: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestSkillUpdateMissingRowReturnsNotFound(t *testing.T) {
	stores, mock := newMock(t)

	mock.ExpectExec(`UPDATE skills`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	skill := &models.SkillDefinition{ID: "missing", OutputFormat: models.OutputText}
	err := stores.Skills.Update(context.Background(), skill)
	if !kiloerr.Is(err, kiloerr.CodeSkillNotFound) {
		t.Fatalf("err = %v, want skill_not_found", err)
	}
}

func TestUsageBreakdownRejectsUnknownGroup(t *testing.T) {
	stores, _ := newMock(t)

	_, err := stores.Usage.Breakdown(context.Background(), "user-1", "created_at; DROP TABLE")
	if !kiloerr.Is(err, kiloerr.CodeUsageTracking) {
		t.Fatalf("err = %v, want usage_tracking", err)
	}
}

func TestUsageBreakdownByModel(t *testing.T) {
	stores, mock := newMock(t)

	cols := []string{"key", "count", "prompt", "completion", "cost"}
	mock.ExpectQuery(`SELECT model AS key`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("claude-sonnet-4-5", 10, 5000, 2500, 0.0525).
			AddRow("gpt-4o-mini", 3, 900, 300, 0.000315))

	buckets, err := stores.Usage.Breakdown(context.Background(), "user-1", "model")
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("len = %d, want 2", len(buckets))
	}
	if buckets[0].Key != "claude-sonnet-4-5" || buckets[0].Requests != 10 {
		t.Errorf("bucket[0] = %+v", buckets[0])
	}
}

func TestToolGetMissingReturnsToolNotFound(t *testing.T) {
	stores, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM tools WHERE id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := stores.Tools.Get(context.Background(), "missing")
	if !kiloerr.Is(err, kiloerr.CodeToolNotFound) {
		t.Fatalf("err = %v, want tool_not_found", err)
	}
}
