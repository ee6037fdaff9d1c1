package prompt

import (
	"strings"
	"testing"

	"github.com/kilohq/kilo/pkg/models"
)

func baseInputs() Inputs {
	return Inputs{
		Bot: &models.Bot{Name: "Kilo", Personality: "Friendly and efficient."},
		Skill: &models.SkillDefinition{
			Name:           "Expense Tracker",
			Description:    "Tracks expenses over time",
			BehaviorPrompt: "Record each expense with amount and category.",
			DataTable:      "expenses",
			ReadableTables: []string{"expenses"},
		},
		UserMessage: "log expense 30 dollars lunch",
	}
}

func toolNames(c Composed) []string {
	names := make([]string, len(c.Tools))
	for i, tool := range c.Tools {
		names[i] = tool.Name
	}
	return names
}

func hasTool(c Composed, name string) bool {
	for _, tool := range c.Tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func TestComposeSkillSectionOrder(t *testing.T) {
	in := baseInputs()
	in.Bot.Soul = &models.Soul{Traits: []string{"curious"}, Values: []string{"honesty"}}
	in.Memory = []*models.MemoryFact{{Key: "name", Value: "Alice"}}
	in.Tables = []TableSchema{{Name: "expenses", Columns: []Column{
		{Name: "amount", Type: "DOUBLE PRECISION", NotNull: true},
	}}}

	c := ComposeSkill(in)

	sections := []string{
		"You are Kilo",
		"## Personality",
		"## Active Skill: Expense Tracker",
		"## Available Data Tables",
		"## What You Know About the User",
		"## Constraints",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(c.System, section)
		if idx < 0 {
			t.Fatalf("missing section %q", section)
		}
		if idx < last {
			t.Errorf("section %q out of order", section)
		}
		last = idx
	}
}

func TestComposeSkillToolSynthesis(t *testing.T) {
	c := ComposeSkill(baseInputs())
	for _, want := range []string{"query_skill_data", "insert_skill_data", "update_skill_data", "schedule_notification"} {
		if !hasTool(c, want) {
			t.Errorf("missing tool %q in %v", want, toolNames(c))
		}
	}
	if hasTool(c, "call_api") {
		t.Error("call_api offered without API tools")
	}
}

func TestComposeSkillNoDataTableNoWriteTools(t *testing.T) {
	in := baseInputs()
	in.Skill.DataTable = ""
	in.Skill.ReadableTables = nil

	c := ComposeSkill(in)
	if hasTool(c, "insert_skill_data") || hasTool(c, "query_skill_data") {
		t.Errorf("data tools offered for tableless skill: %v", toolNames(c))
	}
	if !hasTool(c, "schedule_notification") {
		t.Error("schedule_notification must always be present")
	}
}

func TestComposeSkillCallAPICatalog(t *testing.T) {
	in := baseInputs()
	in.Tools = []*models.ToolEntry{{
		Name:    "stripe",
		BaseURL: "https://api.stripe.com",
		Endpoints: []models.ToolEndpoint{
			{Path: "/v1/charges", Method: "get", Description: "List charges"},
		},
	}}

	c := ComposeSkill(in)
	if !hasTool(c, "call_api") {
		t.Fatalf("call_api missing: %v", toolNames(c))
	}
	for _, tool := range c.Tools {
		if tool.Name != "call_api" {
			continue
		}
		if !strings.Contains(tool.Description, "GET /v1/charges") {
			t.Errorf("catalog missing from description: %q", tool.Description)
		}
		if !strings.Contains(string(tool.Parameters), `"stripe"`) {
			t.Errorf("tool enum missing: %s", tool.Parameters)
		}
	}
	if !strings.Contains(c.System, "https://api.stripe.com") {
		t.Error("integration section missing base URL")
	}
}

func TestComposeSkillMessagesChronological(t *testing.T) {
	in := baseInputs()
	in.History = []*models.Message{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "second"},
	}

	c := ComposeSkill(in)
	if len(c.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(c.Messages))
	}
	if c.Messages[0].Content != "first" || c.Messages[2].Content != "log expense 30 dollars lunch" {
		t.Errorf("message order wrong: %+v", c.Messages)
	}
	if c.Messages[2].Role != models.RoleUser {
		t.Errorf("final role = %s", c.Messages[2].Role)
	}
}

func TestComposeSkillDeterministic(t *testing.T) {
	in := baseInputs()
	a := ComposeSkill(in)
	b := ComposeSkill(in)
	if a.System != b.System {
		t.Error("identical inputs produced different prompts")
	}
}

func TestComposeGeneralFallbackPersonality(t *testing.T) {
	c := ComposeGeneral(Inputs{
		Bot:         &models.Bot{Name: "Kilo"},
		UserMessage: "hello",
		AllSkills: []*models.SkillDefinition{
			{Name: "Expense Tracker", Description: "Tracks expenses"},
		},
	})
	if !strings.Contains(c.System, "helpful personal assistant") {
		t.Error("fallback personality block missing")
	}
	if !strings.Contains(c.System, "Expense Tracker: Tracks expenses") {
		t.Error("skill summary missing")
	}
	if len(c.Tools) != 1 || c.Tools[0].Name != "schedule_notification" {
		t.Errorf("general tools = %v", toolNames(c))
	}
}

func TestComposeSnapshotCapped(t *testing.T) {
	in := baseInputs()
	rows := make([]map[string]any, 15)
	for i := range rows {
		rows[i] = map[string]any{"amount": i}
	}
	in.Data = &Snapshot{Rows: rows, Total: 42}

	c := ComposeSkill(in)
	if !strings.Contains(c.System, "42 records total") {
		t.Error("total count missing")
	}
	if strings.Count(c.System, `{"amount":`) != snapshotRows {
		t.Errorf("snapshot rows = %d, want %d", strings.Count(c.System, `{"amount":`), snapshotRows)
	}
}
