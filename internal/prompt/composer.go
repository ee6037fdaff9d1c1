// Package prompt deterministically assembles system prompts, message
// arrays, and tool definitions from already-loaded context. No I/O.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kilohq/kilo/internal/llm"
	"github.com/kilohq/kilo/pkg/models"
)

// snapshotRows caps the data preview embedded in a skill prompt.
const snapshotRows = 10

// Column describes one column of a skill data table for prompt rendering.
type Column struct {
	Name    string
	Type    string
	NotNull bool
}

// TableSchema is the rendered shape of one readable table.
type TableSchema struct {
	Name    string
	Columns []Column
}

// Snapshot is a bounded preview of the skill's current data.
type Snapshot struct {
	Rows  []map[string]any
	Total int
}

// Inputs is everything the composer may render. All fields are optional
// except Bot and UserMessage.
type Inputs struct {
	Bot         *models.Bot
	Skill       *models.SkillDefinition
	Tables      []TableSchema
	Data        *Snapshot
	Memory      []*models.MemoryFact
	RAGChunks   []string
	Tools       []*models.ToolEntry
	History     []*models.Message
	UserMessage string
	// AllSkills feeds the capability summary of the general prompt.
	AllSkills []*models.SkillDefinition
}

// Composed is the gateway-ready prompt bundle.
type Composed struct {
	System   string
	Messages []llm.Message
	Tools    []llm.ToolDef
}

// ComposeSkill builds the prompt for a matched skill. Section order is
// fixed so prompts are reproducible for identical inputs.
func ComposeSkill(in Inputs) Composed {
	var b strings.Builder

	writeIdentity(&b, in.Bot)
	writeSoul(&b, in.Bot)

	skill := in.Skill
	b.WriteString("## Active Skill: " + skill.Name + "\n")
	if skill.Description != "" {
		b.WriteString("Purpose: " + skill.Description + "\n")
	}
	b.WriteString("\n" + skill.BehaviorPrompt + "\n\n")

	if len(in.Tables) > 0 {
		b.WriteString("## Available Data Tables\n")
		for _, table := range in.Tables {
			b.WriteString("- " + table.Name + ":")
			for i, col := range table.Columns {
				if i > 0 {
					b.WriteString(",")
				}
				b.WriteString(" " + col.Name + " " + col.Type)
				if col.NotNull {
					b.WriteString(" NOT NULL")
				}
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if in.Data != nil && in.Data.Total > 0 {
		b.WriteString(fmt.Sprintf("## Current Data (%d records total, showing up to %d)\n", in.Data.Total, snapshotRows))
		rows := in.Data.Rows
		if len(rows) > snapshotRows {
			rows = rows[:snapshotRows]
		}
		for _, row := range rows {
			if encoded, err := json.Marshal(row); err == nil {
				b.Write(encoded)
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	writeMemory(&b, in.Memory)
	writeRAG(&b, in.RAGChunks)

	if len(in.Tools) > 0 {
		b.WriteString("## API Integrations\n")
		for _, tool := range in.Tools {
			b.WriteString("### " + tool.Name + " (" + tool.BaseURL + ")\n")
			for _, ep := range tool.Endpoints {
				b.WriteString("- " + strings.ToUpper(ep.Method) + " " + ep.Path)
				if ep.Description != "" {
					b.WriteString(" - " + ep.Description)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Constraints\n")
	b.WriteString("- Keep responses concise.\n")
	if len(skill.ReadableTables) > 0 {
		b.WriteString("- Use query_skill_data to read stored data; never guess at contents.\n")
	}
	if skill.DataTable != "" {
		b.WriteString("- Use insert_skill_data to store new entries.\n")
	}
	b.WriteString("- Never fabricate data or API responses.\n")

	return Composed{
		System:   b.String(),
		Messages: buildMessages(in.History, in.UserMessage),
		Tools:    synthesizeTools(skill, in.Tools),
	}
}

// ComposeGeneral builds the no-skill conversation prompt.
func ComposeGeneral(in Inputs) Composed {
	var b strings.Builder

	writeIdentity(&b, in.Bot)
	if in.Bot.Soul != nil && !in.Bot.Soul.Empty() {
		writeSoul(&b, in.Bot)
	} else {
		b.WriteString("You are a helpful personal assistant. Be warm, direct, and concise.\n\n")
	}

	b.WriteString("## Capabilities\n")
	b.WriteString("- Answer questions and hold open-ended conversation.\n")
	b.WriteString("- Remember facts the user shares.\n")
	b.WriteString("- Schedule notifications on request.\n")
	if len(in.AllSkills) > 0 {
		b.WriteString("\n## Your Skills\n")
		for _, skill := range in.AllSkills {
			b.WriteString("- " + skill.Name)
			if skill.Description != "" {
				b.WriteString(": " + skill.Description)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	writeMemory(&b, in.Memory)

	return Composed{
		System:   b.String(),
		Messages: buildMessages(in.History, in.UserMessage),
		Tools:    []llm.ToolDef{scheduleNotificationTool()},
	}
}

func writeIdentity(b *strings.Builder, bot *models.Bot) {
	b.WriteString("You are " + bot.Name + ", a personal assistant.\n")
	if bot.Personality != "" {
		b.WriteString(bot.Personality + "\n")
	}
	b.WriteString("\n")
}

func writeSoul(b *strings.Builder, bot *models.Bot) {
	soul := bot.Soul
	if soul == nil || soul.Empty() {
		return
	}
	b.WriteString("## Personality\n")
	writeSoulLayer(b, "Traits", soul.Traits)
	writeSoulLayer(b, "Values", soul.Values)
	writeSoulLayer(b, "Communication style", soul.Style)
	writeSoulLayer(b, "Rules", soul.Rules)
	writeSoulLayer(b, "Decision framework", soul.DecisionFramework)
	b.WriteString("\n")
}

func writeSoulLayer(b *strings.Builder, label string, entries []string) {
	if len(entries) == 0 {
		return
	}
	b.WriteString(label + ": " + strings.Join(entries, "; ") + "\n")
}

func writeMemory(b *strings.Builder, facts []*models.MemoryFact) {
	if len(facts) == 0 {
		return
	}
	b.WriteString("## What You Know About the User\n")
	for _, fact := range facts {
		b.WriteString("- " + fact.Key + ": " + fact.Value + "\n")
	}
	b.WriteString("\n")
}

func writeRAG(b *strings.Builder, chunks []string) {
	if len(chunks) == 0 {
		return
	}
	b.WriteString("## Relevant Knowledge\n")
	for _, chunk := range chunks {
		b.WriteString(chunk + "\n---\n")
	}
	b.WriteString("\n")
}

func buildMessages(history []*models.Message, current string) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(out, llm.Message{Role: models.RoleUser, Content: current})
}

func synthesizeTools(skill *models.SkillDefinition, tools []*models.ToolEntry) []llm.ToolDef {
	var defs []llm.ToolDef

	if len(skill.ReadableTables) > 0 {
		defs = append(defs, llm.ToolDef{
			Name:        "query_skill_data",
			Description: "Run a read-only SQL query against the skill's data tables: " + strings.Join(skill.ReadableTables, ", "),
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"sql": {"type": "string", "description": "A SELECT statement"}},
				"required": ["sql"]
			}`),
		})
	}
	if skill.DataTable != "" {
		defs = append(defs, llm.ToolDef{
			Name:        "insert_skill_data",
			Description: "Insert one record into the " + skill.DataTable + " table",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"data": {"type": "object", "description": "Column values for the new record"}},
				"required": ["data"]
			}`),
		}, llm.ToolDef{
			Name:        "update_skill_data",
			Description: "Update one record in the " + skill.DataTable + " table by id",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"data": {"type": "object", "description": "Column values to change"}
				},
				"required": ["id", "data"]
			}`),
		})
	}

	defs = append(defs, scheduleNotificationTool())

	if len(tools) > 0 {
		defs = append(defs, callAPITool(tools))
	}
	return defs
}

func scheduleNotificationTool() llm.ToolDef {
	return llm.ToolDef{
		Name:        "schedule_notification",
		Description: "Schedule a notification to the user at a future time",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string"},
				"at": {"type": "string", "description": "ISO-8601 timestamp or cron expression"},
				"recurring": {"type": "boolean"}
			},
			"required": ["message", "at"]
		}`),
	}
}

// callAPITool emits a single tool whose description embeds the endpoint
// catalog, bounding the model's choices to declared endpoints.
func callAPITool(tools []*models.ToolEntry) llm.ToolDef {
	var names []string
	var catalog strings.Builder
	for _, tool := range tools {
		names = append(names, tool.Name)
		for _, ep := range tool.Endpoints {
			catalog.WriteString(fmt.Sprintf("%s: %s %s", tool.Name, strings.ToUpper(ep.Method), ep.Path))
			if ep.Description != "" {
				catalog.WriteString(" (" + ep.Description + ")")
			}
			catalog.WriteString("; ")
		}
	}

	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tool":     map[string]any{"type": "string", "enum": names},
			"endpoint": map[string]any{"type": "string", "description": "Endpoint path exactly as listed"},
			"method":   map[string]any{"type": "string", "enum": []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
			"body":     map[string]any{"type": "object"},
		},
		"required": []string{"tool", "endpoint", "method"},
	}
	encoded, _ := json.Marshal(params)

	return llm.ToolDef{
		Name:        "call_api",
		Description: "Call a declared external API endpoint. Available endpoints: " + catalog.String(),
		Parameters:  encoded,
	}
}
