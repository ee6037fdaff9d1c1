// Package orchestrator sequences the message pipeline: learning detection,
// skill matching, selective context loading, prompt composition, gateway
// calls, tool-call interpretation, and post-processing. It contains no
// business logic beyond sequencing; side effects are emitted, never executed.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilohq/kilo/internal/httptool"
	"github.com/kilohq/kilo/internal/learning"
	"github.com/kilohq/kilo/internal/llm"
	"github.com/kilohq/kilo/internal/memory"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/prompt"
	"github.com/kilohq/kilo/internal/skills"
	"github.com/kilohq/kilo/internal/skills/builtin"
	"github.com/kilohq/kilo/internal/vault"
	"github.com/kilohq/kilo/pkg/models"
)

// Learning-intent confidence bands.
const (
	learnThreshold   = 0.7
	clarifyThreshold = 0.5
)

// Input identifies one inbound message.
type Input struct {
	BotID     string
	UserID    string
	SessionID string
	Content   string
}

// Response is the user-facing part of a processed message.
type Response struct {
	Content          string         `json:"content"`
	SkillID          *string        `json:"skill_id,omitempty"`
	StructuredData   map[string]any `json:"structured_data,omitempty"`
	SuggestedActions []string       `json:"suggested_actions,omitempty"`
	ThinkingSummary  string         `json:"thinking_summary,omitempty"`
}

// Result pairs the response with the deferred work the caller must perform.
// Outcome names the branch that answered, for metrics.
type Result struct {
	Response    Response
	SideEffects []models.SideEffect
	Outcome     string
}

// Outcome values.
const (
	OutcomeSkill         = "skill"
	OutcomeBuiltin       = "builtin"
	OutcomeGeneral       = "general"
	OutcomeLearning      = "learning"
	OutcomeClarification = "clarification"
)

// ResearchPort is the learning flow seam; *learning.Researcher satisfies it.
type ResearchPort interface {
	Research(ctx context.Context, serviceName, query string) (*learning.Finding, error)
}

// Orchestrator drives the per-message pipeline. All fields are read-only
// after construction; per-message state lives on the stack.
type Orchestrator struct {
	loader     Loader
	gateway    llm.Port
	matcher    *skills.Matcher
	proposer   *skills.Proposer
	builtins   *builtin.Registry
	researcher ResearchPort
	executor   *httptool.Executor
	vault      *vault.Vault
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	clock      func() time.Time
}

func New(loader Loader, gateway llm.Port, researcher ResearchPort, executor *httptool.Executor, v *vault.Vault, logger *observability.Logger) *Orchestrator {
	return &Orchestrator{
		loader:     loader,
		gateway:    gateway,
		matcher:    skills.NewMatcher(),
		proposer:   skills.NewProposer(),
		builtins:   builtin.NewRegistry(),
		researcher: researcher,
		executor:   executor,
		vault:      v,
		logger:     logger,
		tracer:     observability.NewNopTracer(),
		clock:      time.Now,
	}
}

// WithClock pins the clock, for tests of date-sensitive builtins.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// WithMetrics attaches Prometheus metrics for tool-execution counting.
func (o *Orchestrator) WithMetrics(m *observability.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithTracer replaces the default no-op tracer.
func (o *Orchestrator) WithTracer(t *observability.Tracer) *Orchestrator {
	o.tracer = t
	return o
}

func (o *Orchestrator) countTool(tool, status string) {
	if o.metrics != nil {
		o.metrics.ToolExecutions.WithLabelValues(tool, status).Inc()
	}
}

// Process runs one message through the pipeline and returns the response
// plus deferred side effects. Gateway failures propagate; side-effect
// assembly never fails the message.
func (o *Orchestrator) Process(ctx context.Context, in Input) (res *Result, err error) {
	ctx, end := o.tracer.Start(ctx, "pipeline.process",
		"bot_id", in.BotID, "session_id", in.SessionID)
	defer func() { end(err) }()

	ctx = llm.WithAttribution(ctx, llm.Attribution{
		UserID:    in.UserID,
		BotID:     in.BotID,
		SessionID: in.SessionID,
	})

	var bot *models.Bot
	var activeSkills []*models.SkillDefinition
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bot, err = o.loader.BotConfig(gctx, in.BotID)
		return err
	})
	g.Go(func() error {
		var err error
		activeSkills, err = o.loader.ActiveSkills(gctx, in.BotID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := o.dispatch(ctx, in, bot, activeSkills)
	if err != nil {
		return nil, err
	}

	// Memory extraction always runs on the original text, whatever branch
	// answered.
	if facts := memory.Extract(in.Content); len(facts) > 0 {
		for _, fact := range facts {
			fact.BotID = in.BotID
			fact.UserID = in.UserID
		}
		write := models.MemoryWriteEffect{Facts: make([]models.MemoryFact, len(facts))}
		for i, fact := range facts {
			write.Facts[i] = *fact
		}
		result.SideEffects = append(result.SideEffects, models.SideEffect{
			Type:        models.EffectMemoryWrite,
			MemoryWrite: &write,
		})
	}
	return result, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, in Input, bot *models.Bot, activeSkills []*models.SkillDefinition) (*Result, error) {
	// A clarification marker on the previous assistant turn resumes the
	// learning flow before anything else is considered.
	if last, err := o.loader.LastAssistant(ctx, in.SessionID); err == nil && last != nil {
		if capability := learning.ExtractMarker(last.Content); capability != "" {
			if query, ok := learning.ResolveReply(capability, in.Content); ok {
				return o.runLearning(ctx, capability, query)
			}
			// Declined: fall through to the normal pipeline.
		}
	}

	if intent := learning.Detect(in.Content); intent != nil {
		switch {
		case intent.Confidence >= learnThreshold:
			return o.runLearning(ctx, intent.Capability, intent.Capability+" API")
		case intent.Confidence >= clarifyThreshold:
			return &Result{
				Response: Response{
					Content: learning.ClarificationPrompt(intent.Capability),
				},
				Outcome: OutcomeClarification,
			}, nil
		}
	}

	if handler := o.builtins.Match(in.Content); handler != nil {
		answer, err := handler.Handle(in.Content, o.clock())
		if err == nil && answer != nil {
			skillID := answer.SkillID
			return &Result{
				Response: Response{
					Content:          answer.Content,
					SkillID:          &skillID,
					SuggestedActions: answer.SuggestedActions,
				},
				Outcome: OutcomeBuiltin,
			}, nil
		}
		// A handler that matched but could not answer falls through to the
		// normal pipeline rather than failing the message.
	}

	if match := o.matcher.Match(in.Content, activeSkills); match != nil {
		return o.runSkill(ctx, in, bot, match)
	}
	return o.runGeneral(ctx, in, bot, activeSkills)
}

// runLearning executes the web-research flow and formats its outcome.
func (o *Orchestrator) runLearning(ctx context.Context, capability, query string) (*Result, error) {
	ctx, end := o.tracer.Start(ctx, "learning.research", "capability", capability)
	finding, err := o.researcher.Research(ctx, capability, query)
	end(err)
	if err != nil {
		return nil, err
	}

	info := finding.API
	var b strings.Builder
	fmt.Fprintf(&b, "I researched **%s** and found its API.\n\n", info.ServiceName)
	fmt.Fprintf(&b, "- Base URL: %s\n", info.BaseURL)
	fmt.Fprintf(&b, "- Endpoints found: %d\n", len(info.Endpoints))
	fmt.Fprintf(&b, "- Authentication: %s\n", info.AuthType)
	if info.AuthInstructions != "" {
		b.WriteString("\n" + info.AuthInstructions + "\n")
	}
	if len(finding.Skills) > 0 {
		b.WriteString("\nI can set up these skills for you:\n")
		for _, skill := range finding.Skills {
			fmt.Fprintf(&b, "- **%s**: %s\n", skill.Name, skill.Description)
		}
	}

	effect := models.LearningProposalEffect{
		ServiceName:   info.ServiceName,
		BaseURL:       info.BaseURL,
		AuthType:      info.AuthType,
		EndpointCount: len(info.Endpoints),
		Skills:        make([]models.SkillProposal, len(finding.Skills)),
	}
	for i, skill := range finding.Skills {
		effect.Skills[i] = *skill
	}

	return &Result{
		Response: Response{Content: b.String()},
		SideEffects: []models.SideEffect{{
			Type:             models.EffectLearningProposal,
			LearningProposal: &effect,
		}},
		Outcome: OutcomeLearning,
	}, nil
}

// runSkill loads the matched skill's context in one parallel fan-out,
// composes the prompt, calls the gateway, and interprets tool calls.
func (o *Orchestrator) runSkill(ctx context.Context, in Input, bot *models.Bot, match *skills.Match) (*Result, error) {
	skill := match.Skill

	tools, err := o.loader.Tools(ctx, in.BotID, skill.RequiredIntegrations)
	if err != nil {
		return nil, err
	}

	inputs := prompt.Inputs{
		Bot:         bot,
		Skill:       skill,
		Tools:       tools,
		UserMessage: in.Content,
	}

	g, gctx := errgroup.WithContext(ctx)
	if match.Context.HistoryDepth {
		g.Go(func() error {
			history, err := o.loader.History(gctx, in.SessionID, match.Context.HistoryLimit)
			inputs.History = history
			return err
		})
	}
	if match.Context.NeedsMemory {
		g.Go(func() error {
			facts, err := o.loader.Memory(gctx, in.BotID, in.UserID)
			inputs.Memory = facts
			return err
		})
	}
	if match.Context.NeedsRAG {
		g.Go(func() error {
			chunks, err := o.loader.RAGChunks(gctx, in.BotID, in.Content)
			inputs.RAGChunks = chunks
			return err
		})
	}
	if match.Context.NeedsSkillData {
		g.Go(func() error {
			snapshot, err := o.loader.SkillData(gctx, bot, skill)
			inputs.Data = snapshot
			return err
		})
		g.Go(func() error {
			tables, err := o.loader.TableSchemas(gctx, bot, readableSet(skill))
			inputs.Tables = tables
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	composed := prompt.ComposeSkill(inputs)
	req := &llm.Request{System: composed.System, Messages: composed.Messages, Tools: composed.Tools}
	resp, err := o.gateway.Complete(ctx, match.TaskType, req)
	if err != nil {
		return nil, err
	}

	effects, resp, err := o.interpretToolCalls(ctx, in, skill, tools, composed, match.TaskType, resp)
	if err != nil {
		return nil, err
	}

	processed := Postprocess(resp.Content, skill)
	return &Result{
		Response: Response{
			Content:          processed.Content,
			SkillID:          &skill.ID,
			StructuredData:   processed.StructuredData,
			SuggestedActions: processed.SuggestedActions,
			ThinkingSummary:  resp.ThinkingSummary,
		},
		SideEffects: effects,
		Outcome:     OutcomeSkill,
	}, nil
}

// runGeneral handles the no-match branch: try a proposal, else open
// conversation through the general prompt.
func (o *Orchestrator) runGeneral(ctx context.Context, in Input, bot *models.Bot, activeSkills []*models.SkillDefinition) (*Result, error) {
	dismissed, err := o.loader.RecentDismissals(ctx, in.BotID)
	if err != nil {
		dismissed = nil // suppression is best-effort
	}
	if proposal := o.proposer.Propose(in.Content, dismissed); proposal != nil {
		return &Result{
			Response: Response{Content: proposalPitch(proposal)},
			SideEffects: []models.SideEffect{{
				Type:          models.EffectSkillProposal,
				SkillProposal: proposal,
			}},
			Outcome: OutcomeGeneral,
		}, nil
	}

	inputs := prompt.Inputs{
		Bot:         bot,
		UserMessage: in.Content,
		AllSkills:   activeSkills,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history, err := o.loader.History(gctx, in.SessionID, 5)
		inputs.History = history
		return err
	})
	g.Go(func() error {
		facts, err := o.loader.Memory(gctx, in.BotID, in.UserID)
		inputs.Memory = facts
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	composed := prompt.ComposeGeneral(inputs)
	req := &llm.Request{System: composed.System, Messages: composed.Messages, Tools: composed.Tools}
	resp, err := o.gateway.Complete(ctx, models.TaskSimpleQA, req)
	if err != nil {
		return nil, err
	}

	var effects []models.SideEffect
	for _, call := range resp.ToolCalls {
		if call.Name == "schedule_notification" {
			if effect := scheduleEffect(call, o.clock()); effect != nil {
				effects = append(effects, *effect)
			}
		}
	}

	processed := Postprocess(resp.Content, nil)
	return &Result{
		Response: Response{
			Content:         processed.Content,
			ThinkingSummary: resp.ThinkingSummary,
		},
		SideEffects: effects,
		Outcome:     OutcomeGeneral,
	}, nil
}

// interpretToolCalls turns the model's tool calls into side effects. A
// call_api result (or failure placeholder) is fed back for one more
// gateway turn to produce the user-facing answer.
func (o *Orchestrator) interpretToolCalls(ctx context.Context, in Input, skill *models.SkillDefinition, tools []*models.ToolEntry, composed prompt.Composed, task models.TaskType, resp *llm.Response) ([]models.SideEffect, *llm.Response, error) {
	if len(resp.ToolCalls) == 0 {
		return nil, resp, nil
	}

	var effects []models.SideEffect
	results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
	needsFollowup := false

	for _, call := range resp.ToolCalls {
		switch call.Name {
		case "call_api":
			payload, effect := o.callAPI(ctx, in, tools, call)
			effects = append(effects, models.SideEffect{Type: models.EffectAPICall, APICall: effect})
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Content:    payload,
				IsError:    effect.Status == 0,
			})
			needsFollowup = true

		case "insert_skill_data", "update_skill_data":
			if effect := skillDataEffect(skill, call); effect != nil {
				effects = append(effects, models.SideEffect{Type: models.EffectSkillDataWrite, SkillDataWrite: effect})
			}
			results = append(results, llm.ToolResult{ToolCallID: call.ID, Content: `{"recorded":true}`})

		case "schedule_notification":
			if effect := scheduleEffect(call, o.clock()); effect != nil {
				effects = append(effects, *effect)
			}
			results = append(results, llm.ToolResult{ToolCallID: call.ID, Content: `{"scheduled":true}`})

		default:
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Content:    `{"error":"unknown tool"}`,
				IsError:    true,
			})
		}
	}

	// Without an API round trip the model's own text already answers the
	// user when present; only re-prompt when it ended on the tool call.
	if !needsFollowup && strings.TrimSpace(resp.Content) != "" {
		return effects, resp, nil
	}

	messages := append(append([]llm.Message{}, composed.Messages...),
		llm.Message{Role: models.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls},
		llm.Message{Role: models.RoleUser, ToolResults: results},
	)
	followup, err := o.gateway.Complete(ctx, task, &llm.Request{
		System:   composed.System,
		Messages: messages,
		Tools:    composed.Tools,
	})
	if err != nil {
		return nil, nil, err
	}
	return effects, followup, nil
}

// callAPI resolves and executes one declared endpoint. Failures never fail
// the message: they become a status-0 effect and a null payload the model
// explains to the user.
func (o *Orchestrator) callAPI(ctx context.Context, in Input, tools []*models.ToolEntry, call llm.ToolCall) (string, *models.APICallEffect) {
	var args struct {
		Tool     string         `json:"tool"`
		Endpoint string         `json:"endpoint"`
		Method   string         `json:"method"`
		Body     map[string]any `json:"body"`
	}
	failed := &models.APICallEffect{Status: 0}
	if err := json.Unmarshal(call.Input, &args); err != nil {
		return "null", failed
	}
	failed.ToolName = args.Tool
	failed.Endpoint = args.Endpoint

	var tool *models.ToolEntry
	for _, t := range tools {
		if t.Name == args.Tool {
			tool = t
			break
		}
	}
	if tool == nil {
		o.logger.Warn(ctx, "model called undeclared tool", "tool", args.Tool)
		return "null", failed
	}
	endpoint := tool.FindEndpoint(args.Endpoint, args.Method)
	if endpoint == nil {
		o.logger.Warn(ctx, "model called undeclared endpoint",
			"tool", args.Tool, "endpoint", args.Endpoint, "method", args.Method)
		return "null", failed
	}

	headers, err := o.authHeaders(tool)
	if err != nil {
		o.logger.Error(ctx, "tool credential decryption failed", "tool", tool.Name, "error", err)
		return "null", failed
	}

	var body any
	if args.Body != nil {
		body = args.Body
	}
	callCtx, end := o.tracer.Start(ctx, "tool.execute",
		"tool", tool.Name, "endpoint", endpoint.Path, "method", endpoint.Method)
	result, err := o.executor.Execute(callCtx, httptool.Request{
		URL:     tool.BaseURL + endpoint.Path,
		Method:  endpoint.Method,
		Headers: headers,
		Body:    body,
	})
	end(err)
	if err != nil {
		o.logger.Warn(ctx, "tool call failed", "tool", tool.Name, "endpoint", endpoint.Path, "error", err)
		o.countTool(tool.Name, "error")
		return "null", failed
	}
	o.countTool(tool.Name, "success")

	payload, _ := json.Marshal(result)
	return string(payload), &models.APICallEffect{
		ToolName:  tool.Name,
		Endpoint:  endpoint.Path,
		Status:    result.Status,
		LatencyMs: result.LatencyMs,
	}
}

// authHeaders decrypts the tool's credential and shapes it per auth kind.
// Plaintext never leaves this function except inside the header map.
func (o *Orchestrator) authHeaders(tool *models.ToolEntry) (map[string]string, error) {
	if tool.Auth == nil {
		return nil, nil
	}
	plaintext, err := o.vault.Decrypt(tool.Auth)
	if err != nil {
		return nil, err
	}

	secret := string(plaintext)
	switch tool.AuthType {
	case models.AuthBearer, models.AuthOAuth2:
		return map[string]string{"Authorization": "Bearer " + secret}, nil
	case models.AuthAPIKey:
		return map[string]string{"X-API-Key": secret}, nil
	case models.AuthCustomHeader:
		var custom struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(plaintext, &custom); err != nil || custom.Name == "" {
			return nil, fmt.Errorf("custom header credential is malformed")
		}
		return map[string]string{custom.Name: custom.Value}, nil
	}
	return nil, nil
}

func skillDataEffect(skill *models.SkillDefinition, call llm.ToolCall) *models.SkillDataWriteEffect {
	if skill.DataTable == "" {
		return nil
	}
	op := models.SkillDataInsert
	if call.Name == "update_skill_data" {
		op = models.SkillDataUpdate
	}

	var args struct {
		ID   string          `json:"id"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(call.Input, &args); err != nil || len(args.Data) == 0 {
		return nil
	}
	if op == models.SkillDataUpdate && args.ID == "" {
		return nil
	}
	return &models.SkillDataWriteEffect{
		SkillID: skill.ID,
		Table:   skill.DataTable,
		Op:      op,
		Data:    args.Data,
		RowID:   args.ID,
	}
}

func scheduleEffect(call llm.ToolCall, now time.Time) *models.SideEffect {
	var args struct {
		Message   string `json:"message"`
		At        string `json:"at"`
		Recurring bool   `json:"recurring"`
	}
	if err := json.Unmarshal(call.Input, &args); err != nil || args.Message == "" {
		return nil
	}

	effect := models.ScheduleNotificationEffect{Message: args.Message}
	if at, err := time.Parse(time.RFC3339, args.At); err == nil {
		effect.At = at
	} else if args.At != "" && args.Recurring {
		effect.Recurring = args.At
		effect.At = now
	} else {
		return nil
	}
	return &models.SideEffect{
		Type:                 models.EffectScheduleNotification,
		ScheduleNotification: &effect,
	}
}

func proposalPitch(p *models.SkillProposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "It sounds like you do this regularly. Want me to set up a **%s** skill?\n", p.Name)
	if p.Description != "" {
		b.WriteString(p.Description + "\n")
	}
	if p.Schedule != "" {
		b.WriteString("It would run on a schedule you can adjust anytime.\n")
	}
	b.WriteString("Say \"yes\" to create it, or \"no\" to dismiss.")
	return b.String()
}

func readableSet(skill *models.SkillDefinition) []string {
	tables := append([]string{}, skill.ReadableTables...)
	if skill.DataTable != "" {
		seen := false
		for _, t := range tables {
			if t == skill.DataTable {
				seen = true
				break
			}
		}
		if !seen {
			tables = append(tables, skill.DataTable)
		}
	}
	return tables
}
