// Package web exposes the runtime's JSON HTTP API: chat, bot/skill/tool
// CRUD, usage reporting, health, and metrics.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilohq/kilo/internal/cache"
	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/orchestrator"
	"github.com/kilohq/kilo/internal/schemagen"
	"github.com/kilohq/kilo/internal/skills"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/internal/vault"
	"github.com/kilohq/kilo/pkg/models"
)

// skillLimits caps active skills per bot by account tier.
var skillLimits = map[string]int{
	"free": 5,
	"pro":  25,
}

// Handler serves the HTTP API. All dependencies are injected; the handler
// itself is stateless.
type Handler struct {
	stores    storage.StoreSet
	cache     *cache.Cache
	orch      *orchestrator.Orchestrator
	validator *skills.Validator
	generator *schemagen.Generator
	effects   *EffectApplier
	vault     *vault.Vault
	logger    *observability.Logger
	metrics   *observability.Metrics
}

func NewHandler(stores storage.StoreSet, c *cache.Cache, orch *orchestrator.Orchestrator, generator *schemagen.Generator, effects *EffectApplier, v *vault.Vault, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		stores:    stores,
		cache:     c,
		orch:      orch,
		validator: skills.NewValidator(),
		generator: generator,
		effects:   effects,
		vault:     v,
		logger:    logger,
		metrics:   metrics,
	}
}

// Routes builds the full route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", h.handleChat)

	mux.HandleFunc("GET /api/bots", h.handleListBots)
	mux.HandleFunc("POST /api/bots", h.handleCreateBot)
	mux.HandleFunc("GET /api/bots/{botID}", h.handleGetBot)
	mux.HandleFunc("PATCH /api/bots/{botID}", h.handleUpdateBot)
	mux.HandleFunc("DELETE /api/bots/{botID}", h.handleDeleteBot)

	mux.HandleFunc("GET /api/bots/{botID}/skills", h.handleListSkills)
	mux.HandleFunc("POST /api/bots/{botID}/skills", h.handleCreateSkill)
	mux.HandleFunc("POST /api/bots/{botID}/skills/validate", h.handleValidateSkill)
	mux.HandleFunc("GET /api/bots/{botID}/skills/{skillID}", h.handleGetSkill)
	mux.HandleFunc("PATCH /api/bots/{botID}/skills/{skillID}", h.handleUpdateSkill)
	mux.HandleFunc("DELETE /api/bots/{botID}/skills/{skillID}", h.handleDeleteSkill)

	mux.HandleFunc("GET /api/bots/{botID}/tools", h.handleListTools)
	mux.HandleFunc("POST /api/bots/{botID}/tools", h.handleCreateTool)
	mux.HandleFunc("PATCH /api/bots/{botID}/tools/{toolID}", h.handleUpdateTool)
	mux.HandleFunc("DELETE /api/bots/{botID}/tools/{toolID}", h.handleDeleteTool)

	mux.HandleFunc("GET /api/usage/summary", h.handleUsageSummary)
	mux.HandleFunc("GET /api/usage/breakdown", h.handleUsageBreakdown)

	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return h.instrument(mux)
}

// instrument wraps the mux with request correlation and latency metrics.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithRequestID(r.Context(), uuid.NewString())
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		if h.metrics != nil {
			h.metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		}
	})
}

func (h *Handler) countMessage(outcome string) {
	if h.metrics != nil && outcome != "" {
		h.metrics.MessagesProcessed.WithLabelValues(outcome).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// --- chat ---

type chatRequest struct {
	BotID       string              `json:"botId"`
	UserID      string              `json:"userId"`
	SessionID   string              `json:"sessionId,omitempty"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type chatResponse struct {
	SessionID string                `json:"sessionId"`
	Response  orchestrator.Response `json:"response"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.BotID == "" || req.UserID == "" || req.Content == "" {
		h.badRequest(w, r, errors.New("botId, userId and content are required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx := observability.WithSessionID(observability.WithBotID(r.Context(), req.BotID), req.SessionID)
	result, err := h.orch.Process(ctx, orchestrator.Input{
		BotID:     req.BotID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Content:   req.Content,
	})
	if err != nil {
		h.countMessage("error")
		h.writeError(w, r, err)
		return
	}
	h.countMessage(result.Outcome)

	// Both turns are persisted before the response returns; side effects
	// run detached and never delay or fail the reply.
	userMsg := &models.Message{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		BotID:       req.BotID,
		Role:        models.RoleUser,
		Content:     req.Content,
		Attachments: req.Attachments,
		CreatedAt:   time.Now().UTC(),
	}
	assistantMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		BotID:     req.BotID,
		Role:      models.RoleAssistant,
		Content:   result.Response.Content,
		SkillID:   result.Response.SkillID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.stores.Messages.Create(ctx, userMsg); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.stores.Messages.Create(ctx, assistantMsg); err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(result.SideEffects) > 0 && h.effects != nil {
		h.effects.ApplyAsync(req.BotID, req.UserID, result.SideEffects)
	}

	writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Response: result.Response})
}

// --- bots ---

type botRequest struct {
	UserID      string       `json:"userId"`
	Name        string       `json:"name"`
	Personality string       `json:"personality,omitempty"`
	Soul        *models.Soul `json:"soul,omitempty"`
}

func (h *Handler) handleCreateBot(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.UserID == "" || req.Name == "" {
		h.badRequest(w, r, errors.New("userId and name are required"))
		return
	}

	now := time.Now().UTC()
	bot := &models.Bot{
		ID:          models.NewBotID(),
		UserID:      req.UserID,
		Name:        req.Name,
		Personality: req.Personality,
		Soul:        req.Soul,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bot.SchemaName = models.BotSchemaName(bot.ID)

	if err := h.stores.Bots.Create(r.Context(), bot); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bot)
}

func (h *Handler) handleListBots(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.badRequest(w, r, errors.New("userId query parameter is required"))
		return
	}
	bots, err := h.stores.Bots.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": bots})
}

func (h *Handler) handleGetBot(w http.ResponseWriter, r *http.Request) {
	bot, err := h.stores.Bots.Get(r.Context(), r.PathValue("botID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *Handler) handleUpdateBot(w http.ResponseWriter, r *http.Request) {
	bot, err := h.stores.Bots.Get(r.Context(), r.PathValue("botID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req botRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Name != "" {
		bot.Name = req.Name
	}
	if req.Personality != "" {
		bot.Personality = req.Personality
	}
	if req.Soul != nil {
		bot.Soul = req.Soul
	}
	bot.UpdatedAt = time.Now().UTC()

	if err := h.stores.Bots.Update(r.Context(), bot); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.InvalidateBot(r.Context(), bot.ID)
	writeJSON(w, http.StatusOK, bot)
}

func (h *Handler) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("botID")
	if err := h.stores.Bots.Delete(r.Context(), botID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.InvalidateBot(r.Context(), botID)
	w.WriteHeader(http.StatusNoContent)
}

// --- skills ---

type skillRequest struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	TriggerPatterns []string            `json:"triggerPatterns"`
	BehaviorPrompt  string              `json:"behaviorPrompt"`
	InputSchema     json.RawMessage     `json:"inputSchema,omitempty"`
	OutputFormat    models.OutputFormat `json:"outputFormat,omitempty"`
	Schedule        string              `json:"schedule,omitempty"`
	ReadableTables  []string            `json:"readableTables,omitempty"`
	Integrations    []string            `json:"requiredIntegrations,omitempty"`
	Tier            string              `json:"tier,omitempty"`
}

func (req *skillRequest) toSkill(botID string) *models.SkillDefinition {
	format := req.OutputFormat
	if format == "" {
		format = models.OutputText
	}
	return &models.SkillDefinition{
		BotID:                botID,
		Name:                 req.Name,
		Description:          req.Description,
		TriggerPatterns:      req.TriggerPatterns,
		BehaviorPrompt:       req.BehaviorPrompt,
		InputSchema:          req.InputSchema,
		OutputFormat:         format,
		Schedule:             req.Schedule,
		ReadableTables:       req.ReadableTables,
		RequiredIntegrations: req.Integrations,
	}
}

func (h *Handler) handleListSkills(w http.ResponseWriter, r *http.Request) {
	list, err := h.stores.Skills.List(r.Context(), r.PathValue("botID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": list})
}

func (h *Handler) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("botID")
	bot, err := h.stores.Bots.Get(r.Context(), botID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req skillRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if limit, capped := skillLimits[tierOf(req.Tier)]; capped {
		count, err := h.stores.Skills.CountByBot(r.Context(), botID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if count >= limit {
			h.writeError(w, r, kiloerr.Newf(kiloerr.CodeSkillLimitExceeded,
				"skill limit of %d reached for tier %q", limit, tierOf(req.Tier)))
			return
		}
	}

	skill := req.toSkill(botID)
	existing, err := h.stores.Skills.ListActive(r.Context(), botID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if result := h.validator.Validate(skill, existing); !result.Valid {
		h.writeError(w, r, validationError(result))
		return
	}

	skill.ID = uuid.NewString()

	// A skill with an input schema gets its own table; the table must exist
	// before the row that references it does.
	if len(skill.InputSchema) > 0 {
		plan, err := h.generator.CreateSkillTable(r.Context(), bot.SchemaName, skill.Name, skill.ID, skill.InputSchema)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		skill.DataTable = plan.TableName
		skill.GeneratedDDL = joinDDL(plan.DDL)
		skill.ReadableTables = appendUnique(skill.ReadableTables, plan.TableName)
	}

	skill.CreatedBy = models.CreatedByConversation
	skill.Version = 1
	skill.Active = true
	now := time.Now().UTC()
	skill.CreatedAt = now
	skill.UpdatedAt = now

	if err := h.stores.Skills.Create(r.Context(), skill); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.InvalidateBot(r.Context(), botID)
	writeJSON(w, http.StatusCreated, skill)
}

func (h *Handler) handleValidateSkill(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("botID")
	var req skillRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	existing, err := h.stores.Skills.ListActive(r.Context(), botID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.validator.Validate(req.toSkill(botID), existing))
}

func (h *Handler) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	skill, err := h.stores.Skills.Get(r.Context(), r.PathValue("skillID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

func (h *Handler) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("botID")
	skill, err := h.stores.Skills.Get(r.Context(), r.PathValue("skillID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bot, err := h.stores.Bots.Get(r.Context(), botID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req skillRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	oldSchema := skill.InputSchema
	applySkillPatch(skill, &req)

	existing, err := h.stores.Skills.ListActive(r.Context(), botID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	others := existing[:0]
	for _, s := range existing {
		if s.ID != skill.ID {
			others = append(others, s)
		}
	}
	if result := h.validator.Validate(skill, others); !result.Valid {
		h.writeError(w, r, validationError(result))
		return
	}

	// Schema growth adds columns; columns are never dropped.
	if skill.DataTable != "" && len(req.InputSchema) > 0 {
		if err := h.addNewColumns(r, bot.SchemaName, skill.DataTable, oldSchema, req.InputSchema); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	skill.UpdatedAt = time.Now().UTC()
	if err := h.stores.Skills.Update(r.Context(), skill); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.InvalidateBot(r.Context(), botID)
	writeJSON(w, http.StatusOK, skill)
}

func (h *Handler) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("botID")
	if err := h.stores.Skills.Delete(r.Context(), r.PathValue("skillID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cache.InvalidateBot(r.Context(), botID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addNewColumns(r *http.Request, schemaName, table string, oldSchema, newSchema json.RawMessage) error {
	oldProps := schemaProperties(oldSchema)
	newProps := schemaProperties(newSchema)
	for name, raw := range newProps {
		if _, known := oldProps[name]; known {
			continue
		}
		if _, err := h.generator.AddColumn(r.Context(), schemaName, table, name, raw); err != nil {
			return err
		}
	}
	return nil
}

func schemaProperties(raw json.RawMessage) map[string]json.RawMessage {
	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &parsed) != nil {
		return nil
	}
	return parsed.Properties
}

func applySkillPatch(skill *models.SkillDefinition, req *skillRequest) {
	if req.Name != "" {
		skill.Name = req.Name
	}
	if req.Description != "" {
		skill.Description = req.Description
	}
	if len(req.TriggerPatterns) > 0 {
		skill.TriggerPatterns = req.TriggerPatterns
	}
	if req.BehaviorPrompt != "" {
		skill.BehaviorPrompt = req.BehaviorPrompt
	}
	if len(req.InputSchema) > 0 {
		skill.InputSchema = req.InputSchema
	}
	if req.OutputFormat != "" {
		skill.OutputFormat = req.OutputFormat
	}
	if req.Schedule != "" {
		skill.Schedule = req.Schedule
	}
	if len(req.ReadableTables) > 0 {
		skill.ReadableTables = req.ReadableTables
	}
	if len(req.Integrations) > 0 {
		skill.RequiredIntegrations = req.Integrations
	}
}

// --- tools ---

type toolRequest struct {
	Name      string                `json:"name"`
	BaseURL   string                `json:"baseUrl"`
	AuthType  models.AuthType       `json:"authType"`
	AuthValue string                `json:"authValue,omitempty"`
	Endpoints []models.ToolEndpoint `json:"endpoints"`
	Active    *bool                 `json:"active,omitempty"`
}

func (h *Handler) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.stores.Tools.ListActive(r.Context(), r.PathValue("botID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	// ToolEntry.Auth is json:"-": credentials never serialize.
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (h *Handler) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("botID")
	var req toolRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.Name == "" || req.BaseURL == "" {
		h.badRequest(w, r, errors.New("name and baseUrl are required"))
		return
	}
	if !req.AuthType.Valid() {
		h.badRequest(w, r, fmt.Errorf("invalid authType %q", req.AuthType))
		return
	}

	now := time.Now().UTC()
	tool := &models.ToolEntry{
		ID:        uuid.NewString(),
		BotID:     botID,
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		AuthType:  req.AuthType,
		Endpoints: req.Endpoints,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.AuthValue != "" {
		blob, err := h.vault.Encrypt([]byte(req.AuthValue))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		tool.Auth = blob
	}

	if err := h.stores.Tools.Create(r.Context(), tool); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (h *Handler) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	tool, err := h.stores.Tools.Get(r.Context(), r.PathValue("toolID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req toolRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if req.BaseURL != "" {
		tool.BaseURL = req.BaseURL
	}
	if req.AuthType != "" {
		if !req.AuthType.Valid() {
			h.badRequest(w, r, fmt.Errorf("invalid authType %q", req.AuthType))
			return
		}
		tool.AuthType = req.AuthType
	}
	if req.AuthValue != "" {
		blob, err := h.vault.Encrypt([]byte(req.AuthValue))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		tool.Auth = blob
	}
	if len(req.Endpoints) > 0 {
		tool.Endpoints = req.Endpoints
	}
	if req.Active != nil {
		tool.Active = *req.Active
	}
	tool.UpdatedAt = time.Now().UTC()

	if err := h.stores.Tools.Update(r.Context(), tool); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *Handler) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	if err := h.stores.Tools.Delete(r.Context(), r.PathValue("toolID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- usage ---

func (h *Handler) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.badRequest(w, r, errors.New("userId query parameter is required"))
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, -1, 0)
	if v := r.URL.Query().Get("startDate"); v != "" {
		parsed, err := parseDateParam(v)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		start = parsed
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		parsed, err := parseDateParam(v)
		if err != nil {
			h.badRequest(w, r, err)
			return
		}
		end = parsed
	}

	summary, err := h.stores.Usage.Summary(r.Context(), userID, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

var breakdownGroups = map[string]bool{"model": true, "bot": true, "day": true, "month": true}

func (h *Handler) handleUsageBreakdown(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	groupBy := r.URL.Query().Get("groupBy")
	if userID == "" {
		h.badRequest(w, r, errors.New("userId query parameter is required"))
		return
	}
	if !breakdownGroups[groupBy] {
		h.badRequest(w, r, fmt.Errorf("groupBy must be one of model, bot, day, month"))
		return
	}

	buckets, err := h.stores.Usage.Breakdown(r.Context(), userID, groupBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groupBy": groupBy, "buckets": buckets})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ---

func tierOf(tier string) string {
	switch tier {
	case "", "free":
		return "free"
	case "pro":
		return "pro"
	default:
		return tier // unlimited tiers carry no cap entry
	}
}

func validationError(result *skills.ValidationResult) error {
	return kiloerr.New(kiloerr.CodeSkillValidation, "skill validation failed").
		WithDetail("stage", result.Stage).
		WithDetail("issues", result.Issues).
		WithDetail("conflicts", result.Conflicts).
		WithDetail("warnings", result.Warnings)
}

func joinDDL(stmts []string) string {
	out := ""
	for i, stmt := range stmts {
		if i > 0 {
			out += ";\n"
		}
		out += stmt
	}
	return out
}

func appendUnique(list []string, item string) []string {
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}

func parseDateParam(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want RFC3339 or YYYY-MM-DD", v)
}

func decodeBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Detail  map[string]any `json:"detail,omitempty"`
	} `json:"error"`
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var body errorBody
	body.Error.Code = "bad_request"
	body.Error.Message = err.Error()
	writeJSON(w, http.StatusBadRequest, body)
}

// writeError maps a runtime error to its declared status. Unknown errors
// become 500 with the internal detail logged, never leaked.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := kiloerr.HTTPStatus(err)
	code := kiloerr.CodeOf(err)

	var body errorBody
	body.Error.Code = string(code)
	if code == kiloerr.CodeInternal {
		h.logger.Error(r.Context(), "unhandled error", "error", err)
		body.Error.Message = "internal error"
	} else {
		var ke *kiloerr.Error
		if errors.As(err, &ke) {
			body.Error.Message = ke.Message
			body.Error.Detail = ke.Detail
		} else {
			body.Error.Message = err.Error()
		}
	}
	writeJSON(w, status, body)
}
