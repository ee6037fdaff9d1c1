package web

import (
	"context"
	"encoding/json"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/scheduler"
	"github.com/kilohq/kilo/internal/sqlguard"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/pkg/models"
)

// effectTimeout bounds one detached side-effect batch.
const effectTimeout = 10 * time.Second

// EffectApplier performs the deferred work the runtime emits alongside a
// response: memory upserts, skill data writes, and notification scheduling.
// Proposals, analytics, and API call records are informational and only
// logged.
type EffectApplier struct {
	stores storage.StoreSet
	guard  *sqlguard.Executor
	sched  *scheduler.Scheduler
	logger *observability.Logger
}

func NewEffectApplier(stores storage.StoreSet, guard *sqlguard.Executor, sched *scheduler.Scheduler, logger *observability.Logger) *EffectApplier {
	return &EffectApplier{stores: stores, guard: guard, sched: sched, logger: logger}
}

// ApplyAsync applies the effects on a detached goroutine. Failures are
// logged, never surfaced to the chat caller.
func (a *EffectApplier) ApplyAsync(botID, userID string, effects []models.SideEffect) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		a.Apply(observability.WithBotID(ctx, botID), botID, userID, effects)
	}()
}

func (a *EffectApplier) Apply(ctx context.Context, botID, userID string, effects []models.SideEffect) {
	for _, effect := range effects {
		switch effect.Type {
		case models.EffectMemoryWrite:
			a.applyMemoryWrite(ctx, effect.MemoryWrite)
		case models.EffectSkillDataWrite:
			a.applySkillDataWrite(ctx, botID, effect.SkillDataWrite)
		case models.EffectScheduleNotification:
			a.applySchedule(ctx, botID, userID, effect.ScheduleNotification)
		case models.EffectSkillProposal, models.EffectLearningProposal:
			a.logger.Info(ctx, "proposal emitted", "effect", string(effect.Type))
		case models.EffectAnalyticsEvent:
			if e := effect.AnalyticsEvent; e != nil {
				a.logger.Info(ctx, "analytics event", "name", e.Name)
			}
		case models.EffectAPICall:
			if e := effect.APICall; e != nil {
				a.logger.Info(ctx, "api call recorded",
					"tool", e.ToolName, "endpoint", e.Endpoint, "status", e.Status)
			}
		}
	}
}

func (a *EffectApplier) applyMemoryWrite(ctx context.Context, e *models.MemoryWriteEffect) {
	if e == nil {
		return
	}
	for i := range e.Facts {
		if err := a.stores.Memories.Upsert(ctx, &e.Facts[i]); err != nil {
			a.logger.Error(ctx, "memory upsert failed", "key", e.Facts[i].Key, "error", err)
		}
	}
}

func (a *EffectApplier) applySkillDataWrite(ctx context.Context, botID string, e *models.SkillDataWriteEffect) {
	if e == nil {
		return
	}
	var data map[string]any
	if err := json.Unmarshal(e.Data, &data); err != nil {
		a.logger.Error(ctx, "skill data payload unparseable", "table", e.Table, "error", err)
		return
	}

	// The payload must conform to the skill's declared input schema before
	// it touches the data table.
	if e.SkillID != "" {
		skill, err := a.stores.Skills.Get(ctx, e.SkillID)
		if err != nil {
			a.logger.Error(ctx, "skill lookup failed for data write", "skill", e.SkillID, "error", err)
			return
		}
		if err := validateAgainstSchema(skill.InputSchema, data); err != nil {
			a.logger.Warn(ctx, "skill data rejected by schema",
				"skill", e.SkillID, "table", e.Table, "error", err)
			return
		}
	}

	schemaName := models.BotSchemaName(botID)
	var err error
	switch e.Op {
	case models.SkillDataInsert:
		err = a.guard.Insert(ctx, schemaName, e.Table, e.SkillID, data)
	case models.SkillDataUpdate:
		err = a.guard.Update(ctx, schemaName, e.Table, e.RowID, data)
	default:
		a.logger.Warn(ctx, "unsupported skill data op", "op", string(e.Op))
		return
	}
	if err != nil {
		a.logger.Error(ctx, "skill data write failed",
			"table", e.Table, "op", string(e.Op), "error", err)
	}
}

func (a *EffectApplier) applySchedule(ctx context.Context, botID, userID string, e *models.ScheduleNotificationEffect) {
	if e == nil {
		return
	}
	if a.sched == nil {
		a.logger.Info(ctx, "notification dropped, no scheduler",
			"at", e.At.Format(time.RFC3339), "recurring", e.Recurring)
		return
	}
	if err := a.sched.FromEffect(botID, userID, e); err != nil {
		a.logger.Error(ctx, "notification scheduling failed", "error", err)
	}
}

// validateAgainstSchema checks data against a JSON Schema. A skill without a
// schema accepts anything.
func validateAgainstSchema(raw json.RawMessage, data map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	sch, err := jsonschema.CompileString("input_schema.json", string(raw))
	if err != nil {
		// An uncompilable stored schema must not block writes.
		return nil
	}
	return sch.Validate(data)
}
