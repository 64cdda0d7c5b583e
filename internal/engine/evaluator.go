package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guildboard/internal/domain"
	"guildboard/internal/engine/calc"
	"guildboard/internal/logging"
	"guildboard/internal/repo"
)

// ProgressStore is the persistence the evaluator needs: the global catalogue
// and the keyed progress upsert.
type ProgressStore interface {
	ListDefinitions(ctx context.Context) ([]domain.AchievementDefinition, error)
	UpsertProgress(ctx context.Context, w repo.ProgressWrite) (domain.AchievementProgress, error)
}

// AchievementResult is the per-definition outcome of one evaluation.
type AchievementResult struct {
	AchievementID string  `json:"achievement_id"`
	CurrentValue  int64   `json:"current_value"`
	IsUnlocked    bool    `json:"is_unlocked"`
	UnlockedAt    *string `json:"unlocked_at,omitempty"`
}

// DefinitionFailure records a definition whose calculation or write failed.
type DefinitionFailure struct {
	AchievementID   string
	RequirementType string
	Err             error
}

// Result summarizes one tenant evaluation. Updated counts successful writes.
type Result struct {
	GroupID      string
	Updated      int
	Achievements []AchievementResult
	Skipped      []string
	Failed       []DefinitionFailure
}

// Evaluator runs every catalogue definition for a single tenant.
type Evaluator struct {
	Store    ProgressStore
	Registry calc.Registry
	Logger   *zap.Logger
	Metrics  *Metrics
	Now      func() time.Time
	// StickyUnlocks keeps a previously unlocked row unlocked when the value regresses.
	StickyUnlocks bool
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate computes and persists progress for every definition against groupID.
// A failing calculation is logged and skipped; a failing catalogue load or a
// cancelled context fails the whole tenant.
func (e *Evaluator) Evaluate(ctx context.Context, groupID string) (Result, error) {
	if groupID == "" {
		return Result{}, errors.New("group id is required")
	}
	if e.Store == nil || e.Registry == nil {
		return Result{}, errors.New("evaluator not configured")
	}
	log := logging.OrNop(e.Logger).With(zap.String("group_id", groupID))
	res := Result{GroupID: groupID, Achievements: []AchievementResult{}}

	defs, err := e.Store.ListDefinitions(ctx)
	if err != nil {
		return res, fmt.Errorf("load achievement catalogue: %w", err)
	}
	now := e.now().UTC()
	calcCtx := calc.WithEvaluationScope(ctx)
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		dlog := log.With(zap.String("achievement_id", def.ID), zap.String("requirement_type", def.RequirementType))
		fn, ok := e.Registry.Resolve(def.RequirementType)
		if !ok {
			dlog.Warn("no calculation registered for requirement type; skipping")
			res.Skipped = append(res.Skipped, def.ID)
			e.Metrics.definition(outcomeSkipped, false)
			continue
		}
		value, err := runCalculation(calcCtx, fn, groupID)
		if err == nil && value < 0 {
			err = fmt.Errorf("calculation returned negative value %d", value)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			dlog.Error("achievement calculation failed", zap.Error(err))
			res.Failed = append(res.Failed, DefinitionFailure{AchievementID: def.ID, RequirementType: def.RequirementType, Err: err})
			e.Metrics.definition(outcomeFailed, false)
			continue
		}
		row, err := e.Store.UpsertProgress(ctx, repo.ProgressWrite{
			GroupID:       groupID,
			AchievementID: def.ID,
			CurrentValue:  value,
			IsUnlocked:    value >= def.RequirementValue,
			Now:           now,
			Sticky:        e.StickyUnlocks,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			dlog.Error("persist achievement progress failed", zap.Error(err))
			res.Failed = append(res.Failed, DefinitionFailure{AchievementID: def.ID, RequirementType: def.RequirementType, Err: err})
			e.Metrics.definition(outcomeFailed, false)
			continue
		}
		res.Updated++
		res.Achievements = append(res.Achievements, AchievementResult{
			AchievementID: row.AchievementID,
			CurrentValue:  row.CurrentValue,
			IsUnlocked:    row.IsUnlocked,
			UnlockedAt:    row.UnlockedAt,
		})
		e.Metrics.definition(outcomeWritten, row.IsUnlocked)
		dlog.Debug("achievement evaluated", zap.Int64("value", row.CurrentValue), zap.Bool("unlocked", row.IsUnlocked))
	}
	log.Info("group achievements evaluated",
		zap.Int("updated", res.Updated),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func runCalculation(ctx context.Context, fn calc.Calculation, groupID string) (value int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("calculation panicked: %v", p)
		}
	}()
	return fn(ctx, groupID)
}
