package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"guildboard/internal/config"
	"guildboard/internal/domain"
	"guildboard/internal/engine/auth"
	"guildboard/internal/engine/calc"
	"guildboard/internal/events"
	"guildboard/internal/logging"
	"guildboard/internal/repo"
)

// Options tune an Engine. The zero value is usable.
type Options struct {
	Logger        *zap.Logger
	Registerer    prometheus.Registerer
	Batch         BatchConfig
	StickyUnlocks bool
	Now           func() time.Time
	// Registry overrides the default calculation registry.
	Registry calc.Registry
}

// Engine wires the store, calculations, evaluator, and batch runner.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Auth      auth.Service
	Registry  calc.Registry
	Evaluator *Evaluator
	Runner    *Runner
	Metrics   *Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(db *sql.DB, opts Options) (Engine, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := logging.OrNop(opts.Logger)
	r := repo.Repo{DB: db}
	reg := opts.Registry
	if reg == nil {
		reg = calc.NewRegistry()
		if err := calc.RegisterDefaults(reg, r, now); err != nil {
			return Engine{}, fmt.Errorf("register calculations: %w", err)
		}
	}
	metrics := NewMetrics(opts.Registerer)
	ev := &Evaluator{
		Store:         r,
		Registry:      reg,
		Logger:        log,
		Metrics:       metrics,
		Now:           now,
		StickyUnlocks: opts.StickyUnlocks,
	}
	w := events.Writer{DB: db, Now: now}
	return Engine{
		DB:        db,
		Repo:      r,
		Events:    w,
		Auth:      auth.Service{Members: r},
		Registry:  reg,
		Evaluator: ev,
		Runner: &Runner{
			Groups:    r,
			Evaluator: ev,
			Recorder:  w,
			Config:    opts.Batch,
			Logger:    log,
			Metrics:   metrics,
			Now:       now,
		},
		Metrics: metrics,
		Logger:  log,
		Now:     now,
	}, nil
}

// SyncGroup evaluates one existing group without a permission check.
func (e Engine) SyncGroup(ctx context.Context, groupID string) (Result, error) {
	if _, err := e.Repo.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{}, fmt.Errorf("group %s: %w", groupID, err)
		}
		return Result{}, err
	}
	return e.Evaluator.Evaluate(ctx, groupID)
}

// SyncGroupAs evaluates groupID on behalf of userID, who must be an admin or
// officer of that group.
func (e Engine) SyncGroupAs(ctx context.Context, groupID, userID string) (Result, error) {
	if err := e.Auth.RequireManager(ctx, groupID, userID); err != nil {
		return Result{}, err
	}
	return e.Evaluator.Evaluate(ctx, groupID)
}

// SyncAll evaluates every group.
func (e Engine) SyncAll(ctx context.Context) (Summary, error) {
	return e.Runner.RunAll(ctx)
}

// SyncGroups evaluates the listed groups on the batch pool.
func (e Engine) SyncGroups(ctx context.Context, groupIDs []string) (Summary, error) {
	return e.Runner.RunGroups(ctx, groupIDs)
}

// GroupProgress returns stored progress for a group the caller belongs to.
// An empty userID skips the membership check.
func (e Engine) GroupProgress(ctx context.Context, groupID, userID string) ([]domain.AchievementProgress, error) {
	if userID != "" {
		if err := e.Auth.RequireMember(ctx, groupID, userID); err != nil {
			return nil, err
		}
	}
	items, err := e.Repo.ListProgress(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.AchievementProgress{}
	}
	return items, nil
}

// ImportCatalog validates and upserts achievement definitions. Definitions
// whose requirement type has no calculation are kept but reported.
func (e Engine) ImportCatalog(ctx context.Context, cat *config.Catalog) (unknown []string, err error) {
	if cat == nil {
		return nil, errors.New("catalog required")
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	for _, def := range cat.Achievements {
		if _, ok := e.Registry.Resolve(def.RequirementType); !ok {
			unknown = append(unknown, def.ID)
		}
	}
	if err := e.Repo.UpsertDefinitions(ctx, cat.Achievements); err != nil {
		return nil, fmt.Errorf("store catalog: %w", err)
	}
	if len(unknown) > 0 {
		e.Logger.Warn("catalog contains achievements with unregistered requirement types", zap.Strings("achievement_ids", unknown))
	}
	return unknown, nil
}

// EnsureCatalog seeds the built-in catalogue into an empty store.
func (e Engine) EnsureCatalog(ctx context.Context) (bool, error) {
	defs, err := e.Repo.ListDefinitions(ctx)
	if err != nil {
		return false, err
	}
	if len(defs) > 0 {
		return false, nil
	}
	if _, err := e.ImportCatalog(ctx, config.DefaultCatalog()); err != nil {
		return false, err
	}
	return true, nil
}
