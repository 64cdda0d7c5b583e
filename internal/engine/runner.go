package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"guildboard/internal/domain"
	"guildboard/internal/events"
	"guildboard/internal/logging"
)

// Batch defaults.
const (
	DefaultConcurrency         = 4
	DefaultSequentialThreshold = 1
	DefaultTenantTimeout       = 30 * time.Second
	DefaultRunTimeout          = 10 * time.Minute
)

// BatchConfig controls the all-tenant worker pool. Zero values take defaults;
// a negative timeout disables that timeout.
type BatchConfig struct {
	Concurrency int
	// Tenant counts at or below this threshold run sequentially.
	SequentialThreshold int
	TenantTimeout       time.Duration
	RunTimeout          time.Duration
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.SequentialThreshold < 0 {
		c.SequentialThreshold = 0
	}
	if c.TenantTimeout == 0 {
		c.TenantTimeout = DefaultTenantTimeout
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	return c
}

type GroupLister interface {
	ListGroups(ctx context.Context) ([]domain.Group, error)
}

type TenantEvaluator interface {
	Evaluate(ctx context.Context, groupID string) (Result, error)
}

type RunRecorder interface {
	Append(ctx context.Context, evtType, groupID, runID string, payload events.EventPayload) error
}

// TenantFailure is one tenant whose evaluation failed as a whole.
type TenantFailure struct {
	GroupID string `json:"group_id"`
	Error   string `json:"error"`
}

// Summary reports a batch run. TenantsProcessed counts tenants attempted,
// including failed ones.
type Summary struct {
	RunID            string          `json:"run_id"`
	TenantsProcessed int             `json:"tenants_processed"`
	TotalUpdated     int             `json:"total_updated"`
	Failures         []TenantFailure `json:"failures"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// Runner evaluates many tenants on a bounded pool. One tenant failing,
// timing out, or panicking never affects the others.
type Runner struct {
	Groups    GroupLister
	Evaluator TenantEvaluator
	Recorder  RunRecorder
	Config    BatchConfig
	Logger    *zap.Logger
	Metrics   *Metrics
	Now       func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RunAll evaluates every known group. Only a failure to enumerate groups is
// returned as an error; per-tenant failures land in Summary.Failures.
func (r *Runner) RunAll(ctx context.Context) (Summary, error) {
	if r.Groups == nil {
		return Summary{}, errors.New("runner has no group source")
	}
	cfg := r.Config.withDefaults()
	runCtx, cancel := withOptionalTimeout(ctx, cfg.RunTimeout)
	defer cancel()
	groups, err := r.Groups.ListGroups(runCtx)
	if err != nil {
		return Summary{}, fmt.Errorf("enumerate groups: %w", err)
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return r.run(runCtx, cfg, ids), nil
}

// RunGroups evaluates an explicit list of groups with the same pool and
// isolation as RunAll.
func (r *Runner) RunGroups(ctx context.Context, groupIDs []string) (Summary, error) {
	if len(groupIDs) == 0 {
		return Summary{}, errors.New("at least one group id is required")
	}
	cfg := r.Config.withDefaults()
	runCtx, cancel := withOptionalTimeout(ctx, cfg.RunTimeout)
	defer cancel()
	return r.run(runCtx, cfg, dedupe(groupIDs)), nil
}

func (r *Runner) run(ctx context.Context, cfg BatchConfig, ids []string) Summary {
	log := logging.OrNop(r.Logger)
	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
		Failures:  []TenantFailure{},
	}
	log = log.With(zap.String("run_id", summary.RunID))

	limit := cfg.Concurrency
	if len(ids) <= cfg.SequentialThreshold {
		limit = 1
	}
	log.Info("achievement sync run started", zap.Int("tenants", len(ids)), zap.Int("workers", limit))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for _, id := range ids {
		g.Go(func() error {
			started := time.Now()
			res, err := r.evaluateTenant(ctx, cfg, id)
			r.Metrics.tenant(err == nil, time.Since(started))

			mu.Lock()
			defer mu.Unlock()
			summary.TenantsProcessed++
			if err != nil {
				log.Error("tenant sync failed", zap.String("group_id", id), zap.Error(err))
				summary.Failures = append(summary.Failures, TenantFailure{GroupID: id, Error: err.Error()})
				return nil
			}
			summary.TotalUpdated += res.Updated
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].GroupID < summary.Failures[j].GroupID
	})
	summary.FinishedAt = r.now().UTC()
	r.Metrics.run(summary.FinishedAt.Sub(summary.StartedAt), summary.FinishedAt)
	r.record(summary, log)
	log.Info("achievement sync run finished",
		zap.Int("tenants", summary.TenantsProcessed),
		zap.Int("updated", summary.TotalUpdated),
		zap.Int("failed", len(summary.Failures)))
	return summary
}

func (r *Runner) evaluateTenant(ctx context.Context, cfg BatchConfig, groupID string) (res Result, err error) {
	if r.Evaluator == nil {
		return Result{}, errors.New("runner has no evaluator")
	}
	tctx, cancel := withOptionalTimeout(ctx, cfg.TenantTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tenant evaluation panicked: %v", p)
		}
	}()
	return r.Evaluator.Evaluate(tctx, groupID)
}

// record writes the run log on a fresh context so a blown run deadline still
// leaves a trace.
func (r *Runner) record(s Summary, log *zap.Logger) {
	if r.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, f := range s.Failures {
		if err := r.Recorder.Append(ctx, events.TypeTenantFailed, f.GroupID, s.RunID, events.EventPayload{"error": f.Error}); err != nil {
			log.Warn("record tenant failure", zap.String("group_id", f.GroupID), zap.Error(err))
		}
	}
	payload := events.EventPayload{
		"tenants_processed": s.TenantsProcessed,
		"total_updated":     s.TotalUpdated,
		"failed":            len(s.Failures),
		"started_at":        s.StartedAt.Format(time.RFC3339),
		"finished_at":       s.FinishedAt.Format(time.RFC3339),
	}
	if err := r.Recorder.Append(ctx, events.TypeRunCompleted, "", s.RunID, payload); err != nil {
		log.Warn("record run summary", zap.Error(err))
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
