package engine_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildboard/internal/config"
	"guildboard/internal/db"
	"guildboard/internal/domain"
	"guildboard/internal/engine"
	"guildboard/internal/engine/auth"
	"guildboard/internal/engine/calc"
	"guildboard/internal/migrate"
	"guildboard/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T, opts engine.Options) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	opts.Now = func() time.Time { return clock }
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	eng, err := engine.New(conn, opts)
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func (env testEnv) advance(d time.Duration) { *env.Clock = env.Clock.Add(d) }

func (env testEnv) catalog(t *testing.T, defs ...domain.AchievementDefinition) {
	t.Helper()
	_, err := env.Engine.ImportCatalog(env.Ctx, &config.Catalog{Achievements: defs})
	require.NoError(t, err)
}

func (env testEnv) group(t *testing.T, id string, members int) {
	t.Helper()
	require.NoError(t, env.Engine.Repo.InsertGroup(env.Ctx, domain.Group{ID: id}))
	for i := 0; i < members; i++ {
		role := domain.RoleMember
		if i == 0 {
			role = domain.RoleAdmin
		}
		require.NoError(t, env.Engine.Repo.UpsertMember(env.Ctx, id, fmt.Sprintf("%s-user-%d", id, i), role))
	}
}

func def(id, typ string, value int64) domain.AchievementDefinition {
	return domain.AchievementDefinition{ID: id, Name: id, RequirementType: typ, RequirementValue: value}
}

func byID(res engine.Result) map[string]engine.AchievementResult {
	out := map[string]engine.AchievementResult{}
	for _, a := range res.Achievements {
		out[a.AchievementID] = a
	}
	return out
}

func TestEvaluateIsIdempotent(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("roster", "member_count", 3), def("sieges", "siege_wins", 1))
	env.group(t, "g1", 3)

	first, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	second, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, 2, first.Updated)
	assert.Equal(t, first.Achievements, second.Achievements)
	rows, err := env.Engine.Repo.ListProgress(env.Ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestUnlockThresholdIsInclusiveAndRelocks(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("roster", "member_count", 5))
	env.group(t, "g1", 5)

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	got := byID(res)["roster"]
	assert.Equal(t, int64(5), got.CurrentValue)
	assert.True(t, got.IsUnlocked)
	require.NotNil(t, got.UnlockedAt)

	require.NoError(t, env.Engine.Repo.RemoveMember(env.Ctx, "g1", "g1-user-4"))
	env.advance(time.Hour)
	res, err = env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	got = byID(res)["roster"]
	assert.Equal(t, int64(4), got.CurrentValue)
	assert.False(t, got.IsUnlocked)
	assert.Nil(t, got.UnlockedAt)
}

func TestStickyUnlocksSurviveRegression(t *testing.T) {
	env := newTestEnv(t, engine.Options{StickyUnlocks: true})
	env.catalog(t, def("roster", "member_count", 5))
	env.group(t, "g1", 5)

	first, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.RemoveMember(env.Ctx, "g1", "g1-user-4"))
	env.advance(time.Hour)

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	got := byID(res)["roster"]
	assert.Equal(t, int64(4), got.CurrentValue)
	assert.True(t, got.IsUnlocked)
	assert.Equal(t, byID(first)["roster"].UnlockedAt, got.UnlockedAt)
}

func TestUnlockedAtKeepsFirstUnlockTime(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("roster", "member_count", 2))
	env.group(t, "g1", 2)

	first, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	env.advance(24 * time.Hour)
	require.NoError(t, env.Engine.Repo.UpsertMember(env.Ctx, "g1", "late-joiner", domain.RoleMember))
	second, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)

	assert.Equal(t, int64(3), byID(second)["roster"].CurrentValue)
	assert.Equal(t, *byID(first)["roster"].UnlockedAt, *byID(second)["roster"].UnlockedAt)
	row, err := env.Engine.Repo.GetProgress(env.Ctx, "g1", "roster")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T12:00:00Z", row.UpdatedAt)
	assert.Equal(t, "2024-01-01T12:00:00Z", *row.UnlockedAt)
}

func TestUnknownRequirementTypeIsSkipped(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	unknown, err := env.Engine.ImportCatalog(env.Ctx, &config.Catalog{Achievements: []domain.AchievementDefinition{
		def("roster", "member_count", 1),
		def("mystery", "dragon_kills", 1),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"mystery"}, unknown)
	env.group(t, "g1", 1)

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []string{"mystery"}, res.Skipped)
	_, err = env.Engine.Repo.GetProgress(env.Ctx, "g1", "mystery")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestBankDepositsWithoutBankPersistsZero(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("coffers", "bank_deposits", 1))
	env.group(t, "g1", 1)
	env.group(t, "g2", 1)

	bankID, err := env.Engine.Repo.EnsureBank(env.Ctx, "g2")
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.InsertBankTransaction(env.Ctx, bankID, "deposit", 100, *env.Clock))
	require.NoError(t, env.Engine.Repo.InsertBankTransaction(env.Ctx, bankID, "withdrawal", 40, *env.Clock))

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, engine.AchievementResult{AchievementID: "coffers"}, byID(res)["coffers"])

	res, err = env.Engine.SyncGroup(env.Ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byID(res)["coffers"].CurrentValue)
	assert.True(t, byID(res)["coffers"].IsUnlocked)
}

func TestGrandmasterCountReadsStringEncodedProfessions(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("hall", "grandmaster_count", 1), def("miners", "gathering_grandmaster", 1))
	env.group(t, "g1", 1)

	_, err := env.Engine.Repo.InsertCharacter(env.Ctx, "g1", "g1-user-0", "Brom",
		`"[{\"id\":\"mining\",\"rank\":4,\"name\":\"Grandmaster Miner\"}]"`)
	require.NoError(t, err)
	_, err = env.Engine.Repo.InsertCharacter(env.Ctx, "g1", "g1-user-0", "Ilse", `["fishing"]`)
	require.NoError(t, err)

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	got := byID(res)
	assert.Equal(t, int64(1), got["hall"].CurrentValue)
	assert.True(t, got["hall"].IsUnlocked)
	assert.Equal(t, int64(0), got["miners"].CurrentValue)
	assert.False(t, got["miners"].IsUnlocked)
}

func TestMasteryMatchesSkillIDsCaseInsensitively(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("gatherers", calc.MasteryType(calc.TierGathering, "grandmaster"), 1))
	env.group(t, "g1", 1)
	var profs []string
	for _, skill := range calc.TierSkills(calc.TierGathering) {
		profs = append(profs, fmt.Sprintf(`{"id":%q,"rank":4}`, strings.ToUpper(skill[:1])+skill[1:]))
	}
	_, err := env.Engine.Repo.InsertCharacter(env.Ctx, "g1", "g1-user-0", "Tova", "["+strings.Join(profs, ",")+"]")
	require.NoError(t, err)

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	require.Empty(t, res.Failed)
	got := byID(res)["gatherers"]
	assert.Equal(t, int64(1), got.CurrentValue)
	assert.True(t, got.IsUnlocked)
}

func TestMalformedProfessionsFailOnlyThatCalculation(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("hall", "grandmaster_count", 1), def("roster", "member_count", 1))
	env.group(t, "g1", 1)
	_, err := env.Engine.Repo.InsertCharacter(env.Ctx, "g1", "g1-user-0", "Broken", `{"id":"mining"}`)
	require.NoError(t, err)

	res, err := env.Engine.SyncGroup(env.Ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "hall", res.Failed[0].AchievementID)
}

func TestSyncGroupRejectsUnknownGroup(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	_, err := env.Engine.SyncGroup(env.Ctx, "ghost")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSyncGroupAsChecksRole(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.catalog(t, def("roster", "member_count", 1))
	env.group(t, "g1", 2)
	require.NoError(t, env.Engine.Repo.UpsertMember(env.Ctx, "g1", "officer-1", domain.RoleOfficer))

	_, err := env.Engine.SyncGroupAs(env.Ctx, "g1", "g1-user-1")
	var forbidden auth.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	res, err := env.Engine.SyncGroupAs(env.Ctx, "g1", "officer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), byID(res)["roster"].CurrentValue)

	_, err = env.Engine.GroupProgress(env.Ctx, "g1", "g1-user-1")
	require.NoError(t, err)
	_, err = env.Engine.GroupProgress(env.Ctx, "g1", "stranger")
	require.ErrorAs(t, err, &forbidden)
}

func TestSyncAllIsolatesTenantsAndLogsRun(t *testing.T) {
	env := newTestEnv(t, engine.Options{Batch: engine.BatchConfig{Concurrency: 2}})
	env.catalog(t, def("roster", "member_count", 2), def("caravans", "caravan_complete", 1))
	for i := 0; i < 5; i++ {
		env.group(t, fmt.Sprintf("g%d", i), i)
	}
	require.NoError(t, env.Engine.Repo.InsertCaravan(env.Ctx, "g3", "completed", *env.Clock))

	summary, err := env.Engine.SyncAll(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TenantsProcessed)
	assert.Equal(t, 10, summary.TotalUpdated)
	assert.Empty(t, summary.Failures)
	assert.NotEmpty(t, summary.RunID)

	row, err := env.Engine.Repo.GetProgress(env.Ctx, "g3", "caravans")
	require.NoError(t, err)
	assert.True(t, row.IsUnlocked)

	logs, err := env.Engine.Repo.LatestLog(env.Ctx, 10, "sync.run.completed", "", summary.RunID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Payload, `"tenants_processed":5`)
}

func TestEnsureCatalogSeedsOnce(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	seeded, err := env.Engine.EnsureCatalog(env.Ctx)
	require.NoError(t, err)
	assert.True(t, seeded)
	seeded, err = env.Engine.EnsureCatalog(env.Ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	defs, err := env.Engine.Repo.ListDefinitions(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, defs, len(config.DefaultCatalog().Achievements))
}
