package calc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildboard/internal/domain"
)

func newDefaultRegistry(t *testing.T, src Sources, now time.Time) *MapRegistry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, RegisterDefaults(reg, src, func() time.Time { return now }))
	return reg
}

func resolveAndRun(t *testing.T, reg Registry, key string) (int64, error) {
	t.Helper()
	fn, ok := reg.Resolve(key)
	require.True(t, ok, "missing calculation %s", key)
	return fn(context.Background(), "g1")
}

func TestRegisterDefaultsCoversCatalogue(t *testing.T) {
	reg := newDefaultRegistry(t, &fakeSources{}, time.Now())
	want := []string{
		TypeMemberCount, TypeSiegeWins, TypeBankDeposits, TypeCaravanComplete,
		TypeGrandmasterCount, TypeEventsHosted, TypeWeeklyActive,
		TypeJackOfAllTrades, TypeMasterOfAllTrades,
	}
	for _, tier := range Tiers() {
		for _, suffix := range []string{"journeyman", "master", "grandmaster"} {
			want = append(want, MasteryType(tier, suffix))
		}
	}
	assert.ElementsMatch(t, want, reg.Types())
	assert.Len(t, reg.Types(), 18)
	assert.Equal(t, reg.Types(), BuiltinTypes())
}

func TestBankDepositsWithoutBankIsZero(t *testing.T) {
	src := &fakeSources{}
	reg := newDefaultRegistry(t, src, time.Now())
	v, err := resolveAndRun(t, reg, TypeBankDeposits)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.Equal(t, 0, src.depositCall)
}

func TestBankDepositsCountsLedger(t *testing.T) {
	src := &fakeSources{bankID: "bank-1", deposits: map[string]int64{"bank-1": 12}}
	reg := newDefaultRegistry(t, src, time.Now())
	v, err := resolveAndRun(t, reg, TypeBankDeposits)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
}

func TestBankDepositsLookupErrorPropagates(t *testing.T) {
	reg := newDefaultRegistry(t, &fakeSources{bankErr: errors.New("disk gone")}, time.Now())
	_, err := resolveAndRun(t, reg, TypeBankDeposits)
	require.Error(t, err)
}

func TestGrandmasterCountMatchesNameCaseInsensitively(t *testing.T) {
	src := &fakeSources{characters: []domain.Character{
		char("c1", domain.Profession{ID: "mining", Rank: 4, Name: "Grandmaster Miner"}, domain.Profession{ID: "smelting", Rank: 4, Name: "GRANDMASTER Smelter"}),
		char("c2", domain.Profession{ID: "fishing", Rank: 3, Name: "Master Angler"}),
		char("c3", domain.Profession{ID: "arcana", Rank: 4, Name: "grandmaster of arcana"}),
	}}
	reg := newDefaultRegistry(t, src, time.Now())
	v, err := resolveAndRun(t, reg, TypeGrandmasterCount)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestWeeklyActiveUsesSevenDayWindow(t *testing.T) {
	now := time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)
	var gotSince time.Time
	src := &fakeSources{activeSince: func(since time.Time) int64 {
		gotSince = since
		return 4
	}}
	reg := newDefaultRegistry(t, src, now)
	v, err := resolveAndRun(t, reg, TypeWeeklyActive)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), gotSince)
}

func TestSimpleCounts(t *testing.T) {
	src := &fakeSources{members: 5, siegeWins: 2, caravans: 3, events: 9}
	reg := newDefaultRegistry(t, src, time.Now())
	for key, want := range map[string]int64{
		TypeMemberCount:     5,
		TypeSiegeWins:       2,
		TypeCaravanComplete: 3,
		TypeEventsHosted:    9,
	} {
		v, err := resolveAndRun(t, reg, key)
		require.NoError(t, err)
		assert.Equal(t, want, v, key)
	}
}

func TestMasteryEntriesUseRankThresholds(t *testing.T) {
	var profs []domain.Profession
	for _, s := range TierSkills(TierCrafting) {
		profs = append(profs, prof(s, RankMaster))
	}
	reg := newDefaultRegistry(t, &fakeSources{characters: []domain.Character{char("smith", profs...)}}, time.Now())

	for suffix, want := range map[string]int64{"journeyman": 1, "master": 1, "grandmaster": 0} {
		v, err := resolveAndRun(t, reg, MasteryType(TierCrafting, suffix))
		require.NoError(t, err)
		assert.Equal(t, want, v, suffix)
	}
	v, err := resolveAndRun(t, reg, MasteryType(TierGathering, "journeyman"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}
