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

func characterTypes() []string {
	types := []string{TypeGrandmasterCount, TypeJackOfAllTrades, TypeMasterOfAllTrades}
	for _, t := range Tiers() {
		for _, mr := range masteryRanks {
			types = append(types, MasteryType(t, mr.suffix))
		}
	}
	return types
}

func TestEvaluationScopeLoadsCharactersOnce(t *testing.T) {
	src := &fakeSources{characters: []domain.Character{char("c1", prof("mining", RankGrandmaster))}}
	reg := newDefaultRegistry(t, src, time.Now())
	ctx := WithEvaluationScope(context.Background())

	for _, typ := range characterTypes() {
		fn, ok := reg.Resolve(typ)
		require.True(t, ok, typ)
		_, err := fn(ctx, "g1")
		require.NoError(t, err, typ)
	}
	assert.Equal(t, 1, src.charCalls)

	fn, _ := reg.Resolve(TypeGrandmasterCount)
	_, err := fn(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, 2, src.charCalls, "scope is keyed by group")

	_, err = fn(WithEvaluationScope(context.Background()), "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, src.charCalls, "a new scope reloads")
}

func TestCachedCharactersWithoutScopeAlwaysLoads(t *testing.T) {
	src := &fakeSources{}
	cached := CachedCharacters(src)
	for i := 0; i < 3; i++ {
		_, err := cached.ListCharacters(context.Background(), "g1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.charCalls)
	assert.Equal(t, cached, CachedCharacters(cached))
}

func TestEvaluationScopeDoesNotCacheFailures(t *testing.T) {
	src := &fakeSources{charErr: errors.New("malformed professions")}
	cached := CachedCharacters(src)
	ctx := WithEvaluationScope(context.Background())

	_, err := cached.ListCharacters(ctx, "g1")
	require.Error(t, err)
	src.charErr = nil
	_, err = cached.ListCharacters(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.charCalls)
}
