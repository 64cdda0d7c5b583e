package calc

import (
	"context"
	"sync"

	"guildboard/internal/domain"
)

type scopeKey struct{}

// characterScope holds the characters loaded during one evaluation, keyed by group.
type characterScope struct {
	mu    sync.Mutex
	chars map[string][]domain.Character
}

// WithEvaluationScope returns a context under which CachedCharacters loads
// each group's characters at most once. The evaluator opens one scope per
// tenant evaluation so a run always sees fresh data.
func WithEvaluationScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &characterScope{chars: map[string][]domain.Character{}})
}

// CachedCharacters wraps src so loads inside an evaluation scope are shared.
// Outside a scope every call reaches src. Failed loads are not cached.
func CachedCharacters(src CharacterSource) CharacterSource {
	if c, ok := src.(cachedCharacters); ok {
		return c
	}
	return cachedCharacters{src: src}
}

type cachedCharacters struct {
	src CharacterSource
}

func (c cachedCharacters) ListCharacters(ctx context.Context, groupID string) ([]domain.Character, error) {
	scope, ok := ctx.Value(scopeKey{}).(*characterScope)
	if !ok {
		return c.src.ListCharacters(ctx, groupID)
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if chars, ok := scope.chars[groupID]; ok {
		return chars, nil
	}
	chars, err := c.src.ListCharacters(ctx, groupID)
	if err != nil {
		return nil, err
	}
	scope.chars[groupID] = chars
	return chars, nil
}
