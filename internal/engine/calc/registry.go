// Package calc holds the achievement calculation registry and the
// calculations that back each requirement type.
package calc

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Calculation computes a non-negative count for one tenant.
type Calculation func(ctx context.Context, groupID string) (int64, error)

// Registry maps requirement types to calculations.
type Registry interface {
	Register(requirementType string, fn Calculation) error
	Resolve(requirementType string) (Calculation, bool)
	Types() []string
}

// MapRegistry is a Registry safe for concurrent Resolve calls.
type MapRegistry struct {
	mu    sync.RWMutex
	calcs map[string]Calculation
}

func NewRegistry() *MapRegistry {
	return &MapRegistry{calcs: make(map[string]Calculation)}
}

// Register adds or replaces the calculation for a requirement type.
func (r *MapRegistry) Register(requirementType string, fn Calculation) error {
	key := strings.TrimSpace(requirementType)
	if key == "" {
		return errors.New("requirement type required")
	}
	if fn == nil {
		return errors.New("calculation required for " + key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calcs[key] = fn
	return nil
}

func (r *MapRegistry) Resolve(requirementType string) (Calculation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.calcs[strings.TrimSpace(requirementType)]
	return fn, ok
}

// Types lists registered requirement types in sorted order.
func (r *MapRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.calcs))
	for k := range r.calcs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
