package calc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"guildboard/internal/domain"
)

// Requirement types with built-in calculations.
const (
	TypeMemberCount       = "member_count"
	TypeSiegeWins         = "siege_wins"
	TypeBankDeposits      = "bank_deposits"
	TypeCaravanComplete   = "caravan_complete"
	TypeGrandmasterCount  = "grandmaster_count"
	TypeEventsHosted      = "events_hosted"
	TypeWeeklyActive      = "weekly_active"
	TypeJackOfAllTrades   = "jack_of_all_trades"
	TypeMasterOfAllTrades = "master_of_all_trades"
)

// WeeklyActiveWindow is the trailing window for weekly_active. The boundary is inclusive.
const WeeklyActiveWindow = 7 * 24 * time.Hour

type CharacterSource interface {
	ListCharacters(ctx context.Context, groupID string) ([]domain.Character, error)
}

// Sources are the read-only data contracts the calculations consume.
type Sources interface {
	CharacterSource
	CountMembers(ctx context.Context, groupID string) (int64, error)
	CountSiegeWins(ctx context.Context, groupID string) (int64, error)
	BankID(ctx context.Context, groupID string) (string, bool, error)
	CountBankDeposits(ctx context.Context, bankID string) (int64, error)
	CountCompletedCaravans(ctx context.Context, groupID string) (int64, error)
	CountHostedEvents(ctx context.Context, groupID string) (int64, error)
	CountActiveUsers(ctx context.Context, groupID string, since time.Time) (int64, error)
}

var masteryRanks = []struct {
	suffix string
	rank   int
}{
	{"journeyman", RankJourneyman},
	{"master", RankMaster},
	{"grandmaster", RankGrandmaster},
}

// MasteryType names the registry entry for a tier at a rank suffix,
// e.g. crafting_grandmaster.
func MasteryType(t Tier, suffix string) string {
	return string(t) + "_" + suffix
}

// BuiltinTypes lists every requirement type RegisterDefaults installs, sorted.
func BuiltinTypes() []string {
	types := []string{
		TypeMemberCount, TypeSiegeWins, TypeBankDeposits, TypeCaravanComplete,
		TypeGrandmasterCount, TypeEventsHosted, TypeWeeklyActive,
		TypeJackOfAllTrades, TypeMasterOfAllTrades,
	}
	for _, t := range Tiers() {
		for _, mr := range masteryRanks {
			types = append(types, MasteryType(t, mr.suffix))
		}
	}
	sort.Strings(types)
	return types
}

// RegisterDefaults installs every built-in calculation backed by src.
// now supplies the evaluation clock for time-windowed calculations. Character
// reads are shared within an evaluation scope (see WithEvaluationScope).
func RegisterDefaults(reg Registry, src Sources, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	chars := CachedCharacters(src)
	mastery := NewMasteryEvaluator(chars)
	entries := map[string]Calculation{
		TypeMemberCount:     src.CountMembers,
		TypeSiegeWins:       src.CountSiegeWins,
		TypeCaravanComplete: src.CountCompletedCaravans,
		TypeEventsHosted:    src.CountHostedEvents,
		TypeBankDeposits: func(ctx context.Context, groupID string) (int64, error) {
			bankID, found, err := src.BankID(ctx, groupID)
			if err != nil {
				return 0, fmt.Errorf("lookup bank: %w", err)
			}
			if !found {
				return 0, nil
			}
			return src.CountBankDeposits(ctx, bankID)
		},
		TypeGrandmasterCount: func(ctx context.Context, groupID string) (int64, error) {
			list, err := chars.ListCharacters(ctx, groupID)
			if err != nil {
				return 0, err
			}
			return countGrandmasters(list), nil
		},
		TypeWeeklyActive: func(ctx context.Context, groupID string) (int64, error) {
			return src.CountActiveUsers(ctx, groupID, now().Add(-WeeklyActiveWindow))
		},
		TypeJackOfAllTrades:   mastery.JackOfAllTrades,
		TypeMasterOfAllTrades: mastery.MasterOfAllTrades,
	}
	for _, t := range Tiers() {
		for _, mr := range masteryRanks {
			tier, rank := t, mr.rank
			entries[MasteryType(tier, mr.suffix)] = func(ctx context.Context, groupID string) (int64, error) {
				return mastery.CheckMastery(ctx, groupID, tier, rank, false)
			}
		}
	}
	for key, fn := range entries {
		if err := reg.Register(key, fn); err != nil {
			return err
		}
	}
	return nil
}

// countGrandmasters counts distinct characters holding any profession whose
// name mentions grandmaster.
func countGrandmasters(chars []domain.Character) int64 {
	seen := map[string]struct{}{}
	for _, c := range chars {
		for _, p := range c.Professions {
			if strings.Contains(strings.ToLower(p.Name), "grandmaster") {
				seen[c.ID] = struct{}{}
				break
			}
		}
	}
	return int64(len(seen))
}
