package calc

import (
	"context"
	"fmt"
)

type Tier string

const (
	TierGathering  Tier = "gathering"
	TierProcessing Tier = "processing"
	TierCrafting   Tier = "crafting"
)

// Profession ranks. Grandmaster is the top rank.
const (
	RankApprentice  = 1
	RankJourneyman  = 2
	RankMaster      = 3
	RankGrandmaster = 4
)

var tierSkills = map[Tier][]string{
	TierGathering: {"mining", "logging", "herbalism", "fishing", "skinning"},
	TierProcessing: {
		"smelting", "woodworking", "leatherworking", "weaving", "stonecutting",
		"cooking", "alchemy", "milling", "distilling",
	},
	TierCrafting: {
		"weaponsmithing", "armoring", "engineering", "jewelcrafting",
		"arcana", "furnishing", "tailoring", "carpentry",
	},
}

// Tiers lists the mastery tiers in evaluation order.
func Tiers() []Tier {
	return []Tier{TierGathering, TierProcessing, TierCrafting}
}

// TierSkills returns a copy of the skill ids required for a tier.
func TierSkills(t Tier) []string {
	return append([]string(nil), tierSkills[t]...)
}

// MasteryEvaluator checks whether a tenant's characters collectively cover a
// tier's skills at a minimum rank.
type MasteryEvaluator struct {
	Characters CharacterSource
	skills     map[Tier][]string
}

func NewMasteryEvaluator(src CharacterSource) *MasteryEvaluator {
	return &MasteryEvaluator{Characters: src, skills: tierSkills}
}

// CheckMastery marks a tier skill mastered when any character holds it at
// minRank or above. With countAll it returns the mastered count; otherwise 1
// when every skill is mastered and 0 when any is missing.
func (m *MasteryEvaluator) CheckMastery(ctx context.Context, groupID string, tier Tier, minRank int, countAll bool) (int64, error) {
	required, ok := m.skillSet()[tier]
	if !ok {
		return 0, fmt.Errorf("unknown mastery tier %q", tier)
	}
	chars, err := m.Characters.ListCharacters(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("load characters: %w", err)
	}
	best := map[string]int{}
	for _, c := range chars {
		for _, p := range c.Professions {
			if p.Rank > best[p.ID] {
				best[p.ID] = p.Rank
			}
		}
	}
	var mastered int64
	for _, skill := range required {
		if best[skill] >= minRank {
			mastered++
		}
	}
	if countAll {
		return mastered, nil
	}
	if mastered == int64(len(required)) {
		return 1, nil
	}
	return 0, nil
}

func (m *MasteryEvaluator) skillSet() map[Tier][]string {
	if m.skills != nil {
		return m.skills
	}
	return tierSkills
}

// JackOfAllTrades is 1 when every tier is fully mastered at grandmaster rank.
func (m *MasteryEvaluator) JackOfAllTrades(ctx context.Context, groupID string) (int64, error) {
	for _, t := range Tiers() {
		v, err := m.CheckMastery(ctx, groupID, t, RankGrandmaster, false)
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 0, nil
		}
	}
	return 1, nil
}

// MasterOfAllTradesMinSkills is the per-tier skill count master_of_all_trades requires.
const MasterOfAllTradesMinSkills = 3

// MasterOfAllTrades is 1 when each tier has at least three skills mastered at master rank.
func (m *MasteryEvaluator) MasterOfAllTrades(ctx context.Context, groupID string) (int64, error) {
	for _, t := range Tiers() {
		n, err := m.CheckMastery(ctx, groupID, t, RankMaster, true)
		if err != nil {
			return 0, err
		}
		if n < MasterOfAllTradesMinSkills {
			return 0, nil
		}
	}
	return 1, nil
}
