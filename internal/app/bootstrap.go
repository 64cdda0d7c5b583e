package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildboard/internal/domain"
	"guildboard/internal/engine/calc"
	"guildboard/internal/repo"
)

// EnsureGroupMember creates the group when missing and sets the user's role.
// Used to bootstrap an officer on a fresh workspace.
func EnsureGroupMember(ctx context.Context, r repo.Repo, groupID, userID, role string) error {
	if groupID == "" || userID == "" {
		return errors.New("group and user are required")
	}
	switch role {
	case domain.RoleAdmin, domain.RoleOfficer, domain.RoleMember:
	default:
		return fmt.Errorf("invalid role %q", role)
	}
	if _, err := r.GetGroup(ctx, groupID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := r.InsertGroup(ctx, domain.Group{ID: groupID}); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
	}
	return r.UpsertMember(ctx, groupID, userID, role)
}

// DemoGroup describes one seeded tenant.
type DemoGroup struct {
	ID       string
	Name     string
	Members  int
	Sieges   []string
	Deposits int
	Caravans []string
	Events   int
	// Grandmasters get every skill of every tier at grandmaster rank.
	Grandmasters int
	Apprentices  int
}

// DemoGroups is the fixed demo data set: one thriving guild, one fledgling
// guild without a bank.
var DemoGroups = []DemoGroup{
	{
		ID: "iron-wolves", Name: "Iron Wolves", Members: 12,
		Sieges:       []string{"win", "win", "loss", "win", "draw"},
		Deposits:     8,
		Caravans:     []string{"completed", "completed", "raided", "en_route"},
		Events:       3,
		Grandmasters: 2,
		Apprentices:  3,
	},
	{
		ID: "dawn-seekers", Name: "Dawn Seekers", Members: 4,
		Sieges:      []string{"loss"},
		Caravans:    []string{"pending"},
		Apprentices: 1,
	},
}

// SeedDemo writes DemoGroups. The first member of each group is its admin,
// named <group>-admin. Existing rows are left alone except group names and
// memberships, which are upserted.
func SeedDemo(ctx context.Context, r repo.Repo, now time.Time) ([]string, error) {
	var ids []string
	for _, g := range DemoGroups {
		if err := seedGroup(ctx, r, g, now); err != nil {
			return ids, fmt.Errorf("seed %s: %w", g.ID, err)
		}
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func seedGroup(ctx context.Context, r repo.Repo, g DemoGroup, now time.Time) error {
	if err := r.InsertGroup(ctx, domain.Group{ID: g.ID, Name: g.Name}); err != nil {
		return err
	}
	for i := 0; i < g.Members; i++ {
		user, role := fmt.Sprintf("%s-member-%d", g.ID, i), domain.RoleMember
		switch i {
		case 0:
			user, role = g.ID+"-admin", domain.RoleAdmin
		case 1:
			role = domain.RoleOfficer
		}
		if err := r.UpsertMember(ctx, g.ID, user, role); err != nil {
			return err
		}
		// the first half of the roster was active this week
		if i < (g.Members+1)/2 {
			if err := r.InsertActivity(ctx, g.ID, user, "login", now.Add(-time.Duration(i)*time.Hour)); err != nil {
				return err
			}
		}
	}
	for i, outcome := range g.Sieges {
		if err := r.InsertSiegeEvent(ctx, g.ID, outcome, now.AddDate(0, 0, -i)); err != nil {
			return err
		}
	}
	if g.Deposits > 0 {
		bankID, err := r.EnsureBank(ctx, g.ID)
		if err != nil {
			return err
		}
		for i := 0; i < g.Deposits; i++ {
			if err := r.InsertBankTransaction(ctx, bankID, "deposit", int64(100*(i+1)), now); err != nil {
				return err
			}
		}
	}
	for _, status := range g.Caravans {
		if err := r.InsertCaravan(ctx, g.ID, status, now); err != nil {
			return err
		}
	}
	for i := 0; i < g.Events; i++ {
		if err := r.InsertGroupEvent(ctx, g.ID, fmt.Sprintf("Muster #%d", i+1), now.AddDate(0, 0, i)); err != nil {
			return err
		}
	}
	for i := 0; i < g.Grandmasters; i++ {
		profs, err := domain.MarshalProfessions(allSkills(calc.RankGrandmaster, "Grandmaster"))
		if err != nil {
			return err
		}
		if _, err := r.InsertCharacter(ctx, g.ID, g.ID+"-admin", fmt.Sprintf("%s Elder %d", g.Name, i+1), profs); err != nil {
			return err
		}
	}
	for i := 0; i < g.Apprentices; i++ {
		// stored in the legacy string-encoded form
		profs := `"[\"mining\",\"fishing\"]"`
		if _, err := r.InsertCharacter(ctx, g.ID, fmt.Sprintf("%s-member-%d", g.ID, i+2), fmt.Sprintf("%s Recruit %d", g.Name, i+1), profs); err != nil {
			return err
		}
	}
	return nil
}

func allSkills(rank int, title string) []domain.Profession {
	var out []domain.Profession
	for _, t := range calc.Tiers() {
		for _, skill := range calc.TierSkills(t) {
			out = append(out, domain.Profession{ID: skill, Rank: rank, Name: title + " " + skill})
		}
	}
	return out
}
