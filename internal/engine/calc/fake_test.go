package calc

import (
	"context"
	"time"

	"guildboard/internal/domain"
)

type fakeSources struct {
	members     int64
	siegeWins   int64
	bankID      string
	deposits    map[string]int64
	caravans    int64
	events      int64
	activeSince func(time.Time) int64
	characters  []domain.Character
	charErr     error
	bankErr     error
	depositCall int
	charCalls   int
}

func (f *fakeSources) ListCharacters(ctx context.Context, groupID string) ([]domain.Character, error) {
	f.charCalls++
	return f.characters, f.charErr
}

func (f *fakeSources) CountMembers(ctx context.Context, groupID string) (int64, error) {
	return f.members, nil
}

func (f *fakeSources) CountSiegeWins(ctx context.Context, groupID string) (int64, error) {
	return f.siegeWins, nil
}

func (f *fakeSources) BankID(ctx context.Context, groupID string) (string, bool, error) {
	if f.bankErr != nil {
		return "", false, f.bankErr
	}
	return f.bankID, f.bankID != "", nil
}

func (f *fakeSources) CountBankDeposits(ctx context.Context, bankID string) (int64, error) {
	f.depositCall++
	return f.deposits[bankID], nil
}

func (f *fakeSources) CountCompletedCaravans(ctx context.Context, groupID string) (int64, error) {
	return f.caravans, nil
}

func (f *fakeSources) CountHostedEvents(ctx context.Context, groupID string) (int64, error) {
	return f.events, nil
}

func (f *fakeSources) CountActiveUsers(ctx context.Context, groupID string, since time.Time) (int64, error) {
	if f.activeSince == nil {
		return 0, nil
	}
	return f.activeSince(since), nil
}

func char(id string, profs ...domain.Profession) domain.Character {
	return domain.Character{ID: id, GroupID: "g1", Name: id, Professions: profs}
}

func prof(id string, rank int) domain.Profession {
	return domain.Profession{ID: id, Rank: rank}
}
