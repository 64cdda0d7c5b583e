package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"guildboard/internal/domain"
)

// Read contracts over collaborator-owned tables. The engine never writes these.

func (r Repo) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r Repo) CountMembers(ctx context.Context, groupID string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id=?`, groupID)
}

func (r Repo) CountSiegeWins(ctx context.Context, groupID string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM siege_events WHERE group_id=? AND LOWER(outcome)='win'`, groupID)
}

// BankID returns the tenant's bank record id; found is false when the tenant
// has no bank yet.
func (r Repo) BankID(ctx context.Context, groupID string) (id string, found bool, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT id FROM banks WHERE group_id=?`, groupID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (r Repo) CountBankDeposits(ctx context.Context, bankID string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM bank_transactions WHERE bank_id=? AND LOWER(type)='deposit'`, bankID)
}

func (r Repo) CountCompletedCaravans(ctx context.Context, groupID string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM caravans WHERE group_id=? AND LOWER(status)='completed'`, groupID)
}

func (r Repo) CountHostedEvents(ctx context.Context, groupID string) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM group_events WHERE group_id=?`, groupID)
}

// CountActiveUsers counts distinct users with activity at or after since.
// Timestamps are compared as instants, so fractional seconds, numeric offsets
// and SQLite's "YYYY-MM-DD HH:MM:SS" form all match.
func (r Repo) CountActiveUsers(ctx context.Context, groupID string, since time.Time) (int64, error) {
	return r.count(ctx, `SELECT COUNT(DISTINCT user_id) FROM activity_log
WHERE group_id=? AND julianday(created_at)>=julianday(?)`,
		groupID, since.UTC().Format(time.RFC3339Nano))
}

// ListCharacters loads a tenant's characters with professions normalized to
// the canonical {id, rank} shape.
func (r Repo) ListCharacters(ctx context.Context, groupID string) ([]domain.Character, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,group_id,COALESCE(user_id,''),name,COALESCE(professions,'') FROM characters WHERE group_id=? ORDER BY id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Character
	for rows.Next() {
		var c domain.Character
		var raw string
		if err := rows.Scan(&c.ID, &c.GroupID, &c.UserID, &c.Name, &raw); err != nil {
			return nil, err
		}
		profs, err := domain.ParseProfessions([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("character %s: %w", c.ID, err)
		}
		c.Professions = profs
		res = append(res, c)
	}
	return res, rows.Err()
}
