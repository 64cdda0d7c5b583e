package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Writers for collaborator-owned tables. Production data arrives from the
// surrounding product; these back local seeding and tests.

func newID() string { return uuid.NewString() }

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func (r Repo) InsertSiegeEvent(ctx context.Context, groupID, outcome string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO siege_events(id,group_id,outcome,occurred_at) VALUES (?,?,?,?)`,
		newID(), groupID, outcome, stamp(at))
	return err
}

// EnsureBank returns the group's bank id, creating the record if missing.
func (r Repo) EnsureBank(ctx context.Context, groupID string) (string, error) {
	id, found, err := r.BankID(ctx, groupID)
	if err != nil {
		return "", err
	}
	if found {
		return id, nil
	}
	id = newID()
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO banks(id,group_id,created_at) VALUES (?,?,?)`, id, groupID, stamp(time.Time{})); err != nil {
		return "", err
	}
	return id, nil
}

func (r Repo) InsertBankTransaction(ctx context.Context, bankID, txType string, amount int64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO bank_transactions(id,bank_id,type,amount,created_at) VALUES (?,?,?,?,?)`,
		newID(), bankID, txType, amount, stamp(at))
	return err
}

func (r Repo) InsertCaravan(ctx context.Context, groupID, status string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO caravans(id,group_id,status,created_at) VALUES (?,?,?,?)`,
		newID(), groupID, status, stamp(at))
	return err
}

// InsertCharacter stores professions verbatim so either payload form can be seeded.
func (r Repo) InsertCharacter(ctx context.Context, groupID, userID, name, professions string) (string, error) {
	id := newID()
	_, err := r.DB.ExecContext(ctx, `INSERT INTO characters(id,group_id,user_id,name,professions) VALUES (?,?,?,?,?)`,
		id, groupID, nullable(userID), name, nullable(professions))
	return id, err
}

func (r Repo) InsertGroupEvent(ctx context.Context, groupID, title string, startsAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO group_events(id,group_id,title,starts_at) VALUES (?,?,?,?)`,
		newID(), groupID, title, stamp(startsAt))
	return err
}

func (r Repo) InsertActivity(ctx context.Context, groupID, userID, action string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO activity_log(user_id,group_id,action,created_at) VALUES (?,?,?,?)`,
		userID, groupID, action, stamp(at))
	return err
}
