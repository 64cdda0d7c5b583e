package repo

import (
	"context"
	"database/sql"
	"time"
)

// MemberRole returns the user's role within the group or ErrNotFound.
func (r Repo) MemberRole(ctx context.Context, groupID, userID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM group_members WHERE group_id=? AND user_id=?`, groupID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

// UpsertMember adds a user to a group or changes their role.
func (r Repo) UpsertMember(ctx context.Context, groupID, userID, role string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO group_members(group_id,user_id,role,joined_at) VALUES (?,?,?,?)
ON CONFLICT(group_id,user_id) DO UPDATE SET role=excluded.role`, groupID, userID, role, now)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=? AND user_id=?`, groupID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
