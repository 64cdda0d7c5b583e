package repo

import (
	"context"
	"strings"

	"guildboard/internal/domain"
)

// LatestLog returns the newest sync log rows, optionally filtered.
func (r Repo) LatestLog(ctx context.Context, limit int, entryType, groupID, runID string) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var clauses []string
	var args []any
	if entryType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, entryType)
	}
	if groupID != "" {
		clauses = append(clauses, "group_id=?")
		args = append(args, groupID)
	}
	if runID != "" {
		clauses = append(clauses, "run_id=?")
		args = append(args, runID)
	}
	query := `SELECT id,ts,type,COALESCE(group_id,''),COALESCE(run_id,''),payload_json FROM sync_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.GroupID, &e.RunID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
