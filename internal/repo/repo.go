package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildboard/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertGroup(ctx context.Context, g domain.Group) error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("group id required")
	}
	if g.Name == "" {
		g.Name = g.ID
	}
	if g.CreatedAt == "" {
		g.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO groups(id,name,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name`, g.ID, g.Name, g.CreatedAt)
	return err
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	var g domain.Group
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM groups WHERE id=?`, id).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

// ListGroups enumerates every tenant in a stable order.
func (r Repo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM groups ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) ListDefinitions(ctx context.Context) ([]domain.AchievementDefinition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),COALESCE(category,''),requirement_type,requirement_value
FROM achievement_definitions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AchievementDefinition
	for rows.Next() {
		var d domain.AchievementDefinition
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Category, &d.RequirementType, &d.RequirementValue); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// UpsertDefinitions writes catalogue entries in a single transaction.
func (r Repo) UpsertDefinitions(ctx context.Context, defs []domain.AchievementDefinition) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range defs {
		if d.ID == "" {
			return errors.New("definition id required")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO achievement_definitions(id,name,description,category,requirement_type,requirement_value,created_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description, category=excluded.category,
requirement_type=excluded.requirement_type, requirement_value=excluded.requirement_value`,
			d.ID, d.Name, nullable(d.Description), nullable(d.Category), d.RequirementType, d.RequirementValue, now); err != nil {
			return fmt.Errorf("upsert definition %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// ProgressWrite is one evaluated snapshot to persist.
type ProgressWrite struct {
	GroupID       string
	AchievementID string
	CurrentValue  int64
	IsUnlocked    bool
	Now           time.Time
	// Sticky keeps a previously unlocked row unlocked when the value regresses.
	Sticky bool
}

// UpsertProgress stores the latest snapshot keyed by (group_id, achievement_id)
// and returns the row as persisted. An unlock timestamp already on the row is
// kept while the achievement stays unlocked.
func (r Repo) UpsertProgress(ctx context.Context, w ProgressWrite) (domain.AchievementProgress, error) {
	now := w.Now.UTC().Format(time.RFC3339)
	var unlockedAt any
	if w.IsUnlocked {
		unlockedAt = now
	}
	row := r.DB.QueryRowContext(ctx, `INSERT INTO group_achievements(group_id,achievement_id,current_value,is_unlocked,unlocked_at,updated_at)
VALUES (?1,?2,?3,?4,?5,?6)
ON CONFLICT(group_id,achievement_id) DO UPDATE SET
  current_value=excluded.current_value,
  is_unlocked=CASE WHEN ?7=1 THEN MAX(group_achievements.is_unlocked, excluded.is_unlocked) ELSE excluded.is_unlocked END,
  unlocked_at=CASE
    WHEN (CASE WHEN ?7=1 THEN MAX(group_achievements.is_unlocked, excluded.is_unlocked) ELSE excluded.is_unlocked END)=0 THEN NULL
    WHEN group_achievements.is_unlocked=1 AND group_achievements.unlocked_at IS NOT NULL THEN group_achievements.unlocked_at
    ELSE excluded.unlocked_at
  END,
  updated_at=excluded.updated_at
RETURNING group_id,achievement_id,current_value,is_unlocked,unlocked_at,updated_at`,
		w.GroupID, w.AchievementID, w.CurrentValue, boolInt(w.IsUnlocked), unlockedAt, now, boolInt(w.Sticky))
	return scanProgress(row)
}

func (r Repo) GetProgress(ctx context.Context, groupID, achievementID string) (domain.AchievementProgress, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT group_id,achievement_id,current_value,is_unlocked,unlocked_at,updated_at
FROM group_achievements WHERE group_id=? AND achievement_id=?`, groupID, achievementID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProgress(ctx context.Context, groupID string) ([]domain.AchievementProgress, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_id,achievement_id,current_value,is_unlocked,unlocked_at,updated_at
FROM group_achievements WHERE group_id=? ORDER BY achievement_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AchievementProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProgress(s scanner) (domain.AchievementProgress, error) {
	var p domain.AchievementProgress
	var unlocked int
	var unlockedAt sql.NullString
	err := s.Scan(&p.GroupID, &p.AchievementID, &p.CurrentValue, &unlocked, &unlockedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.IsUnlocked = unlocked != 0
	if unlockedAt.Valid {
		v := unlockedAt.String
		p.UnlockedAt = &v
	}
	return p, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
