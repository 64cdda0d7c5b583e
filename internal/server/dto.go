package server

import (
	"guildboard/internal/domain"
	"guildboard/internal/engine"
)

// Request payloads

type SyncRequest struct {
	TenantID string `json:"tenantId,omitempty" doc:"Group to evaluate" example:"clan-42"`
}

// Response payloads

type AchievementStatus struct {
	AchievementID string  `json:"achievement_id"`
	CurrentValue  int64   `json:"current_value"`
	IsUnlocked    bool    `json:"is_unlocked"`
	UnlockedAt    *string `json:"unlocked_at,omitempty" format:"date-time"`
}

type SyncResponse struct {
	Success      bool                `json:"success"`
	Updated      int                 `json:"updated"`
	Achievements []AchievementStatus `json:"achievements"`
}

type SyncAllResponse struct {
	Success             bool   `json:"success"`
	RunID               string `json:"runId"`
	Clans               int    `json:"clans" doc:"Tenants attempted in this run"`
	AchievementsUpdated int    `json:"achievementsUpdated"`
	Failed              int    `json:"failed"`
}

type ProgressEntry struct {
	AchievementID    string  `json:"achievement_id"`
	Name             string  `json:"name,omitempty"`
	Category         string  `json:"category,omitempty"`
	RequirementType  string  `json:"requirement_type,omitempty"`
	RequirementValue int64   `json:"requirement_value"`
	CurrentValue     int64   `json:"current_value"`
	IsUnlocked       bool    `json:"is_unlocked"`
	UnlockedAt       *string `json:"unlocked_at,omitempty" format:"date-time"`
	UpdatedAt        string  `json:"updated_at,omitempty" format:"date-time"`
}

type ProgressResponse struct {
	GroupID      string          `json:"group_id"`
	Achievements []ProgressEntry `json:"achievements"`
}

type CatalogResponse struct {
	Items []domain.AchievementDefinition `json:"items"`
}

func mapSyncResult(res engine.Result) SyncResponse {
	out := SyncResponse{Success: true, Updated: res.Updated, Achievements: make([]AchievementStatus, 0, len(res.Achievements))}
	for _, a := range res.Achievements {
		out.Achievements = append(out.Achievements, AchievementStatus{
			AchievementID: a.AchievementID,
			CurrentValue:  a.CurrentValue,
			IsUnlocked:    a.IsUnlocked,
			UnlockedAt:    a.UnlockedAt,
		})
	}
	return out
}

func mapSummary(s engine.Summary) SyncAllResponse {
	return SyncAllResponse{
		Success:             true,
		RunID:               s.RunID,
		Clans:               s.TenantsProcessed,
		AchievementsUpdated: s.TotalUpdated,
		Failed:              len(s.Failures),
	}
}

// mapProgress lists every catalogue entry; definitions never evaluated for the
// group report zero progress.
func mapProgress(groupID string, defs []domain.AchievementDefinition, rows []domain.AchievementProgress) ProgressResponse {
	byID := make(map[string]domain.AchievementProgress, len(rows))
	for _, r := range rows {
		byID[r.AchievementID] = r
	}
	out := ProgressResponse{GroupID: groupID, Achievements: make([]ProgressEntry, 0, len(defs))}
	for _, d := range defs {
		entry := ProgressEntry{
			AchievementID:    d.ID,
			Name:             d.Name,
			Category:         d.Category,
			RequirementType:  d.RequirementType,
			RequirementValue: d.RequirementValue,
		}
		if p, ok := byID[d.ID]; ok {
			entry.CurrentValue = p.CurrentValue
			entry.IsUnlocked = p.IsUnlocked
			entry.UnlockedAt = p.UnlockedAt
			entry.UpdatedAt = p.UpdatedAt
		}
		out.Achievements = append(out.Achievements, entry)
	}
	return out
}
