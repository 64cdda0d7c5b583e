package domain

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Membership struct {
	GroupID  string `json:"group_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role" enum:"admin,officer,member"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

// Membership roles. Admins and officers may trigger achievement syncs.
const (
	RoleAdmin   = "admin"
	RoleOfficer = "officer"
	RoleMember  = "member"
)

type Character struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"group_id"`
	UserID      string       `json:"user_id,omitempty"`
	Name        string       `json:"name"`
	Professions []Profession `json:"professions"`
}

type AchievementDefinition struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description,omitempty" yaml:"description"`
	Category         string `json:"category,omitempty" yaml:"category"`
	RequirementType  string `json:"requirement_type" yaml:"requirement_type"`
	RequirementValue int64  `json:"requirement_value" yaml:"requirement_value"`
}

// AchievementProgress is the latest evaluated snapshot for one (group, achievement) pair.
type AchievementProgress struct {
	GroupID       string  `json:"group_id"`
	AchievementID string  `json:"achievement_id"`
	CurrentValue  int64   `json:"current_value"`
	IsUnlocked    bool    `json:"is_unlocked"`
	UnlockedAt    *string `json:"unlocked_at,omitempty" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// LogEntry is one row of the operational sync log.
type LogEntry struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	GroupID string `json:"group_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Payload string `json:"payload_json"`
}
