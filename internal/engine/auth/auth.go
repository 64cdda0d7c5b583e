package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"guildboard/internal/domain"
	"guildboard/internal/repo"
)

// ForbiddenError indicates the caller lacks a qualifying role in the group.
type ForbiddenError struct {
	GroupID string
	Role    string
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("not a member of group %s", e.GroupID)
	}
	return fmt.Sprintf("role %s may not sync group %s", e.Role, e.GroupID)
}

// ManagerRoles may trigger an on-demand achievement sync.
var ManagerRoles = []string{domain.RoleAdmin, domain.RoleOfficer}

// MemberLookup resolves a user's role in a group, returning repo.ErrNotFound
// for non-members.
type MemberLookup interface {
	MemberRole(ctx context.Context, groupID, userID string) (string, error)
}

// Service provides membership-role checks.
type Service struct {
	Members MemberLookup
}

// RequireRole returns the caller's role when it is one of roles.
func (s Service) RequireRole(ctx context.Context, groupID, userID string, roles ...string) (string, error) {
	if groupID == "" {
		return "", errors.New("group id required")
	}
	if userID == "" {
		return "", errors.New("user id required")
	}
	if s.Members == nil {
		return "", errors.New("membership lookup not configured")
	}
	role, err := s.Members.MemberRole(ctx, groupID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ForbiddenError{GroupID: groupID}
	}
	if err != nil {
		return "", fmt.Errorf("lookup membership: %w", err)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if len(roles) == 0 {
		return role, nil
	}
	for _, allowed := range roles {
		if role == allowed {
			return role, nil
		}
	}
	return "", ForbiddenError{GroupID: groupID, Role: role}
}

// RequireManager checks the caller is an admin or officer of the group.
func (s Service) RequireManager(ctx context.Context, groupID, userID string) error {
	_, err := s.RequireRole(ctx, groupID, userID, ManagerRoles...)
	return err
}

// RequireMember checks the caller holds any role in the group.
func (s Service) RequireMember(ctx context.Context, groupID, userID string) error {
	_, err := s.RequireRole(ctx, groupID, userID)
	return err
}
