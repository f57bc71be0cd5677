package detection

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when an event carries a role that is not part of
// the configured hierarchy.
var ErrUnknownRole = errors.New("detection: role not in hierarchy")

// Built-in roles, lowest privilege first.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// DefaultRoles is the default role order.
var DefaultRoles = []string{RoleViewer, RoleEditor, RoleAdmin}

// RoleHierarchy is a total order over role names. It is immutable once built.
type RoleHierarchy struct {
	roles []string
	ranks map[string]int
}

// NewRoleHierarchy builds a hierarchy from roles listed lowest privilege first.
// Ranks start at 1.
func NewRoleHierarchy(roles []string) (*RoleHierarchy, error) {
	if len(roles) == 0 {
		return nil, errors.New("detection: role hierarchy is empty")
	}

	h := &RoleHierarchy{
		roles: make([]string, 0, len(roles)),
		ranks: make(map[string]int, len(roles)),
	}
	for i, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("detection: role %d is empty", i)
		}
		if _, dup := h.ranks[role]; dup {
			return nil, fmt.Errorf("detection: duplicate role %q", role)
		}
		h.roles = append(h.roles, role)
		h.ranks[role] = i + 1
	}
	return h, nil
}

// DefaultRoleHierarchy returns viewer < editor < admin.
func DefaultRoleHierarchy() *RoleHierarchy {
	h, _ := NewRoleHierarchy(DefaultRoles)
	return h
}

// Rank returns the rank of role. Unknown roles yield ErrUnknownRole.
func (h *RoleHierarchy) Rank(role string) (int, error) {
	rank, ok := h.ranks[role]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return rank, nil
}

// Roles returns the roles lowest privilege first.
func (h *RoleHierarchy) Roles() []string {
	out := make([]string, len(h.roles))
	copy(out, h.roles)
	return out
}

// Next returns the role directly above role, or false if role is the top
// of the hierarchy or unknown.
func (h *RoleHierarchy) Next(role string) (string, bool) {
	rank, ok := h.ranks[role]
	if !ok || rank >= len(h.roles) {
		return "", false
	}
	return h.roles[rank], true
}
