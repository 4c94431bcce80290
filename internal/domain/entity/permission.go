package entity

import (
	"fmt"
	"strings"
	"time"
)

// PermissionType is the closed set of actions a grant can authorize
type PermissionType string

const (
	PermissionView   PermissionType = "view"
	PermissionEdit   PermissionType = "edit"
	PermissionDelete PermissionType = "delete"
	PermissionShare  PermissionType = "share"
)

// AllPermissionTypes lists every permission type, weakest first
var AllPermissionTypes = []PermissionType{PermissionView, PermissionEdit, PermissionDelete, PermissionShare}

// ParsePermissionType normalizes s and rejects unknown values
func ParsePermissionType(s string) (PermissionType, error) {
	t := PermissionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPermissionType, s)
	}
	return t, nil
}

// IsValid reports whether t is one of the four known types
func (t PermissionType) IsValid() bool {
	switch t {
	case PermissionView, PermissionEdit, PermissionDelete, PermissionShare:
		return true
	default:
		return false
	}
}

// Implies reports whether holding t is sufficient for want.
// Edit, delete and share each include view; nothing else is implied.
func (t PermissionType) Implies(want PermissionType) bool {
	if t == want {
		return true
	}
	if want != PermissionView {
		return false
	}
	switch t {
	case PermissionEdit, PermissionDelete, PermissionShare:
		return true
	default:
		return false
	}
}

// Satisfying returns the grant types that would satisfy a check for want
func (t PermissionType) Satisfying() []PermissionType {
	var out []PermissionType
	for _, held := range AllPermissionTypes {
		if held.Implies(t) {
			out = append(out, held)
		}
	}
	return out
}

func (t PermissionType) String() string {
	return string(t)
}

// Grant authorizes one user to perform one action type on one document
type Grant struct {
	DocumentID string         `json:"document_id"`
	UserID     string         `json:"user_id"`
	Type       PermissionType `json:"permission_type"`
	GrantedBy  string         `json:"granted_by"`
	GrantedAt  time.Time      `json:"granted_at"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// ExpiredAt reports whether the grant no longer applies at now
func (g *Grant) ExpiredAt(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}
