package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Stage is one sequential approval gate
type Stage struct {
	Name       string   `json:"name"`
	Approvers  []string `json:"approvers"`
	RequireAll bool     `json:"requireAll"`
}

// HasApprover reports whether userID may decide at this stage
func (s Stage) HasApprover(userID string) bool {
	for _, a := range s.Approvers {
		if a == userID {
			return true
		}
	}
	return false
}

// WorkflowConfig is the structured configuration accepted from callers:
//
//	{"stages": [{"name": "...", "approvers": ["u1"], "requireAll": true}]}
type WorkflowConfig struct {
	Stages []Stage `json:"stages"`
}

// Validate checks the configuration and returns a normalized stage list.
// Approver ids are trimmed; duplicates inside a stage are rejected.
func (c WorkflowConfig) Validate() ([]Stage, error) {
	if len(c.Stages) == 0 {
		return nil, fmt.Errorf("%w: at least one stage is required", ErrInvalidWorkflowDefinition)
	}

	stages := make([]Stage, 0, len(c.Stages))
	for i, s := range c.Stages {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: stage %d has no name", ErrInvalidWorkflowDefinition, i+1)
		}
		if len(s.Approvers) == 0 {
			return nil, fmt.Errorf("%w: stage %q has no approvers", ErrInvalidWorkflowDefinition, name)
		}

		seen := make(map[string]bool, len(s.Approvers))
		approvers := make([]string, 0, len(s.Approvers))
		for _, raw := range s.Approvers {
			id := strings.TrimSpace(raw)
			if !WellFormedUserID(id) {
				return nil, fmt.Errorf("%w: stage %q has malformed approver %q", ErrInvalidWorkflowDefinition, name, raw)
			}
			if seen[id] {
				return nil, fmt.Errorf("%w: stage %q lists approver %q twice", ErrInvalidWorkflowDefinition, name, id)
			}
			seen[id] = true
			approvers = append(approvers, id)
		}

		stages = append(stages, Stage{Name: name, Approvers: approvers, RequireAll: s.RequireAll})
	}

	return stages, nil
}

// WellFormedUserID accepts non-empty ids without whitespace or control characters
func WellFormedUserID(id string) bool {
	if id == "" || len(id) > MaxUserIDLength {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// WorkflowDefinition is a named, versioned approval configuration
type WorkflowDefinition struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	Stages      []Stage   `json:"stages"`
	Version     int64     `json:"version"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CloneStages returns a deep copy suitable for snapshotting into an instance
func CloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = Stage{
			Name:       s.Name,
			Approvers:  append([]string(nil), s.Approvers...),
			RequireAll: s.RequireAll,
		}
	}
	return out
}
