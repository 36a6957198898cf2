// internal/nav/types.go
package nav

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the coarse urgency tag that orders prefetch work
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities, lower is more urgent. Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is one of the four known priorities
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// Role is the dashboard role a user navigates as
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("nav: invalid role %q", s)
	}
	return r, nil
}

// PredictedRoute is a scored candidate for the next navigation
type PredictedRoute struct {
	Path       string   `json:"path"`
	Priority   Priority `json:"priority"`
	Confidence float64  `json:"confidence"`
}

// Context describes where the user is and how they got there
type Context struct {
	CurrentRoute  string        `json:"current_route"`
	UserRole      Role          `json:"user_role"`
	RecentHistory []string      `json:"recent_history"`
	TimeOnPage    time.Duration `json:"time_on_page"`
}

// Visited reports whether path appears in the recent history
func (c Context) Visited(path string) bool {
	for _, p := range c.RecentHistory {
		if p == path {
			return true
		}
	}
	return false
}
