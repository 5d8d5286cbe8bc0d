package issue

import (
	"context"

	"github.com/kazz187/trackline/internal/cache"
)

// PositionUpdate is a neighbour whose position changed in a renumbering pass.
type PositionUpdate struct {
	IssueID  string `json:"issue_id"`
	Position int    `json:"position"`
}

// MoveRequest carries the full desired placement of an issue. SprintID is
// empty for the backlog.
type MoveRequest struct {
	IssueID   string           `json:"issue_id"`
	ProjectID string           `json:"project_id"`
	StatusID  string           `json:"status_id"`
	SprintID  string           `json:"sprint_id"`
	Position  int              `json:"position"`
	Renumber  []PositionUpdate `json:"renumber,omitempty"`
}

type ListFilter struct {
	ProjectID string `json:"project_id"`
	StatusID  string `json:"status_id,omitempty"`
	SprintID  string `json:"sprint_id,omitempty"`
	// Backlog selects issues without a sprint; SprintID is ignored.
	Backlog bool `json:"backlog,omitempty"`
	Limit   int  `json:"limit,omitempty"`
	Offset  int  `json:"offset,omitempty"`
}

// Scope returns the cache scope a list read with this filter is stored under.
func (f ListFilter) Scope() cache.Scope {
	s := ProjectScope(f.ProjectID)
	if f.Backlog || f.SprintID != "" {
		sprintID := f.SprintID
		if f.Backlog {
			sprintID = ""
		}
		s = SprintScope(f.ProjectID, sprintID)
		if f.StatusID != "" {
			s = s.Append("status", f.StatusID)
		}
		return s
	}
	s = AllScope(f.ProjectID)
	if f.StatusID != "" {
		s = s.Append("status", f.StatusID)
	}
	return s
}

// Client is the remote issue API.
type Client interface {
	// MoveIssue returns the canonical issue. A nil issue with a nil error
	// means the server accepted the change without echoing it.
	MoveIssue(ctx context.Context, req MoveRequest) (*Issue, error)
	ListIssues(ctx context.Context, filter ListFilter) ([]Issue, int, error)
}
