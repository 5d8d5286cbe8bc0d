package issue

import (
	"time"

	"github.com/kazz187/trackline/internal/cache"
	"github.com/kazz187/trackline/internal/position"
)

type Type string

const (
	TypeEpic    Type = "epic"
	TypeStory   Type = "story"
	TypeTask    Type = "task"
	TypeBug     Type = "bug"
	TypeSubtask Type = "subtask"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Issue is the client copy of an issue. Position orders the issue inside its
// (status, sprint) scope only. An empty SprintID means the backlog.
type Issue struct {
	ID          string    `json:"id" yaml:"id"`
	ProjectID   string    `json:"project_id" yaml:"project_id"`
	Key         string    `json:"key" yaml:"key"`
	Title       string    `json:"title" yaml:"title"`
	Type        Type      `json:"type" yaml:"type"`
	StatusID    string    `json:"status_id" yaml:"status_id"`
	SprintID    string    `json:"sprint_id,omitempty" yaml:"sprint_id,omitempty"`
	ParentID    string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Priority    Priority  `json:"priority" yaml:"priority"`
	AssigneeID  string    `json:"assignee_id,omitempty" yaml:"assignee_id,omitempty"`
	Position    int       `json:"position" yaml:"position"`
	StoryPoints *float64  `json:"story_points,omitempty" yaml:"story_points,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

func (i Issue) Clone() Issue {
	if i.StoryPoints != nil {
		sp := *i.StoryPoints
		i.StoryPoints = &sp
	}
	return i
}

// Equal compares every field, including story points by value.
func (i Issue) Equal(o Issue) bool {
	if !i.CreatedAt.Equal(o.CreatedAt) || !i.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	a, b := i.StoryPoints, o.StoryPoints
	i.StoryPoints, o.StoryPoints = nil, nil
	i.CreatedAt, o.CreatedAt = time.Time{}, time.Time{}
	i.UpdatedAt, o.UpdatedAt = time.Time{}, time.Time{}
	if i != o {
		return false
	}
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Placement is the part of an issue a move changes.
type Placement struct {
	StatusID string
	SprintID string
	Position int
}

func (i Issue) Placement() Placement {
	return Placement{StatusID: i.StatusID, SprintID: i.SprintID, Position: i.Position}
}

func (i Issue) WithPlacement(p Placement) Issue {
	i.StatusID = p.StatusID
	i.SprintID = p.SprintID
	i.Position = p.Position
	return i
}

// InColumn reports whether the issue belongs to the (status, sprint) scope.
func (i Issue) InColumn(projectID, statusID, sprintID string) bool {
	return i.ProjectID == projectID && i.StatusID == statusID && i.SprintID == sprintID
}

func (i Issue) PositionItem() position.Item {
	return position.Item{ID: i.ID, Position: i.Position}
}

const backlog = "backlog"

func sprintKey(sprintID string) string {
	if sprintID == "" {
		return backlog
	}
	return sprintID
}

// ProjectScope covers every issue list of a project.
func ProjectScope(projectID string) cache.Scope {
	return cache.NewScope("issues", projectID)
}

// AllScope covers the lists that span sprints, such as a whole-project read.
func AllScope(projectID string) cache.Scope {
	return ProjectScope(projectID).Append("all")
}

// SprintScope covers every issue list of one sprint, or of the backlog when
// sprintID is empty.
func SprintScope(projectID, sprintID string) cache.Scope {
	return ProjectScope(projectID).Append("sprint", sprintKey(sprintID))
}

// ColumnScope is the list of one status column inside a sprint or the backlog.
func ColumnScope(projectID, sprintID, statusID string) cache.Scope {
	return SprintScope(projectID, sprintID).Append("status", statusID)
}

func NewStore(clock *cache.Clock) *cache.Store[Issue] {
	return cache.NewStore(clock, cache.Options[Issue]{
		Name:  "issues",
		Key:   func(i Issue) string { return i.ID },
		Clone: Issue.Clone,
	})
}
