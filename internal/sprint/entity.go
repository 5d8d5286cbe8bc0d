package sprint

import (
	"time"

	"github.com/kazz187/trackline/internal/cache"
)

type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type Sprint struct {
	ID        string     `json:"id" yaml:"id"`
	ProjectID string     `json:"project_id" yaml:"project_id"`
	Name      string     `json:"name" yaml:"name"`
	Goal      string     `json:"goal,omitempty" yaml:"goal,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Status    Status     `json:"status" yaml:"status"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

func (s Sprint) Clone() Sprint {
	if s.StartDate != nil {
		d := *s.StartDate
		s.StartDate = &d
	}
	if s.EndDate != nil {
		d := *s.EndDate
		s.EndDate = &d
	}
	return s
}

// ListScope is the cached sprint list of a project.
func ListScope(projectID string) cache.Scope {
	return cache.NewScope("sprints", projectID)
}

func NewStore(clock *cache.Clock) *cache.Store[Sprint] {
	return cache.NewStore(clock, cache.Options[Sprint]{
		Name:  "sprints",
		Key:   func(s Sprint) string { return s.ID },
		Clone: Sprint.Clone,
	})
}
