package workflow

type Category string

const (
	CategoryTodo       Category = "todo"
	CategoryInProgress Category = "in_progress"
	CategoryDone       Category = "done"
)

// Status is a column of a project's board. WIPLimit is advisory and never
// enforced on the client.
type Status struct {
	ID        string   `json:"id" yaml:"id"`
	ProjectID string   `json:"project_id" yaml:"project_id"`
	Name      string   `json:"name" yaml:"name"`
	Category  Category `json:"category" yaml:"category"`
	Position  int      `json:"position" yaml:"position"`
	WIPLimit  *int     `json:"wip_limit,omitempty" yaml:"wip_limit,omitempty"`
}

func (s Status) IsDone() bool {
	return s.Category == CategoryDone
}

// Defaults returns the columns every new project starts with.
func Defaults(projectID string) []Status {
	return []Status{
		{ID: "todo", ProjectID: projectID, Name: "To Do", Category: CategoryTodo, Position: 0},
		{ID: "in_progress", ProjectID: projectID, Name: "In Progress", Category: CategoryInProgress, Position: 1},
		{ID: "in_review", ProjectID: projectID, Name: "In Review", Category: CategoryInProgress, Position: 2},
		{ID: "done", ProjectID: projectID, Name: "Done", Category: CategoryDone, Position: 3},
	}
}

// Find returns the status with id.
func Find(statuses []Status, id string) (Status, bool) {
	for _, s := range statuses {
		if s.ID == id {
			return s, true
		}
	}
	return Status{}, false
}

// OverLimit reports whether count exceeds the advisory WIP limit.
func (s Status) OverLimit(count int) bool {
	return s.WIPLimit != nil && count > *s.WIPLimit
}
