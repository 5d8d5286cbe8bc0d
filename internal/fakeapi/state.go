package fakeapi

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/trackline/internal/eventbus"
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/notification"
	"github.com/kazz187/trackline/internal/position"
	"github.com/kazz187/trackline/internal/sprint"
	"github.com/kazz187/trackline/internal/workflow"
	"github.com/kazz187/trackline/pkg/cerr"
)

// State is the in-memory tracker behind the fake API. It implements the
// server-side rules the client relies on: one active sprint per project,
// frozen completed sprints, and the backlog sweep on completion.
type State struct {
	mu            sync.Mutex
	statuses      map[string][]workflow.Status
	issues        map[string]issue.Issue
	sprints       map[string]sprint.Sprint
	notifications []notification.Notification
	failures      map[string][]error
	calls         map[string]int
	moveHook      func(issue.Issue) issue.Issue

	pushes *eventbus.Bus[string]
	now    func() time.Time
}

func NewState() *State {
	return &State{
		statuses: make(map[string][]workflow.Status),
		issues:   make(map[string]issue.Issue),
		sprints:  make(map[string]sprint.Sprint),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		pushes:   eventbus.New[string](),
		now:      time.Now,
	}
}

// AddProject creates the default board columns for projectID.
func (s *State) AddProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[projectID] = workflow.Defaults(projectID)
}

func (s *State) Statuses(projectID string) []workflow.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]workflow.Status(nil), s.statuses[projectID]...)
}

// AddIssue stores i at the end of its column when Position is negative.
func (s *State) AddIssue(i issue.Issue) issue.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i.ID == "" {
		i.ID = ulid.Make().String()
	}
	if i.Position < 0 {
		i.Position = s.tailPositionLocked(i.ProjectID, i.StatusID, i.SprintID, "")
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = s.now()
		i.UpdatedAt = i.CreatedAt
	}
	s.issues[i.ID] = i.Clone()
	return i
}

// AddColumn stores items as one column in the given order, replacing their
// positions with fresh creation spacing.
func (s *State) AddColumn(items ...issue.Issue) []issue.Issue {
	positions := position.Initial(len(items))
	out := make([]issue.Issue, len(items))
	for n, i := range items {
		i.Position = positions[n]
		out[n] = s.AddIssue(i)
	}
	return out
}

func (s *State) Issue(id string) (issue.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.issues[id]
	return i.Clone(), ok
}

func (s *State) AddSprint(sp sprint.Sprint) sprint.Sprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp.ID == "" {
		sp.ID = ulid.Make().String()
	}
	if sp.Status == "" {
		sp.Status = sprint.StatusPlanning
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = s.now()
		sp.UpdatedAt = sp.CreatedAt
	}
	s.sprints[sp.ID] = sp.Clone()
	return sp
}

// Notify stores n and pushes it to every connected client.
func (s *State) Notify(n notification.Notification) notification.Notification {
	s.mu.Lock()
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications = append([]notification.Notification{n}, s.notifications...)
	s.mu.Unlock()
	s.Redeliver(n)
	return n
}

// Redeliver pushes n again without storing it, as a server would after a
// client reconnects.
func (s *State) Redeliver(n notification.Notification) {
	frame, err := encodePush(n)
	if err != nil {
		slog.Error("failed to encode push", "component", "fakeapi", "error", err)
		return
	}
	s.pushes.Publish(frame)
}

// PushRaw sends frame as is to every connected client.
func (s *State) PushRaw(frame string) {
	s.pushes.Publish(frame)
}

// FailNext makes the next call of procedure fail with err. Calls queue up.
func (s *State) FailNext(procedure string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[procedure] = append(s.failures[procedure], err)
}

// SetMoveHook lets tests rewrite the canonical issue a move returns, for
// example to recompute its position the way a real server might.
func (s *State) SetMoveHook(hook func(issue.Issue) issue.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moveHook = hook
}

func (s *State) Calls(procedure string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[procedure]
}

// enter records a call and returns the injected failure, if any.
func (s *State) enter(procedure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[procedure]++
	if q := s.failures[procedure]; len(q) > 0 {
		s.failures[procedure] = q[1:]
		return q[0]
	}
	return nil
}

func (s *State) MoveIssue(req issue.MoveRequest) (issue.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.issues[req.IssueID]
	if !ok {
		return issue.Issue{}, cerr.NewError(cerr.NotFound, "issue not found", nil)
	}
	if req.SprintID != cur.SprintID {
		for _, id := range []string{cur.SprintID, req.SprintID} {
			if sp, ok := s.sprints[id]; ok && sp.Status == sprint.StatusCompleted {
				return issue.Issue{}, cerr.NewConflict(sprint.ReasonCompleted,
					fmt.Sprintf("sprint %q is completed", sp.Name), nil)
			}
		}
		if _, ok := s.sprints[req.SprintID]; req.SprintID != "" && !ok {
			return issue.Issue{}, cerr.NewError(cerr.NotFound, "sprint not found", nil)
		}
	}
	if _, ok := workflow.Find(s.statuses[cur.ProjectID], req.StatusID); !ok && len(s.statuses[cur.ProjectID]) > 0 {
		return issue.Issue{}, cerr.NewError(cerr.InvalidArgument, "unknown status", nil)
	}
	for _, u := range req.Renumber {
		if n, ok := s.issues[u.IssueID]; ok {
			n.Position = u.Position
			n.UpdatedAt = s.now()
			s.issues[n.ID] = n
		}
	}
	next := cur.WithPlacement(issue.Placement{StatusID: req.StatusID, SprintID: req.SprintID, Position: req.Position})
	next.UpdatedAt = s.now()
	if s.moveHook != nil {
		next = s.moveHook(next)
	}
	s.issues[next.ID] = next
	return next.Clone(), nil
}

func (s *State) ListIssues(f issue.ListFilter) ([]issue.Issue, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []issue.Issue
	for _, i := range s.issues {
		if i.ProjectID != f.ProjectID {
			continue
		}
		if f.StatusID != "" && i.StatusID != f.StatusID {
			continue
		}
		if f.Backlog && i.SprintID != "" {
			continue
		}
		if !f.Backlog && f.SprintID != "" && i.SprintID != f.SprintID {
			continue
		}
		out = append(out, i.Clone())
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Position != out[b].Position {
			return out[a].Position < out[b].Position
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return page(out, f.Limit, f.Offset), len(out)
}

func (s *State) ListSprints(projectID string) []sprint.Sprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sprint.Sprint
	for _, sp := range s.sprints {
		if sp.ProjectID == projectID {
			out = append(out, sp.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (s *State) StartSprint(id string) (sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.sprints[id]
	if !ok {
		return sprint.Sprint{}, cerr.NewError(cerr.NotFound, "sprint not found", nil)
	}
	if sp.Status != sprint.StatusPlanning {
		return sprint.Sprint{}, cerr.NewConflict("sprint_not_planning", "only a planning sprint can be started", nil)
	}
	for _, other := range s.sprints {
		if other.ProjectID == sp.ProjectID && other.Status == sprint.StatusActive {
			return sprint.Sprint{}, cerr.NewConflict(sprint.ReasonAlreadyActive, "another sprint is already active", nil)
		}
	}
	now := s.now()
	sp.Status = sprint.StatusActive
	if sp.StartDate == nil {
		sp.StartDate = &now
	}
	sp.UpdatedAt = now
	s.sprints[id] = sp
	return sp.Clone(), nil
}

// CompleteSprint closes an active sprint and sends every issue that is not
// in a done column back to the backlog.
func (s *State) CompleteSprint(id string) (sprint.Sprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.sprints[id]
	if !ok {
		return sprint.Sprint{}, cerr.NewError(cerr.NotFound, "sprint not found", nil)
	}
	if sp.Status != sprint.StatusActive {
		return sprint.Sprint{}, cerr.NewConflict("sprint_not_active", "only an active sprint can be completed", nil)
	}
	now := s.now()
	for _, i := range s.issues {
		if i.SprintID != id {
			continue
		}
		if st, ok := workflow.Find(s.statuses[i.ProjectID], i.StatusID); ok && st.IsDone() {
			continue
		}
		i.Position = s.tailPositionLocked(i.ProjectID, i.StatusID, "", i.ID)
		i.SprintID = ""
		i.UpdatedAt = now
		s.issues[i.ID] = i
	}
	sp.Status = sprint.StatusCompleted
	if sp.EndDate == nil {
		sp.EndDate = &now
	}
	sp.UpdatedAt = now
	s.sprints[id] = sp
	return sp.Clone(), nil
}

func (s *State) ListNotifications(limit, offset int) ([]notification.Notification, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append([]notification.Notification(nil), s.notifications...)
	return page(all, limit, offset), len(all)
}

func (s *State) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.notifications {
		if !it.Read {
			n++
		}
	}
	return n
}

// MarkRead is idempotent: marking a read notification again succeeds.
func (s *State) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return nil
		}
	}
	return cerr.NewError(cerr.NotFound, "notification not found", nil)
}

func (s *State) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.notifications {
		if !s.notifications[i].Read {
			s.notifications[i].Read = true
			n++
		}
	}
	return n
}

// tailPositionLocked is the position after the last issue of a column.
func (s *State) tailPositionLocked(projectID, statusID, sprintID, exclude string) int {
	var items []position.Item
	for _, i := range s.issues {
		if i.ID != exclude && i.InColumn(projectID, statusID, sprintID) {
			items = append(items, i.PositionItem())
		}
	}
	position.Sort(items)
	return position.Assign(items, len(items)).Position
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
