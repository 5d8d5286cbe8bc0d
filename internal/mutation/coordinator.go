package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/kazz187/trackline/internal/cache"
	"github.com/kazz187/trackline/internal/eventbus"
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/position"
	"github.com/kazz187/trackline/pkg/cerr"
)

// ErrSuperseded is returned by a move whose result was discarded because a
// newer move of the same issue was issued before it settled.
var ErrSuperseded = errors.New("superseded by a newer change")

// SprintGuard tells whether issues may enter or leave a sprint.
type SprintGuard interface {
	CheckAssignable(sprintID string) error
}

type MoveRequest struct {
	IssueID  string
	StatusID string // empty keeps the current status
	// SprintID nil keeps the current sprint; a pointer to "" is the backlog.
	SprintID *string
	Index    int
}

// Coordinator is the only writer that both changes issues in the cache ahead
// of the server and calls the server. Moves of one issue are ordered by last
// intent; moves of different issues are independent.
type Coordinator struct {
	issues  *cache.Store[issue.Issue]
	client  issue.Client
	sprints SprintGuard

	mu     sync.Mutex
	chains map[string]*chain
	bus    *eventbus.Bus[PendingChange]
}

func NewCoordinator(issues *cache.Store[issue.Issue], client issue.Client, sprints SprintGuard) *Coordinator {
	return &Coordinator{
		issues:  issues,
		client:  client,
		sprints: sprints,
		chains:  make(map[string]*chain),
		bus:     eventbus.New[PendingChange](),
	}
}

// Move places the issue at index of the (status, sprint) column. It returns
// the settled issue, or the unchanged issue when the move is a no-op.
func (c *Coordinator) Move(ctx context.Context, req MoveRequest) (issue.Issue, error) {
	cur, ok := c.issues.Read(req.IssueID)
	if !ok {
		slog.ErrorContext(ctx, "move of an issue missing from cache",
			"component", "mutation", "issue_id", req.IssueID)
		return issue.Issue{}, cerr.NewError(cerr.NotFound, "the issue is no longer available", fmt.Errorf("issue %s not in cache", req.IssueID))
	}

	statusID := cur.StatusID
	if req.StatusID != "" {
		statusID = req.StatusID
	}
	sprintID := cur.SprintID
	if req.SprintID != nil {
		sprintID = *req.SprintID
	}
	if sprintID != cur.SprintID {
		if err := c.sprints.CheckAssignable(cur.SprintID); err != nil {
			return issue.Issue{}, err
		}
		if err := c.sprints.CheckAssignable(sprintID); err != nil {
			return issue.Issue{}, err
		}
	}

	if statusID == cur.StatusID && sprintID == cur.SprintID {
		current := c.column(cur.ProjectID, statusID, sprintID, "")
		if position.IsNoop(current, cur.ID, req.Index) {
			return cur, nil
		}
	}

	target := c.column(cur.ProjectID, statusID, sprintID, cur.ID)
	a := position.Assign(target, req.Index)
	desired := cur.WithPlacement(issue.Placement{StatusID: statusID, SprintID: sprintID, Position: a.Position})
	m := newPendingMutation(cur, desired)
	for _, b := range a.Bumped {
		before, ok := c.issues.Read(b.ID)
		if !ok {
			continue
		}
		after := before
		after.Position = b.Position
		m.bumpedBefore = append(m.bumpedBefore, before)
		m.bumpedAfter = append(m.bumpedAfter, after)
	}

	c.begin(m)
	slog.DebugContext(ctx, "optimistic move applied",
		"component", "mutation", "issue_id", cur.ID, "correlation_id", m.correlationID,
		"status_id", statusID, "sprint_id", sprintID, "position", a.Position, "renumbered", a.Renumbered)

	res, err := c.client.MoveIssue(ctx, c.moveRequest(m))
	return c.settle(ctx, m, res, err)
}

// AssignToSprint appends the issue to its status column in the sprint.
func (c *Coordinator) AssignToSprint(ctx context.Context, issueID, sprintID string) (issue.Issue, error) {
	return c.changeSprint(ctx, issueID, sprintID)
}

// RemoveFromSprint moves the issue to the end of its column in the backlog.
func (c *Coordinator) RemoveFromSprint(ctx context.Context, issueID string) (issue.Issue, error) {
	return c.changeSprint(ctx, issueID, "")
}

func (c *Coordinator) changeSprint(ctx context.Context, issueID, sprintID string) (issue.Issue, error) {
	cur, ok := c.issues.Read(issueID)
	if ok && cur.SprintID == sprintID {
		return cur, nil
	}
	return c.Move(ctx, MoveRequest{IssueID: issueID, SprintID: &sprintID, Index: math.MaxInt})
}

func (c *Coordinator) IsPending(issueID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.chains[issueID]
	return ok
}

func (c *Coordinator) SubscribePending(bufSize int) (string, <-chan PendingChange) {
	return c.bus.Subscribe(bufSize)
}

func (c *Coordinator) UnsubscribePending(id string) {
	c.bus.Unsubscribe(id)
}

// column returns the cached issues of one (status, sprint) column ordered by
// position, without exclude.
func (c *Coordinator) column(projectID, statusID, sprintID, exclude string) []position.Item {
	issues := c.issues.Select(func(i issue.Issue) bool {
		return i.ID != exclude && i.InColumn(projectID, statusID, sprintID)
	})
	items := make([]position.Item, len(issues))
	for n, i := range issues {
		items[n] = i.PositionItem()
	}
	position.Sort(items)
	return items
}

func (c *Coordinator) moveRequest(m *pendingMutation) issue.MoveRequest {
	req := issue.MoveRequest{
		IssueID:   m.desired.ID,
		ProjectID: m.desired.ProjectID,
		StatusID:  m.desired.StatusID,
		SprintID:  m.desired.SprintID,
		Position:  m.desired.Position,
	}
	for _, n := range m.bumpedAfter {
		req.Renumber = append(req.Renumber, issue.PositionUpdate{IssueID: n.ID, Position: n.Position})
	}
	return req
}

// begin registers m as the latest mutation of its issue and applies it to the
// cache. The version is taken under the lock so registration order and write
// order agree.
func (c *Coordinator) begin(m *pendingMutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chains[m.issueID]
	if !ok {
		ch = &chain{base: m.previous, origin: m.previous}
		c.chains[m.issueID] = ch
		c.bus.Publish(PendingChange{IssueID: m.issueID, Pending: true})
	} else if ch.latest != nil {
		ch.latest.status = StatusSuperseded
	}
	ch.latest = m
	ch.inFlight++

	version := c.issues.Begin()
	c.issues.Write(version, m.desired)
	for _, n := range m.bumpedAfter {
		c.issues.Write(version, n)
	}
}

func (c *Coordinator) settle(ctx context.Context, m *pendingMutation, res *issue.Issue, callErr error) (issue.Issue, error) {
	canonical := m.desired
	if res != nil {
		canonical = *res
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.chains[m.issueID]
	ch.inFlight--
	defer func() {
		if ch.inFlight == 0 {
			delete(c.chains, m.issueID)
			c.bus.Publish(PendingChange{IssueID: m.issueID, Pending: false})
		}
	}()

	log := slog.With("component", "mutation", "issue_id", m.issueID, "correlation_id", m.correlationID)

	if ch.latest != m {
		m.status = StatusSuperseded
		if callErr != nil {
			c.restoreNeighbours(c.issues.Begin(), m)
		} else {
			ch.base = canonical
			c.invalidate(m.previous, canonical)
			// The newer move already failed and restored an older value; the
			// server now holds this result.
			if ch.latest.status == StatusRolledBack {
				c.issues.Write(c.issues.Begin(), canonical)
			}
		}
		log.DebugContext(ctx, "superseded move settled", "failed", callErr != nil)
		return issue.Issue{}, ErrSuperseded
	}

	if callErr == nil {
		m.status = StatusConfirmed
		ch.base = canonical
		c.issues.Write(c.issues.Begin(), canonical)
		c.invalidate(ch.origin, canonical)
		c.invalidate(m.previous, canonical)
		log.DebugContext(ctx, "move confirmed", "position", canonical.Position)
		return canonical, nil
	}

	m.status = StatusRolledBack
	version := c.issues.Begin()
	c.issues.Write(version, ch.base)
	c.restoreNeighbours(version, m)
	log.WarnContext(ctx, "move rolled back", "error", callErr)

	if cerr.CodeOf(callErr) == cerr.Unknown {
		callErr = cerr.NewError(cerr.NetworkError, "could not move the issue", callErr)
	}
	return issue.Issue{}, callErr
}

// restoreNeighbours undoes a renumbering pass for the neighbours nothing else
// has rewritten since.
func (c *Coordinator) restoreNeighbours(version cache.Version, m *pendingMutation) {
	for i, after := range m.bumpedAfter {
		if cur, ok := c.issues.Read(after.ID); ok && cur.Position == after.Position {
			c.issues.Write(version, m.bumpedBefore[i])
		}
	}
}

func (c *Coordinator) invalidate(from, to issue.Issue) {
	c.issues.Invalidate(issue.ColumnScope(from.ProjectID, from.SprintID, from.StatusID))
	c.issues.Invalidate(issue.ColumnScope(to.ProjectID, to.SprintID, to.StatusID))
	c.issues.Invalidate(issue.AllScope(to.ProjectID))
	if from.SprintID != to.SprintID {
		c.issues.Invalidate(issue.SprintScope(from.ProjectID, from.SprintID))
		c.issues.Invalidate(issue.SprintScope(to.ProjectID, to.SprintID))
	}
}
