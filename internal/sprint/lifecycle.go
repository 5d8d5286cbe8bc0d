package sprint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kazz187/trackline/internal/cache"
	"github.com/kazz187/trackline/internal/eventbus"
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/pkg/cerr"
)

// Conflict reasons reported by local precondition checks.
const (
	ReasonAlreadyActive     = "sprint_already_active"
	ReasonCompleted         = "sprint_completed"
	ReasonTransitionPending = "sprint_transition_pending"
)

var transitions = map[Status]Status{
	StatusPlanning: StatusActive,
	StatusActive:   StatusCompleted,
}

// CheckTransition allows planning -> active and active -> completed only.
func CheckTransition(from, to Status) error {
	if next, ok := transitions[from]; ok && next == to {
		return nil
	}
	return cerr.NewError(cerr.InvalidTransition,
		fmt.Sprintf("a %s sprint cannot become %s", from, to), nil)
}

// PendingChange is published when a sprint transition starts or settles.
type PendingChange struct {
	SprintID string
	Pending  bool
}

// Lifecycle runs sprint transitions against the server. Transitions are never
// applied optimistically: the sprint is flagged pending until the server
// answers and only the server's result is written to the cache.
type Lifecycle struct {
	client Client
	store  *cache.Store[Sprint]
	issues *cache.Store[issue.Issue]

	mu      sync.Mutex
	pending map[string]struct{}
	bus     *eventbus.Bus[PendingChange]
}

func NewLifecycle(client Client, store *cache.Store[Sprint], issues *cache.Store[issue.Issue]) *Lifecycle {
	return &Lifecycle{
		client:  client,
		store:   store,
		issues:  issues,
		pending: make(map[string]struct{}),
		bus:     eventbus.New[PendingChange](),
	}
}

// Load returns the sprints of a project, from the cache when the list is fresh.
func (l *Lifecycle) Load(ctx context.Context, projectID string) ([]Sprint, error) {
	items, _, err := cache.Fetch(ctx, l.store, ListScope(projectID), func(ctx context.Context) ([]Sprint, int, error) {
		sprints, err := l.client.ListSprints(ctx, projectID)
		return sprints, len(sprints), err
	})
	return items, err
}

func (l *Lifecycle) Start(ctx context.Context, sprintID string) (Sprint, error) {
	return l.transition(ctx, sprintID, StatusActive)
}

// Complete ends an active sprint. The server moves unfinished issues back to
// the backlog; the client only drops the affected issue lists.
func (l *Lifecycle) Complete(ctx context.Context, sprintID string) (Sprint, error) {
	return l.transition(ctx, sprintID, StatusCompleted)
}

func (l *Lifecycle) transition(ctx context.Context, sprintID string, to Status) (Sprint, error) {
	cur, ok := l.store.Read(sprintID)
	if !ok {
		return Sprint{}, cerr.NewError(cerr.NotFound, "sprint is not loaded", fmt.Errorf("sprint %s missing from cache", sprintID))
	}
	if err := CheckTransition(cur.Status, to); err != nil {
		return Sprint{}, err
	}
	if to == StatusActive {
		active := l.store.Select(func(s Sprint) bool {
			return s.ProjectID == cur.ProjectID && s.ID != cur.ID && s.Status == StatusActive
		})
		if len(active) > 0 {
			return Sprint{}, cerr.NewConflict(ReasonAlreadyActive,
				fmt.Sprintf("sprint %q is already active", active[0].Name), nil)
		}
	}
	if !l.setPending(sprintID) {
		return Sprint{}, cerr.NewConflict(ReasonTransitionPending, "the sprint is already changing", nil)
	}
	defer l.clearPending(sprintID)

	version := l.store.Begin()
	var (
		res *Sprint
		err error
	)
	if to == StatusActive {
		res, err = l.client.StartSprint(ctx, sprintID)
	} else {
		res, err = l.client.CompleteSprint(ctx, sprintID)
	}
	if err != nil {
		slog.WarnContext(ctx, "sprint transition rejected",
			"component", "sprint", "sprint_id", sprintID, "to", string(to), "error", err)
		return Sprint{}, err
	}

	next := cur
	next.Status = to
	if res != nil {
		next = *res
	}
	l.store.Write(version, next)
	l.store.Invalidate(ListScope(cur.ProjectID))
	if to == StatusCompleted {
		l.issues.Invalidate(issue.SprintScope(cur.ProjectID, sprintID))
		l.issues.Invalidate(issue.SprintScope(cur.ProjectID, ""))
		l.issues.Invalidate(issue.AllScope(cur.ProjectID))
	}
	slog.InfoContext(ctx, "sprint transitioned",
		"component", "sprint", "sprint_id", sprintID, "from", string(cur.Status), "to", string(next.Status))
	return next, nil
}

// CheckAssignable fails with Conflict when issues can no longer be moved into
// or out of the sprint. The backlog and sprints the cache does not know are
// left for the server to judge.
func (l *Lifecycle) CheckAssignable(sprintID string) error {
	if sprintID == "" {
		return nil
	}
	s, ok := l.store.Read(sprintID)
	if !ok || s.Status != StatusCompleted {
		return nil
	}
	return cerr.NewConflict(ReasonCompleted, fmt.Sprintf("sprint %q is completed", s.Name), nil)
}

func (l *Lifecycle) IsPending(sprintID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[sprintID]
	return ok
}

func (l *Lifecycle) SubscribePending(bufSize int) (string, <-chan PendingChange) {
	return l.bus.Subscribe(bufSize)
}

func (l *Lifecycle) UnsubscribePending(id string) {
	l.bus.Unsubscribe(id)
}

func (l *Lifecycle) setPending(sprintID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[sprintID]; ok {
		return false
	}
	l.pending[sprintID] = struct{}{}
	l.bus.Publish(PendingChange{SprintID: sprintID, Pending: true})
	return true
}

func (l *Lifecycle) clearPending(sprintID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, sprintID)
	l.bus.Publish(PendingChange{SprintID: sprintID, Pending: false})
}
