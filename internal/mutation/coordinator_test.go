package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/trackline/internal/cache"
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/pkg/cerr"
)

type moveResult struct {
	issue *issue.Issue
	err   error
}

type moveCall struct {
	req   issue.MoveRequest
	reply chan moveResult
}

// MockClient implements issue.Client for testing. Every MoveIssue call waits
// until the test answers it.
type MockClient struct {
	calls chan *moveCall
	count atomic.Int32
}

func NewMockClient() *MockClient {
	return &MockClient{calls: make(chan *moveCall, 8)}
}

func (c *MockClient) MoveIssue(_ context.Context, req issue.MoveRequest) (*issue.Issue, error) {
	c.count.Add(1)
	call := &moveCall{req: req, reply: make(chan moveResult, 1)}
	c.calls <- call
	r := <-call.reply
	return r.issue, r.err
}

func (c *MockClient) ListIssues(context.Context, issue.ListFilter) ([]issue.Issue, int, error) {
	return nil, 0, nil
}

func (c *MockClient) next(t *testing.T) *moveCall {
	t.Helper()
	select {
	case call := <-c.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no MoveIssue call")
		return nil
	}
}

// MockSprintGuard implements SprintGuard for testing
type MockSprintGuard struct {
	completed map[string]bool
}

func (g *MockSprintGuard) CheckAssignable(sprintID string) error {
	if g.completed[sprintID] {
		return cerr.NewConflict("sprint_completed", "sprint is completed", nil)
	}
	return nil
}

type outcome struct {
	issue issue.Issue
	err   error
}

type fixture struct {
	store  *cache.Store[issue.Issue]
	client *MockClient
	guard  *MockSprintGuard
	coord  *Coordinator
}

func newFixture(issues ...issue.Issue) *fixture {
	f := &fixture{
		store:  issue.NewStore(cache.NewClock()),
		client: NewMockClient(),
		guard:  &MockSprintGuard{completed: map[string]bool{}},
	}
	f.coord = NewCoordinator(f.store, f.client, f.guard)
	v := f.store.Begin()
	for _, i := range issues {
		f.store.Write(v, i)
	}
	return f
}

func (f *fixture) moveAsync(req MoveRequest) <-chan outcome {
	out := make(chan outcome, 1)
	go func() {
		i, err := f.coord.Move(context.Background(), req)
		out <- outcome{i, err}
	}()
	return out
}

func (f *fixture) read(t *testing.T, id string) issue.Issue {
	t.Helper()
	i, ok := f.store.Read(id)
	require.True(t, ok)
	return i
}

func ptr[T any](v T) *T { return &v }

func networkError() error {
	return cerr.FromConnectError(connect.NewError(connect.CodeUnavailable, errors.New("upstream down")))
}

func TestMove_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.coord.Move(context.Background(), MoveRequest{IssueID: "nope", StatusID: "done"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.Zero(t, f.client.count.Load())
}

func TestMove_NoopMakesNoWriteAndNoCall(t *testing.T) {
	f := newFixture(
		issue.Issue{ID: "a", ProjectID: "p1", StatusID: "todo", Position: 0},
		issue.Issue{ID: "b", ProjectID: "p1", StatusID: "todo", Position: 1000},
		issue.Issue{ID: "c", ProjectID: "p1", StatusID: "todo", Position: 2000},
	)
	before := f.store.VersionOf("b")
	_, changes := f.store.Subscribe(4)

	got, err := f.coord.Move(context.Background(), MoveRequest{IssueID: "b", StatusID: "todo", Index: 1})
	require.NoError(t, err)
	assert.Equal(t, 1000, got.Position)

	_, err = f.coord.Move(context.Background(), MoveRequest{IssueID: "b", SprintID: ptr(""), Index: 1})
	require.NoError(t, err)

	assert.Zero(t, f.client.count.Load())
	assert.Equal(t, before, f.store.VersionOf("b"))
	assert.Empty(t, changes)
	assert.False(t, f.coord.IsPending("b"))
}

func TestMove_OptimisticThenServerCanonical(t *testing.T) {
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 1000})
	_, pending := f.coord.SubscribePending(4)

	done := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done", Index: 0})
	call := f.client.next(t)

	optimistic := f.read(t, "I1")
	assert.Equal(t, "done", optimistic.StatusID)
	assert.Equal(t, 0, optimistic.Position)
	assert.Equal(t, issue.MoveRequest{IssueID: "I1", ProjectID: "p1", StatusID: "done", Position: 0}, call.req)
	assert.True(t, f.coord.IsPending("I1"))
	assert.Equal(t, PendingChange{IssueID: "I1", Pending: true}, <-pending)

	canonical := optimistic
	canonical.Position = 500
	call.reply <- moveResult{issue: &canonical}

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 500, res.issue.Position)
	assert.Equal(t, 500, f.read(t, "I1").Position)
	assert.Equal(t, "done", f.read(t, "I1").StatusID)
	assert.Equal(t, PendingChange{IssueID: "I1", Pending: false}, <-pending)
	assert.False(t, f.coord.IsPending("I1"))
}

func TestMove_ServerWithoutEchoKeepsDesired(t *testing.T) {
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 1000})

	done := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
	f.client.next(t).reply <- moveResult{}

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "done", f.read(t, "I1").StatusID)
}

func TestMove_SuccessInvalidatesOriginAndDestination(t *testing.T) {
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 1000})
	v := f.store.Begin()
	f.store.PutList(v, issue.ColumnScope("p1", "", "todo"), []issue.Issue{f.read(t, "I1")}, 1)
	f.store.PutList(v, issue.ColumnScope("p1", "", "done"), nil, 0)
	f.store.PutList(v, issue.ColumnScope("p1", "", "in_review"), nil, 0)

	done := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
	f.client.next(t).reply <- moveResult{}
	require.NoError(t, (<-done).err)

	_, _, state := f.store.List(issue.ColumnScope("p1", "", "todo"))
	assert.Equal(t, cache.ListStale, state)
	_, _, state = f.store.List(issue.ColumnScope("p1", "", "done"))
	assert.Equal(t, cache.ListStale, state)
	_, _, state = f.store.List(issue.ColumnScope("p1", "", "in_review"))
	assert.Equal(t, cache.ListFresh, state)
}

func TestMove_ChainedMovesInvalidateOrigin(t *testing.T) {
	putColumns := func(f *fixture) {
		v := f.store.Begin()
		f.store.PutList(v, issue.ColumnScope("p1", "", "todo"), []issue.Issue{f.read(t, "I1")}, 1)
		f.store.PutList(v, issue.ColumnScope("p1", "", "in_progress"), nil, 0)
		f.store.PutList(v, issue.ColumnScope("p1", "", "done"), nil, 0)
	}
	state := func(f *fixture, status string) cache.ListState {
		_, _, st := f.store.List(issue.ColumnScope("p1", "", status))
		return st
	}
	start := issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 0}

	t.Run("both confirmed", func(t *testing.T) {
		f := newFixture(start)
		putColumns(f)
		first := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "in_progress"})
		callA := f.client.next(t)
		second := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
		callB := f.client.next(t)

		callA.reply <- moveResult{}
		assert.ErrorIs(t, (<-first).err, ErrSuperseded)
		callB.reply <- moveResult{}
		require.NoError(t, (<-second).err)

		assert.Equal(t, cache.ListStale, state(f, "todo"), "the column the issue left still lists it")
		assert.Equal(t, cache.ListStale, state(f, "in_progress"))
		assert.Equal(t, cache.ListStale, state(f, "done"))
	})

	t.Run("superseded success then newer failure", func(t *testing.T) {
		f := newFixture(start)
		putColumns(f)
		first := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "in_progress"})
		callA := f.client.next(t)
		second := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
		callB := f.client.next(t)

		callA.reply <- moveResult{}
		assert.ErrorIs(t, (<-first).err, ErrSuperseded)
		callB.reply <- moveResult{err: networkError()}
		assert.Error(t, (<-second).err)

		assert.Equal(t, "in_progress", f.read(t, "I1").StatusID)
		assert.Equal(t, cache.ListStale, state(f, "todo"))
		assert.Equal(t, cache.ListStale, state(f, "in_progress"))
	})
}

func TestMove_WriteOrderFollowsRegistration(t *testing.T) {
	const moves = 16
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 0})

	outs := make([]<-chan outcome, moves)
	for n := range moves {
		outs[n] = f.moveAsync(MoveRequest{IssueID: "I1", StatusID: fmt.Sprintf("col-%d", n)})
	}
	calls := make([]*moveCall, moves)
	for n := range moves {
		calls[n] = f.client.next(t)
	}

	f.coord.mu.Lock()
	latest := f.coord.chains["I1"].latest.desired
	f.coord.mu.Unlock()
	assert.Equal(t, latest.StatusID, f.read(t, "I1").StatusID, "the cache shows the latest registered intent")

	for _, call := range calls {
		call.reply <- moveResult{}
	}
	for _, out := range outs {
		<-out
	}
	assert.Equal(t, latest.StatusID, f.read(t, "I1").StatusID)
	assert.False(t, f.coord.IsPending("I1"))
}

func TestMove_RollbackIsExact(t *testing.T) {
	points := 5.0
	original := issue.Issue{
		ID: "I1", ProjectID: "p1", Key: "TL-1", Title: "Fix it", Type: issue.TypeBug,
		StatusID: "todo", SprintID: "s1", Priority: issue.PriorityHigh, AssigneeID: "u1",
		Position: 3000, StoryPoints: &points,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2024, 2, 2, 3, 4, 5, 0, time.UTC),
	}
	f := newFixture(original, issue.Issue{ID: "other", ProjectID: "p1", StatusID: "done", SprintID: "s2", Position: 0})

	done := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done", SprintID: ptr("s2"), Index: 0})
	call := f.client.next(t)
	assert.NotEqual(t, "todo", f.read(t, "I1").StatusID)
	call.reply <- moveResult{err: networkError()}

	res := <-done
	assert.True(t, cerr.IsCode(res.err, cerr.NetworkError))
	assert.True(t, original.Equal(f.read(t, "I1")), "got %+v", f.read(t, "I1"))
	assert.False(t, f.coord.IsPending("I1"))
}

func TestMove_ServerConflictRollsBack(t *testing.T) {
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 1000})

	done := f.moveAsync(MoveRequest{IssueID: "I1", SprintID: ptr("s9")})
	f.client.next(t).reply <- moveResult{err: cerr.FromConnectError(
		cerr.NewConflict("sprint_completed", "sprint is completed", nil).ConnectError())}

	res := <-done
	assert.True(t, cerr.IsCode(res.err, cerr.Conflict))
	assert.Equal(t, "sprint_completed", cerr.Reason(res.err))
	assert.Equal(t, "", f.read(t, "I1").SprintID)
}

func TestMove_PlainErrorsBecomeNetworkErrors(t *testing.T) {
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo"})

	done := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
	f.client.next(t).reply <- moveResult{err: errors.New("EOF")}

	assert.True(t, cerr.IsCode((<-done).err, cerr.NetworkError))
}

func TestMove_LastIntentWins(t *testing.T) {
	start := issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 0}

	t.Run("older response arrives last", func(t *testing.T) {
		f := newFixture(start)
		first := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "in_progress"})
		callA := f.client.next(t)
		second := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
		callB := f.client.next(t)

		b := f.read(t, "I1")
		callB.reply <- moveResult{issue: &b}
		require.NoError(t, (<-second).err)

		a := start.WithPlacement(issue.Placement{StatusID: "in_progress"})
		callA.reply <- moveResult{issue: &a}
		assert.ErrorIs(t, (<-first).err, ErrSuperseded)

		assert.Equal(t, "done", f.read(t, "I1").StatusID)
		assert.False(t, f.coord.IsPending("I1"))
	})

	t.Run("older response arrives first", func(t *testing.T) {
		f := newFixture(start)
		first := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "in_progress"})
		callA := f.client.next(t)
		second := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
		callB := f.client.next(t)

		a := start.WithPlacement(issue.Placement{StatusID: "in_progress"})
		callA.reply <- moveResult{issue: &a}
		assert.ErrorIs(t, (<-first).err, ErrSuperseded)
		assert.Equal(t, "done", f.read(t, "I1").StatusID, "superseded result must not overwrite the newer optimistic value")
		assert.True(t, f.coord.IsPending("I1"))

		callB.reply <- moveResult{}
		require.NoError(t, (<-second).err)
		assert.Equal(t, "done", f.read(t, "I1").StatusID)
	})

	t.Run("newer move fails after older succeeded", func(t *testing.T) {
		f := newFixture(start)
		first := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "in_progress"})
		callA := f.client.next(t)
		second := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
		callB := f.client.next(t)

		callA.reply <- moveResult{}
		assert.ErrorIs(t, (<-first).err, ErrSuperseded)
		callB.reply <- moveResult{err: networkError()}
		assert.Error(t, (<-second).err)

		// The server accepted the first move, so that is where the issue is.
		assert.Equal(t, "in_progress", f.read(t, "I1").StatusID)
	})

	t.Run("newer move fails before older succeeds", func(t *testing.T) {
		f := newFixture(start)
		first := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "in_progress"})
		callA := f.client.next(t)
		second := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done"})
		callB := f.client.next(t)

		callB.reply <- moveResult{err: networkError()}
		assert.Error(t, (<-second).err)
		assert.Equal(t, "todo", f.read(t, "I1").StatusID)

		callA.reply <- moveResult{}
		assert.ErrorIs(t, (<-first).err, ErrSuperseded)
		assert.Equal(t, "in_progress", f.read(t, "I1").StatusID)
		assert.False(t, f.coord.IsPending("I1"))
	})
}

func TestMove_RenumberTravelsAndRollsBack(t *testing.T) {
	f := newFixture(
		issue.Issue{ID: "a", ProjectID: "p1", StatusID: "todo", Position: 1000},
		issue.Issue{ID: "b", ProjectID: "p1", StatusID: "todo", Position: 1001},
		issue.Issue{ID: "m", ProjectID: "p1", StatusID: "done", Position: 0},
	)

	done := f.moveAsync(MoveRequest{IssueID: "m", StatusID: "todo", Index: 1})
	call := f.client.next(t)

	assert.Equal(t, 2000, call.req.Position)
	assert.Equal(t, []issue.PositionUpdate{{IssueID: "b", Position: 3000}}, call.req.Renumber)
	assert.Equal(t, 3000, f.read(t, "b").Position)
	assert.Equal(t, 1000, f.read(t, "a").Position)

	call.reply <- moveResult{err: networkError()}
	require.Error(t, (<-done).err)

	assert.Equal(t, 1001, f.read(t, "b").Position)
	assert.Equal(t, "done", f.read(t, "m").StatusID)
}

func TestMove_EmptyDestinationStartsAtZero(t *testing.T) {
	f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", Position: 7000})

	done := f.moveAsync(MoveRequest{IssueID: "I1", StatusID: "done", Index: 4})
	call := f.client.next(t)
	assert.Equal(t, 0, call.req.Position)
	call.reply <- moveResult{}
	require.NoError(t, (<-done).err)
}

func TestSprintChanges(t *testing.T) {
	t.Run("completed sprint fails before any write", func(t *testing.T) {
		f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo"})
		f.guard.completed["old"] = true
		before := f.store.VersionOf("I1")

		_, err := f.coord.AssignToSprint(context.Background(), "I1", "old")

		assert.True(t, cerr.IsCode(err, cerr.Conflict))
		assert.Zero(t, f.client.count.Load())
		assert.Equal(t, before, f.store.VersionOf("I1"))
	})

	t.Run("issues cannot leave a completed sprint", func(t *testing.T) {
		f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", SprintID: "old"})
		f.guard.completed["old"] = true

		_, err := f.coord.RemoveFromSprint(context.Background(), "I1")

		assert.True(t, cerr.IsCode(err, cerr.Conflict))
		assert.Zero(t, f.client.count.Load())
	})

	t.Run("assign appends to the sprint column", func(t *testing.T) {
		f := newFixture(
			issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo"},
			issue.Issue{ID: "x", ProjectID: "p1", StatusID: "todo", SprintID: "s1", Position: 4000},
		)
		v := f.store.Begin()
		f.store.PutList(v, issue.SprintScope("p1", "s1").Append("status", "in_progress"), nil, 0)

		out := make(chan outcome, 1)
		go func() {
			i, err := f.coord.AssignToSprint(context.Background(), "I1", "s1")
			out <- outcome{i, err}
		}()
		call := f.client.next(t)
		assert.Equal(t, "s1", call.req.SprintID)
		assert.Equal(t, "todo", call.req.StatusID)
		assert.Equal(t, 5000, call.req.Position)
		call.reply <- moveResult{}
		require.NoError(t, (<-out).err)

		_, _, state := f.store.List(issue.SprintScope("p1", "s1").Append("status", "in_progress"))
		assert.Equal(t, cache.ListStale, state, "sprint scopes are dropped when the sprint changes")
	})

	t.Run("remove sends the backlog", func(t *testing.T) {
		f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", SprintID: "s1"})

		out := make(chan outcome, 1)
		go func() {
			i, err := f.coord.RemoveFromSprint(context.Background(), "I1")
			out <- outcome{i, err}
		}()
		call := f.client.next(t)
		assert.Equal(t, "", call.req.SprintID)
		call.reply <- moveResult{}
		res := <-out
		require.NoError(t, res.err)
		assert.Equal(t, "", res.issue.SprintID)
	})

	t.Run("already in the sprint is a no-op", func(t *testing.T) {
		f := newFixture(issue.Issue{ID: "I1", ProjectID: "p1", StatusID: "todo", SprintID: "s1"})
		_, err := f.coord.AssignToSprint(context.Background(), "I1", "s1")
		require.NoError(t, err)
		_, err = newFixture(issue.Issue{ID: "I2", ProjectID: "p1"}).coord.RemoveFromSprint(context.Background(), "I2")
		require.NoError(t, err)
		assert.Zero(t, f.client.count.Load())
	})
}
