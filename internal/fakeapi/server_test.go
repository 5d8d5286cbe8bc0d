package fakeapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/trackline/internal/issue"
	issueclient "github.com/kazz187/trackline/internal/issue/clientimpl"
	"github.com/kazz187/trackline/internal/notification"
	notificationclient "github.com/kazz187/trackline/internal/notification/clientimpl"
	"github.com/kazz187/trackline/internal/realtime"
	"github.com/kazz187/trackline/internal/rpc"
	"github.com/kazz187/trackline/internal/sprint"
	sprintclient "github.com/kazz187/trackline/internal/sprint/clientimpl"
	"github.com/kazz187/trackline/pkg/cerr"
)

const token = "test-token"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	state := NewState()
	state.AddProject("p1")
	srv := NewServer(state, token)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return srv, hs
}

func TestIssueService(t *testing.T) {
	ctx := context.Background()
	srv, hs := newTestServer(t)
	st := srv.State()
	st.AddIssue(issue.Issue{ID: "i1", ProjectID: "p1", StatusID: "todo", Position: 0})
	st.AddIssue(issue.Issue{ID: "i2", ProjectID: "p1", StatusID: "todo", Position: 1000})
	client := issueclient.NewConnectClient(hs.Client(), hs.URL, rpc.ClientOptions(token)...)

	items, total, err := client.ListIssues(ctx, issue.ListFilter{ProjectID: "p1", StatusID: "todo", Backlog: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "i1", items[0].ID)

	st.SetMoveHook(func(i issue.Issue) issue.Issue {
		i.Position = 500
		return i
	})
	moved, err := client.MoveIssue(ctx, issue.MoveRequest{
		IssueID: "i1", ProjectID: "p1", StatusID: "done", Position: 0,
		Renumber: []issue.PositionUpdate{{IssueID: "i2", Position: 2000}},
	})
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, "done", moved.StatusID)
	assert.Equal(t, 500, moved.Position)
	i2, _ := st.Issue("i2")
	assert.Equal(t, 2000, i2.Position)

	_, err = client.MoveIssue(ctx, issue.MoveRequest{IssueID: "missing", StatusID: "done"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
	assert.Equal(t, 2, st.Calls(rpc.IssueServiceMoveIssueProcedure))
}

func TestState_AddColumn(t *testing.T) {
	st := NewState()
	st.AddProject("p1")
	added := st.AddColumn(
		issue.Issue{ID: "c", ProjectID: "p1", StatusID: "todo", Position: 7},
		issue.Issue{ID: "a", ProjectID: "p1", StatusID: "todo"},
		issue.Issue{ID: "b", ProjectID: "p1", StatusID: "todo"},
	)
	require.Len(t, added, 3)

	items, total := st.ListIssues(issue.ListFilter{ProjectID: "p1", StatusID: "todo", Backlog: true})
	assert.Equal(t, 3, total)
	var ids []string
	var positions []int
	for _, i := range items {
		ids = append(ids, i.ID)
		positions = append(positions, i.Position)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids, "insertion order is kept")
	assert.Equal(t, []int{0, 1000, 2000}, positions)
}

func TestIssueService_CompletedSprintIsConflict(t *testing.T) {
	srv, hs := newTestServer(t)
	st := srv.State()
	st.AddSprint(sprint.Sprint{ID: "s1", ProjectID: "p1", Name: "Old", Status: sprint.StatusCompleted})
	st.AddIssue(issue.Issue{ID: "i1", ProjectID: "p1", StatusID: "todo"})
	client := issueclient.NewConnectClient(hs.Client(), hs.URL, rpc.ClientOptions(token)...)

	_, err := client.MoveIssue(context.Background(), issue.MoveRequest{IssueID: "i1", ProjectID: "p1", StatusID: "todo", SprintID: "s1"})

	assert.True(t, cerr.IsCode(err, cerr.Conflict))
	assert.Equal(t, sprint.ReasonCompleted, cerr.Reason(err))
}

func TestIssueService_InjectedFailure(t *testing.T) {
	srv, hs := newTestServer(t)
	srv.State().AddIssue(issue.Issue{ID: "i1", ProjectID: "p1", StatusID: "todo"})
	srv.State().FailNext(rpc.IssueServiceMoveIssueProcedure, cerr.NewError(cerr.Unavailable, "maintenance", nil))
	client := issueclient.NewConnectClient(hs.Client(), hs.URL, rpc.ClientOptions(token)...)

	_, err := client.MoveIssue(context.Background(), issue.MoveRequest{IssueID: "i1", StatusID: "done"})
	assert.True(t, cerr.IsCode(err, cerr.NetworkError))

	_, err = client.MoveIssue(context.Background(), issue.MoveRequest{IssueID: "i1", StatusID: "done"})
	assert.NoError(t, err)
}

func TestSprintService(t *testing.T) {
	ctx := context.Background()
	srv, hs := newTestServer(t)
	st := srv.State()
	st.AddSprint(sprint.Sprint{ID: "s1", ProjectID: "p1", Name: "One"})
	st.AddSprint(sprint.Sprint{ID: "s2", ProjectID: "p1", Name: "Two"})
	st.AddIssue(issue.Issue{ID: "open", ProjectID: "p1", StatusID: "in_progress", SprintID: "s1", Position: 0})
	st.AddIssue(issue.Issue{ID: "shipped", ProjectID: "p1", StatusID: "done", SprintID: "s1", Position: 0})
	st.AddIssue(issue.Issue{ID: "waiting", ProjectID: "p1", StatusID: "in_progress", Position: 0})
	client := sprintclient.NewConnectClient(hs.Client(), hs.URL, rpc.ClientOptions(token)...)

	sprints, err := client.ListSprints(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, sprints, 2)

	started, err := client.StartSprint(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusActive, started.Status)
	assert.NotNil(t, started.StartDate)

	_, err = client.StartSprint(ctx, "s2")
	assert.True(t, cerr.IsCode(err, cerr.Conflict))
	assert.Equal(t, sprint.ReasonAlreadyActive, cerr.Reason(err))

	completed, err := client.CompleteSprint(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sprint.StatusCompleted, completed.Status)

	open, _ := st.Issue("open")
	assert.Equal(t, "", open.SprintID, "unfinished work goes back to the backlog")
	assert.Equal(t, 1000, open.Position, "appended after the backlog column")
	shipped, _ := st.Issue("shipped")
	assert.Equal(t, "s1", shipped.SprintID)
}

func TestNotificationService(t *testing.T) {
	ctx := context.Background()
	srv, hs := newTestServer(t)
	st := srv.State()
	st.Notify(notification.Notification{ID: "n1", Type: notification.TypeAssigned})
	st.Notify(notification.Notification{ID: "n2", Type: notification.TypeMentioned})
	st.Notify(notification.Notification{ID: "n3", Type: notification.TypeCommented, Read: true})
	client := notificationclient.NewConnectClient(hs.Client(), hs.URL, rpc.ClientOptions(token)...)

	items, total, err := client.ListNotifications(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "n3", items[0].ID, "newest first")

	count, err := client.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, client.MarkRead(ctx, "n1"))
	require.NoError(t, client.MarkRead(ctx, "n1"), "mark read is idempotent")
	assert.True(t, cerr.IsCode(client.MarkRead(ctx, "nope"), cerr.NotFound))

	require.NoError(t, client.MarkAllRead(ctx))
	count, err = client.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAuth(t *testing.T) {
	_, hs := newTestServer(t)
	client := notificationclient.NewConnectClient(hs.Client(), hs.URL, rpc.ClientOptions("wrong")...)

	_, err := client.GetUnreadCount(context.Background())
	assert.True(t, cerr.IsCode(err, cerr.Unauthenticated))

	res, err := hs.Client().Get(hs.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGRPCHealth(t *testing.T) {
	_, hs := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, hs.URL+"/grpc.health.v1.Health/Check", strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := hs.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestPush(t *testing.T) {
	srv, hs := newTestServer(t)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + rpc.PushPath
	ch := realtime.New(realtime.WebsocketDialer{URL: url, Token: token})
	ch.Start(context.Background())
	defer ch.Close()

	require.Eventually(t, func() bool { return srv.LiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)
	srv.State().PushRaw("not json")
	srv.State().Notify(notification.Notification{ID: "n1", Title: "hello"})

	for {
		select {
		case ev := <-ch.Events():
			msg, ok := ev.(realtime.EventMessage)
			if !ok {
				continue
			}
			assert.Equal(t, notification.PushType, msg.Envelope.Type)
			assert.Contains(t, string(msg.Envelope.Data), `"id":"n1"`)
			return
		case <-time.After(2 * time.Second):
			t.Fatal("no push received")
		}
	}
}

func TestPush_RejectsUnknownToken(t *testing.T) {
	_, hs := newTestServer(t)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + rpc.PushPath
	_, err := realtime.WebsocketDialer{URL: url, Token: "nope"}.Dial(context.Background())
	assert.Error(t, err)
}

func TestUnknownProcedureIs404(t *testing.T) {
	_, hs := newTestServer(t)
	client := connect.NewClient[rpc.Empty, rpc.Empty](hs.Client(), hs.URL+"/trackline.v1.Nope/Call", rpc.ClientOptions(token)...)
	_, err := client.CallUnary(context.Background(), connect.NewRequest(&rpc.Empty{}))
	assert.Error(t, err)
}
