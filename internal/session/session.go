package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/trackline/internal/cache"
	"github.com/kazz187/trackline/internal/issue"
	issueclient "github.com/kazz187/trackline/internal/issue/clientimpl"
	"github.com/kazz187/trackline/internal/mutation"
	"github.com/kazz187/trackline/internal/notification"
	notificationclient "github.com/kazz187/trackline/internal/notification/clientimpl"
	"github.com/kazz187/trackline/internal/realtime"
	"github.com/kazz187/trackline/internal/rpc"
	"github.com/kazz187/trackline/internal/sprint"
	sprintclient "github.com/kazz187/trackline/internal/sprint/clientimpl"
)

// Deps are the remote collaborators of one session.
type Deps struct {
	Issues        issue.Client
	Sprints       sprint.Client
	Notifications notification.Client
	Dialer        realtime.Dialer

	ReconnectDelay time.Duration
}

// RemoteDeps builds Deps that talk to the tracker API at serverURL and its
// push endpoint at pushURL with token.
func RemoteDeps(httpClient connect.HTTPClient, serverURL, pushURL, token string) Deps {
	opts := rpc.ClientOptions(token)
	return Deps{
		Issues:        issueclient.NewConnectClient(httpClient, serverURL, opts...),
		Sprints:       sprintclient.NewConnectClient(httpClient, serverURL, opts...),
		Notifications: notificationclient.NewConnectClient(httpClient, serverURL, opts...),
		Dialer:        realtime.WebsocketDialer{URL: pushURL, Origin: serverURL, Token: token},
	}
}

// Session owns every piece of client state for one authenticated token. It
// is created on login and closed on logout; nothing outlives it.
type Session struct {
	Issues        *cache.Store[issue.Issue]
	Sprints       *cache.Store[sprint.Sprint]
	Notifications *cache.Store[notification.Notification]
	Unread        *notification.Counter

	Coordinator *mutation.Coordinator
	Lifecycle   *sprint.Lifecycle
	Reconciler  *notification.Reconciler
	Channel     *realtime.Channel

	issueClient issue.Client

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        conc.WaitGroup
	closeOnce sync.Once
}

func New(deps Deps) *Session {
	clock := cache.NewClock()
	s := &Session{
		Issues:        issue.NewStore(clock),
		Sprints:       sprint.NewStore(clock),
		Notifications: notification.NewStore(clock),
		Unread:        notification.NewCounter(),
		issueClient:   deps.Issues,
	}
	s.Lifecycle = sprint.NewLifecycle(deps.Sprints, s.Sprints, s.Issues)
	s.Coordinator = mutation.NewCoordinator(s.Issues, deps.Issues, s.Lifecycle)
	s.Reconciler = notification.NewReconciler(deps.Notifications, s.Notifications, s.Unread)
	s.Channel = realtime.New(deps.Dialer, realtime.WithReconnectDelay(deps.ReconnectDelay))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start connects the push channel and begins reconciling. The session ends
// when ctx ends or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	s.Channel.Start(runCtx)
	s.wg.Go(func() {
		s.Reconciler.Run(runCtx, s.Channel.Events())
	})
	slog.InfoContext(ctx, "session started", "component", "session")
}

// EndOnLogout closes the session once the stored credentials disappear.
func (s *Session) EndOnLogout(tokens *TokenStore) error {
	removed, err := tokens.Watch(s.Context())
	if err != nil {
		return err
	}
	s.wg.Go(func() {
		select {
		case <-removed:
			slog.Info("logged out, ending session", "component", "session")
			s.cancelRun()
		case <-s.Context().Done():
		}
	})
	return nil
}

// Context is cancelled when the session ends.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) Done() <-chan struct{} {
	return s.Context().Done()
}

// LoadColumn reads one board column through the cache.
func (s *Session) LoadColumn(ctx context.Context, projectID, sprintID, statusID string) ([]issue.Issue, error) {
	return s.LoadIssues(ctx, issue.ListFilter{ProjectID: projectID, StatusID: statusID, SprintID: sprintID, Backlog: sprintID == ""})
}

// LoadIssues reads the issues matching filter through the cache.
func (s *Session) LoadIssues(ctx context.Context, filter issue.ListFilter) ([]issue.Issue, error) {
	items, _, err := cache.Fetch(ctx, s.Issues, filter.Scope(), func(ctx context.Context) ([]issue.Issue, int, error) {
		return s.issueClient.ListIssues(ctx, filter)
	})
	return items, err
}

// Close stops the channel and every background task, then drops all cached
// state. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelRun()
		s.Channel.Close()
		s.wg.Wait()

		s.Issues.Clear()
		s.Sprints.Clear()
		s.Notifications.Clear()
		s.Unread.Set(0)
		s.Reconciler.Forget()
		slog.Info("session closed", "component", "session")
	})
}

func (s *Session) cancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
}
