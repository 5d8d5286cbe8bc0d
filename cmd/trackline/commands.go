package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kazz187/trackline/internal/config"
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/mutation"
	"github.com/kazz187/trackline/internal/rpc"
	"github.com/kazz187/trackline/internal/session"
	"github.com/kazz187/trackline/internal/workflow"
	"github.com/kazz187/trackline/pkg/cerr"
	"github.com/kazz187/trackline/pkg/storage"
)

var errNoProject = cerr.NewError(cerr.InvalidArgument, "no project given and no default project stored", nil)

type cli struct {
	env *config.Env
	out *printer

	creds session.Credentials
}

func (c *cli) run(ctx context.Context, command string) error {
	tokens, err := c.tokenStore()
	if err != nil {
		return err
	}

	switch command {
	case loginCmd.FullCommand():
		return c.login(ctx, tokens)
	case logoutCmd.FullCommand():
		if err := tokens.Remove(ctx); err != nil {
			return err
		}
		c.out.notice("logged out")
		return nil
	}

	c.creds, err = tokens.Load(ctx)
	if err != nil {
		if cerr.IsCode(err, cerr.NotFound) {
			return cerr.NewError(cerr.Unauthenticated, "not logged in, run `trackline login` first", err)
		}
		return err
	}
	s := session.New(c.deps(c.creds.ServerURL, c.creds.Token))
	defer s.Close()

	switch command {
	case boardCmd.FullCommand():
		return c.board(ctx, s, c.project(*boardProject), *boardSprint)
	case moveCmd.FullCommand():
		return c.move(ctx, s, c.project(*moveProject))
	case sprintListCmd.FullCommand():
		sprints, err := s.Lifecycle.Load(ctx, c.project(*sprintListProject))
		if err != nil {
			return err
		}
		return c.out.sprints(sprints)
	case sprintStartCmd.FullCommand():
		if _, err := s.Lifecycle.Load(ctx, c.project(*sprintStartProject)); err != nil {
			return err
		}
		sp, err := s.Lifecycle.Start(ctx, *sprintStartID)
		if err != nil {
			return err
		}
		return c.out.sprint(sp)
	case sprintCompleteCmd.FullCommand():
		if _, err := s.Lifecycle.Load(ctx, c.project(*sprintCompleteProject)); err != nil {
			return err
		}
		sp, err := s.Lifecycle.Complete(ctx, *sprintCompleteID)
		if err != nil {
			return err
		}
		return c.out.sprint(sp)
	case sprintAssignCmd.FullCommand():
		return c.changeSprint(ctx, s, c.project(*sprintAssignProject), *sprintAssignIssue, *sprintAssignID)
	case sprintUnassignCmd.FullCommand():
		return c.changeSprint(ctx, s, c.project(*sprintUnassignProject), *sprintUnassignIssue, "")
	case notifListCmd.FullCommand():
		items, err := s.Reconciler.Refresh(ctx)
		if err != nil {
			return err
		}
		return c.out.notifications(items, s.Unread.Get())
	case notifReadCmd.FullCommand():
		if _, err := s.Reconciler.Refresh(ctx); err != nil {
			return err
		}
		if err := s.Reconciler.MarkRead(ctx, *notifReadID); err != nil {
			return err
		}
		c.out.notice(fmt.Sprintf("%d unread", s.Unread.Get()))
		return nil
	case notifReadAllCmd.FullCommand():
		if _, err := s.Reconciler.Refresh(ctx); err != nil {
			return err
		}
		if err := s.Reconciler.MarkAllRead(ctx); err != nil {
			return err
		}
		c.out.notice("all notifications read")
		return nil
	case watchCmd.FullCommand():
		return c.watch(ctx, s, tokens)
	}
	return cerr.NewError(cerr.Unimplemented, fmt.Sprintf("unknown command %q", command), nil)
}

func (c *cli) tokenStore() (*session.TokenStore, error) {
	local, err := storage.NewLocalStorage(c.env.SessionDir)
	if err != nil {
		return nil, err
	}
	return session.NewTokenStore(local), nil
}

func (c *cli) deps(serverURL, token string) session.Deps {
	env := c.env.ClientEnv
	env.ServerURL = serverURL
	httpClient := &http.Client{Timeout: c.env.RequestTimeout}
	deps := session.RemoteDeps(httpClient, serverURL, env.PushEndpoint(rpc.PushPath), token)
	deps.ReconnectDelay = c.env.ReconnectDelay
	return deps
}

func (c *cli) project(flag string) string {
	if flag != "" {
		return flag
	}
	return c.creds.ProjectID
}

func (c *cli) login(ctx context.Context, tokens *session.TokenStore) error {
	server := *loginServer
	if server == "" {
		server = c.env.ServerURL
	}
	// Check the token before storing it.
	s := session.New(c.deps(server, *loginToken))
	defer s.Close()
	if _, err := s.Reconciler.Refresh(ctx); err != nil {
		return cerr.NewError(cerr.CodeOf(err), "login failed: "+cerr.UserMessage(err), err)
	}
	if err := tokens.Save(ctx, session.Credentials{Token: *loginToken, ServerURL: server, ProjectID: *loginProject}); err != nil {
		return err
	}
	c.out.notice(fmt.Sprintf("logged in to %s (%d unread)", server, s.Unread.Get()))
	return nil
}

func (c *cli) loadBoard(ctx context.Context, s *session.Session, projectID, sprintID string) (map[string][]issue.Issue, error) {
	if projectID == "" {
		return nil, errNoProject
	}
	columns := make(map[string][]issue.Issue)
	for _, st := range workflow.Defaults(projectID) {
		items, err := s.LoadColumn(ctx, projectID, sprintID, st.ID)
		if err != nil {
			return nil, err
		}
		columns[st.ID] = items
	}
	return columns, nil
}

func (c *cli) board(ctx context.Context, s *session.Session, projectID, sprintID string) error {
	columns, err := c.loadBoard(ctx, s, projectID, sprintID)
	if err != nil {
		return err
	}
	return c.out.board(workflow.Defaults(projectID), columns)
}

// loadIssue caches every issue of the project so moves can compute positions
// against the destination column.
func (c *cli) loadIssue(ctx context.Context, s *session.Session, projectID, issueID string) (issue.Issue, error) {
	if projectID == "" {
		return issue.Issue{}, errNoProject
	}
	if _, err := s.LoadIssues(ctx, issue.ListFilter{ProjectID: projectID}); err != nil {
		return issue.Issue{}, err
	}
	before, ok := s.Issues.Read(issueID)
	if !ok {
		return issue.Issue{}, cerr.NewError(cerr.NotFound, fmt.Sprintf("issue %q not found", issueID), nil)
	}
	return before, nil
}

func (c *cli) move(ctx context.Context, s *session.Session, projectID string) error {
	before, err := c.loadIssue(ctx, s, projectID, *moveIssue)
	if err != nil {
		return err
	}
	if _, err := s.Lifecycle.Load(ctx, projectID); err != nil {
		return err
	}
	req := mutation.MoveRequest{IssueID: *moveIssue, StatusID: *moveStatus, Index: *moveIndex}
	switch {
	case *moveBacklog:
		backlog := ""
		req.SprintID = &backlog
	case *moveSprint != "":
		req.SprintID = moveSprint
	}
	after, err := s.Coordinator.Move(ctx, req)
	if err != nil {
		return err
	}
	return c.out.diff(before, after)
}

func (c *cli) changeSprint(ctx context.Context, s *session.Session, projectID, issueID, sprintID string) error {
	before, err := c.loadIssue(ctx, s, projectID, issueID)
	if err != nil {
		return err
	}
	if _, err := s.Lifecycle.Load(ctx, projectID); err != nil {
		return err
	}
	var after issue.Issue
	if sprintID == "" {
		after, err = s.Coordinator.RemoveFromSprint(ctx, issueID)
	} else {
		after, err = s.Coordinator.AssignToSprint(ctx, issueID, sprintID)
	}
	if err != nil {
		return err
	}
	return c.out.diff(before, after)
}

func (c *cli) watch(ctx context.Context, s *session.Session, tokens *session.TokenStore) error {
	s.Start(ctx)
	if err := s.EndOnLogout(tokens); err != nil {
		return err
	}
	if _, err := s.Reconciler.Refresh(ctx); err != nil {
		return err
	}

	subID, changes := s.Notifications.Subscribe(16)
	defer s.Notifications.Unsubscribe(subID)
	countID, counts := s.Unread.Subscribe(16)
	defer s.Unread.Unsubscribe(countID)
	stateID, states := s.Channel.SubscribeState(4)
	defer s.Channel.UnsubscribeState(stateID)

	c.out.notice(fmt.Sprintf("watching, %d unread", s.Unread.Get()))
	for {
		select {
		case <-s.Done():
			if ctx.Err() == nil {
				c.out.notice("logged out")
			}
			return nil
		case ch := <-changes:
			c.out.notificationLine(ch.Value)
		case n := <-counts:
			c.out.notice(fmt.Sprintf("%d unread", n))
		case st := <-states:
			c.out.notice("push channel " + st.String())
		}
	}
}
