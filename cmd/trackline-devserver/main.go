package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/trackline/internal/config"
	"github.com/kazz187/trackline/internal/fakeapi"
	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/notification"
	"github.com/kazz187/trackline/internal/sprint"
	"github.com/kazz187/trackline/pkg/clog"
)

var (
	app         = kingpin.New("trackline-devserver", "In-memory tracker API for local development")
	project     = app.Flag("project", "Project to seed").Default("demo").String()
	seed        = app.Flag("seed", "Seed demo issues and sprints").Default("true").Bool()
	notifyEvery = app.Flag("notify-every", "Push a demo notification at this interval (0 disables)").Default("0s").Duration()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	state := fakeapi.NewState()
	state.AddProject(*project)
	if *seed {
		seedDemo(state, *project)
	}
	srv := fakeapi.NewServer(state, env.Tokens...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if *notifyEvery > 0 {
		go notifyLoop(ctx, state, *notifyEvery)
	}

	addr := net.JoinHostPort(env.HTTPHost, env.HTTPPort)
	go func() {
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func seedDemo(state *fakeapi.State, projectID string) {
	state.AddSprint(sprint.Sprint{ID: "sprint-1", ProjectID: projectID, Name: "Sprint 1", Status: sprint.StatusCompleted})
	state.AddSprint(sprint.Sprint{ID: "sprint-2", ProjectID: projectID, Name: "Sprint 2", Goal: "Ship the board"})

	columns := [][]issue.Issue{
		{{ID: "demo-1", Key: "DEMO-1", Title: "Board renders columns", Type: issue.TypeStory, StatusID: "done", SprintID: "sprint-1"}},
		{{ID: "demo-2", Key: "DEMO-2", Title: "Drag cards between columns", Type: issue.TypeStory, StatusID: "in_progress", SprintID: "sprint-2"}},
		{{ID: "demo-3", Key: "DEMO-3", Title: "Cards jump on slow networks", Type: issue.TypeBug, StatusID: "todo", SprintID: "sprint-2"}},
		{
			{ID: "demo-4", Key: "DEMO-4", Title: "Unread badge", Type: issue.TypeTask, StatusID: "todo"},
			{ID: "demo-5", Key: "DEMO-5", Title: "Sprint reports", Type: issue.TypeEpic, StatusID: "todo"},
		},
	}
	seeded := 0
	for _, col := range columns {
		for n := range col {
			col[n].ProjectID = projectID
		}
		seeded += len(state.AddColumn(col...))
	}
	state.Notify(notification.Notification{Type: notification.TypeAssigned, Title: "You were assigned DEMO-3", IssueID: "demo-3"})
	slog.Info("seeded demo data", "project_id", projectID, "issues", seeded)
}

func notifyLoop(ctx context.Context, state *fakeapi.State, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state.Notify(notification.Notification{
				Type:  notification.TypeMentioned,
				Title: "Demo mention #" + strconv.Itoa(n),
			})
		}
	}
}
