package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/trackline/internal/config"
	"github.com/kazz187/trackline/pkg/clog"
)

var (
	app    = kingpin.New("trackline", "Issue tracker client with optimistic board moves and live notifications")
	output = app.Flag("output", "Output format").Short('o').Default("text").Enum("text", "yaml")

	// Session commands
	loginCmd     = app.Command("login", "Store credentials for a tracker server")
	loginToken   = loginCmd.Flag("token", "API token").Envar("TRACKLINE_TOKEN").Required().String()
	loginServer  = loginCmd.Flag("server", "Server URL (defaults to TRACKLINE_SERVER_URL)").String()
	loginProject = loginCmd.Flag("project", "Default project ID").String()

	logoutCmd = app.Command("logout", "Remove stored credentials")

	// Board commands
	boardCmd     = app.Command("board", "Show the board of a project")
	boardProject = boardCmd.Flag("project", "Project ID").String()
	boardSprint  = boardCmd.Flag("sprint", "Sprint ID (backlog when empty)").String()

	moveCmd     = app.Command("move", "Move an issue to a column")
	moveIssue   = moveCmd.Arg("issue", "Issue ID").Required().String()
	moveStatus  = moveCmd.Arg("status", "Target status ID").Required().String()
	moveIndex   = moveCmd.Flag("index", "Target index in the column").Default("0").Int()
	moveSprint  = moveCmd.Flag("sprint", "Target sprint ID").String()
	moveBacklog = moveCmd.Flag("backlog", "Move to the backlog").Bool()
	moveProject = moveCmd.Flag("project", "Project ID").String()

	// Sprint commands
	sprintCmd = app.Command("sprint", "Sprint commands")

	sprintListCmd     = sprintCmd.Command("list", "List sprints")
	sprintListProject = sprintListCmd.Flag("project", "Project ID").String()

	sprintStartCmd     = sprintCmd.Command("start", "Start a planned sprint")
	sprintStartID      = sprintStartCmd.Arg("id", "Sprint ID").Required().String()
	sprintStartProject = sprintStartCmd.Flag("project", "Project ID").String()

	sprintCompleteCmd     = sprintCmd.Command("complete", "Complete the active sprint")
	sprintCompleteID      = sprintCompleteCmd.Arg("id", "Sprint ID").Required().String()
	sprintCompleteProject = sprintCompleteCmd.Flag("project", "Project ID").String()

	sprintAssignCmd     = sprintCmd.Command("assign", "Add an issue to a sprint")
	sprintAssignIssue   = sprintAssignCmd.Arg("issue", "Issue ID").Required().String()
	sprintAssignID      = sprintAssignCmd.Arg("sprint", "Sprint ID").Required().String()
	sprintAssignProject = sprintAssignCmd.Flag("project", "Project ID").String()

	sprintUnassignCmd     = sprintCmd.Command("unassign", "Return an issue to the backlog")
	sprintUnassignIssue   = sprintUnassignCmd.Arg("issue", "Issue ID").Required().String()
	sprintUnassignProject = sprintUnassignCmd.Flag("project", "Project ID").String()

	// Notification commands
	notifCmd = app.Command("notifications", "Notification commands").Alias("n")

	notifListCmd    = notifCmd.Command("list", "List recent notifications").Default()
	notifReadCmd    = notifCmd.Command("read", "Mark a notification read")
	notifReadID     = notifReadCmd.Arg("id", "Notification ID").Required().String()
	notifReadAllCmd = notifCmd.Command("read-all", "Mark every notification read")

	watchCmd = app.Command("watch", "Follow notifications until interrupted or logged out")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{env: env, out: newPrinter(os.Stdout, *output)}
	if err := c.run(ctx, command); err != nil {
		c.out.error(err)
		stop()
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}
