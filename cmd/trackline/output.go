package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/kazz187/trackline/internal/issue"
	"github.com/kazz187/trackline/internal/notification"
	"github.com/kazz187/trackline/internal/sprint"
	"github.com/kazz187/trackline/internal/workflow"
	"github.com/kazz187/trackline/pkg/cerr"
	"github.com/kazz187/trackline/pkg/color"
)

type printer struct {
	w      io.Writer
	errW   io.Writer
	format string
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, errW: os.Stderr, format: format}
}

func (p *printer) yaml(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

func (p *printer) notice(msg string) {
	fmt.Fprintln(p.w, color.Muted.Sprint(msg))
}

// error prints what the user can act on; the full chain goes to the debug log.
func (p *printer) error(err error) {
	slog.Debug("command failed", "error", err)
	msg := cerr.UserMessage(err)
	if reason := cerr.Reason(err); reason != "" {
		msg += " (" + reason + ")"
	}
	fmt.Fprintln(p.errW, color.Failure.Sprint("error: ")+msg)
}

func (p *printer) board(statuses []workflow.Status, columns map[string][]issue.Issue) error {
	if p.format == "yaml" {
		return p.yaml(columns)
	}
	for _, st := range statuses {
		items := columns[st.ID]
		header := fmt.Sprintf("%s (%d)", st.Name, len(items))
		if st.OverLimit(len(items)) {
			header += color.Warn.Sprintf(" over WIP limit %d", *st.WIPLimit)
		}
		fmt.Fprintln(p.w, color.Header.Sprint(header))
		for _, i := range items {
			p.issueLine(i)
		}
		fmt.Fprintln(p.w)
	}
	return nil
}

func (p *printer) issueLine(i issue.Issue) {
	key := i.Key
	if key == "" {
		key = i.ID
	}
	fmt.Fprintf(p.w, "  %s %s %s\n", color.Tag(string(i.Type)), key, i.Title)
}

// diff prints the issue change as a unified diff of its YAML form.
func (p *printer) diff(before, after issue.Issue) error {
	if p.format == "yaml" {
		return p.yaml(after)
	}
	a, err := yaml.Marshal(before)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(after)
	if err != nil {
		return err
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: before.ID + " (before)",
		ToFile:   after.ID + " (after)",
		Context:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to diff issue: %w", err)
	}
	if text == "" {
		p.notice("no change")
		return nil
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(p.w, color.Muted.Sprint(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(p.w, color.Added.Sprint(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(p.w, color.Removed.Sprint(line))
		default:
			fmt.Fprint(p.w, line)
		}
	}
	return nil
}

func (p *printer) sprints(items []sprint.Sprint) error {
	if p.format == "yaml" {
		return p.yaml(items)
	}
	for _, sp := range items {
		p.sprintLine(sp)
	}
	return nil
}

func (p *printer) sprint(sp sprint.Sprint) error {
	if p.format == "yaml" {
		return p.yaml(sp)
	}
	p.sprintLine(sp)
	return nil
}

func (p *printer) sprintLine(sp sprint.Sprint) {
	fmt.Fprintf(p.w, "%s %s %s\n", color.Tag(string(sp.Status)), sp.ID, sp.Name)
}

func (p *printer) notifications(items []notification.Notification, unread int) error {
	if p.format == "yaml" {
		return p.yaml(map[string]any{"unread": unread, "notifications": items})
	}
	fmt.Fprintln(p.w, color.Header.Sprintf("%d unread", unread))
	for _, n := range items {
		p.notificationLine(n)
	}
	return nil
}

func (p *printer) notificationLine(n notification.Notification) {
	mark := "*"
	if n.Read {
		mark = " "
	}
	fmt.Fprintf(p.w, "%s %s %s %s\n", mark, color.Tag(string(n.Type)), n.ID, n.Title)
}
