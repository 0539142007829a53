package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	apiclient "github.com/FutureSolutionDev/Deploy-Center-Server-sub001/pkg/api/client"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.SetStyle(table.StyleRounded)
	} else {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func statusColor(status string) text.Colors {
	switch status {
	case "success":
		return text.Colors{text.FgGreen}
	case "failed":
		return text.Colors{text.FgRed}
	case "cancelled":
		return text.Colors{text.FgYellow}
	case "in_progress":
		return text.Colors{text.FgCyan}
	}
	return nil
}

func colorize(w io.Writer, status string) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return statusColor(status).Sprint(status)
	}
	return status
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).Round(time.Second).String()
}

func renderProjects(w io.Writer, projects []apiclient.Project) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Repository", "Branch", "Auto", "Max", "Paths"})
	for _, p := range projects {
		t.AppendRow(table.Row{p.ID, p.Name, p.RepoURL, p.TargetBranch, p.AutoDeploy, p.MaxConcurrent, strings.Join(p.PathFilters, ",")})
	}
	t.Render()
}

func renderDeployments(w io.Writer, list []apiclient.Deployment) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Status", "Branch", "Commit", "By", "Started", "Duration"})
	for _, d := range list {
		t.AppendRow(table.Row{d.ID, colorize(w, d.Status), d.Branch, shortSHA(d.CommitHash), d.TriggeredBy, formatTime(d.StartedAt), formatDuration(d.DurationMS)})
	}
	t.Render()
}

func renderDeploymentDetail(w io.Writer, d apiclient.Deployment, showLog bool) {
	fmt.Fprintf(w, "Deployment %d (project %d)\n", d.ID, d.ProjectID)
	fmt.Fprintf(w, "  status:   %s\n", colorize(w, d.Status))
	fmt.Fprintf(w, "  commit:   %s@%s\n", d.Branch, d.CommitHash)
	fmt.Fprintf(w, "  by:       %s\n", d.TriggeredBy)
	if d.RetryOf != nil {
		fmt.Fprintf(w, "  retry of: %d\n", *d.RetryOf)
	}
	fmt.Fprintf(w, "  started:  %s\n", formatTime(d.StartedAt))
	fmt.Fprintf(w, "  duration: %s\n", formatDuration(d.DurationMS))
	if d.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:    %s\n", d.ErrorMessage)
	}
	if len(d.Steps) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"#", "Step", "Status", "Error"})
		for _, s := range d.Steps {
			t.AppendRow(table.Row{s.Position, s.Name, colorize(w, s.Status), s.Error})
		}
		t.Render()
	}
	if showLog && d.FullLog != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, d.FullLog)
		if !strings.HasSuffix(d.FullLog, "\n") {
			fmt.Fprintln(w)
		}
	}
}

func renderQueues(w io.Writer, queues []apiclient.QueueStatus) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Project", "Running", "Queued", "Max", "Active", "Pending"})
	for _, q := range queues {
		t.AppendRow(table.Row{q.ProjectID, q.Running, q.QueueLength, q.MaxConcurrent, joinIDs(q.Active), joinIDs(q.Pending)})
	}
	t.Render()
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
