package ui

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"igharvest/pkg/models"
)

// RenderSummary writes the per-account results of a run as a table.
func RenderSummary(w io.Writer, s models.RunSummary) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Account", "Status", "Posts", "Skipped", "Followers", "Notes"})

	for _, a := range s.Accounts {
		t.AppendRow(table.Row{
			"@" + a.Username,
			string(a.Status),
			a.PostsScraped,
			a.PostsFailed,
			a.Followers,
			truncate(a.Error, 48),
		})
	}

	footer := fmt.Sprintf("%d/%d ok", s.Count(models.StatusSuccess), len(s.Accounts))
	t.AppendFooter(table.Row{"", footer, s.TotalPosts(), "", "", durationNote(s)})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	if s.SummaryFile != "" {
		_, err := fmt.Fprintf(w, "summary: %s\n", s.SummaryFile)
		return err
	}
	return nil
}

func durationNote(s models.RunSummary) string {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return ""
	}
	return "took " + FormatDuration(s.FinishedAt.Sub(s.StartedAt))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
