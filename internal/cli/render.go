package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/iambrandonn/chaba/internal/analysis"
	"github.com/iambrandonn/chaba/internal/history"
	"github.com/iambrandonn/chaba/internal/state"
	"github.com/iambrandonn/chaba/internal/worktree"
)

// styles are bound to one output writer so colors only appear on terminals.
type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	muted    lipgloss.Style
	ok       lipgloss.Style
	warn     lipgloss.Style
	severity map[analysis.Severity]lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true),
		label: r.NewStyle().Foreground(lipgloss.Color("12")),
		muted: r.NewStyle().Foreground(lipgloss.Color("8")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		severity: map[analysis.Severity]lipgloss.Style{
			analysis.SeverityCritical: r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
			analysis.SeverityHigh:     r.NewStyle().Foreground(lipgloss.Color("9")),
			analysis.SeverityMedium:   r.NewStyle().Foreground(lipgloss.Color("11")),
			analysis.SeverityLow:      r.NewStyle().Foreground(lipgloss.Color("12")),
			analysis.SeverityInfo:     r.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

func yesNo(s styles, v bool) string {
	if v {
		return s.ok.Render("yes")
	}
	return s.warn.Render("no")
}

func portString(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}

func printRecord(w io.Writer, s styles, rec state.Record) {
	fmt.Fprintf(w, "%s %s\n", s.label.Render("ID:      "), idString(rec.ID))
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Branch:  "), rec.Branch)
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Path:    "), rec.Path)
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Port:    "), portString(rec.Port))
	if rec.ProjectType != "" {
		fmt.Fprintf(w, "%s %s\n", s.label.Render("Project: "), rec.ProjectType)
	}
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Deps:    "), yesNo(s, rec.DepsInstalled))
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Env:     "), yesNo(s, rec.EnvCopied))
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Created: "), rec.CreatedAt.Local().Format(time.DateTime))
}

func idString(id int) string {
	if worktree.IsBranchID(id) {
		return fmt.Sprintf("%d (branch)", id)
	}
	return fmt.Sprintf("#%d", id)
}

func printList(w io.Writer, s styles, statuses []worktree.Status) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No review environments.")
		return
	}

	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rec := st.Record
		status := s.ok.Render("active")
		if st.Stale() {
			status = s.warn.Render("stale")
		}
		changes, commits := "-", "-"
		if stats := st.Stats; stats != nil {
			if stats.FilesChanged > 0 || stats.LinesAdded > 0 || stats.LinesDeleted > 0 {
				changes = fmt.Sprintf("+%d -%d", stats.LinesAdded, stats.LinesDeleted)
			}
			if stats.CommitsAhead > 0 || stats.CommitsBehind > 0 {
				commits = fmt.Sprintf("↑%d ↓%d", stats.CommitsAhead, stats.CommitsBehind)
			}
		}
		rows = append(rows, []string{
			idString(rec.ID), rec.Branch, portString(rec.Port), changes, commits, status, rec.Path,
		})
	}
	printTable(w, s, []string{"ID", "BRANCH", "PORT", "CHANGES", "COMMITS", "STATUS", "PATH"}, rows)
}

func printTable(w io.Writer, s styles, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if style != nil {
				cell = style.Render(cell)
			}
			parts[i] = cell + pad
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(header, &s.title)
	for _, row := range rows {
		line(row, nil)
	}
}

func printStatus(w io.Writer, s styles, st worktree.Status) {
	printRecord(w, s, st.Record)
	if st.Stale() {
		fmt.Fprintf(w, "%s %s\n", s.label.Render("Status:  "),
			s.warn.Render("stale (worktree missing; run 'chaba cleanup --prune-stale')"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Status:  "), s.ok.Render("active"))

	switch {
	case st.Stats != nil:
		stats := st.Stats
		fmt.Fprintf(w, "%s %d files, +%d -%d\n", s.label.Render("Changes: "),
			stats.FilesChanged, stats.LinesAdded, stats.LinesDeleted)
		if stats.Upstream != "" {
			fmt.Fprintf(w, "%s %s (ahead %d, behind %d)\n", s.label.Render("Upstream:"),
				stats.Upstream, stats.CommitsAhead, stats.CommitsBehind)
		}
	case st.StatsErr != nil:
		fmt.Fprintf(w, "%s %s\n", s.label.Render("Changes: "), s.muted.Render("unavailable: "+st.StatsErr.Error()))
	}

	if n := len(st.Record.Analyses); n > 0 {
		total := 0
		for _, r := range st.Record.Analyses {
			total += len(r.Findings)
		}
		fmt.Fprintf(w, "%s %d results, %d findings (see 'chaba agent-result %d')\n",
			s.label.Render("Analysis:"), n, total, st.Record.ID)
	}
}

func printAnalyses(w io.Writer, s styles, results []analysis.Result, showRaw bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No agent analyses recorded.")
		return
	}

	for i, result := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header := fmt.Sprintf("== %s ==", result.Agent)
		fmt.Fprintln(w, s.title.Render(header))
		if result.Score != nil {
			fmt.Fprintf(w, "Score: %.1f/5.0\n", *result.Score)
		}
		if !result.Timestamp.IsZero() {
			fmt.Fprintln(w, s.muted.Render(result.Timestamp.Local().Format(time.DateTime)+"  run "+result.RunID))
		}

		summary := make([]string, 0, len(analysis.Severities))
		for _, sev := range analysis.Severities {
			if n := result.CountBySeverity(sev); n > 0 {
				summary = append(summary, s.severity[sev].Render(fmt.Sprintf("%d %s", n, sev)))
			}
		}
		if len(summary) > 0 {
			fmt.Fprintln(w, "Findings: "+strings.Join(summary, ", "))
		}

		findings := append([]analysis.Finding(nil), result.Findings...)
		sort.SliceStable(findings, func(a, b int) bool {
			return findings[a].Severity.Rank() > findings[b].Severity.Rank()
		})
		for _, f := range findings {
			tag := s.severity[f.Severity].Render(fmt.Sprintf("[%s]", strings.ToUpper(string(f.Severity))))
			fmt.Fprintf(w, "  %s %s %s\n", tag, f.Title, s.muted.Render("("+string(f.Category)+")"))
			if f.File != "" {
				loc := f.File
				if f.Line != nil {
					loc = fmt.Sprintf("%s:%d", f.File, *f.Line)
				}
				fmt.Fprintf(w, "      %s\n", s.muted.Render(loc))
			}
			if f.Description != "" && f.Description != f.Title {
				fmt.Fprintf(w, "      %s\n", f.Description)
			}
			if f.Suggestion != "" {
				fmt.Fprintf(w, "      -> %s\n", f.Suggestion)
			}
		}

		if showRaw && result.RawOutput != "" {
			fmt.Fprintln(w, s.muted.Render("--- raw output ---"))
			fmt.Fprintln(w, strings.TrimRight(result.RawOutput, "\n"))
		}
	}

	fmt.Fprintln(w)
	printSummary(w, s, results)
}

// printSummary totals findings across every agent.
func printSummary(w io.Writer, s styles, results []analysis.Result) {
	fmt.Fprintln(w, s.title.Render("== summary =="))

	total, critical, high := 0, 0, 0
	for _, r := range results {
		total += len(r.Findings)
		for _, f := range r.Critical() {
			if f.Severity == analysis.SeverityCritical {
				critical++
			} else {
				high++
			}
		}
	}
	fmt.Fprintf(w, "Agents: %d, findings: %d\n", len(results), total)

	if critical == 0 && high == 0 {
		fmt.Fprintln(w, s.ok.Render("No critical or high priority issues found."))
	} else {
		fmt.Fprintln(w, s.warn.Render("Attention required:"))
		if critical > 0 {
			fmt.Fprintf(w, "  %s\n", s.severity[analysis.SeverityCritical].Render(fmt.Sprintf("%d critical issue(s)", critical)))
		}
		if high > 0 {
			fmt.Fprintf(w, "  %s\n", s.severity[analysis.SeverityHigh].Render(fmt.Sprintf("%d high priority issue(s)", high)))
		}
	}

	var lines []string
	for _, c := range analysis.Categories {
		n := 0
		for _, r := range results {
			n += r.CountByCategory(c)
		}
		if n > 0 {
			lines = append(lines, fmt.Sprintf("  %s: %d", c, n))
		}
	}
	if len(lines) > 0 {
		fmt.Fprintln(w, "Categories:")
		fmt.Fprintln(w, strings.Join(lines, "\n"))
	}
}

func printHistory(w io.Writer, s styles, events []history.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No history recorded.")
		return
	}
	for _, evt := range events {
		detail := evt.Branch
		switch evt.Kind {
		case history.KindAnalyzed:
			detail = fmt.Sprintf("%s, %d findings", strings.Join(evt.Agents, "+"), evt.Findings)
		case history.KindCreated:
			if evt.Port != nil {
				detail = fmt.Sprintf("%s (port %d)", evt.Branch, *evt.Port)
			}
		}
		fmt.Fprintf(w, "%s  %-8s %-14s %s\n",
			s.muted.Render(evt.Timestamp.Local().Format(time.DateTime)),
			string(evt.Kind), idString(evt.PR), detail)
	}
}
