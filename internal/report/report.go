// Package report renders scan results as terminal tables and builds
// exportable snapshots.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/deeprave/gstats/internal/filestate"
	"github.com/deeprave/gstats/internal/scan"
)

const percentageValue = 100

// maxContributorRows bounds the contributor table; the tail rarely matters
// on large repositories.
const maxContributorRows = 25

// Renderer writes result tables to a terminal or file.
type Renderer struct {
	out     io.Writer
	noColor bool
}

// NewRenderer creates a renderer writing to out. When noColor is set all
// output is plain text.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{out: out, noColor: noColor}
}

// header prints a colored section header.
func (r *Renderer) header(title string) {
	if r.noColor {
		fmt.Fprintf(r.out, "\n%s\n", title)

		return
	}

	c := color.New(color.FgCyan, color.Bold)
	c.Fprintf(r.out, "\n%s\n", title)
}

// RenderContributors prints the per-author activity table, ordered as the
// stats slice arrives (commit count descending).
func (r *Renderer) RenderContributors(stats []scan.ContributorStats) {
	r.header("Contributors")

	if len(stats) == 0 {
		fmt.Fprintln(r.out, "no commits scanned")

		return
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(r.out)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Author", "Email", "Commits", "Insertions", "Deletions", "First", "Last"})

	rows := stats
	if len(rows) > maxContributorRows {
		rows = rows[:maxContributorRows]
	}

	for _, s := range rows {
		tbl.AppendRow(table.Row{
			s.Name,
			s.Email,
			humanize.Comma(int64(s.Commits)),
			humanize.Comma(int64(s.Insertions)),
			humanize.Comma(int64(s.Deletions)),
			s.First.Format(time.DateOnly),
			s.Last.Format(time.DateOnly),
		})
	}

	tbl.Render()

	if len(stats) > maxContributorRows {
		fmt.Fprintf(r.out, "... and %d more\n", len(stats)-maxContributorRows)
	}
}

// RenderLifecycle prints the file lifecycle classification table.
func (r *Renderer) RenderLifecycle(analysis filestate.LifecycleAnalysis) {
	r.header("File Lifecycle")

	if analysis.Tracked == 0 {
		fmt.Fprintln(r.out, "no files tracked")

		return
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(r.out)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Category", "Files", "Share"})

	tbl.AppendRow(table.Row{"stable", analysis.Stable, sharePercent(analysis.StableRate)})
	tbl.AppendRow(table.Row{"resurrected", analysis.Resurrected, sharePercent(analysis.ResurrectedRate)})
	tbl.AppendRow(table.Row{"deleted", analysis.Deleted, sharePercent(analysis.DeletedRate)})
	tbl.AppendFooter(table.Row{"tracked", analysis.Tracked, ""})

	tbl.Render()
}

// RenderLanguages prints the per-language file and line rollup.
func (r *Renderer) RenderLanguages(rollup []LanguageStats) {
	r.header("Languages")

	if len(rollup) == 0 {
		fmt.Fprintln(r.out, "no recognizable files")

		return
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(r.out)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Language", "Files", "Lines"})

	for _, ls := range rollup {
		tbl.AppendRow(table.Row{ls.Language, ls.Files, humanize.Comma(ls.Lines)})
	}

	tbl.Render()
}

// RenderSummary prints the closing one-line run summary.
func (r *Renderer) RenderSummary(commits int, warnings []string, elapsed time.Duration) {
	fmt.Fprintf(r.out, "\nscanned %s commits in %s\n",
		humanize.Comma(int64(commits)), elapsed.Round(time.Millisecond))

	if len(warnings) == 0 {
		return
	}

	warn := func(format string, args ...any) {
		fmt.Fprintf(r.out, format, args...)
	}

	if !r.noColor {
		c := color.New(color.FgYellow)
		warn = func(format string, args ...any) {
			c.Fprintf(r.out, format, args...)
		}
	}

	for _, w := range warnings {
		warn("warning: %s\n", w)
	}
}

// sharePercent formats a 0..1 rate as a percentage string.
func sharePercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*percentageValue)
}

// sortedPaths returns the existing file paths of a state table in order.
func sortedPaths(states map[string]filestate.FileState) []string {
	paths := make([]string, 0, len(states))

	for path, state := range states {
		if state.Exists {
			paths = append(paths, path)
		}
	}

	sort.Strings(paths)

	return paths
}
