package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/metrics"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/service"
	"golang.org/x/term"
)

// Theme holds the color scheme for the run summary.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// summaryStyles are the rendered styles; plain styles leave text unchanged.
type summaryStyles struct {
	status, completed, failed, hint lipgloss.Style
}

func (t Theme) styles() summaryStyles {
	return summaryStyles{
		status:    lipgloss.NewStyle().Foreground(t.Status),
		completed: lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		failed:    lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		hint:      lipgloss.NewStyle().Foreground(t.Hint).Italic(true),
	}
}

func plainStyles() summaryStyles {
	plain := lipgloss.NewStyle()
	return summaryStyles{status: plain, completed: plain, failed: plain, hint: plain}
}

// printSummary writes the run summary, styled when w is a terminal.
func printSummary(w io.Writer, report *service.Report, runErr error) {
	styles := plainStyles()
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		styles = defaultTheme.styles()
	}
	fmt.Fprint(w, renderSummary(report, runErr, styles))
}

// renderSummary builds the summary text of one run.
func renderSummary(r *service.Report, runErr error, s summaryStyles) string {
	var b strings.Builder

	header := s.status.Render(fmt.Sprintf("[%s %s]", r.Mode, r.Run.ID))
	if runErr != nil {
		fmt.Fprintf(&b, "%s %s\n", header, s.failed.Render(fmt.Sprintf("✗ %s error", apperr.KindOf(runErr))))
		fmt.Fprintf(&b, "  %s\n", runErr)
	} else {
		fmt.Fprintf(&b, "%s %s\n", header, s.completed.Render("✓ Completed"))
	}

	if r.Window.Start != 0 {
		fmt.Fprintf(&b, "  Window:          %s\n", r.Window)
	}
	if r.Mode == models.RunModeIncremental {
		if r.PreviousExport != "" {
			fmt.Fprintf(&b, "  Previous export: %s\n", r.PreviousExport)
		}
		if r.Watermark != nil {
			fmt.Fprintf(&b, "  Watermark:       %s\n", r.Watermark.Time().Format("2006-01-02T15:04:05Z"))
		}
	}
	if r.Query.ID != "" {
		fmt.Fprintf(&b, "  Query:           %s (%s)\n", r.Query.ID, r.Query.State)
	}
	if r.Published() {
		if r.Mode == models.RunModeIncremental {
			fmt.Fprintf(&b, "  Rows:            %d (kept %d, fresh %d, expired %d)\n", r.Rows, r.Kept, r.Fresh, r.Expired)
		} else {
			fmt.Fprintf(&b, "  Rows:            %d\n", r.Rows)
		}
		fmt.Fprintf(&b, "  Output:          %s (%d bytes)\n", r.Final, r.Bytes)
	}
	if timings := stageTimings(r.Stages); timings != "" {
		fmt.Fprintf(&b, "  %s\n", s.hint.Render("Timings: "+timings))
	}
	if r.Rejected > 0 {
		fmt.Fprintf(&b, "  %s\n", s.hint.Render(fmt.Sprintf("%d engine rows below the watermark were dropped", r.Rejected)))
	}

	if len(r.Warnings) > 0 {
		b.WriteString(s.failed.Render(fmt.Sprintf("\nWarnings (%d):", len(r.Warnings))) + "\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  • %s\n", w)
		}
	}
	return b.String()
}

// stageTimings renders the stages that ran, in pipeline order.
func stageTimings(snap metrics.Snapshot) string {
	var parts []string
	for _, name := range metrics.Stages {
		if st, ok := snap.Stages[name]; ok {
			parts = append(parts, fmt.Sprintf("%s %.1fs", name, float64(st.TotalTimeMs)/1000))
		}
	}
	return strings.Join(parts, ", ")
}
