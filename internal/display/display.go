// Package display provides terminal formatting for deskflow output.
package display

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/deskflow/internal/types"
)

var (
	// Styles
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warning  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// OutcomeDot returns a colored marker for a row outcome.
func OutcomeDot(o types.Outcome) string {
	switch o {
	case types.OutcomeSubmitted:
		return Success.Render("●")
	case types.OutcomeFlagged:
		return Warning.Render("○")
	case types.OutcomeFailed:
		return ErrStyle.Render("✗")
	default:
		return Dim.Render("·")
	}
}

// DaysAgo formats a YYYY-MM-DD date relative to now.
func DaysAgo(date string, now time.Time) string {
	if date == "" {
		return "never"
	}
	t, err := time.ParseInLocation("2006-01-02", date, now.Location())
	if err != nil {
		return date
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	days := int(today.Sub(t).Hours() / 24)
	switch {
	case days < 0:
		return "in the future"
	case days == 0:
		return "today"
	case days == 1:
		return "yesterday"
	default:
		return fmt.Sprintf("%dd ago", days)
	}
}

// Truncate shortens a string to maxLen runes, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// RunSummary prints the counts of a pipeline run.
func RunSummary(w io.Writer, s *types.RunSummary) {
	title := "deskflow run"
	if s.DryRun {
		title += " (dry run)"
	}
	Header(w, title)
	fmt.Fprintf(w, "  %s\n\n", Dim.Render(s.RunID))

	fmt.Fprintf(w, "    Fetched:    %4d rows\n", s.Fetched)
	fmt.Fprintf(w, "    Eligible:   %4d rows\n", s.Eligible)
	fmt.Fprintf(w, "  %s Submitted:  %4d\n", OutcomeDot(types.OutcomeSubmitted), s.Submitted)
	fmt.Fprintf(w, "  %s Flagged:    %4d\n", OutcomeDot(types.OutcomeFlagged), s.Flagged)
	fmt.Fprintf(w, "  %s Failed:     %4d\n", OutcomeDot(types.OutcomeFailed), s.Failed)
	fmt.Fprintf(w, "  %s Skipped:    %4d\n", OutcomeDot(types.OutcomeSkipped), s.Skipped)
	fmt.Fprintln(w)

	if s.LastRunDate != "" {
		fmt.Fprintf(w, "  Watermark: %s\n", s.LastRunDate)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "  %s\n", ErrStyle.Render("Failed rows stay eligible for the next run; see the log file."))
	}
}

// State prints the tracking state: watermark, tickets on file and flagged
// requests. At most limit entries of each map are listed; limit <= 0 lists
// all of them.
func State(w io.Writer, st *types.State, now time.Time, limit int) {
	Header(w, "deskflow tracking state")
	fmt.Fprintln(w)
	if st.LastRunDate == "" {
		fmt.Fprintf(w, "  Last run:   %s\n", Dim.Render("never"))
	} else {
		fmt.Fprintf(w, "  Last run:   %s %s\n", st.LastRunDate, Dim.Render("("+DaysAgo(st.LastRunDate, now)+")"))
	}
	fmt.Fprintf(w, "  Same day:   %d email(s)\n", len(st.ProcessedEmailsSameDate))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tickets (%d)\n", len(st.EmailToIssue))
	printMap(w, st.EmailToIssue, limit, func(email, ref string) string {
		return fmt.Sprintf("    %s %-32s %s", OutcomeDot(types.OutcomeSubmitted), Truncate(email, 32), ref)
	})
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Flagged (%d)\n", len(st.FlaggedRequests))
	printMap(w, st.FlaggedRequests, limit, func(email, reason string) string {
		return fmt.Sprintf("    %s %-32s %s", OutcomeDot(types.OutcomeFlagged), Truncate(email, 32), Dim.Render(Truncate(reason, 60)))
	})
}

func printMap(w io.Writer, m map[string]string, limit int, line func(k, v string) string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "    %s\n", Dim.Render(fmt.Sprintf("... and %d more", len(keys)-limit)))
			return
		}
		fmt.Fprintln(w, strings.TrimRight(line(k, m[k]), " "))
	}
}
