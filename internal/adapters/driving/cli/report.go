package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/lakegate/internal/core/domain"
)

// palette matches the colours the interactive views used.
var palette = struct {
	Title, Muted, Success, Warning, Error lipgloss.Color
}{
	Title:   lipgloss.Color("#7C3AED"),
	Muted:   lipgloss.Color("#6C7086"),
	Success: lipgloss.Color("#A6E3A1"),
	Warning: lipgloss.Color("#F9E2AF"),
	Error:   lipgloss.Color("#F38BA8"),
}

// styles renders report text. The zero value prints plain text.
type styles struct {
	title, muted, success, warning, failure lipgloss.Style
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{title: s, muted: s, success: s, warning: s, failure: s}
}

func colourStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(palette.Title),
		muted:   lipgloss.NewStyle().Foreground(palette.Muted),
		success: lipgloss.NewStyle().Foreground(palette.Success),
		warning: lipgloss.NewStyle().Foreground(palette.Warning),
		failure: lipgloss.NewStyle().Bold(true).Foreground(palette.Error),
	}
}

// isTerminal is swapped in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func stylesFor(w io.Writer) styles {
	if isTerminal(w) {
		return colourStyles()
	}
	return plainStyles()
}

// renderBatch writes the four outcome classes of a batch.
func renderBatch(w io.Writer, result *domain.BatchResult) {
	st := stylesFor(w)

	fmt.Fprintln(w, st.title.Render("Run "+result.RunID))
	fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("batch %s, %d items in %s",
		result.BatchTimestamp, result.Total(), result.Duration().Round(time.Millisecond))))

	section(w, st.success, "Curated", result.Curated, func(r domain.ItemResult) string {
		return r.Key + " -> " + r.CuratedLocation
	})
	section(w, st.warning, "Quarantined", result.Quarantined, func(r domain.ItemResult) string {
		line := r.Key
		if r.Routing != nil {
			line += " -> " + r.Routing.DestinationKey
		}
		if r.Verdict != nil {
			line += fmt.Sprintf(" [%s] %s", r.Verdict.Reason(), r.Verdict.Detail())
		}
		return line
	})
	section(w, st.failure, "Unevaluated", result.Unevaluated, func(r domain.ItemResult) string {
		return fmt.Sprintf("%s (%s): %v", r.Key, r.Stage, r.Err)
	})
	section(w, st.failure, "Transform failed", result.TransformFailed, func(r domain.ItemResult) string {
		line := r.Key
		if r.Routing != nil {
			line = r.Routing.DestinationKey
		}
		return fmt.Sprintf("%s: %v", line, r.Err)
	})

	if result.CatalogErr != nil {
		fmt.Fprintln(w, st.warning.Render("catalog refresh failed: "+result.CatalogErr.Error()))
	}
	if result.MonitorErr != nil {
		fmt.Fprintln(w, st.warning.Render("monitoring failed: "+result.MonitorErr.Error()))
	}
}

func section(w io.Writer, st lipgloss.Style, title string, items []domain.ItemResult, line func(domain.ItemResult) string) {
	fmt.Fprintf(w, "\n%s (%d)\n", st.Render(title), len(items))
	for _, r := range items {
		fmt.Fprintf(w, "  %s\n", line(r))
	}
}

// renderVerdict writes a single validation verdict.
func renderVerdict(w io.Writer, key string, v domain.Verdict) {
	st := stylesFor(w)
	if v.Passed() {
		line := st.success.Render("PASSED") + " " + key
		if skipped := v.Skipped(); len(skipped) > 0 {
			names := make([]string, len(skipped))
			for i, c := range skipped {
				names[i] = c.String()
			}
			line += st.muted.Render(" (skipped: " + strings.Join(names, ", ") + ")")
		}
		fmt.Fprintln(w, line)
		return
	}
	fmt.Fprintf(w, "%s %s\n  check:  %s\n  detail: %s\n",
		st.failure.Render("FAILED"), key, v.Reason(), v.Detail())
}

// renderReconcile writes what a reconcile pass removed and kept.
func renderReconcile(w io.Writer, report domain.ReconcileReport) {
	st := stylesFor(w)
	fmt.Fprintf(w, "%s (%d)\n", st.title.Render("Removed stale sources"), len(report.Removed))
	for _, k := range report.Removed {
		fmt.Fprintf(w, "  %s\n", k)
	}
	if len(report.Kept) > 0 {
		fmt.Fprintf(w, "%s (%d)\n", st.title.Render("Kept as new items"), len(report.Kept))
		for _, k := range report.Kept {
			fmt.Fprintf(w, "  %s\n", k)
		}
	}
	if len(report.Errors) == 0 {
		return
	}
	keys := make([]string, 0, len(report.Errors))
	for k := range report.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s (%d)\n", st.failure.Render("Not removed"), len(keys))
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, report.Errors[k])
	}
}
