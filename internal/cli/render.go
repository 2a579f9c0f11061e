package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/kubilitics-forecast/internal/analytics"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/forecasting"
	"github.com/kubilitics/kubilitics-forecast/internal/analytics/recommendation"
	"github.com/kubilitics/kubilitics-forecast/internal/db"
	"github.com/kubilitics/kubilitics-forecast/internal/server"
)

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	muted  lipgloss.Style
	ok     lipgloss.Style
	high   lipgloss.Style
	medium lipgloss.Style
	low    lipgloss.Style
}

// styles returns colored styles on a terminal and plain ones otherwise.
func (a *app) styles() styles {
	if a.noColor || !a.isTTY() {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		header: lipgloss.NewStyle().Bold(true).Underline(true),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		high:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		medium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		low:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

func (a *app) isTTY() bool {
	f, ok := a.stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// width is the terminal width, or 120 when stdout is not a terminal.
func (a *app) width() int {
	if f, ok := a.stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 40 {
			return w
		}
	}
	return 120
}

// render writes v as JSON or YAML, or calls table for the default format.
func (a *app) render(v any, table func()) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so keys match the API field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		table()
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want table, json or yaml)", a.output)
	}
}

func (a *app) renderReport(r *analytics.Report) {
	st := a.styles()
	out := a.stdout

	fmt.Fprintf(out, "%s\n", st.title.Render(fmt.Sprintf("Report %s", r.ID)))
	fmt.Fprintf(out, "%s tenant=%s horizon=%d records=%d confidence=%.2f quality=%.2f updated=%s\n\n",
		st.muted.Render("·"), r.TenantID, r.Horizon, r.RecordsAnalyzed, r.Confidence,
		r.DataQuality.Overall, r.LastUpdated.Format("2006-01-02 15:04:05Z07:00"))

	for _, d := range r.Domains {
		s, ok := r.Predictions[d]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%s  %s baseline=%.2f trend=%+.3f/period (%s) accuracy=%.2f\n",
			st.header.Render(strings.ToUpper(string(d))), st.muted.Render(s.Unit),
			s.Baseline, s.Trend, s.Direction, r.ModelAccuracy[string(d)])
		fmt.Fprintf(out, "  %-12s %12s %10s %12s %12s  %s\n", "PERIOD", "PREDICTED", "CONF", "LOWER", "UPPER", "LEVEL")
		for _, p := range s.Points {
			fmt.Fprintf(out, "  %-12s %12.3f %10.2f %12.3f %12.3f  %s\n",
				p.Period, p.Predicted, p.Confidence, p.LowerBound, p.UpperBound, a.levelStyle(p.Level).Render(p.Level))
		}
		fmt.Fprintln(out)
	}

	if len(r.Recommendations) == 0 {
		fmt.Fprintf(out, "%s\n", st.muted.Render("No recommendations."))
		return
	}
	fmt.Fprintf(out, "%s\n", st.header.Render("RECOMMENDATIONS"))
	maxAction := a.width() - 30
	for _, rec := range r.Recommendations {
		action := rec.Action
		if maxAction > 20 && len(action) > maxAction {
			action = action[:maxAction-1] + "…"
		}
		fmt.Fprintf(out, "  %-8s %-12s %s\n", a.priorityStyle(rec.Priority).Render(string(rec.Priority)), rec.Type, action)
		fmt.Fprintf(out, "  %-8s %-12s %s\n", "", "", st.muted.Render(rec.Impact+" · "+rec.Timeline))
	}
}

func (a *app) renderReportList(recs []db.ReportRecord) {
	st := a.styles()
	if len(recs) == 0 {
		fmt.Fprintln(a.stdout, st.muted.Render("No reports."))
		return
	}
	fmt.Fprintf(a.stdout, "%s\n", st.header.Render(fmt.Sprintf("%-36s  %-25s  %7s  %10s  %s", "ID", "CREATED", "HORIZON", "CONFIDENCE", "DOMAINS")))
	for _, r := range recs {
		fmt.Fprintf(a.stdout, "%-36s  %-25s  %7d  %10.2f  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), r.Horizon, r.Confidence, r.Domains)
	}
}

func (a *app) renderDomains(infos []server.DomainInfo) {
	st := a.styles()
	fmt.Fprintf(a.stdout, "%s\n", st.header.Render(fmt.Sprintf("%-16s %-18s %-8s %-12s %s", "DOMAIN", "RECORD KIND", "PERIOD", "UNIT", "ALIASES")))
	sorted := append([]server.DomainInfo(nil), infos...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Domain < sorted[j].Domain })
	for _, d := range sorted {
		fmt.Fprintf(a.stdout, "%-16s %-18s %-8s %-12s %s\n", d.Domain, d.RecordKind, d.Granularity, d.Unit, strings.Join(d.Aliases, ", "))
	}
}

func (a *app) priorityStyle(p recommendation.Priority) lipgloss.Style {
	st := a.styles()
	switch p {
	case recommendation.PriorityHigh:
		return st.high
	case recommendation.PriorityMedium:
		return st.medium
	default:
		return st.low
	}
}

func (a *app) levelStyle(level string) lipgloss.Style {
	st := a.styles()
	switch level {
	case forecasting.LevelHigh, forecasting.LevelBottleneck:
		return st.high
	case forecasting.LevelMedium:
		return st.medium
	default:
		return st.low
	}
}
