// Package report renders check results as monitoring plugin output.
package report

import (
	"strings"

	"github.com/hazz-dev/checkhttp/internal/checking"
)

const prefix = "HTTP"

// Report is the rendered outcome of a single check run.
type Report struct {
	State    checking.Severity
	Summary  []string
	Details  []string
	Perfdata []string
}

// Build aggregates results into a report. The state is the worst severity of
// all results.
func Build(results []checking.CheckResult) Report {
	r := Report{State: checking.Ok}
	for _, res := range results {
		r.State = checking.Worst(r.State, res.Severity)
		switch res.Channel {
		case checking.ChannelSummary:
			r.Summary = append(r.Summary, res.Text+res.Severity.Marker())
		case checking.ChannelDetails:
			r.Details = append(r.Details, res.Text+res.Severity.Marker())
		case checking.ChannelMetric:
			if res.Metric != nil {
				r.Perfdata = append(r.Perfdata, FormatMetric(*res.Metric))
			}
		}
	}
	return r
}

// Headline is the first output line without performance data.
func (r Report) Headline() string {
	line := prefix + " " + r.State.String()
	if len(r.Summary) > 0 {
		line += " - " + strings.Join(r.Summary, ", ")
	}
	return line
}

// PerfdataString joins the performance data with spaces.
func (r Report) PerfdataString() string {
	return strings.Join(r.Perfdata, " ")
}

// DetailsString joins the details with newlines.
func (r Report) DetailsString() string {
	return strings.Join(r.Details, "\n")
}

// String renders the complete plugin output.
func (r Report) String() string {
	var b strings.Builder
	b.WriteString(r.Headline())
	if len(r.Perfdata) > 0 {
		b.WriteString(" | ")
		b.WriteString(r.PerfdataString())
	}
	for _, d := range r.Details {
		b.WriteByte('\n')
		b.WriteString(d)
	}
	return b.String()
}

// ExitCode is the plugin exit status for the report state.
func (r Report) ExitCode() int {
	return r.State.ExitCode()
}

// FormatMetric renders m as name=value[unit];[warn];[crit];[min];[max].
func FormatMetric(m checking.Metric) string {
	var warn, crit, min, max string
	if m.Levels != nil {
		warn = checking.FormatNumber(m.Levels.Warn)
		if m.Levels.Crit != nil {
			crit = checking.FormatNumber(*m.Levels.Crit)
		}
	}
	if m.Min != nil {
		min = checking.FormatNumber(*m.Min)
	}
	if m.Max != nil {
		max = checking.FormatNumber(*m.Max)
	}
	return m.Name + "=" + checking.FormatNumber(m.Value) + m.Unit + ";" +
		strings.Join([]string{warn, crit, min, max}, ";")
}
