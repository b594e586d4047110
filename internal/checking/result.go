package checking

import "strings"

// Channel selects where a report line ends up.
type Channel int

const (
	// ChannelSummary contributes to the short status line.
	ChannelSummary Channel = iota
	// ChannelDetails contributes to the long output.
	ChannelDetails
	// ChannelMetric is a performance datum.
	ChannelMetric
)

// Metric is a numeric performance datum.
type Metric struct {
	Name   string
	Value  float64
	Unit   string
	Levels *Levels[float64]
	Min    *float64
	Max    *float64
}

// CheckResult is a single reportable fact produced by a check.
type CheckResult struct {
	Channel  Channel
	Severity Severity
	Text     string
	Metric   *Metric
}

// Summary returns a status line contribution.
func Summary(sev Severity, text string) CheckResult {
	return CheckResult{Channel: ChannelSummary, Severity: sev, Text: text}
}

// Details returns a long output contribution.
func Details(sev Severity, text string) CheckResult {
	return CheckResult{Channel: ChannelDetails, Severity: sev, Text: text}
}

// NewMetric returns a performance datum. Metrics always report as Ok.
func NewMetric(name string, value float64, unit string, levels *Levels[float64], min, max *float64) CheckResult {
	return CheckResult{
		Channel:  ChannelMetric,
		Severity: Ok,
		Metric: &Metric{
			Name:   name,
			Value:  value,
			Unit:   unit,
			Levels: levels,
			Min:    min,
			Max:    max,
		},
	}
}

// Notice reports a pass/fail condition. Nothing is reported when sev is Ok,
// otherwise the same text goes to both summary and details.
func Notice(sev Severity, text string) []CheckResult {
	if sev == Ok {
		return nil
	}
	return []CheckResult{Summary(sev, text), Details(sev, text)}
}

// SingleLine replaces embedded newlines so a message stays on one report line.
func SingleLine(text string) string {
	return strings.ReplaceAll(text, "\n", " - ")
}

// Ptr returns a pointer to v, handy for optional metric bounds.
func Ptr[T any](v T) *T {
	return &v
}
