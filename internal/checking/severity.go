// Package checking holds the building blocks every HTTP check is made of:
// severities, report units and threshold evaluation.
package checking

// Severity is the health level a check reports.
//
// Ok, Warn and Crit are ordered. Unknown marks an indeterminate condition and
// is only ever reported, never compared.
type Severity int

const (
	Ok Severity = iota
	Warn
	Crit
	Unknown
)

func (s Severity) String() string {
	switch s {
	case Ok:
		return "OK"
	case Warn:
		return "WARNING"
	case Crit:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Marker is the suffix appended to non-OK report lines.
func (s Severity) Marker() string {
	switch s {
	case Warn:
		return " (!)"
	case Crit:
		return " (!!)"
	case Unknown:
		return " (?)"
	default:
		return ""
	}
}

// ExitCode maps the severity to the plugin exit status.
func (s Severity) ExitCode() int {
	switch s {
	case Ok:
		return 0
	case Warn:
		return 1
	case Crit:
		return 2
	default:
		return 3
	}
}

// rank orders severities for picking the worst one: OK < WARN < UNKNOWN < CRIT.
func (s Severity) rank() int {
	switch s {
	case Ok:
		return 0
	case Warn:
		return 1
	case Unknown:
		return 2
	default:
		return 3
	}
}

// Worst returns the most severe of the given severities, Ok if none.
func Worst(states ...Severity) Severity {
	worst := Ok
	for _, s := range states {
		if s.rank() > worst.rank() {
			worst = s
		}
	}
	return worst
}

// ParseSeverity is the inverse of String.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "OK":
		return Ok, true
	case "WARNING":
		return Warn, true
	case "CRITICAL":
		return Crit, true
	case "UNKNOWN":
		return Unknown, true
	}
	return Unknown, false
}
