package checker

import (
	"time"

	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/report"
)

// Result is the outcome of a single check run.
type Result struct {
	CheckName    string
	State        checking.Severity
	Report       report.Report
	ResponseTime time.Duration
	CheckedAt    time.Time
}

// Output is the full plugin output of the run.
func (r Result) Output() string {
	return r.Report.String()
}
