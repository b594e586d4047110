package checking_test

import (
	"reflect"
	"testing"

	"github.com/hazz-dev/checkhttp/internal/checking"
)

func TestNotice(t *testing.T) {
	if got := checking.Notice(checking.Ok, "all good"); len(got) != 0 {
		t.Errorf("expected no results for OK notice, got %+v", got)
	}

	for _, sev := range []checking.Severity{checking.Warn, checking.Crit, checking.Unknown} {
		got := checking.Notice(sev, "Detected redirect")
		want := []checking.CheckResult{
			checking.Summary(sev, "Detected redirect"),
			checking.Details(sev, "Detected redirect"),
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Notice(%v): got %+v, want %+v", sev, got, want)
		}
	}
}

func TestWorst(t *testing.T) {
	tests := []struct {
		in   []checking.Severity
		want checking.Severity
	}{
		{nil, checking.Ok},
		{[]checking.Severity{checking.Ok, checking.Warn}, checking.Warn},
		{[]checking.Severity{checking.Warn, checking.Unknown}, checking.Unknown},
		{[]checking.Severity{checking.Unknown, checking.Crit, checking.Warn}, checking.Crit},
	}
	for _, tc := range tests {
		if got := checking.Worst(tc.in...); got != tc.want {
			t.Errorf("Worst(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSeverity_ExitCodeAndMarker(t *testing.T) {
	tests := []struct {
		sev    checking.Severity
		code   int
		marker string
	}{
		{checking.Ok, 0, ""},
		{checking.Warn, 1, " (!)"},
		{checking.Crit, 2, " (!!)"},
		{checking.Unknown, 3, " (?)"},
	}
	for _, tc := range tests {
		if got := tc.sev.ExitCode(); got != tc.code {
			t.Errorf("%v.ExitCode() = %d, want %d", tc.sev, got, tc.code)
		}
		if got := tc.sev.Marker(); got != tc.marker {
			t.Errorf("%v.Marker() = %q, want %q", tc.sev, got, tc.marker)
		}
		if back, ok := checking.ParseSeverity(tc.sev.String()); !ok || back != tc.sev {
			t.Errorf("ParseSeverity(%q) = %v, %v", tc.sev.String(), back, ok)
		}
	}
}

func TestSingleLine(t *testing.T) {
	if got := checking.SingleLine("dial failed\nconnection refused"); got != "dial failed - connection refused" {
		t.Errorf("unexpected: %q", got)
	}
}
