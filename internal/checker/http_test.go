package checker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/config"
)

func makeCheck(t *testing.T, url string, extras ...func(*config.Check)) config.Check {
	t.Helper()
	chk := config.Check{
		Name:    "test-http",
		URL:     url,
		Timeout: config.Duration{Duration: 5 * time.Second},
	}
	for _, fn := range extras {
		fn(&chk)
	}
	chk.ApplyDefaults()
	return chk
}

func run(t *testing.T, chk config.Check) checker.Result {
	t.Helper()
	c, err := checker.New(chk, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c.Check(context.Background())
}

func TestHTTPChecker_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("all good"))
	}))
	defer srv.Close()

	result := run(t, makeCheck(t, srv.URL))
	if result.State != checking.Ok {
		t.Errorf("expected OK, got %v: %s", result.State, result.Output())
	}
	if result.CheckName != "test-http" {
		t.Errorf("unexpected check name %q", result.CheckName)
	}
	if result.ResponseTime <= 0 {
		t.Errorf("expected positive response time, got %v", result.ResponseTime)
	}
	if result.CheckedAt.IsZero() {
		t.Error("expected check time to be set")
	}
	if !strings.HasPrefix(result.Output(), "HTTP OK - HTTP/1.1 200 OK | size=8B;;;0; time=") {
		t.Errorf("unexpected output %q", result.Output())
	}
}

func TestHTTPChecker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := run(t, makeCheck(t, srv.URL))
	if result.State != checking.Crit {
		t.Errorf("expected CRITICAL, got %v", result.State)
	}
	if !strings.Contains(result.Report.Headline(), "500 Internal Server Error (!!)") {
		t.Errorf("unexpected headline %q", result.Report.Headline())
	}
}

func TestHTTPChecker_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := run(t, makeCheck(t, url))
	if result.State != checking.Crit {
		t.Errorf("expected CRITICAL, got %v: %s", result.State, result.Output())
	}
	if len(result.Report.Perfdata) != 0 {
		t.Errorf("expected no perfdata on transport error, got %v", result.Report.Perfdata)
	}
}

func TestHTTPChecker_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	result := run(t, makeCheck(t, srv.URL, func(c *config.Check) {
		c.Timeout = config.Duration{Duration: 50 * time.Millisecond}
	}))
	if result.State != checking.Crit {
		t.Errorf("expected CRITICAL on timeout, got %v", result.State)
	}
	if result.Report.Headline() != "HTTP CRITICAL - timeout (!!)" {
		t.Errorf("unexpected headline %q", result.Report.Headline())
	}
}

func TestHTTPChecker_UntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secure"))
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		ignoreTLS bool
		want      checking.Severity
		prefix    string
	}{
		{"verification fails", false, checking.Crit, "HTTP CRITICAL - "},
		{"verification skipped", true, checking.Ok, "HTTP OK - HTTP/1.1 200 OK"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := run(t, makeCheck(t, srv.URL, func(c *config.Check) {
				c.IgnoreTLS = tc.ignoreTLS
			}))
			if result.State != tc.want {
				t.Errorf("expected %v, got %v: %s", tc.want, result.State, result.Output())
			}
			if !strings.HasPrefix(result.Output(), tc.prefix) {
				t.Errorf("unexpected output %q", result.Output())
			}
			if code := result.Report.ExitCode(); tc.want == checking.Crit && code != 2 {
				t.Errorf("expected exit code 2, got %d", code)
			}
		})
	}
}

func TestHTTPChecker_CustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := run(t, makeCheck(t, srv.URL, func(c *config.Check) {
		c.Headers = map[string]string{"Authorization": "Bearer mytoken"}
	}))
	if result.State != checking.Ok {
		t.Errorf("expected OK, got %v: %s", result.State, result.Output())
	}
	if gotAuth != "Bearer mytoken" {
		t.Errorf("expected Authorization header 'Bearer mytoken', got %q", gotAuth)
	}
}

func TestHTTPChecker_ExpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	result := run(t, makeCheck(t, srv.URL, func(c *config.Check) {
		c.StatusCodes = []int{http.StatusNoContent}
	}))
	if result.State != checking.Ok {
		t.Errorf("expected OK for 204, got %v: %s", result.State, result.Output())
	}

	result = run(t, makeCheck(t, srv.URL, func(c *config.Check) {
		c.StatusCodes = []int{http.StatusOK}
	}))
	if result.State != checking.Crit {
		t.Errorf("expected CRITICAL for unexpected 204, got %v", result.State)
	}
}

func TestHTTPChecker_BodyAndHeaderMatching(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	result := run(t, makeCheck(t, srv.URL, func(c *config.Check) {
		c.BodyMatchers = []config.Matcher{{String: `"ok"`}, {Regex: "error", Invert: true}}
		c.HeaderMatchers = []config.HeaderMatcher{{Key: config.Matcher{String: "content-type"}, Value: config.Matcher{Regex: "json$"}}}
	}))
	if result.State != checking.Ok {
		t.Errorf("expected OK, got %v: %s", result.State, result.Output())
	}

	result = run(t, makeCheck(t, srv.URL, func(c *config.Check) {
		c.BodyMatchers = []config.Matcher{{String: "missing"}}
	}))
	if result.State != checking.Warn {
		t.Errorf("expected WARNING, got %v: %s", result.State, result.Output())
	}
}

func TestHTTPChecker_RedirectPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.Write([]byte("next"))
	}))
	defer srv.Close()

	tests := []struct {
		policy string
		want   checking.Severity
	}{
		{"follow", checking.Ok},
		{"ok", checking.Ok},
		{"warning", checking.Warn},
		{"critical", checking.Crit},
	}
	for _, tc := range tests {
		t.Run(tc.policy, func(t *testing.T) {
			result := run(t, makeCheck(t, srv.URL, func(c *config.Check) {
				c.OnRedirect = tc.policy
			}))
			if result.State != tc.want {
				t.Errorf("expected %v, got %v: %s", tc.want, result.State, result.Output())
			}
		})
	}
}
