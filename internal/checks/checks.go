// Package checks evaluates a probed HTTP response into report units.
package checks

import (
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/probe"
)

// Parameters configure the evaluation of a response.
type Parameters struct {
	OnRedirect          probe.OnRedirect
	StatusCodes         []int
	PageSize            *checking.Bounds[int]
	ResponseTime        *checking.Levels[float64]
	DocumentAge         *checking.Levels[uint64]
	Timeout             time.Duration
	BodyMatchers        []TextMatcher
	HeaderMatchers      []HeaderMatcher
	CertificateValidity *checking.Levels[uint64]
}

// nowFunc allows overriding time in tests.
var nowFunc = time.Now

// Collect evaluates the outcome of a probe. A transport error is reported on
// its own; otherwise every check runs and the results are concatenated in a
// fixed order.
func Collect(resp *probe.Response, err error, params Parameters) []checking.CheckResult {
	if err != nil {
		return checkTransportError(err)
	}

	var out []checking.CheckResult
	out = append(out, checkStatus(resp.Status, resp.Version, params.StatusCodes)...)
	out = append(out, checkRedirect(resp.Status, params.OnRedirect)...)
	out = append(out, checkHeaders(resp.Headers, params.HeaderMatchers)...)
	out = append(out, checkBody(resp, params.PageSize, params.BodyMatchers)...)
	out = append(out, checkResponseTime(resp.Elapsed, params.ResponseTime, params.Timeout)...)
	ageHeader, found := documentAgeHeader(resp)
	out = append(out, checkDocumentAge(nowFunc(), ageHeader, found, params.DocumentAge)...)
	out = append(out, checkCertificate(nowFunc(), resp.TLS, params.CertificateValidity)...)
	return out
}

func checkTransportError(err error) []checking.CheckResult {
	switch {
	case probe.IsTimeout(err):
		return checking.Notice(checking.Crit, "timeout")
	case probe.IsConnect(err), probe.IsRedirect(err):
		return checking.Notice(checking.Crit, checking.SingleLine(err.Error()))
	default:
		return checking.Notice(checking.Unknown, checking.SingleLine(err.Error()))
	}
}

func statusText(code int) string {
	reason := http.StatusText(code)
	if reason == "" {
		reason = "<unknown status code>"
	}
	return fmt.Sprintf("%d %s", code, reason)
}

func defaultStatusSeverity(code int) checking.Severity {
	switch {
	case code >= 400 && code < 500:
		return checking.Warn
	case code >= 500 && code < 600:
		return checking.Crit
	default:
		return checking.Ok
	}
}

func checkStatus(code int, version probe.Version, accepted []int) []checking.CheckResult {
	sev := checking.Ok
	suffix := ""
	switch {
	case len(accepted) == 0:
		sev = defaultStatusSeverity(code)
	case containsInt(accepted, code):
	case len(accepted) == 1:
		sev = checking.Crit
		suffix = fmt.Sprintf(" (expected %s)", statusText(accepted[0]))
	default:
		sev = checking.Crit
		codes := make([]string, len(accepted))
		for i, c := range accepted {
			codes[i] = fmt.Sprint(c)
		}
		suffix = fmt.Sprintf(" (expected one of [%s])", strings.Join(codes, " "))
	}

	text := fmt.Sprintf("%s %s%s", version, statusText(code), suffix)
	return []checking.CheckResult{checking.Summary(sev, text), checking.Details(sev, text)}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func checkRedirect(code int, onredirect probe.OnRedirect) []checking.CheckResult {
	if code < 300 || code >= 400 {
		return nil
	}
	switch onredirect {
	case probe.RedirectWarning:
		return checking.Notice(checking.Warn, "Detected redirect")
	case probe.RedirectCritical:
		return checking.Notice(checking.Crit, "Detected redirect")
	}
	return nil
}

func checkHeaders(headers []probe.Header, matchers []HeaderMatcher) []checking.CheckResult {
	if len(matchers) == 0 {
		return nil
	}
	if matchHeaders(headers, matchers) {
		return nil
	}
	return checking.Notice(checking.Crit, "Specified strings not found in response headers")
}

type decodedHeader struct {
	name  string
	value string
}

// matchHeaders requires every matcher to match at least one header.
func matchHeaders(headers []probe.Header, matchers []HeaderMatcher) bool {
	decoded := make([]decodedHeader, len(headers))
	for i, h := range headers {
		decoded[i] = decodedHeader{name: h.Name, value: latin1ToString(h.Value)}
	}

	for _, m := range matchers {
		found := false
		for _, h := range decoded {
			if m.Key.Matches(h.name) && m.Value.Matches(h.value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// latin1ToString decodes header bytes as ISO-8859-1, which maps every byte to
// the code point of the same value. Header values are not necessarily UTF-8.
func latin1ToString(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// Unreachable: every byte is a valid ISO-8859-1 character.
		return string(b)
	}
	return string(s)
}

func checkBody(resp *probe.Response, pageSize *checking.Bounds[int], matchers []TextMatcher) []checking.CheckResult {
	if !resp.BodyFetched() {
		return nil
	}
	if resp.BodyErr != nil || resp.Body == nil {
		return checking.Notice(checking.Crit, "Error fetching the response body")
	}
	return append(
		checkPageSize(resp.Body.Length, pageSize),
		checkBodyMatching(resp.Body.Text, matchers)...,
	)
}

func checkPageSize(size int, limits *checking.Bounds[int]) []checking.CheckResult {
	text := fmt.Sprintf("Page size: %d Bytes", size)

	var out []checking.CheckResult
	if sev, crossed := evaluateBounds(size, limits); crossed {
		if limits.Upper == nil {
			text += fmt.Sprintf(" (warn below %d Bytes)", limits.Lower)
		} else {
			text += fmt.Sprintf(" (warn below/above %d Bytes/%d Bytes)", limits.Lower, *limits.Upper)
		}
		out = append(out, checking.Summary(sev, text), checking.Details(sev, text))
	} else {
		out = append(out, checking.Details(checking.Ok, text))
	}

	return append(out, checking.NewMetric("size", float64(size), "B", nil, checking.Ptr(0.), nil))
}

// evaluateBounds applies the page size limits. Page size never goes beyond WARNING.
func evaluateBounds(size int, limits *checking.Bounds[int]) (checking.Severity, bool) {
	if limits == nil {
		return checking.Ok, false
	}
	return limits.Evaluate(size, checking.Warn)
}

func checkBodyMatching(text string, matchers []TextMatcher) []checking.CheckResult {
	for _, m := range matchers {
		if !m.Matches(text) {
			return checking.Notice(checking.Warn, "String validation failed on response body")
		}
	}
	return nil
}

func checkResponseTime(elapsed time.Duration, levels *checking.Levels[float64], timeout time.Duration) []checking.CheckResult {
	seconds := elapsed.Seconds()
	out := checking.CheckLevels("Response time", seconds, " seconds", levels)
	return append(out, checking.NewMetric("time", seconds, "s", levels, checking.Ptr(0.), checking.Ptr(timeout.Seconds())))
}

func documentAgeHeader(resp *probe.Response) ([]byte, bool) {
	if v, ok := resp.Header("last-modified"); ok {
		return v, true
	}
	return resp.Header("date")
}

func checkDocumentAge(now time.Time, header []byte, found bool, levels *checking.Levels[uint64]) []checking.CheckResult {
	if levels == nil {
		return nil
	}
	if !found {
		return checking.Notice(checking.Crit, "Can't determine document age")
	}

	// A date in the future is reported like an undecodable one.
	const decodeError = "Can't decode document age"
	if !isVisibleASCII(header) {
		return checking.Notice(checking.Crit, decodeError)
	}
	modified, ok := parseHTTPDate(string(header))
	if !ok {
		return checking.Notice(checking.Crit, decodeError)
	}
	age := now.Sub(modified)
	if age < 0 {
		return checking.Notice(checking.Crit, decodeError)
	}

	return checking.CheckLevels("Document age", uint64(age/time.Second), " seconds", levels)
}

// parseHTTPDate accepts the three HTTP-date formats. Unlike http.ParseTime it
// rejects a weekday that does not match the date and years before 1970.
func parseHTTPDate(s string) (time.Time, bool) {
	t, err := http.ParseTime(s)
	if err != nil || t.Year() < 1970 {
		return time.Time{}, false
	}
	day, _, _ := strings.Cut(s, " ")
	day = strings.TrimSuffix(day, ",")
	weekday := t.Weekday().String()
	if day != weekday && day != weekday[:3] {
		return time.Time{}, false
	}
	return t, true
}

func isVisibleASCII(b []byte) bool {
	for _, c := range b {
		if (c < 0x20 || c >= 0x7f) && c != '\t' {
			return false
		}
	}
	return true
}

func checkCertificate(now time.Time, info *probe.TLSInfo, levels *checking.Levels[uint64]) []checking.CheckResult {
	if info == nil || len(info.PeerCertificate) == 0 {
		return nil
	}

	cert, err := x509.ParseCertificate(info.PeerCertificate)
	if err != nil {
		return checking.Notice(checking.Unknown, "Unable to parse server certificate")
	}
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return checking.Notice(checking.Crit, "Invalid server certificate")
	}

	days := (cert.NotAfter.Unix() - now.Unix()) / 86400
	if days < 0 {
		days = -days
	}
	return checking.CheckLevels("Server certificate validity", uint64(days), " days", levels)
}
