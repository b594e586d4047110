package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/storage"
)

// probeOptions are the plugin-mode flags. Each maps onto a config.Check field.
type probeOptions struct {
	name            string
	url             string
	method          string
	body            string
	contentType     string
	headers         []string
	userAgent       string
	timeout         time.Duration
	onredirect      string
	maxRedirects    int
	statusCodes     []int
	pageSizeMin     int
	pageSizeMax     int
	responseWarn    float64
	responseCrit    float64
	documentAgeWarn time.Duration
	documentAgeCrit time.Duration
	certWarn        uint64
	certCrit        uint64
	bodyStrings     []string
	bodyRegexes     []string
	bodyNotRegexes  []string
	headerStrings   []string
	headerRegexes   []string
	withoutBody     bool
	maxBodySize     int64
	ignoreTLS       bool
	proxy           string
	httpVersion     string
	history         string
}

func probeCmd() *cobra.Command {
	opts := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe --url URL [flags]",
		Short: "Check a single URL and exit with the monitoring plugin status",
		Long: `Check a single URL, print the plugin output and exit with
0 (OK), 1 (WARNING), 2 (CRITICAL) or 3 (UNKNOWN).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceErrors = true
			return runProbe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "check name used in history and logs (default: the URL)")
	f.StringVarP(&opts.url, "url", "u", "", "URL to check")
	f.StringVar(&opts.method, "method", "", "request method (default GET)")
	f.StringVar(&opts.body, "body", "", "request body")
	f.StringVar(&opts.contentType, "content-type", "", "request body content type")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "request header 'Name: value' (repeatable)")
	f.StringVar(&opts.userAgent, "user-agent", "", "user agent (default checkhttp/<version>)")
	f.DurationVarP(&opts.timeout, "timeout", "t", config.DefaultTimeout, "request timeout")
	f.StringVar(&opts.onredirect, "onredirect", "follow", "redirect policy: follow, sticky, stickyport, ok, warning, critical")
	f.IntVar(&opts.maxRedirects, "max-redirects", config.DefaultMaxRedirects, "maximum redirects to follow")
	f.IntSliceVar(&opts.statusCodes, "status-code", nil, "accepted status codes (repeatable)")
	f.IntVar(&opts.pageSizeMin, "page-size-min", 0, "minimum body size in bytes")
	f.IntVar(&opts.pageSizeMax, "page-size-max", 0, "maximum body size in bytes")
	f.Float64Var(&opts.responseWarn, "response-time-warn", 0, "response time warning level in seconds")
	f.Float64Var(&opts.responseCrit, "response-time-crit", 0, "response time critical level in seconds")
	f.DurationVar(&opts.documentAgeWarn, "document-age-warn", 0, "document age warning level")
	f.DurationVar(&opts.documentAgeCrit, "document-age-crit", 0, "document age critical level")
	f.Uint64Var(&opts.certWarn, "cert-warn", 0, "warn when the certificate expires within this many days")
	f.Uint64Var(&opts.certCrit, "cert-crit", 0, "critical when the certificate expires within this many days")
	f.StringArrayVar(&opts.bodyStrings, "body-string", nil, "string the body must contain (repeatable)")
	f.StringArrayVar(&opts.bodyRegexes, "body-regex", nil, "regex the body must match (repeatable)")
	f.StringArrayVar(&opts.bodyNotRegexes, "body-regex-invert", nil, "regex the body must not match (repeatable)")
	f.StringArrayVar(&opts.headerStrings, "header-string", nil, "'name:value' substrings a response header must contain (repeatable)")
	f.StringArrayVar(&opts.headerRegexes, "header-regex", nil, "'name-regex:value-regex' a response header must match (repeatable)")
	f.BoolVar(&opts.withoutBody, "without-body", false, "do not fetch the response body")
	f.Int64Var(&opts.maxBodySize, "max-body-size", 0, "read at most this many body bytes (0 = unlimited)")
	f.BoolVar(&opts.ignoreTLS, "ignore-tls", false, "skip certificate verification")
	f.StringVar(&opts.proxy, "proxy", "", "proxy URL (http, https, socks5)")
	f.StringVar(&opts.httpVersion, "http-version", "", "force HTTP version: 1.1 or 2")
	f.StringVar(&opts.history, "history", "", "record the run in this SQLite database")

	return cmd
}

func runProbe(cmd *cobra.Command, opts *probeOptions) error {
	out := cmd.OutOrStdout()
	chk, err := opts.check(cmd)
	if err != nil {
		return unknown(out, err)
	}

	logger := slog.Default().With("check", chk.Name)
	c, err := checker.New(chk, logger)
	if err != nil {
		return unknown(out, err)
	}

	result := c.Check(cmd.Context())
	fmt.Fprintln(out, result.Output())
	logger.Debug("probe finished", "state", result.State, "response_time", result.ResponseTime)

	if opts.history != "" {
		if err := recordRun(cmd, opts.history, result); err != nil {
			// The check outcome stands; history is best effort.
			logger.Warn("recording run", "error", err)
		}
	}

	if code := result.State.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func recordRun(cmd *cobra.Command, path string, result checker.Result) error {
	db, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.InsertRun(cmd.Context(), result)
}

// unknown prints a usage problem as plugin output and exits UNKNOWN.
func unknown(out io.Writer, err error) error {
	fmt.Fprintf(out, "HTTP %s - %s%s\n", checking.Unknown, checking.SingleLine(err.Error()), checking.Unknown.Marker())
	return &exitError{code: checking.Unknown.ExitCode()}
}

// check translates the flags into a validated check definition.
func (o *probeOptions) check(cmd *cobra.Command) (config.Check, error) {
	if o.url == "" {
		return config.Check{}, fmt.Errorf("--url is required")
	}
	f := cmd.Flags()

	chk := config.Check{
		Name:         o.name,
		URL:          o.url,
		Timeout:      config.Duration{Duration: o.timeout},
		Method:       o.method,
		Body:         o.body,
		ContentType:  o.contentType,
		UserAgent:    o.userAgent,
		OnRedirect:   o.onredirect,
		MaxRedirects: o.maxRedirects,
		StatusCodes:  o.statusCodes,
		WithoutBody:  o.withoutBody,
		MaxBodySize:  o.maxBodySize,
		IgnoreTLS:    o.ignoreTLS,
		Proxy:        o.proxy,
		HTTPVersion:  o.httpVersion,
	}
	if chk.Name == "" {
		chk.Name = o.url
	}
	if o.maxRedirects < 0 {
		return config.Check{}, fmt.Errorf("--max-redirects must not be negative")
	}

	if len(o.headers) > 0 {
		chk.Headers = make(map[string]string, len(o.headers))
		for _, h := range o.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return config.Check{}, fmt.Errorf("invalid --header %q (want 'Name: value')", h)
			}
			chk.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	if f.Changed("page-size-min") || f.Changed("page-size-max") {
		ps := &config.PageSize{Min: o.pageSizeMin}
		if f.Changed("page-size-max") {
			ps.Max = &o.pageSizeMax
		}
		chk.PageSize = ps
	}
	if f.Changed("response-time-warn") || f.Changed("response-time-crit") {
		rt := &config.ResponseTime{Warn: o.responseWarn}
		if f.Changed("response-time-crit") {
			rt.Crit = &o.responseCrit
		}
		chk.ResponseTime = rt
	}
	if f.Changed("document-age-warn") || f.Changed("document-age-crit") {
		age := &config.DocumentAge{Warn: config.Duration{Duration: o.documentAgeWarn}}
		if f.Changed("document-age-crit") {
			age.Crit = &config.Duration{Duration: o.documentAgeCrit}
		}
		chk.DocumentAge = age
	}
	if f.Changed("cert-warn") || f.Changed("cert-crit") {
		cv := &config.CertificateValidity{Warn: o.certWarn}
		if f.Changed("cert-crit") {
			cv.Crit = &o.certCrit
		}
		chk.CertificateValidity = cv
	}

	for _, s := range o.bodyStrings {
		chk.BodyMatchers = append(chk.BodyMatchers, config.Matcher{String: s})
	}
	for _, re := range o.bodyRegexes {
		chk.BodyMatchers = append(chk.BodyMatchers, config.Matcher{Regex: re})
	}
	for _, re := range o.bodyNotRegexes {
		chk.BodyMatchers = append(chk.BodyMatchers, config.Matcher{Regex: re, Invert: true})
	}
	for _, h := range o.headerStrings {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return config.Check{}, fmt.Errorf("invalid --header-string %q (want 'name:value')", h)
		}
		chk.HeaderMatchers = append(chk.HeaderMatchers, config.HeaderMatcher{
			Key:   config.Matcher{String: strings.ToLower(key)},
			Value: config.Matcher{String: value},
		})
	}
	for _, h := range o.headerRegexes {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return config.Check{}, fmt.Errorf("invalid --header-regex %q (want 'name-regex:value-regex')", h)
		}
		chk.HeaderMatchers = append(chk.HeaderMatchers, config.HeaderMatcher{
			Key:   config.Matcher{Regex: key},
			Value: config.Matcher{Regex: value},
		})
	}

	chk.ApplyDefaults()
	if err := chk.Validate(); err != nil {
		return config.Check{}, err
	}
	return chk, nil
}
