package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/checks"
	"github.com/hazz-dev/checkhttp/internal/probe"
	"github.com/hazz-dev/checkhttp/internal/version"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Matcher is a body or header text matcher. Exactly one of String and Regex
// is set; Invert only applies to Regex.
type Matcher struct {
	String string `yaml:"string"`
	Regex  string `yaml:"regex"`
	Invert bool   `yaml:"invert"`
}

// HeaderMatcher matches a response header by name and value.
type HeaderMatcher struct {
	Key   Matcher `yaml:"key"`
	Value Matcher `yaml:"value"`
}

// PageSize bounds the response body size in bytes.
type PageSize struct {
	Min int  `yaml:"min"`
	Max *int `yaml:"max"`
}

// ResponseTime holds response time thresholds in seconds.
type ResponseTime struct {
	Warn float64  `yaml:"warn"`
	Crit *float64 `yaml:"crit"`
}

// DocumentAge holds maximum document age thresholds.
type DocumentAge struct {
	Warn Duration  `yaml:"warn"`
	Crit *Duration `yaml:"crit"`
}

// CertificateValidity holds the minimum remaining certificate validity in days.
type CertificateValidity struct {
	Warn uint64  `yaml:"warn"`
	Crit *uint64 `yaml:"crit"`
}

// Check describes a single HTTP check.
type Check struct {
	Name                string               `yaml:"name"`
	URL                 string               `yaml:"url"`
	Interval            Duration             `yaml:"interval"`
	Timeout             Duration             `yaml:"timeout"`
	Method              string               `yaml:"method"`
	Body                string               `yaml:"body"`
	ContentType         string               `yaml:"content_type"`
	Headers             map[string]string    `yaml:"headers"`
	UserAgent           string               `yaml:"user_agent"`
	OnRedirect          string               `yaml:"onredirect"`
	MaxRedirects        int                  `yaml:"max_redirects"`
	StatusCodes         []int                `yaml:"status_codes"`
	PageSize            *PageSize            `yaml:"page_size"`
	ResponseTime        *ResponseTime        `yaml:"response_time"`
	DocumentAge         *DocumentAge         `yaml:"document_age"`
	CertificateValidity *CertificateValidity `yaml:"certificate_validity"`
	BodyMatchers        []Matcher            `yaml:"body_matchers"`
	HeaderMatchers      []HeaderMatcher      `yaml:"header_matchers"`
	WithoutBody         bool                 `yaml:"without_body"`
	MaxBodySize         int64                `yaml:"max_body_size"`
	IgnoreTLS           bool                 `yaml:"ignore_tls"`
	Proxy               string               `yaml:"proxy"`
	HTTPVersion         string               `yaml:"http_version"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	// RateLimitPerSec and RateLimitBurst bound on-demand runs per client.
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Config is the root application configuration.
type Config struct {
	Checks  []Check       `yaml:"checks"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
}

// Defaults.
const (
	DefaultAddress         = ":8080"
	DefaultStoragePath     = "checkhttp.db"
	DefaultInterval        = 60 * time.Second
	DefaultTimeout         = 10 * time.Second
	DefaultMaxRedirects    = 10
	DefaultRateLimitPerSec = 1
	DefaultRateLimitBurst  = 5
)

// DefaultUserAgent is sent when a check sets no user agent.
func DefaultUserAgent() string {
	return version.UserAgent()
}

// Load reads, expands, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	expanded, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding config: %w", err)
	}
	return Parse([]byte(expanded))
}

// Parse parses and validates a YAML config document.
func Parse(data []byte) (*Config, error) {
	// Durations are first decoded as strings so a bad value can be reported
	// with the check and field it belongs to.
	type rawDurations struct {
		Name        string `yaml:"name"`
		Interval    string `yaml:"interval"`
		Timeout     string `yaml:"timeout"`
		DocumentAge *struct {
			Warn string  `yaml:"warn"`
			Crit *string `yaml:"crit"`
		} `yaml:"document_age"`
	}
	type rawConfig struct {
		Checks  []yaml.Node   `yaml:"checks"`
		Alerts  AlertsConfig  `yaml:"alerts"`
		Server  ServerConfig  `yaml:"server"`
		Storage StorageConfig `yaml:"storage"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if raw.Server.Address == "" {
		raw.Server.Address = DefaultAddress
	}
	if raw.Server.RateLimitPerSec <= 0 {
		raw.Server.RateLimitPerSec = DefaultRateLimitPerSec
	}
	if raw.Server.RateLimitBurst <= 0 {
		raw.Server.RateLimitBurst = DefaultRateLimitBurst
	}
	if raw.Storage.Path == "" {
		raw.Storage.Path = DefaultStoragePath
	}

	if len(raw.Checks) == 0 {
		return nil, fmt.Errorf("at least one check must be configured")
	}

	cfg := &Config{
		Alerts:  raw.Alerts,
		Server:  raw.Server,
		Storage: raw.Storage,
	}

	names := make(map[string]bool, len(raw.Checks))
	for i, node := range raw.Checks {
		var rd rawDurations
		if err := node.Decode(&rd); err != nil {
			return nil, fmt.Errorf("check[%d]: %w", i, err)
		}
		if rd.Name == "" {
			return nil, fmt.Errorf("check[%d]: name is required", i)
		}
		if names[rd.Name] {
			return nil, fmt.Errorf("duplicate check name %q", rd.Name)
		}
		names[rd.Name] = true

		if _, err := time.ParseDuration(orZero(rd.Interval)); err != nil {
			return nil, fmt.Errorf("check %q: invalid interval %q: %w", rd.Name, rd.Interval, err)
		}
		if _, err := time.ParseDuration(orZero(rd.Timeout)); err != nil {
			return nil, fmt.Errorf("check %q: invalid timeout %q: %w", rd.Name, rd.Timeout, err)
		}
		if age := rd.DocumentAge; age != nil {
			if _, err := time.ParseDuration(orZero(age.Warn)); err != nil {
				return nil, fmt.Errorf("check %q: invalid document_age.warn %q: %w", rd.Name, age.Warn, err)
			}
			if age.Crit != nil {
				if _, err := time.ParseDuration(*age.Crit); err != nil {
					return nil, fmt.Errorf("check %q: invalid document_age.crit %q: %w", rd.Name, *age.Crit, err)
				}
			}
		}

		var c Check
		if err := node.Decode(&c); err != nil {
			return nil, fmt.Errorf("check %q: %w", rd.Name, err)
		}
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("check %q: %w", c.Name, err)
		}
		cfg.Checks = append(cfg.Checks, c)
	}

	return cfg, nil
}

// orZero lets an unset duration pass validation.
func orZero(s string) string {
	if s == "" {
		return "0s"
	}
	return s
}

// Find returns the check with the given name.
func (c *Config) Find(name string) (Check, bool) {
	for _, chk := range c.Checks {
		if chk.Name == name {
			return chk, true
		}
	}
	return Check{}, false
}

// ApplyDefaults fills in unset fields.
func (c *Check) ApplyDefaults() {
	if c.Interval.Duration == 0 {
		c.Interval = Duration{DefaultInterval}
	}
	if c.Timeout.Duration == 0 {
		c.Timeout = Duration{DefaultTimeout}
	}
	if c.OnRedirect == "" {
		c.OnRedirect = string(probe.RedirectFollow)
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent()
	}
}

// Validate checks the fields of c. Error messages name the offending field.
func (c *Check) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", c.URL)
	}
	if c.Interval.Duration < 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if _, err := probe.ParseOnRedirect(c.OnRedirect); err != nil {
		return fmt.Errorf("invalid onredirect: %w", err)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max_redirects must not be negative")
	}
	for _, code := range c.StatusCodes {
		if code < 100 || code > 999 {
			return fmt.Errorf("invalid status_codes entry %d", code)
		}
	}
	if c.PageSize != nil && c.PageSize.Max != nil && *c.PageSize.Max < c.PageSize.Min {
		return fmt.Errorf("page_size.max must not be below page_size.min")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max_body_size must not be negative")
	}
	switch c.HTTPVersion {
	case "", "1.1", "2":
	default:
		return fmt.Errorf("invalid http_version %q (must be 1.1 or 2)", c.HTTPVersion)
	}
	if c.Proxy != "" {
		p, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy %q: %w", c.Proxy, err)
		}
		switch p.Scheme {
		case "http", "https":
			if c.HTTPVersion == "2" {
				return fmt.Errorf("proxy %q: http and https proxies cannot be combined with http_version 2 (use socks5)", c.Proxy)
			}
		case "socks5", "socks5h":
		default:
			return fmt.Errorf("invalid proxy %q: scheme must be http, https or socks5", c.Proxy)
		}
	}
	for i, m := range c.BodyMatchers {
		if _, err := m.compile(); err != nil {
			return fmt.Errorf("body_matchers[%d]: %w", i, err)
		}
	}
	for i, m := range c.HeaderMatchers {
		if _, err := m.Key.compile(); err != nil {
			return fmt.Errorf("header_matchers[%d].key: %w", i, err)
		}
		if _, err := m.Value.compile(); err != nil {
			return fmt.Errorf("header_matchers[%d].value: %w", i, err)
		}
	}
	return nil
}

func (m Matcher) compile() (checks.TextMatcher, error) {
	if m.Regex == "" {
		if m.Invert {
			return checks.TextMatcher{}, fmt.Errorf("invert requires regex")
		}
		return checks.Plain(m.String), nil
	}
	if m.String != "" {
		return checks.TextMatcher{}, fmt.Errorf("string and regex are mutually exclusive")
	}
	re, err := regexp.Compile(m.Regex)
	if err != nil {
		return checks.TextMatcher{}, fmt.Errorf("invalid regex %q: %w", m.Regex, err)
	}
	return checks.Regex(re, !m.Invert), nil
}

// Request builds the probe request for c.
func (c Check) Request() probe.Request {
	onredirect, _ := probe.ParseOnRedirect(c.OnRedirect)
	return probe.Request{
		URL:          c.URL,
		Method:       c.Method,
		Body:         c.Body,
		ContentType:  c.ContentType,
		Headers:      c.Headers,
		UserAgent:    c.UserAgent,
		Timeout:      c.Timeout.Duration,
		OnRedirect:   onredirect,
		MaxRedirects: c.MaxRedirects,
		IgnoreTLS:    c.IgnoreTLS,
		FetchBody:    !c.WithoutBody,
		MaxBodySize:  c.MaxBodySize,
		Proxy:        c.Proxy,
		HTTPVersion:  c.HTTPVersion,
	}
}

// Parameters builds the evaluation parameters for c.
func (c Check) Parameters() (checks.Parameters, error) {
	onredirect, err := probe.ParseOnRedirect(c.OnRedirect)
	if err != nil {
		return checks.Parameters{}, err
	}
	params := checks.Parameters{
		OnRedirect:  onredirect,
		StatusCodes: c.StatusCodes,
		Timeout:     c.Timeout.Duration,
	}

	if c.PageSize != nil {
		b := checking.LowerBound(c.PageSize.Min)
		if c.PageSize.Max != nil {
			b = checking.LowerUpperBounds(c.PageSize.Min, *c.PageSize.Max)
		}
		params.PageSize = &b
	}
	if rt := c.ResponseTime; rt != nil {
		l := checking.UpperWarn(rt.Warn)
		if rt.Crit != nil {
			l = checking.UpperWarnCrit(rt.Warn, *rt.Crit)
		}
		params.ResponseTime = &l
	}
	if age := c.DocumentAge; age != nil {
		warn := uint64(age.Warn.Duration / time.Second)
		l := checking.UpperWarn(warn)
		if age.Crit != nil {
			l = checking.UpperWarnCrit(warn, uint64(age.Crit.Duration/time.Second))
		}
		params.DocumentAge = &l
	}
	if cv := c.CertificateValidity; cv != nil {
		l := checking.LowerWarn(cv.Warn)
		if cv.Crit != nil {
			l = checking.LowerWarnCrit(cv.Warn, *cv.Crit)
		}
		params.CertificateValidity = &l
	}

	for i, m := range c.BodyMatchers {
		tm, err := m.compile()
		if err != nil {
			return checks.Parameters{}, fmt.Errorf("body_matchers[%d]: %w", i, err)
		}
		params.BodyMatchers = append(params.BodyMatchers, tm)
	}
	for i, m := range c.HeaderMatchers {
		key, err := m.Key.compile()
		if err != nil {
			return checks.Parameters{}, fmt.Errorf("header_matchers[%d].key: %w", i, err)
		}
		value, err := m.Value.compile()
		if err != nil {
			return checks.Parameters{}, fmt.Errorf("header_matchers[%d].value: %w", i, err)
		}
		params.HeaderMatchers = append(params.HeaderMatchers, checks.HeaderMatcher{Key: key, Value: value})
	}
	return params, nil
}
