// Package probe performs the HTTP request of a check and hands back a
// processed response for evaluation.
package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/http2"
)

// Request describes a single probe.
type Request struct {
	URL          string
	Method       string
	Body         string
	ContentType  string
	Headers      map[string]string
	UserAgent    string
	Timeout      time.Duration
	OnRedirect   OnRedirect
	MaxRedirects int
	IgnoreTLS    bool
	FetchBody    bool
	// MaxBodySize caps the number of body bytes read; 0 means no cap.
	MaxBodySize int64
	// Proxy is an http://, https:// or socks5:// proxy URL.
	Proxy string
	// HTTPVersion forces "1.1" or "2"; empty negotiates.
	HTTPVersion string
}

// Client issues probes.
type Client struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewClient creates a Client. Pass nil logger to use the default logger.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{resolver: net.DefaultResolver, logger: logger}
}

// NewClientWithResolver creates a Client with a custom resolver (for testing).
func NewClientWithResolver(resolver Resolver, logger *slog.Logger) *Client {
	c := NewClient(logger)
	c.resolver = resolver
	return c
}

// Do performs the request. A non-nil error means the transport failed and no
// response is available.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	rt, err := c.transport(req, httpReq.URL.Scheme == "https")
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Transport:     rt,
		Timeout:       req.Timeout,
		CheckRedirect: redirectPolicy(ctx, c.resolver, req.OnRedirect, req.MaxRedirects),
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		c.logger.Debug("probe failed", "url", req.URL, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		Status:  resp.StatusCode,
		Version: versionOf(resp),
		Headers: rawHeaders(resp.Header),
		TLS:     tlsInfo(resp),
	}
	if req.FetchBody {
		out.Body, out.BodyErr = readBody(resp, req.MaxBodySize)
	}
	out.Elapsed = time.Since(start)

	c.logger.Debug("probe finished",
		"url", req.URL,
		"status", out.Status,
		"version", out.Version,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

func (c *Client) transport(req Request, secure bool) (http.RoundTripper, error) {
	dialer := &net.Dialer{Timeout: req.Timeout}
	dial := dialFunc(dialer.DialContext)
	socks, err := socksDialer(req.Proxy, dial)
	if err != nil {
		return nil, fmt.Errorf("configuring proxy: %w", err)
	}
	if socks != nil {
		dial = socks
	}
	proxyURL, err := httpProxyURL(req.Proxy)
	if err != nil {
		return nil, fmt.Errorf("configuring proxy: %w", err)
	}
	tlsConf := &tls.Config{InsecureSkipVerify: req.IgnoreTLS}

	if req.HTTPVersion == "2" {
		if proxyURL != nil {
			return nil, ErrHTTP2Proxy
		}
		return &http2.Transport{
			AllowHTTP:       true,
			TLSClientConfig: tlsConf,
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				conn, err := dial(ctx, network, addr)
				if err != nil || !secure {
					return conn, err
				}
				tlsConn := tls.Client(conn, cfg)
				if err := tlsConn.HandshakeContext(ctx); err != nil {
					conn.Close()
					return nil, err
				}
				return tlsConn, nil
			},
		}, nil
	}

	transport := &http.Transport{
		DialContext:       dial,
		TLSClientConfig:   tlsConf,
		DisableKeepAlives: true,
	}
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if req.HTTPVersion == "1.1" {
		// A non-nil empty map disables HTTP/2 upgrades.
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		return transport, nil
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configuring http2: %w", err)
	}
	return transport, nil
}

func readBody(resp *http.Response, limit int64) (*Body, error) {
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return &Body{Text: decodeText(raw, resp.Header.Get("Content-Type")), Length: len(raw)}, nil
}

// decodeText converts raw to UTF-8 using the charset named in contentType,
// treating the body as UTF-8 if none is given or it is unknown.
func decodeText(raw []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			if enc, _ := charset.Lookup(label); enc != nil {
				if decoded, err := enc.NewDecoder().Bytes(raw); err == nil {
					raw = decoded
				}
			}
		}
	}
	return string(bytes.ToValidUTF8(raw, []byte("�")))
}
