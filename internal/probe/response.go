package probe

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Version is the protocol version a response was received with, e.g. "HTTP/1.1".
type Version string

const (
	HTTP10 Version = "HTTP/1.0"
	HTTP11 Version = "HTTP/1.1"
	HTTP2  Version = "HTTP/2.0"
)

func versionOf(resp *http.Response) Version {
	return Version(fmt.Sprintf("HTTP/%d.%d", resp.ProtoMajor, resp.ProtoMinor))
}

// Header is a single response header. Name is lower-case ASCII, Value holds
// the bytes as received.
type Header struct {
	Name  string
	Value []byte
}

// Body is a fetched response body.
type Body struct {
	// Text is the body decoded to UTF-8.
	Text string
	// Length is the raw body size in bytes.
	Length int
}

// TLSInfo describes the TLS session of a response.
type TLSInfo struct {
	// PeerCertificate is the DER encoded leaf certificate, nil if the peer
	// presented none.
	PeerCertificate []byte
}

// Response is a processed HTTP response.
type Response struct {
	Status  int
	Version Version
	Headers []Header
	// Body is nil when the body was not fetched or fetching failed.
	Body *Body
	// BodyErr is set when fetching the body failed.
	BodyErr error
	Elapsed time.Duration
	// TLS is nil for plain HTTP.
	TLS *TLSInfo
}

// Header returns the first value of the named header.
func (r *Response) Header(name string) ([]byte, bool) {
	name = strings.ToLower(name)
	for _, h := range r.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return nil, false
}

// BodyFetched reports whether a body fetch was attempted.
func (r *Response) BodyFetched() bool {
	return r.Body != nil || r.BodyErr != nil
}

func rawHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	var out []Header
	for _, k := range names {
		for _, v := range h[k] {
			out = append(out, Header{Name: strings.ToLower(k), Value: []byte(v)})
		}
	}
	return out
}

func tlsInfo(resp *http.Response) *TLSInfo {
	if resp.TLS == nil {
		return nil
	}
	info := &TLSInfo{}
	if len(resp.TLS.PeerCertificates) > 0 {
		info.PeerCertificate = resp.TLS.PeerCertificates[0].Raw
	}
	return info
}
