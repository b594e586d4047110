package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

var (
	// ErrTooManyRedirects is returned when the redirect limit is hit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrStickyRedirect is returned when a sticky redirect leaves the
	// original address or port.
	ErrStickyRedirect = errors.New("redirect target leaves the original address")
	// ErrHTTP2Proxy is returned when forced HTTP/2 is combined with an
	// HTTP(S) proxy. Only socks5 proxies can carry prior-knowledge HTTP/2.
	ErrHTTP2Proxy = errors.New("http_version 2 cannot be used with an http or https proxy")
)

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsConnect reports whether err happened while establishing the connection,
// including the TLS handshake.
func IsConnect(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial", "remote error", "local error":
			// crypto/tls reports handshake alerts as "remote error" or "local error".
			return true
		}
	}
	return isHandshake(err)
}

func isHandshake(err error) bool {
	var (
		verifyErr    *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		invalidErr   x509.CertificateInvalidError
		hostnameErr  x509.HostnameError
		recordErr    tls.RecordHeaderError
		alertErr     tls.AlertError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr)
}

// IsRedirect reports whether err stems from the redirect policy.
func IsRedirect(err error) bool {
	return errors.Is(err, ErrTooManyRedirects) || errors.Is(err, ErrStickyRedirect)
}
