package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// OnRedirect is the redirect policy of a probe.
type OnRedirect string

const (
	// RedirectFollow follows redirects up to the configured limit.
	RedirectFollow OnRedirect = "follow"
	// RedirectSticky follows redirects as long as they stay on the
	// original IP address.
	RedirectSticky OnRedirect = "sticky"
	// RedirectStickyPort is RedirectSticky that also keeps the port.
	RedirectStickyPort OnRedirect = "stickyport"
	// RedirectOk does not follow and accepts the redirect.
	RedirectOk OnRedirect = "ok"
	// RedirectWarning does not follow and reports WARNING.
	RedirectWarning OnRedirect = "warning"
	// RedirectCritical does not follow and reports CRITICAL.
	RedirectCritical OnRedirect = "critical"
)

// ParseOnRedirect validates a policy name. An empty name means follow.
func ParseOnRedirect(s string) (OnRedirect, error) {
	switch o := OnRedirect(s); o {
	case "":
		return RedirectFollow, nil
	case RedirectFollow, RedirectSticky, RedirectStickyPort, RedirectOk, RedirectWarning, RedirectCritical:
		return o, nil
	}
	return "", fmt.Errorf("invalid redirect policy %q (must be follow, sticky, stickyport, ok, warning, or critical)", s)
}

// Follows reports whether the client follows redirects under this policy.
func (o OnRedirect) Follows() bool {
	switch o {
	case RedirectOk, RedirectWarning, RedirectCritical:
		return false
	}
	return true
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

func redirectPolicy(ctx context.Context, resolver Resolver, onredirect OnRedirect, maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !onredirect.Follows() {
			return http.ErrUseLastResponse
		}
		if len(via) > maxRedirects {
			return fmt.Errorf("%w (limit %d)", ErrTooManyRedirects, maxRedirects)
		}
		if onredirect == RedirectFollow {
			return nil
		}

		origin := via[0].URL
		if onredirect == RedirectStickyPort && effectivePort(origin) != effectivePort(req.URL) {
			return fmt.Errorf("%w: port changed to %s", ErrStickyRedirect, effectivePort(req.URL))
		}
		same, err := sameAddress(ctx, resolver, origin.Hostname(), req.URL.Hostname())
		if err != nil {
			return fmt.Errorf("resolving redirect target: %w", err)
		}
		if !same {
			return fmt.Errorf("%w: %s", ErrStickyRedirect, req.URL.Host)
		}
		return nil
	}
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

func sameAddress(ctx context.Context, resolver Resolver, a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	addrsA, err := resolver.LookupIPAddr(ctx, a)
	if err != nil {
		return false, err
	}
	addrsB, err := resolver.LookupIPAddr(ctx, b)
	if err != nil {
		return false, err
	}
	for _, x := range addrsA {
		for _, y := range addrsB {
			if x.IP.Equal(y.IP) {
				return true, nil
			}
		}
	}
	return false, nil
}
