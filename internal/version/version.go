// Package version identifies the checkhttp build. The variables are set at
// build time with -ldflags "-X github.com/hazz-dev/checkhttp/internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String is the one-line build description printed by the version command.
func String() string {
	return fmt.Sprintf("checkhttp %s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is the default User-Agent of outgoing probes.
func UserAgent() string {
	return "checkhttp/" + Version
}
