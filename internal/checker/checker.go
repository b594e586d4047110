package checker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/probe"
)

// Checker performs a single check run.
type Checker interface {
	Check(ctx context.Context) Result
}

// New returns a Checker for the given check configuration. Pass nil logger to
// use the default logger.
func New(chk config.Check, logger *slog.Logger) (Checker, error) {
	return NewWithClient(chk, probe.NewClient(logger))
}

// NewWithClient returns a Checker that probes with client.
func NewWithClient(chk config.Check, client *probe.Client) (Checker, error) {
	params, err := chk.Parameters()
	if err != nil {
		return nil, fmt.Errorf("check %q: %w", chk.Name, err)
	}
	return &httpChecker{
		name:   chk.Name,
		req:    chk.Request(),
		params: params,
		client: client,
	}, nil
}
