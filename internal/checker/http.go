package checker

import (
	"context"
	"time"

	"github.com/hazz-dev/checkhttp/internal/checks"
	"github.com/hazz-dev/checkhttp/internal/probe"
	"github.com/hazz-dev/checkhttp/internal/report"
)

type httpChecker struct {
	name   string
	req    probe.Request
	params checks.Parameters
	client *probe.Client
}

func (c *httpChecker) Check(ctx context.Context) Result {
	start := time.Now()
	resp, err := c.client.Do(ctx, c.req)

	elapsed := time.Since(start)
	if resp != nil {
		elapsed = resp.Elapsed
	}

	rep := report.Build(checks.Collect(resp, err, c.params))
	return Result{
		CheckName:    c.name,
		State:        rep.State,
		Report:       rep,
		ResponseTime: elapsed,
		CheckedAt:    start,
	}
}
