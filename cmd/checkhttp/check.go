package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/report"
)

func executeCheck(cmd *cobra.Command, cfg *config.Config) error {
	return runChecks(cmd.Context(), cmd.OutOrStdout(), cfg, slog.Default())
}

func runChecks(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	results := make([]checker.Result, len(cfg.Checks))
	var wg sync.WaitGroup

	for i, chk := range cfg.Checks {
		wg.Add(1)
		go func(i int, chk config.Check) {
			defer wg.Done()
			c, err := checker.New(chk, logger)
			if err != nil {
				results[i] = checker.Result{
					CheckName: chk.Name,
					State:     checking.Unknown,
					Report: report.Report{
						State:   checking.Unknown,
						Summary: []string{fmt.Sprintf("creating checker: %v", err)},
					},
					CheckedAt: time.Now(),
				}
				return
			}
			results[i] = c.Check(ctx)
		}(i, chk)
	}
	wg.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATE\tRESPONSE\tSUMMARY")
	failed := 0
	for _, r := range results {
		resp := "-"
		if r.ResponseTime > 0 {
			resp = r.ResponseTime.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.CheckName,
			r.State,
			resp,
			strings.Join(r.Report.Summary, ", "),
		)
		if r.State != checking.Ok {
			failed++
		}
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d checks not OK", failed, len(results))
	}
	return nil
}
