package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/checkhttp/internal/storage"
)

type statusStore interface {
	AllLatest(ctx context.Context) ([]storage.Run, error)
}

func executeStatus(cmd *cobra.Command, db statusStore) error {
	out := cmd.OutOrStdout()
	runs, err := db.AllLatest(context.Background())
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No check history. Run 'checkhttp serve' first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATE\tRESPONSE\tLAST CHECKED\tSUMMARY")
	for _, r := range runs {
		resp := "-"
		if r.ResponseMs > 0 {
			resp = (time.Duration(r.ResponseMs) * time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.CheckName,
			r.State,
			resp,
			r.CheckedAt.Local().Format("2006-01-02 15:04:05"),
			r.Summary,
		)
	}
	w.Flush()
	return nil
}
