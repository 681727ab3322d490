package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"iconload/internal/config"
	"iconload/pkg/domain"
	"iconload/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func writeRuns(w io.Writer, runs []domain.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tUSERS\tREQUESTS\tFAILURES\tRPS\tTARGET")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d (%.2f%%)\t%.2f\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Second),
			r.Users,
			r.Requests,
			r.Failures, 100*r.FailureRatio(),
			r.RPS,
			r.Target)
	}

	return tw.Flush()
}

func writeRun(w io.Writer, r *domain.Run) error {
	if err := writeRuns(w, []domain.Run{*r}); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tREQUESTS\tFAILURES\tMIN\tMEDIAN\tP90\tP95\tP99\tMAX\tRPS")
	for _, e := range r.Entries {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
			e.Name, e.Requests, e.Failures, e.Min, e.Median, e.P90, e.P95, e.P99, e.Max, e.RPS)
	}

	return tw.Flush()
}

func historyCommand(cfg *config.Config) *cobra.Command {
	var (
		limit  uint
		before string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Lists stored runs, or shows one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			strg, closeStrg := getPostgres(ctx, cfg)
			defer closeStrg()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := strg.RunByID(ctx, domain.RunID(args[0]))
				if err != nil {
					logger.Fatal(ctx, "could not fetch run", zap.Error(err))
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}

				return writeRun(out, run)
			}

			var cursor time.Time
			if before != "" {
				var err error
				if cursor, err = time.Parse(time.RFC3339Nano, before); err != nil {
					return fmt.Errorf("could not parse --before: %w", err)
				}
			}

			page, err := strg.Runs(ctx, cursor, limit)
			if err != nil {
				logger.Fatal(ctx, "could not list runs", zap.Error(err))
			}
			if err := writeRuns(out, page.Runs); err != nil {
				return err
			}
			if page.NextCursor != nil {
				_, _ = fmt.Fprintf(out, "\nmore: --before %s\n", page.NextCursor.Format(time.RFC3339Nano))
			}

			return nil
		},
	}

	cmd.Flags().UintVar(&limit, "limit", 20, "number of runs per page")
	cmd.Flags().StringVar(&before, "before", "", "list runs started before this RFC 3339 time")

	return cmd
}
