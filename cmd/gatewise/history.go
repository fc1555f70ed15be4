package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gatewise-ai/gatewise/pkg/history"
	"github.com/gatewise-ai/gatewise/pkg/models"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		callerID   string
		decision   string
		limit      int
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the admission decision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			store, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := context.Background()

			if summary {
				rows, err := store.Summary(ctx, callerID)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Println("No admission records found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CALLER\tREQUEST TYPE\tREQUESTS\tADMITTED\tCACHE HITS\tREJECTED\tFAILED\tCOST")
				for _, h := range rows {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\n",
						h.CallerID, h.RequestType, h.Requests,
						h.Admitted, h.CacheHits, h.Rejected, h.Failed, h.TotalCost)
				}
				return w.Flush()
			}

			records, err := store.Query(ctx, models.HistoryQueryOpts{
				CallerID: callerID,
				Decision: models.Decision(decision),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No admission records found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCALLER\tREQUEST TYPE\tDECISION\tPREDICTED\tACTUAL\tLATENCY")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%.4f\t$%.4f\t%dms\n",
					r.CreatedAt.Format("2006-01-02T15:04:05"),
					r.CallerID, r.RequestType, r.Decision,
					r.PredictedCost, r.ActualCost, r.LatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&callerID, "caller", "", "filter by caller ID")
	cmd.Flags().StringVar(&decision, "decision", "", "filter by decision (admitted, cache_hit, rejected, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show aggregated outcomes per caller and request type")
	return cmd
}
