package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gatewise-ai/gatewise/pkg/admission"
	"github.com/gatewise-ai/gatewise/pkg/history"
	"github.com/gatewise-ai/gatewise/pkg/models"
)

// demoExecutor stands in for a metered backend: it sleeps briefly and
// reports a metered cost proportional to the input size.
type demoExecutor struct{}

func (demoExecutor) Execute(ctx context.Context, requestType string, input map[string]any) (models.Result, error) {
	delay := time.Duration(5+rand.Intn(20)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return models.Result{}, ctx.Err()
	}

	metered := float64(len(fmt.Sprint(input))) * 0.0005
	return models.Result{
		Status:      "success",
		Payload:     map[string]any{"processed": requestType},
		MeteredCost: &metered,
	}, nil
}

func newSimulateCmd() *cobra.Command {
	var (
		configPath  string
		requests    int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a demo workload through the admission engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			store, err := history.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init history: %w", err)
			}
			defer func() { _ = store.Close() }()

			ctrl, err := admission.FromConfig(cfg, demoExecutor{}, admission.WithRecorder(store))
			if err != nil {
				return err
			}

			callerIDs := make([]string, 0, len(cfg.Callers))
			for _, p := range ctrl.Registry().List() {
				callerIDs = append(callerIDs, p.ID)
			}
			if len(callerIDs) == 0 {
				for _, tier := range []string{"basic", "premium", "enterprise"} {
					id := ctrl.Registry().Register("demo-"+tier,
						[]string{"text_generation", "embedding", "classification"}, tier)
					callerIDs = append(callerIDs, id)
				}
			}

			requestTypes := []string{"text_generation", "embedding", "classification"}

			ctx := cmd.Context()
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)

			var admitted, rejected, failed int
			results := make(chan error, requests)
			for i := 0; i < requests; i++ {
				caller := callerIDs[i%len(callerIDs)]
				reqType := requestTypes[i%len(requestTypes)]
				input := map[string]any{
					"content":  fmt.Sprintf("sample content %d", i%7),
					"priority": float64(1 + i%3),
				}
				g.Go(func() error {
					_, _, err := ctrl.Process(gctx, caller, reqType, input)
					results <- err
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			close(results)
			for err := range results {
				switch {
				case err == nil:
					admitted++
				case errors.Is(err, admission.ErrBudgetExceeded):
					rejected++
				default:
					failed++
				}
			}

			fmt.Printf("Processed %d requests: %d admitted, %d rejected, %d failed\n\n",
				requests, admitted, rejected, failed)

			printLedger(ctrl.LedgerStatus())
			printCallerMetrics(ctrl, callerIDs)
			printReport(ctrl.Report())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().IntVar(&requests, "requests", 50, "number of requests to simulate")
	cmd.Flags().IntVar(&concurrency, "concurrency", 8, "concurrent in-flight requests")
	return cmd
}

func printLedger(status models.LedgerStatus) {
	fmt.Printf("Budget: $%.4f committed of $%.2f limit, $%.4f saved by caching\n\n",
		status.RunningTotal, status.Limit, status.TotalSavings)
}

func printCallerMetrics(ctrl *admission.Controller, callerIDs []string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CALLER\tTASKS\tOK\tFAILED\tCOST\tSAVINGS\tRELIABILITY\tEFFICIENCY\tAVG RESPONSE")
	for _, id := range callerIDs {
		m, err := ctrl.Metrics(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.4f\t$%.4f\t%.3f\t%.3f\t%.3fs\n",
			m.CallerID, m.TotalTasks, m.SuccessfulTasks, m.FailedTasks,
			m.TotalCost, m.TotalSavings, m.ReliabilityScore, m.EfficiencyScore, m.AverageResponseTime)
	}
	_ = w.Flush()
	fmt.Println()
}

func printReport(r models.Report) {
	fmt.Printf("Cache hit rate: %.1f%%  Budget used: %.1f%%  ROI: %.1f%%  Prediction accuracy: %.1f%%\n",
		r.CacheHitRatio*100, r.BudgetUtilization, r.ROI, r.PredictionAccuracy)
}
