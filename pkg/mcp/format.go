package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

// formatLedger renders the budget ledger position.
func formatLedger(status models.LedgerStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Committed: $%.4f\n", status.RunningTotal)
	fmt.Fprintf(&b, "Reserved:  $%.4f\n", status.Reserved)
	fmt.Fprintf(&b, "Limit:     $%.4f\n", status.Limit)
	fmt.Fprintf(&b, "Savings:   $%.4f\n", status.TotalSavings)
	if status.Limit > 0 {
		fmt.Fprintf(&b, "Utilization: %.1f%%\n", status.RunningTotal/status.Limit*100)
	}
	return b.String()
}

// formatMetrics renders a caller metrics snapshot.
func formatMetrics(m models.CallerMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Caller: %s\n", m.CallerID)
	fmt.Fprintf(&b, "Tasks: %d total, %d ok, %d failed\n", m.TotalTasks, m.SuccessfulTasks, m.FailedTasks)
	fmt.Fprintf(&b, "Total cost:    $%.4f\n", m.TotalCost)
	fmt.Fprintf(&b, "Total savings: $%.4f\n", m.TotalSavings)
	fmt.Fprintf(&b, "Reliability:   %.3f\n", m.ReliabilityScore)
	fmt.Fprintf(&b, "Efficiency:    %.3f\n", m.EfficiencyScore)
	fmt.Fprintf(&b, "Avg response:  %.3fs\n", m.AverageResponseTime)
	if !m.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "Last update:   %s\n", m.LastUpdate.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatCacheStats renders cache counters with a derived hit rate.
func formatCacheStats(stats models.CacheStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entries:   %d\n", stats.Entries)
	fmt.Fprintf(&b, "Hits:      %d\n", stats.Hits)
	fmt.Fprintf(&b, "Misses:    %d\n", stats.Misses)
	fmt.Fprintf(&b, "Evictions: %d\n", stats.Evictions)
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		fmt.Fprintf(&b, "Hit rate:  %.1f%%\n", float64(stats.Hits)/float64(lookups)*100)
	}
	return b.String()
}

// formatReport renders the engine-wide cost report.
func formatReport(r models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total cost:    $%.4f\n", r.TotalCost)
	fmt.Fprintf(&b, "Total savings: $%.4f\n", r.TotalSavings)
	fmt.Fprintf(&b, "ROI:           %.1f%%\n", r.ROI)
	fmt.Fprintf(&b, "Cache hit rate: %.1f%%\n", r.CacheHitRatio*100)
	fmt.Fprintf(&b, "Budget used:    %.1f%%\n", r.BudgetUtilization)
	fmt.Fprintf(&b, "Prediction accuracy: %.1f%%\n", r.PredictionAccuracy)
	if len(r.FeatureImportance) > 0 {
		b.WriteString("Feature importance:\n")
		names := make([]string, 0, len(r.FeatureImportance))
		for name := range r.FeatureImportance {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %-12s %.3f\n", name, r.FeatureImportance[name])
		}
	}
	return b.String()
}

// formatAnalytics renders caller population analytics.
func formatAnalytics(a models.Analytics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Callers: %d total, %d active (%.1f%%)\n",
		a.TotalCallers, a.ActiveCallers, a.ActivityRate*100)
	if len(a.TierDistribution) > 0 {
		b.WriteString("Tiers:\n")
		tiers := make([]string, 0, len(a.TierDistribution))
		for tier := range a.TierDistribution {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		for _, tier := range tiers {
			fmt.Fprintf(&b, "  %-12s %d\n", tier, a.TierDistribution[tier])
		}
	}
	fmt.Fprintf(&b, "Revenue:        $%.4f\n", a.TotalRevenue)
	fmt.Fprintf(&b, "Savings:        $%.4f\n", a.TotalSavings)
	fmt.Fprintf(&b, "Revenue/caller: $%.4f\n", a.AvgRevenuePerCaller)
	fmt.Fprintf(&b, "Avg reliability: %.3f\n", a.AvgReliability)
	fmt.Fprintf(&b, "Avg efficiency:  %.3f\n", a.AvgEfficiency)
	fmt.Fprintf(&b, "Avg response:    %.3fs\n", a.AvgResponseTime)
	return b.String()
}

// formatSummary renders per-caller, per-request-type admission outcomes.
func formatSummary(rows []models.HistorySummary) string {
	if len(rows) == 0 {
		return "No admission records found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-18s %8s %8s %10s %8s %8s %10s\n",
		"Caller", "Request Type", "Requests", "Admitted", "Cache Hits", "Rejected", "Failed", "Cost")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-18s %8d %8d %10d %8d %8d %10.4f\n",
			r.CallerID, r.RequestType, r.Requests,
			r.Admitted, r.CacheHits, r.Rejected, r.Failed, r.TotalCost)
	}
	return b.String()
}

// formatHistory renders admission records as a text table.
func formatHistory(records []models.AdmissionRecord) string {
	if len(records) == 0 {
		return "No admission records found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %-18s %-10s %10s %10s %8s\n",
		"Time", "Caller", "Request Type", "Decision", "Predicted", "Actual", "Latency")
	b.WriteString(strings.Repeat("-", 94) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-20s %-12s %-18s %-10s %10.4f %10.4f %6dms\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.CallerID, r.RequestType, r.Decision,
			r.PredictedCost, r.ActualCost, r.LatencyMs)
	}
	return b.String()
}
