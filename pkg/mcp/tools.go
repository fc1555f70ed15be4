package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

// Tool argument structs.

type callerArgs struct {
	CallerID string `json:"caller_id"`
}

type historyArgs struct {
	CallerID string `json:"caller_id"`
	Decision string `json:"decision"`
	Limit    int    `json:"limit"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"gatewise_ledger":      handleLedger,
	"gatewise_metrics":     handleMetrics,
	"gatewise_cache_stats": handleCacheStats,
	"gatewise_report":      handleReport,
	"gatewise_analytics":   handleAnalytics,
	"gatewise_history":     handleHistory,
	"gatewise_summary":     handleSummary,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "gatewise_ledger",
		Description: "Show the budget ledger position: committed spend, in-flight reservations, limit, and cumulative cache savings.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "gatewise_metrics",
		Description: "Show a caller's rolling performance metrics: reliability, efficiency, response time, and task counters.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"caller_id"},
			"properties": map[string]any{
				"caller_id": map[string]any{
					"type":        "string",
					"description": "The caller ID to inspect",
				},
			},
		},
	},
	{
		Name:        "gatewise_cache_stats",
		Description: "Show result cache statistics (entries, hits, misses, evictions, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "gatewise_report",
		Description: "Show the engine-wide cost report: total spend, savings, ROI, budget utilization, prediction accuracy, and feature importance.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "gatewise_analytics",
		Description: "Show caller population analytics: total and active callers, tier distribution, revenue, and averaged performance scores.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "gatewise_history",
		Description: "Search the persisted admission decision log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"caller_id": map[string]any{
					"type":        "string",
					"description": "Filter by caller ID (optional)",
				},
				"decision": map[string]any{
					"type":        "string",
					"description": "Filter by decision: admitted, cache_hit, rejected, failed (optional)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum rows to return (optional, default 50)",
				},
			},
		},
	},
	{
		Name:        "gatewise_summary",
		Description: "Show admission outcomes aggregated per caller and request type from the decision log.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"caller_id": map[string]any{
					"type":        "string",
					"description": "Filter by caller ID (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(err error) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

func handleLedger(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatLedger(s.engine.LedgerStatus()))
}

func handleMetrics(_ context.Context, s *Server, args json.RawMessage) ToolCallResult {
	var a callerArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err))
		}
	}
	if a.CallerID == "" {
		return errorResult(fmt.Errorf("caller_id is required"))
	}

	m, err := s.engine.Metrics(a.CallerID)
	if err != nil {
		return errorResult(err)
	}
	return textResult(formatMetrics(m))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.engine.CacheStats()))
}

func handleReport(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatReport(s.engine.Report()))
}

func handleAnalytics(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatAnalytics(s.engine.Analytics()))
}

func handleSummary(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	if s.history == nil {
		return errorResult(fmt.Errorf("no admission log configured"))
	}

	var a callerArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err))
		}
	}

	rows, err := s.history.Summary(ctx, a.CallerID)
	if err != nil {
		return errorResult(err)
	}
	return textResult(formatSummary(rows))
}

func handleHistory(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	if s.history == nil {
		return errorResult(fmt.Errorf("no admission log configured"))
	}

	var a historyArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err))
		}
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 50
	}

	records, err := s.history.Query(ctx, models.HistoryQueryOpts{
		CallerID: a.CallerID,
		Decision: models.Decision(a.Decision),
		Limit:    limit,
	})
	if err != nil {
		return errorResult(err)
	}
	return textResult(formatHistory(records))
}
