package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/storage"
)

// NewMCPServer creates an MCP server exposing the lead operations as tools and
// the pipeline state as resources. It shares Deps with the HTTP router.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"sdr",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sdr: lead qualification, scoring and outreach drafting."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("qualify_lead",
			mcp.WithDescription("Assess a lead's fit, store the 0-10 score and move it to the recommended pipeline stage."),
			mcp.WithNumber("lead_id", mcp.Description("Lead id"), mcp.Required()),
		),
		mcpQualifyLead(deps),
	)

	s.AddTool(
		mcp.NewTool("score_lead",
			mcp.WithDescription("Score a lead against the active scoring criteria and store the total."),
			mcp.WithNumber("lead_id", mcp.Description("Lead id"), mcp.Required()),
			mcp.WithArray("criteria_ids", mcp.Description("Restrict scoring to these criterion ids")),
		),
		mcpScoreLead(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_message",
			mcp.WithDescription("Draft a personalized outreach message for a lead and save it."),
			mcp.WithNumber("lead_id", mcp.Description("Lead id"), mcp.Required()),
			mcp.WithString("message_type", mcp.Description("e.g. email, linkedin, follow_up"), mcp.Required()),
			mcp.WithString("custom_instructions", mcp.Description("Extra guidance for the draft")),
		),
		mcpGenerateMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Search leads, interactions and messages by keyword."),
			mcp.WithString("query", mcp.Description("Search text"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("run_evaluations",
			mcp.WithDescription("Run the built-in prompt evaluation cases and record the results."),
		),
		mcpRunEvaluations(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sdr://pipeline",
			"Pipeline",
			mcp.WithResourceDescription("Lead count per pipeline stage"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePipeline(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sdr://criteria",
			"Scoring Criteria",
			mcp.WithResourceDescription("Active scoring criteria"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCriteria(deps),
	)

	return s
}

func mcpLeadID(req mcp.CallToolRequest) (int64, bool) {
	id := req.GetInt("lead_id", 0)
	if id <= 0 {
		return 0, false
	}
	return int64(id), true
}

// mcpFailure turns a service error into a tool error without leaking
// internal details.
func mcpFailure(what string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return mcpError(what + " not found")
	case errors.Is(err, scoring.ErrNoActiveCriteria):
		return mcpError(scoring.ErrNoActiveCriteria.Error())
	case errors.Is(err, completion.ErrCompletionFailed):
		return mcpError("completion service error")
	default:
		return mcpError(fmt.Sprintf("%s failed: %v", what, err))
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpQualifyLead(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := mcpLeadID(req)
		if !ok {
			return mcpError("lead_id is required"), nil
		}
		q, err := deps.Scoring.Qualify(ctx, id)
		if err != nil {
			return mcpFailure("lead", err), nil
		}
		return mcpJSON(q), nil
	}
}

func mcpScoreLead(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := mcpLeadID(req)
		if !ok {
			return mcpError("lead_id is required"), nil
		}

		var ids []int64
		if raw, ok := req.GetArguments()["criteria_ids"].([]any); ok {
			for _, v := range raw {
				n, ok := v.(float64)
				if !ok || n <= 0 || n != float64(int64(n)) {
					return mcpError("criteria_ids must be positive integers"), nil
				}
				ids = append(ids, int64(n))
			}
		}

		res, err := deps.Scoring.Score(ctx, id, ids)
		if err != nil {
			return mcpFailure("lead", err), nil
		}
		return mcpJSON(res), nil
	}
}

func mcpGenerateMessage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := mcpLeadID(req)
		if !ok {
			return mcpError("lead_id is required"), nil
		}
		messageType, err := req.RequireString("message_type")
		if err != nil || messageType == "" {
			return mcpError("message_type is required"), nil
		}

		msg, err := deps.Outreach.Generate(ctx, id, messageType, req.GetString("custom_instructions", ""))
		if err != nil {
			return mcpFailure("lead", err), nil
		}
		return mcpText(msg.Content), nil
	}
}

func mcpSearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		results, err := deps.Search.Search(ctx, query, req.GetInt("limit", 0))
		if err != nil {
			return mcpFailure("search", err), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(results), nil
	}
}

func mcpRunEvaluations(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		results, err := deps.Evals.RunDefaults(ctx)
		if err != nil {
			return mcpFailure("evaluation run", err), nil
		}

		passed := 0
		for _, r := range results {
			if r.Passed {
				passed++
			}
		}
		return mcpText(fmt.Sprintf("Ran %d evaluation cases, %d passed", len(results), passed)), nil
	}
}

func mcpResourcePipeline(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Store.PipelineStats()
		if err != nil {
			return nil, fmt.Errorf("failed to get pipeline stats: %w", err)
		}
		return jsonResource(req.Params.URI, stats)
	}
}

func mcpResourceCriteria(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		criteria, err := deps.Store.ActiveCriteria(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get criteria: %w", err)
		}
		if criteria == nil {
			criteria = []storage.ScoringCriterion{}
		}
		return jsonResource(req.Params.URI, criteria)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
