package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"research-agent/service"
)

type CompileArgs struct {
	Proposal string `json:"proposal"`
}

type ResearchArgs struct {
	Query        string `json:"query"`
	PriorContext string `json:"prior_context"`
}

type compileResult struct {
	Tier  string         `json:"tier"`
	Tasks []service.Task `json:"tasks"`
}

var proposalSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"proposal": {
			Type:        jsonschema.String,
			Description: "The raw task proposal: JSON, fenced JSON, or a numbered list of tasks.",
		},
	},
	Required: []string{"proposal"},
}

func (s *Server) compileTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "compile_plan",
		Description: "Repairs and validates a research task proposal and returns the executable task graph without running it.",
		Parameters:  proposalSchema,
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CompileArgs
		err := request.BindArguments(&args)
		if err != nil {
			return nil, err
		}
		graph, tier, err := s.compiler.Compile(ctx, args.Proposal)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, _ := json.Marshal(compileResult{Tier: tier, Tasks: graph.Tasks()})
		return mcp.NewToolResultText(string(res)), nil
	}
	return def, handler
}

func (s *Server) compileAndRunTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "compile_and_run",
		Description: "Repairs and validates a research task proposal, runs every task with its specialist and returns the execution report.",
		Parameters:  proposalSchema,
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CompileArgs
		err := request.BindArguments(&args)
		if err != nil {
			return nil, err
		}
		report, err := s.compiler.CompileAndRun(ctx, args.Proposal)
		return reportResult(report, err), nil
	}
	return def, handler
}

func (s *Server) researchTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "research",
		Description: "Plans a financial research query with the reasoning model, runs the plan and returns the execution report with the final answer.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"query": {
					Type:        jsonschema.String,
					Description: "The user's research question.",
				},
				"prior_context": {
					Type:        jsonschema.String,
					Description: "Summary of earlier answers in the conversation, can be empty.",
				},
			},
			Required: []string{"query"},
		},
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ResearchArgs
		err := request.BindArguments(&args)
		if err != nil {
			return nil, err
		}
		if args.Query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		report, err := s.compiler.Research(ctx, args.Query, args.PriorContext)
		return reportResult(report, err), nil
	}
	return def, handler
}

// reportResult returns the report as JSON. A synthesis failure still carries
// the report so the caller can see which tasks failed.
func reportResult(report *service.ExecutionReport, err error) *mcp.CallToolResult {
	if err != nil && (report == nil || !errors.Is(err, service.ErrSynthesisFailure)) {
		return mcp.NewToolResultError(err.Error())
	}
	data, mErr := json.Marshal(report)
	if mErr != nil {
		return mcp.NewToolResultError(mErr.Error())
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error() + "\n" + string(data))
	}
	return mcp.NewToolResultText(string(data))
}
