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
	"research-agent/shared"
)

type ViewDocumentArgs struct {
	File  string
	Lines [][]int
}

type SearchDocumentsArgs struct {
	Query string
	Limit int
}

// DocumentServer exposes a directory of user documents to the DocumentSearch specialist.
type DocumentServer struct {
	root string
	mcp  *server.MCPServer
}

func NewDocumentServer(root string) (*DocumentServer, error) {
	s := &DocumentServer{
		root: root,
		mcp:  server.NewMCPServer("documents", "1.0.0", server.WithToolCapabilities(true)),
	}
	var errList []error
	for _, factory := range []toolFactory{s.searchTool, s.viewTool} {
		def, handler := factory()
		tool, err := shared.ConvertToMcpTool(def)
		if err != nil {
			errList = append(errList, err)
			continue
		}
		s.mcp.AddTool(tool, handler)
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DocumentServer) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *DocumentServer) Run() error {
	return server.ServeStdio(s.mcp)
}

func (s *DocumentServer) searchTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "search_documents",
		Description: "Finds lines in the user's documents that contain every word of the query. Returns file, line number and text of each hit.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"Query": {
					Type:        jsonschema.String,
					Description: "Words that must all appear on the line, e.g. 'revenue 2023'.",
				},
				"Limit": {
					Type:        jsonschema.Integer,
					Description: "Maximum number of hits, defaults to 20.",
				},
			},
			Required: []string{"Query"},
		},
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SearchDocumentsArgs
		err := request.BindArguments(&args)
		if err != nil {
			return nil, err
		}
		hits, err := service.SearchDocuments(s.root, args.Query, args.Limit)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res, _ := json.Marshal(hits)
		return mcp.NewToolResultText(string(res)), nil
	}
	return def, handler
}

func (s *DocumentServer) viewTool() (openai.FunctionDefinition, server.ToolHandlerFunc) {
	def := openai.FunctionDefinition{
		Name:        "view_document",
		Description: "Reads specific line ranges from one of the user's documents. Multiple non-contiguous ranges can be requested at once.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"File": {
					Type:        jsonschema.String,
					Description: "Path of the document relative to the document root, as returned by search_documents.",
				},
				"Lines": {
					Type:        jsonschema.Array,
					Description: "A list of line ranges to retrieve. Each range is a pair of integers [start_line, end_line].",
					Items: &jsonschema.Definition{
						Type:        jsonschema.Array,
						Description: "A specific range defined as [start, end]. Line numbers are 1-indexed.",
						Items: &jsonschema.Definition{
							Type: jsonschema.Integer,
						},
					},
				},
			},
			Required: []string{"File", "Lines"},
		},
	}
	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ViewDocumentArgs
		err := request.BindArguments(&args)
		if err != nil {
			return nil, err
		}
		res, err := service.ViewDocument(s.root, args.File, args.Lines)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(res), nil
	}
	return def, handler
}
