package mcpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"research-agent/service"
	"research-agent/shared"
)

type toolFactory func() (openai.FunctionDefinition, server.ToolHandlerFunc)

// Server exposes the compiler as MCP tools.
type Server struct {
	compiler *service.Compiler
	mcp      *server.MCPServer
}

func NewServer(compiler *service.Compiler) (*Server, error) {
	s := &Server{
		compiler: compiler,
		mcp:      server.NewMCPServer("research-agent", "1.0.0", server.WithToolCapabilities(true)),
	}
	var errList []error
	for _, factory := range []toolFactory{s.compileTool, s.compileAndRunTool, s.researchTool} {
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

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Run serves over stdio until stdin closes.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcp)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcp, server.WithStaticBasePath("/mcp"))
	mux := http.NewServeMux()
	mux.Handle("/mcp/", sseServer)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("shutdown sse server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("MCP research server running at /mcp/sse")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
