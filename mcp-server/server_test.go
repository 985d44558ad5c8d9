package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-agent/service"
)

const plan = `{"task_list": [
  {"task_name": "price", "agent_name": "MarketData", "instructions": "Get AAPL quote"},
  {"task_name": "answer", "agent_name": "Synthesis", "instructions": "Answer", "required_context": ["price"]}
]}`

func newTestClient(t *testing.T, channel service.OracleChannel, synthesis service.SpecialistFunc) *client.Client {
	t.Helper()
	ctx := context.Background()
	sd := service.NewSpecialistDispatcher()
	require.NoError(t, sd.RegisterSpecialist(
		service.SpecialistEndPoint{Agent: "MarketData", Specialist: service.SpecialistFunc(func(ctx context.Context, req service.SpecialistRequest) (string, error) {
			return "AAPL 190.12 USD", nil
		})},
		service.SpecialistEndPoint{Agent: "Synthesis", Specialist: synthesis},
	))
	compiler, err := service.NewCompiler(channel, sd)
	require.NoError(t, err)
	s, err := NewServer(compiler)
	require.NoError(t, err)

	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Initialize(ctx, mcp.InitializeRequest{Params: mcp.InitializeParams{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		ClientInfo:      mcp.Implementation{Name: "test", Version: "1.0.0"},
	}})
	require.NoError(t, err)
	return c
}

func callTool(t *testing.T, c *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := c.CallTool(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func answerSynthesis(ctx context.Context, req service.SpecialistRequest) (string, error) {
	return "AAPL closed at 190.12 USD.", nil
}

type staticOracle struct {
	proposal any
	err      error
}

func (o staticOracle) Name() string { return "static" }

func (o staticOracle) Propose(ctx context.Context, query string, priorContext string) (any, error) {
	return o.proposal, o.err
}

func (o staticOracle) Reprompt(ctx context.Context, previousRawOutput string, schemaHint string) (any, error) {
	return nil, o.err
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	t.Run("lists the research tools", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{}, answerSynthesis)
		res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		require.NoError(t, err)
		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"compile_plan", "compile_and_run", "research"}, names)
	})

	t.Run("compile_plan returns the graph", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{}, answerSynthesis)
		text, isErr := callTool(t, c, "compile_plan", map[string]any{"proposal": "```json\n" + plan + "\n```"})
		require.False(t, isErr, text)
		var res compileResult
		require.NoError(t, json.Unmarshal([]byte(text), &res))
		assert.Equal(t, "fenced_block", res.Tier)
		require.Len(t, res.Tasks, 2)
		assert.Equal(t, []string{"price"}, res.Tasks[1].RequiredContext)
	})

	t.Run("compile_and_run returns the report", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{}, answerSynthesis)
		text, isErr := callTool(t, c, "compile_and_run", map[string]any{"proposal": plan})
		require.False(t, isErr, text)
		var report service.ExecutionReport
		require.NoError(t, json.Unmarshal([]byte(text), &report))
		assert.True(t, report.Success)
		assert.Equal(t, "AAPL closed at 190.12 USD.", report.Answer)
		assert.Equal(t, "direct_decode", report.Tier)
	})

	t.Run("empty proposal is a tool error", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{}, answerSynthesis)
		text, isErr := callTool(t, c, "compile_and_run", map[string]any{"proposal": ""})
		assert.True(t, isErr)
		assert.Contains(t, text, "no recovery tier produced a task list")
	})

	t.Run("synthesis failure still returns the report", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{}, func(ctx context.Context, req service.SpecialistRequest) (string, error) {
			return "", errors.New("model overloaded")
		})
		text, isErr := callTool(t, c, "compile_and_run", map[string]any{"proposal": plan})
		assert.True(t, isErr)
		assert.Contains(t, text, "synthesis task failed")
		assert.Contains(t, text, `"success":false`)
	})

	t.Run("research plans with the oracle", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{Primary: staticOracle{proposal: plan}}, answerSynthesis)
		text, isErr := callTool(t, c, "research", map[string]any{"query": "How is AAPL doing?"})
		require.False(t, isErr, text)
		assert.Contains(t, text, "AAPL closed at 190.12 USD.")

		text, isErr = callTool(t, c, "research", map[string]any{"query": ""})
		assert.True(t, isErr)
		assert.Equal(t, "query is required", text)
	})

	t.Run("research without an oracle", func(t *testing.T) {
		c := newTestClient(t, service.OracleChannel{}, answerSynthesis)
		text, isErr := callTool(t, c, "research", map[string]any{"query": "How is AAPL doing?"})
		assert.True(t, isErr)
		assert.Contains(t, text, "no channel configured")
	})
}
