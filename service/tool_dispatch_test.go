package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTool(name string, handler func(ctx context.Context, args string) (string, error)) ToolEndPoint {
	return ToolEndPoint{
		Name:    name,
		Def:     openai.FunctionDefinition{Name: name, Description: name + " tool"},
		Handler: handler,
	}
}

func TestToolDispatcher(t *testing.T) {
	ctx := context.Background()
	upper := newTestTool("upper", func(ctx context.Context, args string) (string, error) {
		return strings.ToUpper(args), nil
	})
	broken := newTestTool("broken", func(ctx context.Context, args string) (string, error) {
		return "", errors.New("quote feed offline")
	})

	t.Run("register rejects duplicates", func(t *testing.T) {
		td := NewToolDispatcher()
		require.NoError(t, td.RegisterToolEndpoint(upper, broken))
		err := td.RegisterToolEndpoint(upper)
		require.ErrorContains(t, err, "tool with name upper already exist")
		assert.Equal(t, 2, td.Len())

		tools := td.GetTools()
		require.Len(t, tools, 2)
		assert.Equal(t, "broken", tools[0].Function.Name)
		assert.Equal(t, "upper", tools[1].Function.Name)
		assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	})

	t.Run("run formats results and errors", func(t *testing.T) {
		td := NewToolDispatcher()
		require.NoError(t, td.RegisterToolEndpoint(upper, broken))

		msg := td.Run(ctx, openai.ToolCall{ID: "call_1", Function: openai.FunctionCall{Name: "upper", Arguments: `{"q":"aapl"}`}})
		assert.Equal(t, openai.ChatMessageRoleTool, msg.Role)
		assert.Equal(t, "call_1", msg.ToolCallID)
		assert.Contains(t, msg.Content, "Execute tool call success")
		assert.Contains(t, msg.Content, `{"Q":"AAPL"}`)

		msg = td.Run(ctx, openai.ToolCall{ID: "call_2", Function: openai.FunctionCall{Name: "broken"}})
		assert.Contains(t, msg.Content, "quote feed offline")

		msg = td.Run(ctx, openai.ToolCall{ID: "call_3", Function: openai.FunctionCall{Name: "missing"}})
		assert.Contains(t, msg.Content, "Can not find tool with name missing")

		logs := td.ToolLog()
		require.Len(t, logs, 3)
		assert.Equal(t, 2, logs[2].ID)
		assert.Error(t, logs[1].ToolCallErr)

		td.ResetLog()
		assert.Empty(t, td.ToolLog())
	})

	t.Run("subset and clone", func(t *testing.T) {
		td := NewToolDispatcher()
		require.NoError(t, td.RegisterToolEndpoint(upper, broken))

		sub, err := td.Subset("upper", "nope")
		require.ErrorContains(t, err, "tool with name nope not found")
		assert.Equal(t, 1, sub.Len())

		clone := td.Clone()
		clone.Run(ctx, openai.ToolCall{Function: openai.FunctionCall{Name: "upper"}})
		assert.Len(t, clone.ToolLog(), 1)
		assert.Empty(t, td.ToolLog())
		assert.Equal(t, 2, clone.Len())
	})
}
