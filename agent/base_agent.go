package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"research-agent/service"
)

// DefaultMaxTurns bounds the chat and tool-call rounds of one BaseAgent run.
const DefaultMaxTurns = 8

var ErrMaxTurns = errors.New("agent: tool loop did not finish")

type OutputFunc func(msg openai.ChatCompletionMessage) bool

// ChatClient is the part of *openai.Client the agents use.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type BaseAgent struct {
	actionStack  []openai.ChatCompletionMessage
	input        []openai.ChatCompletionMessage
	toolDispatch *service.ToolDispatcher

	temperature float32
	jsonMode    bool
	maxTurns    int
	writer      *bufio.Writer
}

func NewBaseAgent(instruct string, userInput string, tools *service.ToolDispatcher) *BaseAgent {
	input := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: instruct},
		{Role: openai.ChatMessageRoleUser, Content: userInput},
	}
	if tools == nil {
		tools = service.NewToolDispatcher()
	}
	return &BaseAgent{
		input:        input,
		toolDispatch: tools,
		maxTurns:     DefaultMaxTurns,
	}
}

func (a *BaseAgent) WithTemperature(t float32) *BaseAgent {
	a.temperature = t
	return a
}

// WithJSONMode asks the model for a JSON object response.
func (a *BaseAgent) WithJSONMode(on bool) *BaseAgent {
	a.jsonMode = on
	return a
}

func (a *BaseAgent) WithMaxTurns(n int) *BaseAgent {
	if n > 0 {
		a.maxTurns = n
	}
	return a
}

// WithTranscript writes every message and tool call of the run to w.
func (a *BaseAgent) WithTranscript(w io.Writer) *BaseAgent {
	if w != nil {
		a.writer = bufio.NewWriter(w)
	}
	return a
}

func (a *BaseAgent) chat(ctx context.Context, client ChatClient, model string) (*openai.ChatCompletionChoice, error) {
	msgs := []openai.ChatCompletionMessage{}
	msgs = append(msgs, a.input...)
	msgs = append(msgs, a.actionStack...)
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: a.temperature,
	}
	if a.toolDispatch.Len() > 0 {
		req.Tools = a.toolDispatch.GetTools()
	}
	if a.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	response, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices", model)
	}
	return &response.Choices[0], nil
}

func (a *BaseAgent) handleToolCall(ctx context.Context, toolCalls []openai.ToolCall) {
	for _, call := range toolCalls {
		res := a.toolDispatch.Run(ctx, call)
		a.actionStack = append(a.actionStack, res)
		a.write("<TOOL CALL>\n")
		a.write(fmt.Sprintf("tool name: %s\ntool args: %s\n", call.Function.Name, call.Function.Arguments))
		a.write(fmt.Sprintf("result:\n%s", res.Content))
		a.write("</TOOL CALL>\n")
	}
}

func (a *BaseAgent) write(s string) {
	if a.writer != nil {
		a.writer.WriteString(s)
	}
}

// Run drives the chat and tool-call loop until the model stops calling
// tools, outputFunc reports completion, or the turn budget runs out.
// It returns the content of the last assistant message.
func (a *BaseAgent) Run(ctx context.Context, client ChatClient, model string, outputFunc OutputFunc) (string, error) {
	if a.writer != nil {
		defer a.writer.Flush()
	}
	a.write(fmt.Sprintf("SYSTEM PROMPT: %s\n", a.input[0].Content))
	a.write(fmt.Sprintf("User Input: %s\n\n", a.input[1].Content))

	a.actionStack = nil
	for turn := 0; turn < a.maxTurns; turn++ {
		resp, err := a.chat(ctx, client, model)
		if err != nil {
			log.Error().Err(err).Str("model", model).Msg("chat failed")
			return "", err
		}
		a.actionStack = append(a.actionStack, resp.Message)
		a.write("<MSG>\n")
		a.write(fmt.Sprintf("Role: %s\n", resp.Message.Role))
		a.write(fmt.Sprintf("content:\n%s\n", resp.Message.Content))
		a.write("</MSG>\n")

		a.handleToolCall(ctx, resp.Message.ToolCalls)

		if outputFunc != nil && outputFunc(resp.Message) {
			return resp.Message.Content, nil
		}
		if len(resp.Message.ToolCalls) == 0 || resp.FinishReason == openai.FinishReasonStop {
			return resp.Message.Content, nil
		}
	}
	return "", fmt.Errorf("%w after %d turns", ErrMaxTurns, a.maxTurns)
}
