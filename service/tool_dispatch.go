package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// ToolEndPoint is a function a specialist's chat loop may call.
type ToolEndPoint struct {
	Name    string
	Def     openai.FunctionDefinition
	Handler func(ctx context.Context, args string) (string, error)
}

type ToolExecLog struct {
	ID           int
	ToolCallName string
	ToolCallArgs string
	ToolCallRes  string
	ToolCallErr  error
}

func (toolLog *ToolExecLog) formatString() string {
	var builder strings.Builder
	builder.WriteString("** Metadata **\n")
	builder.WriteString(fmt.Sprintf("TOOL_LOG_ID: %d\n", toolLog.ID))
	builder.WriteString("** Status **\n")
	if toolLog.ToolCallErr != nil {
		builder.WriteString(fmt.Sprintf("Execute tool call failed, error: %s\n", toolLog.ToolCallErr))
	} else {
		builder.WriteString("Execute tool call success\n")
		builder.WriteString("** Result **\n")
		builder.WriteString(toolLog.ToolCallRes)
	}
	return builder.String()
}

type ToolDispatcher struct {
	mu      sync.Mutex
	toolMap map[string]ToolEndPoint
	toolLog []*ToolExecLog
}

func NewToolDispatcher() *ToolDispatcher {
	return &ToolDispatcher{
		toolMap: map[string]ToolEndPoint{},
	}
}

func (td *ToolDispatcher) ResetLog() {
	td.mu.Lock()
	defer td.mu.Unlock()
	td.toolLog = nil
}

func (td *ToolDispatcher) RegisterToolEndpoint(endpoints ...ToolEndPoint) error {
	td.mu.Lock()
	defer td.mu.Unlock()
	err := []error{}
	for _, endpoint := range endpoints {
		_, exist := td.toolMap[endpoint.Name]
		if exist {
			err = append(err, fmt.Errorf("tool with name %s already exist", endpoint.Name))
		} else {
			td.toolMap[endpoint.Name] = endpoint
		}
	}
	return errors.Join(err...)
}

// Subset returns a dispatcher holding only the named tools.
func (td *ToolDispatcher) Subset(names ...string) (*ToolDispatcher, error) {
	td.mu.Lock()
	defer td.mu.Unlock()
	sub := NewToolDispatcher()
	err := []error{}
	for _, name := range names {
		endpoint, exist := td.toolMap[name]
		if !exist {
			err = append(err, fmt.Errorf("tool with name %s not found", name))
			continue
		}
		sub.toolMap[name] = endpoint
	}
	return sub, errors.Join(err...)
}

// Clone returns a dispatcher with the same tools and an empty log.
func (td *ToolDispatcher) Clone() *ToolDispatcher {
	td.mu.Lock()
	defer td.mu.Unlock()
	out := NewToolDispatcher()
	for name, endpoint := range td.toolMap {
		out.toolMap[name] = endpoint
	}
	return out
}

// ToolLog returns a copy of the calls made so far.
func (td *ToolDispatcher) ToolLog() []ToolExecLog {
	td.mu.Lock()
	defer td.mu.Unlock()
	out := make([]ToolExecLog, len(td.toolLog))
	for i, entry := range td.toolLog {
		out[i] = *entry
	}
	return out
}

func (td *ToolDispatcher) Run(ctx context.Context, toolCall openai.ToolCall) openai.ChatCompletionMessage {
	td.mu.Lock()
	endpoint, exist := td.toolMap[toolCall.Function.Name]
	td.mu.Unlock()
	res := openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		ToolCallID: toolCall.ID,
	}
	content := ""
	var err error
	if exist {
		content, err = endpoint.Handler(ctx, toolCall.Function.Arguments)
	} else {
		err = fmt.Errorf("Run tool call failed, Can not find tool with name %s", toolCall.Function.Name)
	}
	td.mu.Lock()
	entry := ToolExecLog{
		ID:           len(td.toolLog),
		ToolCallName: toolCall.Function.Name,
		ToolCallArgs: toolCall.Function.Arguments,
		ToolCallRes:  content,
		ToolCallErr:  err,
	}
	td.toolLog = append(td.toolLog, &entry)
	td.mu.Unlock()
	res.Content = entry.formatString()
	return res
}

func (td *ToolDispatcher) GetTools() []openai.Tool {
	td.mu.Lock()
	defer td.mu.Unlock()
	names := make([]string, 0, len(td.toolMap))
	for name := range td.toolMap {
		names = append(names, name)
	}
	sort.Strings(names)
	res := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		def := td.toolMap[name].Def
		res = append(res, openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: &def,
		})
	}
	return res
}

func (td *ToolDispatcher) Len() int {
	td.mu.Lock()
	defer td.mu.Unlock()
	return len(td.toolMap)
}

func (td *ToolDispatcher) DebugTools() {
	td.mu.Lock()
	defer td.mu.Unlock()
	for _, tool := range td.toolMap {
		data, _ := json.Marshal(tool.Def)
		log.Debug().Str("tool", tool.Name).RawJSON("definition", data).Msg("registered tool")
	}
}
