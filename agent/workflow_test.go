package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-agent/config"
	"research-agent/service"
)

const testPlan = `{"task_list": [
  {"task_name": "price", "agent_name": "MarketData", "instructions": "Get AAPL quote", "required_context": []},
  {"task_name": "news", "agent_name": "WebSearch", "instructions": "Find AAPL news", "required_context": []},
  {"task_name": "answer", "agent_name": "Synthesis", "instructions": "Answer", "required_context": ["price", "news"]}
]}`

// fakeChatServer speaks the chat completions endpoint: planner prompts get
// testPlan, specialists get a line naming their task.
type fakeChatServer struct {
	mu           sync.Mutex
	plannerCalls []string
}

func (s *fakeChatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content := ""
	switch {
	case req.Messages[0].Content == plannerInstruct:
		s.mu.Lock()
		s.plannerCalls = append(s.plannerCalls, req.Messages[1].Content)
		s.mu.Unlock()
		content = testPlan
	default:
		user := req.Messages[1].Content
		first := strings.SplitN(user, "\n", 2)[0]
		content = "result of " + strings.TrimPrefix(first, "### CURRENT TASK: ")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
	})
}

func newTestWorkflow(t *testing.T) (*Workflow, *fakeChatServer) {
	t.Helper()
	fake := &fakeChatServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	model := config.ModelConfig{
		Provider:  config.ProviderOpenAI,
		Model:     "test-model",
		BaseURL:   srv.URL + "/v1",
		APIKeyEnv: "TEST_OPENAI_KEY",
	}
	cfg := &config.Config{
		Oracle: config.OracleChannelConfig{Primary: model},
		Specialists: []config.SpecialistConfig{
			{Agent: "WebSearch", Model: model},
			{Agent: "MarketData", Model: model},
			{Agent: "Synthesis", Model: model, SystemPrompt: "Write the final answer."},
		},
		Log: config.LogConfig{Level: "warn"},
	}
	require.NoError(t, cfg.Validate())
	w := NewWorkflow(cfg)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.Init(context.Background()))
	return w, fake
}

func TestWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("research end to end", func(t *testing.T) {
		w, fake := newTestWorkflow(t)
		report, err := w.Research(ctx, "How is AAPL doing?", "")
		require.NoError(t, err)
		assert.True(t, report.Success)
		assert.Equal(t, "direct_decode", report.Tier)
		assert.Equal(t, "result of answer", report.Answer)
		price, ok := report.Task("price")
		require.True(t, ok)
		assert.Equal(t, "result of price", price.Result)
		assert.Len(t, fake.plannerCalls, 1)
	})

	t.Run("interactive carries the previous answer", func(t *testing.T) {
		w, fake := newTestWorkflow(t)
		var out bytes.Buffer
		err := w.Interactive(ctx, strings.NewReader("How is AAPL doing?\n\nAnd MSFT?"), &out)
		require.NoError(t, err)
		assert.Equal(t, 2, strings.Count(out.String(), "result of answer"))
		require.Len(t, fake.plannerCalls, 2)
		assert.NotContains(t, fake.plannerCalls[0], "PREVIOUS CONTEXT")
		assert.Contains(t, fake.plannerCalls[1], "### PREVIOUS CONTEXT\nresult of answer")
	})

	t.Run("missing key disables the channel", func(t *testing.T) {
		cfg := &config.Config{
			Oracle: config.OracleChannelConfig{Primary: config.ModelConfig{
				Provider: config.ProviderOpenAI, Model: "m", APIKeyEnv: "RESEARCH_TEST_UNSET_KEY",
			}},
		}
		w := NewWorkflow(cfg)
		err := w.Init(ctx)
		require.ErrorIs(t, err, service.ErrNoOracle)
		assert.ErrorContains(t, err, "RESEARCH_TEST_UNSET_KEY")
	})

	t.Run("not initialized", func(t *testing.T) {
		_, err := NewWorkflow(&config.Config{}).Research(ctx, "q", "")
		require.Error(t, err)
	})
}
