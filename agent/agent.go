package agent

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"research-agent/service"
)

// ChatSpecialist runs one task through an OpenAI-compatible model with an
// optional set of tools.
type ChatSpecialist struct {
	client      ChatClient
	model       string
	instruct    string
	tools       *service.ToolDispatcher
	temperature float32
	maxTurns    int
	transcript  io.Writer
}

func NewChatSpecialist(client ChatClient, model string, instruct string, tools *service.ToolDispatcher) *ChatSpecialist {
	if strings.TrimSpace(instruct) == "" {
		instruct = defaultSpecialistInstruct
	}
	return &ChatSpecialist{
		client:   client,
		model:    model,
		instruct: instruct,
		tools:    tools,
		maxTurns: DefaultMaxTurns,
	}
}

func (s *ChatSpecialist) WithTemperature(t float32) *ChatSpecialist {
	s.temperature = t
	return s
}

func (s *ChatSpecialist) WithMaxTurns(n int) *ChatSpecialist {
	if n > 0 {
		s.maxTurns = n
	}
	return s
}

func (s *ChatSpecialist) WithTranscript(w io.Writer) *ChatSpecialist {
	s.transcript = w
	return s
}

func (s *ChatSpecialist) Run(ctx context.Context, req service.SpecialistRequest) (string, error) {
	// each run gets its own tool log
	var tools *service.ToolDispatcher
	if s.tools != nil {
		tools = s.tools.Clone()
	}
	agent := NewBaseAgent(s.instruct, specialistInput(req), tools).
		WithTemperature(s.temperature).
		WithMaxTurns(s.maxTurns).
		WithTranscript(s.transcript)

	log.Info().Str("task", req.TaskName).Str("agent", req.Agent).Str("model", s.model).Msg("specialist start running")
	content, err := agent.Run(ctx, s.client, s.model, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("model %s returned an empty answer", s.model)
	}
	return content, nil
}

// GeminiSpecialist runs one task through a Gemini model without tools.
type GeminiSpecialist struct {
	models      ContentGenerator
	model       string
	instruct    string
	temperature float32
}

func NewGeminiSpecialist(models ContentGenerator, model string, instruct string, temperature float32) *GeminiSpecialist {
	if strings.TrimSpace(instruct) == "" {
		instruct = defaultSpecialistInstruct
	}
	return &GeminiSpecialist{models: models, model: model, instruct: instruct, temperature: temperature}
}

func (s *GeminiSpecialist) Run(ctx context.Context, req service.SpecialistRequest) (string, error) {
	content, err := generateText(ctx, s.models, s.model, s.instruct, specialistInput(req), s.temperature, false)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("model %s returned an empty answer", s.model)
	}
	return content, nil
}
