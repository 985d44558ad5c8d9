package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"research-agent/service"
)

// OpenAIOracle drafts task lists with an OpenAI-compatible chat model.
type OpenAIOracle struct {
	client      ChatClient
	model       string
	temperature float32
	jsonMode    bool
}

func NewOpenAIOracle(client ChatClient, model string, temperature float32, jsonMode bool) *OpenAIOracle {
	return &OpenAIOracle{client: client, model: model, temperature: temperature, jsonMode: jsonMode}
}

func (o *OpenAIOracle) Name() string { return "openai:" + o.model }

func (o *OpenAIOracle) Propose(ctx context.Context, query string, priorContext string) (any, error) {
	agent := NewBaseAgent(plannerInstruct, plannerInput(query, priorContext), nil).
		WithTemperature(o.temperature).
		WithJSONMode(o.jsonMode).
		WithMaxTurns(1)
	return agent.Run(ctx, o.client, o.model, nil)
}

func (o *OpenAIOracle) Reprompt(ctx context.Context, previousRawOutput string, schemaHint string) (any, error) {
	agent := NewBaseAgent(repromptInstruct, service.RepromptInstruction(previousRawOutput, schemaHint), nil).
		WithTemperature(0).
		WithJSONMode(o.jsonMode).
		WithMaxTurns(1)
	return agent.Run(ctx, o.client, o.model, nil)
}

// ContentGenerator is the part of *genai.Models the Gemini types use.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOracle drafts task lists with a Gemini model.
type GeminiOracle struct {
	models      ContentGenerator
	model       string
	temperature float32
	jsonMode    bool
}

func NewGeminiOracle(models ContentGenerator, model string, temperature float32, jsonMode bool) *GeminiOracle {
	return &GeminiOracle{models: models, model: model, temperature: temperature, jsonMode: jsonMode}
}

func (o *GeminiOracle) Name() string { return "gemini:" + o.model }

func (o *GeminiOracle) Propose(ctx context.Context, query string, priorContext string) (any, error) {
	return generateText(ctx, o.models, o.model, plannerInstruct, plannerInput(query, priorContext), o.temperature, o.jsonMode)
}

func (o *GeminiOracle) Reprompt(ctx context.Context, previousRawOutput string, schemaHint string) (any, error) {
	return generateText(ctx, o.models, o.model, repromptInstruct, service.RepromptInstruction(previousRawOutput, schemaHint), 0, o.jsonMode)
}

func generateText(ctx context.Context, models ContentGenerator, model string, instruct string, input string, temperature float32, jsonMode bool) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: instruct}}},
		Temperature:       genai.Ptr(temperature),
	}
	if jsonMode {
		config.ResponseMIMEType = "application/json"
	}
	resp, err := models.GenerateContent(ctx, model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: input}}}},
		config,
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model %s returned no candidates", model)
	}
	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			builder.WriteString(part.Text)
		}
	}
	log.Debug().Str("model", model).Int("bytes", builder.Len()).Msg("gemini response")
	return builder.String(), nil
}
