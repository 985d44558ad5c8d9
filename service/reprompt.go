package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultRepromptAttempts bounds the follow-up requests of the re-prompt tier.
const DefaultRepromptAttempts = 2

// Reprompt is tier 4: ask the oracle to rewrite its own output as a bare task list.
//
// Every attempt tries the primary channel and, on a transport failure, the
// secondary once. When no attempt reached any channel the tier fails with
// ErrOracleUnavailable, which ends the cascade.
type Reprompt struct {
	Channel    OracleChannel
	Attempts   int
	SchemaHint string
}

func (*Reprompt) Name() string { return "reprompt" }

func (r *Reprompt) Recover(ctx context.Context, text string) ([]Task, error) {
	if !r.Channel.Configured() {
		return nil, fmt.Errorf("%w: %w", ErrTierSkipped, ErrNoOracle)
	}
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultRepromptAttempts
	}

	previous := text
	reached := false
	var unavailable []error
	var malformed []error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := r.Channel.Reprompt(ctx, previous, r.SchemaHint)
		if err != nil {
			unavailable = append(unavailable, fmt.Errorf("attempt %d: %w", attempt, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		reached = true
		shape := Ingest(raw)
		switch shape.Kind {
		case ShapeStructured:
			log.Info().Int("attempt", attempt).Msg("re-prompt returned a structured task list")
			return shape.Tasks, nil
		case ShapeText:
			tasks, err := decodeTaskList(shape.Text, false)
			if err == nil {
				log.Info().Int("attempt", attempt).Msg("re-prompt returned a decodable task list")
				return tasks, nil
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("re-prompt output is not a task list")
			malformed = append(malformed, fmt.Errorf("attempt %d: %v", attempt, err))
			previous = shape.Text
		default:
			malformed = append(malformed, fmt.Errorf("attempt %d: empty response", attempt))
		}
	}
	if !reached {
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, errors.Join(unavailable...))
	}
	return nil, fmt.Errorf("%w: %v", ErrNoTaskList, errors.Join(append(malformed, unavailable...)...))
}

// RepromptInstruction is the JSON-only directive embedding the failed output.
func RepromptInstruction(previousRawOutput string, schemaHint string) string {
	var builder strings.Builder
	builder.WriteString("You must ONLY return valid JSON matching this schema:\n")
	builder.WriteString(schemaHint)
	builder.WriteString("\n\nDo NOT include any explanatory text, markdown fences or reasoning. If a field is unknown, use an empty string.\n")
	builder.WriteString("The last task must use the Synthesis agent and list every earlier task in required_context.\n\n")
	builder.WriteString("Here is the output that needs to be converted to JSON:\n\n")
	builder.WriteString(previousRawOutput)
	builder.WriteString("\n\nReturn only JSON.")
	return builder.String()
}
