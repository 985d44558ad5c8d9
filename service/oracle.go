package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Oracle is the generative collaborator that drafts task proposals.
// Both calls may return a string or an already structured value.
type Oracle interface {
	Name() string
	Propose(ctx context.Context, query string, priorContext string) (any, error)
	Reprompt(ctx context.Context, previousRawOutput string, schemaHint string) (any, error)
}

// OracleChannel pairs a primary oracle with the one used when the primary is unavailable.
type OracleChannel struct {
	Primary   Oracle
	Secondary Oracle
}

// Configured reports whether at least one oracle is set.
func (c OracleChannel) Configured() bool {
	return c.Primary != nil || c.Secondary != nil
}

// Propose asks the primary oracle for a proposal, falling back to the secondary once.
func (c OracleChannel) Propose(ctx context.Context, query string, priorContext string) (any, error) {
	return c.call(ctx, "propose", func(o Oracle) (any, error) {
		return o.Propose(ctx, query, priorContext)
	})
}

// Reprompt asks for a schema-conforming rewrite of a failed output, falling back to the secondary once.
func (c OracleChannel) Reprompt(ctx context.Context, previousRawOutput string, schemaHint string) (any, error) {
	return c.call(ctx, "reprompt", func(o Oracle) (any, error) {
		return o.Reprompt(ctx, previousRawOutput, schemaHint)
	})
}

func (c OracleChannel) call(ctx context.Context, op string, fn func(Oracle) (any, error)) (any, error) {
	oracles := make([]Oracle, 0, 2)
	for _, o := range []Oracle{c.Primary, c.Secondary} {
		if o != nil {
			oracles = append(oracles, o)
		}
	}
	if len(oracles) == 0 {
		return nil, ErrNoOracle
	}
	var errList []error
	for i, o := range oracles {
		res, err := fn(o)
		if err == nil {
			return res, nil
		}
		errList = append(errList, fmt.Errorf("%s: %w", o.Name(), err))
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(oracles) {
			log.Warn().Err(err).Str("oracle", o.Name()).Str("op", op).Msg("oracle call failed, trying alternate channel")
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, errors.Join(errList...))
}
