package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"research-agent/shared"
)

// RecoveryStrategy is one tier of the recovery cascade.
type RecoveryStrategy interface {
	Name() string
	Recover(ctx context.Context, text string) ([]Task, error)
}

// Recovered is a task list together with the tier that produced it.
type Recovered struct {
	Tasks []Task
	Tier  string
}

type RecoveryConfig struct {
	RepromptAttempts int
	DisableHeuristic bool
	CacheSize        int
}

// DefaultStrategies returns the tiers in cascade order.
func DefaultStrategies(channel OracleChannel, cfg RecoveryConfig) []RecoveryStrategy {
	strategies := []RecoveryStrategy{
		DirectDecode{},
		FencedBlock{},
		BraceScan{},
		&Reprompt{Channel: channel, Attempts: cfg.RepromptAttempts, SchemaHint: shared.SchemaHint()},
	}
	if !cfg.DisableHeuristic {
		strategies = append(strategies, Heuristic{})
	}
	return strategies
}

// RecoveryPipeline runs its strategies in order until one yields a task list.
type RecoveryPipeline struct {
	strategies []RecoveryStrategy
	cache      *lru.Cache[string, Recovered]
}

func NewRecoveryPipeline(strategies ...RecoveryStrategy) *RecoveryPipeline {
	return &RecoveryPipeline{strategies: strategies}
}

// WithCache remembers up to size recovered proposals by content hash.
func (p *RecoveryPipeline) WithCache(size int) *RecoveryPipeline {
	if size <= 0 {
		p.cache = nil
		return p
	}
	cache, err := lru.New[string, Recovered](size)
	if err != nil {
		log.Warn().Err(err).Int("size", size).Msg("recovery cache disabled")
		return p
	}
	p.cache = cache
	return p
}

// Tiers lists the strategy names in cascade order.
func (p *RecoveryPipeline) Tiers() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Recover returns the first successful tier's tasks, or ErrMalformedProposal
// wrapping every tier failure. ErrOracleUnavailable or ErrEmptyTaskList from a
// tier ends the cascade.
func (p *RecoveryPipeline) Recover(ctx context.Context, text string) (*Recovered, error) {
	key := ""
	if p.cache != nil {
		sum := sha256.Sum256([]byte(text))
		key = hex.EncodeToString(sum[:])
		if hit, ok := p.cache.Get(key); ok {
			log.Debug().Str("tier", hit.Tier).Msg("recovered proposal served from cache")
			return &Recovered{Tasks: cloneTasks(hit.Tasks), Tier: hit.Tier}, nil
		}
	}

	var errs []error
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		tasks, err := s.Recover(ctx, text)
		if err == nil && len(tasks) > 0 {
			log.Info().Str("tier", s.Name()).Int("tasks", len(tasks)).Msg("proposal recovered")
			if p.cache != nil {
				p.cache.Add(key, Recovered{Tasks: cloneTasks(tasks), Tier: s.Name()})
			}
			return &Recovered{Tasks: tasks, Tier: s.Name()}, nil
		}
		if err == nil {
			err = ErrNoTaskList
		}
		log.Debug().Err(err).Str("tier", s.Name()).Msg("recovery tier failed")
		errs = append(errs, &TierError{Tier: s.Name(), Err: err})
		if errors.Is(err, ErrOracleUnavailable) {
			log.Error().Err(err).Str("tier", s.Name()).Msg("oracle unavailable on every channel")
			break
		}
		if errors.Is(err, ErrEmptyTaskList) {
			log.Warn().Str("tier", s.Name()).Msg("proposal declares an empty task list")
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrMalformedProposal, errors.Join(errs...))
}
