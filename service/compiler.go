package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"research-agent/shared"
)

// TierStructured names proposals that arrived already structured.
const TierStructured = "structured"

type compilerOptions struct {
	recovery   RecoveryConfig
	executor   ExecutorConfig
	validator  []ValidatorOption
	strategies []RecoveryStrategy
}

type CompilerOption func(*compilerOptions)

func WithRecoveryConfig(cfg RecoveryConfig) CompilerOption {
	return func(o *compilerOptions) { o.recovery = cfg }
}

func WithExecutorConfig(cfg ExecutorConfig) CompilerOption {
	return func(o *compilerOptions) { o.executor = cfg }
}

func WithValidatorOptions(opts ...ValidatorOption) CompilerOption {
	return func(o *compilerOptions) { o.validator = append(o.validator, opts...) }
}

// WithStrategies replaces the default recovery cascade.
func WithStrategies(strategies ...RecoveryStrategy) CompilerOption {
	return func(o *compilerOptions) { o.strategies = strategies }
}

// Compiler turns raw oracle proposals into executed task graphs.
type Compiler struct {
	channel     OracleChannel
	specialists *SpecialistDispatcher
	recovery    *RecoveryPipeline
	validator   *GraphValidator
	executor    *Executor
}

func NewCompiler(channel OracleChannel, specialists *SpecialistDispatcher, opts ...CompilerOption) (*Compiler, error) {
	if specialists == nil {
		return nil, ErrNoSynthesisSpecialist
	}
	if _, ok := specialists.Lookup(shared.AgentSynthesis); !ok {
		return nil, ErrNoSynthesisSpecialist
	}
	o := compilerOptions{recovery: RecoveryConfig{RepromptAttempts: DefaultRepromptAttempts}}
	for _, opt := range opts {
		opt(&o)
	}
	strategies := o.strategies
	if strategies == nil {
		strategies = DefaultStrategies(channel, o.recovery)
	}
	validatorOpts := append([]ValidatorOption{WithKnownAgents(specialists.Agents()...)}, o.validator...)
	return &Compiler{
		channel:     channel,
		specialists: specialists,
		recovery:    NewRecoveryPipeline(strategies...).WithCache(o.recovery.CacheSize),
		validator:   NewGraphValidator(validatorOpts...),
		executor:    NewExecutor(specialists, o.executor),
	}, nil
}

// Compile ingests, recovers and validates raw. It returns the graph and the
// tier that produced its task list.
func (c *Compiler) Compile(ctx context.Context, raw any) (*TaskGraph, string, error) {
	shape := Ingest(raw)
	var (
		tasks []Task
		tier  string
	)
	switch shape.Kind {
	case ShapeStructured:
		tasks, tier = shape.Tasks, TierStructured
	case ShapeText:
		recovered, err := c.recovery.Recover(ctx, shape.Text)
		if err != nil {
			return nil, "", err
		}
		tasks, tier = recovered.Tasks, recovered.Tier
	default:
		return nil, "", fmt.Errorf("%w: %w", ErrMalformedProposal, ErrNoTaskList)
	}
	graph, err := c.validator.ValidateAndComplete(tasks)
	if err != nil {
		return nil, tier, err
	}
	log.Info().Str("tier", tier).Int("tasks", graph.Len()).Int("width", graph.Width()).Msg("task graph compiled")
	return graph, tier, nil
}

// CompileAndRun compiles raw and executes the resulting graph. Proposal
// failures return no report; a synthesis failure returns the report and
// an error wrapping ErrSynthesisFailure.
func (c *Compiler) CompileAndRun(ctx context.Context, raw any) (*ExecutionReport, error) {
	graph, tier, err := c.Compile(ctx, raw)
	if err != nil {
		return nil, err
	}
	report, err := c.executor.Execute(ctx, graph)
	if report != nil {
		report.Tier = tier
	}
	return report, err
}

// Research asks the oracle channel for a plan and runs it.
func (c *Compiler) Research(ctx context.Context, query string, priorContext string) (*ExecutionReport, error) {
	raw, err := c.channel.Propose(ctx, query, priorContext)
	if err != nil {
		return nil, err
	}
	return c.CompileAndRun(ctx, raw)
}
