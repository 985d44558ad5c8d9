package service

import (
	"errors"
	"fmt"
)

// Proposal errors
var (
	ErrMalformedProposal = errors.New("proposal: no recovery tier produced a task list")
	ErrTierSkipped       = errors.New("proposal: recovery tier not applicable")
	ErrNoTaskList        = errors.New("proposal: no recognizable task list")
	ErrEmptyTaskList     = errors.New("proposal: task list is empty")
)

// Graph errors
var (
	ErrEmptyGraph        = errors.New("graph: no tasks")
	ErrInvalidDependency = errors.New("graph: invalid dependency")
	ErrDuplicateTaskName = errors.New("graph: duplicate task name")
	ErrMissingSynthesis  = errors.New("graph: last task is not the synthesis task")
)

// Execution errors
var (
	ErrSpecialistFailure     = errors.New("executor: specialist failed")
	ErrSynthesisFailure      = errors.New("executor: synthesis task failed")
	ErrUnknownSpecialist     = errors.New("executor: no specialist registered for agent")
	ErrNoSynthesisSpecialist = errors.New("executor: no Synthesis specialist registered")
)

// Oracle errors
var (
	ErrOracleUnavailable = errors.New("oracle: all channels unavailable")
	ErrNoOracle          = errors.New("oracle: no channel configured")
)

// GraphError wraps a deterministic graph validation failure.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func graphErrorf(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// TaskError records why a single task failed.
type TaskError struct {
	Task  string
	Agent string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %q (%s): %v", e.Task, e.Agent, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// TierError records the failure of one recovery tier.
type TierError struct {
	Tier string
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tier, e.Err)
}

func (e *TierError) Unwrap() error { return e.Err }
