package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type ExecutorConfig struct {
	// MaxParallel caps concurrent specialist calls; zero means the graph width.
	MaxParallel int
	// TaskTimeout bounds one specialist call; zero means no limit.
	TaskTimeout time.Duration
}

// ExecutionReport is the outcome of running one task graph.
type ExecutionReport struct {
	RunID      string       `json:"run_id"`
	Tier       string       `json:"tier"`
	Tasks      []Task       `json:"tasks"`
	Order      []string     `json:"order"`
	Failures   []*TaskError `json:"-"`
	Answer     string       `json:"answer"`
	Success    bool         `json:"success"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Task returns the final state of the named task.
func (r *ExecutionReport) Task(name string) (Task, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t.clone(), true
		}
	}
	return Task{}, false
}

func (r *ExecutionReport) formatString() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Run %s (tier %s) success=%t\n", r.RunID, r.Tier, r.Success))
	for i := range r.Tasks {
		builder.WriteString(fmt.Sprintf("- %s [%s] %s\n", r.Tasks[i].Name, r.Tasks[i].Agent, r.Tasks[i].Status))
	}
	return builder.String()
}

// Executor runs a TaskGraph against registered specialists.
type Executor struct {
	specialists *SpecialistDispatcher
	cfg         ExecutorConfig
}

func NewExecutor(specialists *SpecialistDispatcher, cfg ExecutorConfig) *Executor {
	return &Executor{specialists: specialists, cfg: cfg}
}

type taskOutcome struct {
	index  int
	result string
	err    error
}

// Execute runs every task once its context tasks are terminal. Independent
// tasks run concurrently. A failed task becomes a failure note that its
// dependents still receive; only a failed synthesis task is returned as an error.
func (e *Executor) Execute(ctx context.Context, graph *TaskGraph) (*ExecutionReport, error) {
	if graph == nil || graph.Len() == 0 {
		return nil, graphErrorf(ErrEmptyGraph, "nothing to execute")
	}
	if err := checkInvariants(graph.tasks); err != nil {
		return nil, err
	}
	report := &ExecutionReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	logger := log.With().Str("run_id", report.RunID).Logger()

	// tasks is owned by this goroutine; workers only see requests
	tasks := graph.Tasks()
	n := len(tasks)
	limit := graph.Width()
	if e.cfg.MaxParallel > 0 && e.cfg.MaxParallel < limit {
		limit = e.cfg.MaxParallel
	}
	var g errgroup.Group
	g.SetLimit(limit)
	outcomes := make(chan taskOutcome, n)

	dispatched := make([]bool, n)
	running, done := 0, 0
	finish := func(i int, result string, err error) {
		done++
		report.Order = append(report.Order, tasks[i].Name)
		if err != nil {
			tasks[i].Status = TaskFailed
			tasks[i].Result = failureNote(tasks[i].Name, err)
			taskErr := &TaskError{Task: tasks[i].Name, Agent: tasks[i].Agent, Err: fmt.Errorf("%w: %w", ErrSpecialistFailure, err)}
			report.Failures = append(report.Failures, taskErr)
			logger.Warn().Err(err).Str("task", tasks[i].Name).Str("agent", tasks[i].Agent).Msg("task failed")
			return
		}
		tasks[i].Status = TaskSucceeded
		tasks[i].Result = result
		logger.Info().Str("task", tasks[i].Name).Str("agent", tasks[i].Agent).Msg("task succeeded")
	}

	for done < n {
		for i := range tasks {
			if dispatched[i] || !dependenciesTerminal(tasks, graph, i) {
				continue
			}
			dispatched[i] = true
			if err := ctx.Err(); err != nil {
				finish(i, "", fmt.Errorf("timeout: %w", err))
				continue
			}
			req := contextRequest(tasks, graph, i)
			tasks[i].Status = TaskRunning
			running++
			idx := i
			g.Go(func() error {
				result, err := e.runTask(ctx, req)
				outcomes <- taskOutcome{index: idx, result: result, err: err}
				return nil
			})
		}
		if running == 0 {
			break
		}
		o := <-outcomes
		running--
		finish(o.index, o.result, o.err)
	}
	_ = g.Wait()

	report.Tasks = tasks
	report.FinishedAt = time.Now()
	terminal := tasks[n-1]
	report.Success = terminal.Status == TaskSucceeded
	if !report.Success {
		logger.Error().Str("task", terminal.Name).Msg("synthesis task failed")
		return report, &TaskError{Task: terminal.Name, Agent: terminal.Agent, Err: fmt.Errorf("%w: %s", ErrSynthesisFailure, terminal.Result)}
	}
	report.Answer = terminal.Result
	logger.Debug().Msg(report.formatString())
	return report, nil
}

// runTask calls the specialist under the per-task deadline. A specialist that
// ignores its context is abandoned when the deadline passes.
func (e *Executor) runTask(ctx context.Context, req SpecialistRequest) (string, error) {
	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if e.cfg.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		out string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := e.specialists.Run(taskCtx, req)
		ch <- result{out: out, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return "", fmt.Errorf("timeout: %w", r.err)
		}
		return r.out, r.err
	case <-taskCtx.Done():
		select {
		case r := <-ch:
			if r.err == nil {
				return r.out, nil
			}
		default:
		}
		return "", fmt.Errorf("timeout: %w", taskCtx.Err())
	}
}

func dependenciesTerminal(tasks []Task, graph *TaskGraph, i int) bool {
	for _, dep := range tasks[i].RequiredContext {
		j, ok := graph.Position(dep)
		if ok && !tasks[j].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// contextRequest builds the specialist input from the task and the results of
// its context tasks, in declared order.
func contextRequest(tasks []Task, graph *TaskGraph, i int) SpecialistRequest {
	var builder strings.Builder
	for _, dep := range tasks[i].RequiredContext {
		j, ok := graph.Position(dep)
		if !ok {
			continue
		}
		builder.WriteString(tasks[j].formatString())
		builder.WriteByte('\n')
	}
	return SpecialistRequest{
		TaskName:       tasks[i].Name,
		Agent:          tasks[i].Agent,
		Objective:      tasks[i].Objective,
		Instructions:   tasks[i].Instructions,
		ExpectedOutput: tasks[i].ExpectedOutput,
		Context:        builder.String(),
	}
}

func failureNote(name string, err error) string {
	return fmt.Sprintf("task %q failed: %v", name, err)
}
