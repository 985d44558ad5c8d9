package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SpecialistRequest is everything a specialist sees of its task.
type SpecialistRequest struct {
	TaskName       string
	Agent          string
	Objective      string
	Instructions   string
	ExpectedOutput string
	Context        string
}

// Specialist performs the concrete work of one agent.
type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (string, error)
}

type SpecialistFunc func(ctx context.Context, req SpecialistRequest) (string, error)

func (f SpecialistFunc) Run(ctx context.Context, req SpecialistRequest) (string, error) {
	return f(ctx, req)
}

type SpecialistEndPoint struct {
	Agent      string
	Specialist Specialist
}

type SpecialistExecLog struct {
	ID       int
	TaskName string
	Agent    string
	Result   string
	Err      error
	Elapsed  time.Duration
}

func (l *SpecialistExecLog) formatString() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("#%d %s -> %s (%s)\n", l.ID, l.TaskName, l.Agent, l.Elapsed.Round(time.Millisecond)))
	if l.Err != nil {
		builder.WriteString(fmt.Sprintf("failed: %s\n", l.Err))
	} else {
		builder.WriteString(fmt.Sprintf("succeeded, %d bytes\n", len(l.Result)))
	}
	return builder.String()
}

// SpecialistDispatcher maps agent names to specialists and records every call.
// It is safe for concurrent use.
type SpecialistDispatcher struct {
	mu          sync.Mutex
	specialists map[string]SpecialistEndPoint
	execLog     []*SpecialistExecLog
}

func NewSpecialistDispatcher() *SpecialistDispatcher {
	return &SpecialistDispatcher{
		specialists: map[string]SpecialistEndPoint{},
	}
}

func (sd *SpecialistDispatcher) RegisterSpecialist(endpoints ...SpecialistEndPoint) error {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	err := []error{}
	for _, endpoint := range endpoints {
		key := strings.ToLower(strings.TrimSpace(endpoint.Agent))
		switch {
		case key == "" || endpoint.Specialist == nil:
			err = append(err, fmt.Errorf("specialist %q has no name or implementation", endpoint.Agent))
		default:
			if _, exist := sd.specialists[key]; exist {
				err = append(err, fmt.Errorf("specialist with name %s already exist", endpoint.Agent))
				continue
			}
			sd.specialists[key] = endpoint
		}
	}
	return errors.Join(err...)
}

// Lookup finds a specialist by agent name, case-insensitively and through
// the planner display-name aliases.
func (sd *SpecialistDispatcher) Lookup(agent string) (SpecialistEndPoint, bool) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(agent))
	if endpoint, ok := sd.specialists[key]; ok {
		return endpoint, true
	}
	if alias, ok := agentAliases[key]; ok {
		endpoint, ok := sd.specialists[strings.ToLower(alias)]
		return endpoint, ok
	}
	return SpecialistEndPoint{}, false
}

// Agents returns the registered agent names in sorted order.
func (sd *SpecialistDispatcher) Agents() []string {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	names := make([]string, 0, len(sd.specialists))
	for _, endpoint := range sd.specialists {
		names = append(names, endpoint.Agent)
	}
	sort.Strings(names)
	return names
}

// Run dispatches req to the specialist named by req.Agent. A panicking
// specialist is reported as an error.
func (sd *SpecialistDispatcher) Run(ctx context.Context, req SpecialistRequest) (res string, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res, err = "", fmt.Errorf("specialist %s panicked: %v", req.Agent, r)
		}
		sd.record(req, res, err, time.Since(start))
	}()

	endpoint, exist := sd.Lookup(req.Agent)
	if !exist {
		return "", fmt.Errorf("%w: %q", ErrUnknownSpecialist, req.Agent)
	}
	return endpoint.Specialist.Run(ctx, req)
}

func (sd *SpecialistDispatcher) record(req SpecialistRequest, res string, err error, elapsed time.Duration) {
	sd.mu.Lock()
	entry := &SpecialistExecLog{
		ID:       len(sd.execLog),
		TaskName: req.TaskName,
		Agent:    req.Agent,
		Result:   res,
		Err:      err,
		Elapsed:  elapsed,
	}
	sd.execLog = append(sd.execLog, entry)
	sd.mu.Unlock()
	log.Debug().Str("task", req.TaskName).Str("agent", req.Agent).Msg(strings.TrimSpace(entry.formatString()))
}

// ExecLog returns a copy of the calls made so far.
func (sd *SpecialistDispatcher) ExecLog() []SpecialistExecLog {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	out := make([]SpecialistExecLog, len(sd.execLog))
	for i, entry := range sd.execLog {
		out[i] = *entry
	}
	return out
}

func (sd *SpecialistDispatcher) ResetLog() {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.execLog = nil
}
