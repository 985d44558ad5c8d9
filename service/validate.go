package service

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"research-agent/shared"
)

const (
	synthesisObjective    = "Synthesize the analyzed information into a concise, coherent summary that captures the essence of the research while maintaining clarity and relevance. Conclude and prepare the final answer, ensuring it is well-structured, highlights key points, and addresses any nuances or complexities found in the results."
	synthesisInstructions = "Using the detailed reports from all previous agent tasks, synthesize the information into a clear, concise, and coherent answer. Ensure the answer is well-structured, highlights key points, and addresses any nuances or complexities. If any previous task failed, say which research steps did not complete instead of filling the gap. Provide the final answer in English."
	synthesisExpected     = "A well-structured, concise, and coherent answer capturing the key points, main ideas, and any nuances from all previous tasks, in English."
)

// agentAliases maps display names used by planners to specialist names.
var agentAliases = map[string]string{
	"response generator agent": shared.AgentSynthesis,
	"response generator":       shared.AgentSynthesis,
	"synthesis agent":          shared.AgentSynthesis,
	"finance data agent":       shared.AgentMarketData,
	"market data agent":        shared.AgentMarketData,
	"web search agent":         shared.AgentWebSearch,
	"rag agent":                shared.AgentDocumentSearch,
	"document agent":           shared.AgentDocumentSearch,
	"document search agent":    shared.AgentDocumentSearch,
}

// GraphValidator turns a recovered task list into a TaskGraph, repairing
// what can be repaired deterministically.
type GraphValidator struct {
	strict       bool
	defaultAgent string
	agents       []string
}

type ValidatorOption func(*GraphValidator)

// WithStrictDependencies rejects unresolved context entries instead of dropping them.
func WithStrictDependencies(strict bool) ValidatorOption {
	return func(v *GraphValidator) { v.strict = strict }
}

// WithDefaultAgent assigns agent to tasks that name none.
func WithDefaultAgent(agent string) ValidatorOption {
	return func(v *GraphValidator) { v.defaultAgent = agent }
}

// WithKnownAgents adds names that agent fields are matched against case-insensitively.
func WithKnownAgents(agents ...string) ValidatorOption {
	return func(v *GraphValidator) { v.agents = append(v.agents, agents...) }
}

func NewGraphValidator(opts ...ValidatorOption) *GraphValidator {
	v := &GraphValidator{
		agents: []string{shared.AgentWebSearch, shared.AgentMarketData, shared.AgentDocumentSearch, shared.AgentSynthesis},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateAndComplete names, links and closes the task list.
// The input slice is not modified.
func (v *GraphValidator) ValidateAndComplete(tasks []Task) (*TaskGraph, error) {
	if len(tasks) == 0 {
		return nil, graphErrorf(ErrEmptyGraph, "proposal contained no tasks")
	}
	work := cloneTasks(tasks)

	if err := v.assignNames(work); err != nil {
		return nil, err
	}
	for i := range work {
		work[i].Agent = v.canonicalAgent(work[i].Agent)
		if work[i].Agent == "" && v.defaultAgent != "" {
			work[i].Agent = v.canonicalAgent(v.defaultAgent)
		}
		work[i].Status = TaskPending
		work[i].Result = ""
	}

	InferMissingDependencies(work)

	if err := v.resolveContext(work); err != nil {
		return nil, err
	}
	work = v.completeTerminal(work)

	if err := checkInvariants(work); err != nil {
		return nil, err
	}
	return newTaskGraph(work), nil
}

func (v *GraphValidator) assignNames(work []Task) error {
	used := make(map[string]struct{}, len(work))
	for i := range work {
		name := strings.TrimSpace(work[i].Name)
		switch {
		case name == "":
			name = uniqueName(fmt.Sprintf("task_%d", i+1), i+1, used)
		default:
			if _, dup := used[name]; dup {
				if v.strict {
					return graphErrorf(ErrDuplicateTaskName, "%q at position %d", name, i+1)
				}
				renamed := uniqueName(fmt.Sprintf("%s_%d", name, i+1), i+1, used)
				log.Warn().Str("task", name).Str("renamed", renamed).Int("position", i+1).Msg("duplicate task name repaired")
				name = renamed
			}
		}
		used[name] = struct{}{}
		work[i].Name = name
	}
	return nil
}

// uniqueName returns candidate, or candidate with a counter suffix when it is taken.
func uniqueName(candidate string, start int, used map[string]struct{}) string {
	if _, taken := used[candidate]; !taken {
		return candidate
	}
	for n := start + 1; ; n++ {
		next := fmt.Sprintf("%s_%d", candidate, n)
		if _, taken := used[next]; !taken {
			return next
		}
	}
}

// resolveContext keeps only entries naming a strictly earlier task. A purely
// numeric entry is read as a 1-based position, as is a "task N" reference.
func (v *GraphValidator) resolveContext(work []Task) error {
	position := make(map[string]int, len(work))
	for i, t := range work {
		position[t.Name] = i
	}
	for i := range work {
		resolved := make([]string, 0, len(work[i].RequiredContext))
		for _, entry := range work[i].RequiredContext {
			entry = strings.TrimSpace(entry)
			names := resolveEntry(entry, i, work, position)
			if len(names) == 0 {
				if v.strict {
					return graphErrorf(ErrInvalidDependency, "task %q requires %q which is not an earlier task", work[i].Name, entry)
				}
				log.Warn().Str("task", work[i].Name).Str("dependency", entry).Msg("dropping dependency that does not name an earlier task")
				continue
			}
			for _, name := range names {
				if !slices.Contains(resolved, name) {
					resolved = append(resolved, name)
				}
			}
		}
		work[i].RequiredContext = resolved
	}
	return nil
}

func resolveEntry(entry string, self int, work []Task, position map[string]int) []string {
	if entry == "" {
		return nil
	}
	if j, ok := position[entry]; ok {
		if j < self {
			return []string{entry}
		}
		return nil
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(entry, "#")); err == nil {
		if n >= 1 && n-1 < self {
			return []string{work[n-1].Name}
		}
		return nil
	}
	var names []string
	for _, n := range referencedPositions(entry) {
		if n >= 1 && n-1 < self && !slices.Contains(names, work[n-1].Name) {
			names = append(names, work[n-1].Name)
		}
	}
	return names
}

// completeTerminal makes sure the graph ends with a synthesis task.
func (v *GraphValidator) completeTerminal(work []Task) []Task {
	last := len(work) - 1
	if work[last].Agent == shared.AgentSynthesis {
		if len(work[last].RequiredContext) == 0 && last > 0 {
			work[last].RequiredContext = taskNames(work[:last])
		}
		return work
	}
	used := make(map[string]struct{}, len(work))
	for _, t := range work {
		used[t.Name] = struct{}{}
	}
	name := uniqueName(fmt.Sprintf("task_%d", len(work)+1), len(work)+1, used)
	log.Info().Str("task", name).Str("previous_agent", work[last].Agent).Msg("appending terminal synthesis task")
	return append(work, Task{
		Name:            name,
		Agent:           shared.AgentSynthesis,
		Objective:       synthesisObjective,
		Instructions:    synthesisInstructions,
		ExpectedOutput:  synthesisExpected,
		RequiredContext: taskNames(work),
		Status:          TaskPending,
	})
}

func (v *GraphValidator) canonicalAgent(agent string) string {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return ""
	}
	if alias, ok := agentAliases[strings.ToLower(agent)]; ok {
		return alias
	}
	for _, known := range v.agents {
		if strings.EqualFold(known, agent) {
			return known
		}
	}
	return agent
}

func taskNames(tasks []Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

// checkInvariants verifies unique names, backward-only context and a terminal synthesis task.
func checkInvariants(tasks []Task) error {
	if len(tasks) == 0 {
		return graphErrorf(ErrEmptyGraph, "")
	}
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.Name == "" {
			return graphErrorf(ErrInvalidDependency, "task at position %d has no name", i+1)
		}
		if _, dup := seen[t.Name]; dup {
			return graphErrorf(ErrDuplicateTaskName, "%q", t.Name)
		}
		for _, dep := range t.RequiredContext {
			if _, earlier := seen[dep]; !earlier {
				return graphErrorf(ErrInvalidDependency, "task %q requires %q", t.Name, dep)
			}
		}
		seen[t.Name] = i
	}
	if tasks[len(tasks)-1].Agent != shared.AgentSynthesis {
		return graphErrorf(ErrMissingSynthesis, "last task %q uses %q", tasks[len(tasks)-1].Name, tasks[len(tasks)-1].Agent)
	}
	return nil
}
