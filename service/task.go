package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskRunning   TaskStatus = "Running"
	TaskSucceeded TaskStatus = "Succeeded"
	TaskFailed    TaskStatus = "Failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// Task is one unit of delegated research work.
type Task struct {
	Name            string     `json:"task_name"`
	Agent           string     `json:"agent_name"`
	Objective       string     `json:"agent_task,omitempty"`
	Instructions    string     `json:"instructions"`
	ExpectedOutput  string     `json:"expected_output,omitempty"`
	RequiredContext []string   `json:"required_context"`
	Status          TaskStatus `json:"status,omitempty"`
	Result          string     `json:"result,omitempty"`
}

func (t Task) clone() Task {
	out := t
	if t.RequiredContext != nil {
		out.RequiredContext = append([]string{}, t.RequiredContext...)
	}
	return out
}

func cloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].clone()
	}
	return out
}

func (t *Task) formatString() string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("### %s [%s]\n", t.Name, t.Status))
	if t.Objective != "" {
		builder.WriteString(fmt.Sprintf("Objective: %s\n", t.Objective))
	}
	builder.WriteString(t.Result)
	builder.WriteByte('\n')
	return builder.String()
}

// keys accepted for each task field, normalized to lower snake case
var (
	nameKeys         = []string{"task_name", "name", "title", "id"}
	agentKeys        = []string{"agent_name", "agent", "specialist", "assignee"}
	objectiveKeys    = []string{"agent_task", "objective", "goal", "plan"}
	instructionKeys  = []string{"instructions", "instruction", "task_instructions", "description"}
	expectedKeys     = []string{"expected_output", "expected", "output"}
	requiredCtxKeys  = []string{"required_context", "dependencies", "depends_on", "requires"}
	allTaskFieldKeys = concatKeys(nameKeys, agentKeys, objectiveKeys, instructionKeys, expectedKeys, requiredCtxKeys)
)

func concatKeys(groups ...[]string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, g := range groups {
		for _, k := range g {
			out[k] = struct{}{}
		}
	}
	return out
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return k
}

// isTaskRecord reports whether m carries at least one recognizable task field.
func isTaskRecord(m map[string]any) bool {
	for k := range m {
		if _, ok := allTaskFieldKeys[normalizeKey(k)]; ok {
			return true
		}
	}
	return false
}

// taskFromRecord builds a Task from a loosely keyed record.
func taskFromRecord(m map[string]any) Task {
	norm := make(map[string]any, len(m))
	for k, v := range m {
		norm[normalizeKey(k)] = v
	}
	pick := func(keys []string) string {
		for _, k := range keys {
			if v, ok := norm[k]; ok && v != nil {
				if s := strings.TrimSpace(stringify(v)); s != "" {
					return s
				}
			}
		}
		return ""
	}
	task := Task{
		Name:           pick(nameKeys),
		Agent:          pick(agentKeys),
		Objective:      pick(objectiveKeys),
		Instructions:   pick(instructionKeys),
		ExpectedOutput: pick(expectedKeys),
	}
	for _, k := range requiredCtxKeys {
		if v, ok := norm[k]; ok && v != nil {
			task.RequiredContext = contextList(v)
			break
		}
	}
	return task
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

// contextList accepts a list of names or a delimited string of names.
func contextList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case []string:
		raw = x
	case []any:
		for _, item := range x {
			raw = append(raw, stringify(item))
		}
	case string:
		raw = splitContext(x)
	default:
		raw = []string{stringify(x)}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.Trim(strings.TrimSpace(s), `"'`)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitContext(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "n/a") {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
}

// naturalLess orders "task_2" before "task_10".
func naturalLess(a, b string) bool {
	pa, na, okA := splitTrailingNumber(a)
	pb, nb, okB := splitTrailingNumber(b)
	if okA && okB && pa == pb && na != nb {
		return na < nb
	}
	return a < b
}

func splitTrailingNumber(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return s, 0, false
	}
	return s[:i], n, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })
	return keys
}

// TaskGraph is an ordered, validated collection of tasks.
//
// It is built by GraphValidator and is safe for concurrent read access.
type TaskGraph struct {
	tasks []Task
	index map[string]int
	depth []int
}

func newTaskGraph(tasks []Task) *TaskGraph {
	g := &TaskGraph{
		tasks: tasks,
		index: make(map[string]int, len(tasks)),
		depth: make([]int, len(tasks)),
	}
	for i, t := range tasks {
		g.index[t.Name] = i
	}
	// context only points backwards, so one forward pass is a topological pass
	for i, t := range tasks {
		d := 0
		for _, dep := range t.RequiredContext {
			if j, ok := g.index[dep]; ok && g.depth[j]+1 > d {
				d = g.depth[j] + 1
			}
		}
		g.depth[i] = d
	}
	return g
}

// Len returns the number of tasks.
func (g *TaskGraph) Len() int { return len(g.tasks) }

// Tasks returns a copy of the tasks in graph order.
func (g *TaskGraph) Tasks() []Task { return cloneTasks(g.tasks) }

// Task returns a copy of the named task.
func (g *TaskGraph) Task(name string) (Task, bool) {
	i, ok := g.index[name]
	if !ok {
		return Task{}, false
	}
	return g.tasks[i].clone(), true
}

// Position returns the zero-based position of the named task.
func (g *TaskGraph) Position(name string) (int, bool) {
	i, ok := g.index[name]
	return i, ok
}

// Terminal returns the synthesis task that closes the graph.
func (g *TaskGraph) Terminal() Task { return g.tasks[len(g.tasks)-1].clone() }

// Depth returns the length of the longest dependency chain ending at the named task.
func (g *TaskGraph) Depth(name string) (int, bool) {
	i, ok := g.index[name]
	if !ok {
		return 0, false
	}
	return g.depth[i], true
}

// Width returns the largest number of tasks sharing one depth level.
func (g *TaskGraph) Width() int {
	counts := map[int]int{}
	width := 0
	for _, d := range g.depth {
		counts[d]++
		if counts[d] > width {
			width = counts[d]
		}
	}
	return width
}
