package service

import (
	"encoding/json"
	"strings"
)

type ShapeKind int

const (
	ShapeEmpty ShapeKind = iota
	ShapeStructured
	ShapeText
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeStructured:
		return "structured"
	case ShapeText:
		return "text"
	default:
		return "empty"
	}
}

// ProposalShape is the classified form of a raw oracle proposal.
// Tasks is set for ShapeStructured, Text for ShapeText.
type ProposalShape struct {
	Kind  ShapeKind
	Tasks []Task
	Text  string
}

// Ingest classifies a raw proposal without parsing text and without mutating raw.
func Ingest(raw any) ProposalShape {
	switch x := raw.(type) {
	case nil:
		return ProposalShape{Kind: ShapeEmpty}
	case string:
		return textShape(x)
	case []byte:
		return textShape(string(x))
	case json.RawMessage:
		return textShape(string(x))
	case []Task:
		return structuredShape(cloneTasks(x))
	case *Task:
		if x == nil {
			return ProposalShape{Kind: ShapeEmpty}
		}
		return structuredShape([]Task{x.clone()})
	case Task:
		return structuredShape([]Task{x.clone()})
	}
	if isEmptyTaskList(raw) {
		return ProposalShape{Kind: ShapeEmpty}
	}
	if tasks, ok := tasksFromValue(raw, false); ok {
		return structuredShape(tasks)
	}
	// an unrecognised collection still gets a chance in the text tiers
	data, err := json.Marshal(raw)
	if err != nil {
		return ProposalShape{Kind: ShapeEmpty}
	}
	return textShape(string(data))
}

func textShape(s string) ProposalShape {
	if strings.TrimSpace(s) == "" {
		return ProposalShape{Kind: ShapeEmpty}
	}
	return ProposalShape{Kind: ShapeText, Text: s}
}

func structuredShape(tasks []Task) ProposalShape {
	if len(tasks) == 0 {
		return ProposalShape{Kind: ShapeEmpty}
	}
	return ProposalShape{Kind: ShapeStructured, Tasks: tasks}
}

// tasksFromValue recognizes the task-list layouts an oracle produces:
// a list of task records, {"task_list": [...]}, or a map of task records.
// With strict set, only {"task_list": [...]} whose entries all carry a name
// and an agent is accepted.
func tasksFromValue(v any, strict bool) ([]Task, bool) {
	switch x := v.(type) {
	case []map[string]any:
		if strict {
			return nil, false
		}
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return tasksFromList(items, false)
	case []any:
		if strict {
			return nil, false
		}
		return tasksFromList(x, false)
	case map[string]any:
		if list, ok := lookupTaskList(x, strict); ok {
			return tasksFromList(list, strict)
		}
		if strict || len(x) == 0 {
			return nil, false
		}
		return tasksFromMap(x)
	}
	return nil, false
}

// isEmptyTaskList reports whether v is a task-list layout holding no tasks:
// an empty list, an empty object, or a task_list field with an empty list.
func isEmptyTaskList(v any) bool {
	switch x := v.(type) {
	case []any:
		return len(x) == 0
	case []map[string]any:
		return len(x) == 0
	case map[string]any:
		if len(x) == 0 {
			return true
		}
		list, ok := lookupTaskList(x, false)
		return ok && len(list) == 0
	}
	return false
}

func lookupTaskList(m map[string]any, strict bool) ([]any, bool) {
	keys := []string{"task_list"}
	if !strict {
		keys = append(keys, "tasks", "tasklist")
	}
	for k, v := range m {
		nk := normalizeKey(k)
		for _, want := range keys {
			if nk != want {
				continue
			}
			switch list := v.(type) {
			case []any:
				return list, true
			case []map[string]any:
				out := make([]any, len(list))
				for i := range list {
					out[i] = list[i]
				}
				return out, true
			}
		}
	}
	return nil, false
}

func tasksFromList(items []any, strict bool) ([]Task, bool) {
	if len(items) == 0 {
		return nil, false
	}
	tasks := make([]Task, 0, len(items))
	for _, item := range items {
		rec, ok := item.(map[string]any)
		if !ok || !isTaskRecord(rec) {
			return nil, false
		}
		task := taskFromRecord(rec)
		if strict && (task.Name == "" || task.Agent == "") {
			return nil, false
		}
		tasks = append(tasks, task)
	}
	return tasks, true
}

// tasksFromMap handles {"task_1": {...}, "task_2": {...}}; a record without a
// name takes its key.
func tasksFromMap(m map[string]any) ([]Task, bool) {
	tasks := make([]Task, 0, len(m))
	for _, k := range sortedKeys(m) {
		rec, ok := m[k].(map[string]any)
		if !ok || !isTaskRecord(rec) {
			return nil, false
		}
		task := taskFromRecord(rec)
		if task.Name == "" {
			task.Name = k
		}
		tasks = append(tasks, task)
	}
	return tasks, true
}
