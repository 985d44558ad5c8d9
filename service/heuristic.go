package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	numberedLine = regexp.MustCompile(`^\s*(?:[-*]\s*)?(?:#+\s*)?\**\d+[.)]\**(?:\s+|$)`)
	fieldKey     = regexp.MustCompile(`(?i)(?:\*\*)?\b(task[ _]name|agent[ _]name|agent[ _]task|agent|objective|instructions?|expected[ _]output|required[ _]context|depends[ _]on|dependencies)\b(?:\*\*)?\s*:`)
)

// Heuristic is the last-resort tier: split numbered or blank-line separated
// text into blocks and pull "key: value" pairs out of each.
// A block without any recognizable key is kept as one free-text task.
type Heuristic struct{}

func (Heuristic) Name() string { return "heuristic" }

func (Heuristic) Recover(_ context.Context, text string) ([]Task, error) {
	blocks := splitBlocks(text)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no text blocks", ErrNoTaskList)
	}
	tasks := make([]Task, 0, len(blocks))
	for _, block := range blocks {
		tasks = append(tasks, taskFromBlock(block))
	}
	return tasks, nil
}

// splitBlocks groups lines into blocks; a numbered line starts a new block
// and a blank line closes the current one.
func splitBlocks(text string) []string {
	var blocks []string
	var curr []string
	flush := func() {
		if len(curr) > 0 {
			blocks = append(blocks, strings.Join(curr, "\n"))
			curr = nil
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if loc := numberedLine.FindStringIndex(line); loc != nil {
			flush()
			trimmed = strings.TrimSpace(line[loc[1]:])
			if trimmed == "" {
				continue
			}
		}
		curr = append(curr, trimmed)
	}
	flush()
	return blocks
}

// fieldKeys returns the key matches that open a field: at the start of a
// line or after a ";", "," or "|" separator. A key word inside a value is text.
func fieldKeys(block string) [][]int {
	var keys [][]int
	for _, m := range fieldKey.FindAllStringSubmatchIndex(block, -1) {
		lineStart := strings.LastIndexByte(block[:m[0]], '\n') + 1
		prefix := strings.Trim(block[lineStart:m[0]], " \t*-#>")
		if prefix == "" || strings.ContainsAny(prefix[len(prefix)-1:], ";,|") {
			keys = append(keys, m)
		}
	}
	return keys
}

func taskFromBlock(block string) Task {
	matches := fieldKeys(block)
	if len(matches) == 0 {
		return Task{Instructions: strings.Join(strings.Fields(block), " "), RequiredContext: []string{}}
	}
	fields := make(map[string]string, len(matches))
	for i, m := range matches {
		end := len(block)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		key := normalizeKey(block[m[2]:m[3]])
		value := strings.Join(strings.Fields(block[m[1]:end]), " ")
		value = strings.Trim(strings.TrimRight(value, ";,|"), "*`\"' ")
		if _, seen := fields[key]; !seen {
			fields[key] = value
		}
	}
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := fields[k]; v != "" {
				return v
			}
		}
		return ""
	}
	task := Task{
		Name:           first("task_name"),
		Agent:          first("agent_name", "agent"),
		Objective:      first("agent_task", "objective"),
		Instructions:   first("instructions", "instruction"),
		ExpectedOutput: first("expected_output"),
	}
	if ctx := first("required_context", "depends_on", "dependencies"); ctx != "" {
		task.RequiredContext = contextList(ctx)
	}
	if task.Objective == "" {
		task.Objective = task.Instructions
	}
	return task
}
