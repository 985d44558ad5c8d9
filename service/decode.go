package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// decodeTaskList parses text as one JSON document holding a task list.
func decodeTaskList(text string, strict bool) ([]Task, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return nil, ErrNoTaskList
	}
	var v any
	if err := unmarshalFlex([]byte(text), &v); err != nil {
		return nil, err
	}
	if isEmptyTaskList(v) {
		if m, ok := v.(map[string]any); ok && strict && len(m) == 0 {
			return nil, ErrNoTaskList
		}
		return nil, ErrEmptyTaskList
	}
	tasks, ok := tasksFromValue(v, strict)
	if !ok {
		return nil, ErrNoTaskList
	}
	return tasks, nil
}

// unmarshalFlex decodes raw into v, unwrapping a document that was itself
// encoded as a JSON string.
func unmarshalFlex(raw []byte, v *any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		s, ok := (*v).(string)
		if !ok {
			return nil
		}
		var inner any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &inner); err != nil {
			return nil
		}
		*v = inner
	}
	return nil
}

// DirectDecode is tier 1: the whole text is the task-list document.
type DirectDecode struct{}

func (DirectDecode) Name() string { return "direct_decode" }

func (DirectDecode) Recover(_ context.Context, text string) ([]Task, error) {
	return decodeTaskList(text, false)
}

var fencedBlock = regexp.MustCompile("(?s)```[ \\t]*[A-Za-z0-9_+-]*[ \\t]*\\r?\\n?(.*?)```")

// FencedBlock is tier 2: direct decode of each fenced code block, in order.
type FencedBlock struct{}

func (FencedBlock) Name() string { return "fenced_block" }

func (FencedBlock) Recover(_ context.Context, text string) ([]Task, error) {
	matches := fencedBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no fenced block", ErrTierSkipped)
	}
	var lastErr error
	sawEmpty := false
	for _, m := range matches {
		tasks, err := decodeTaskList(m[1], false)
		if err == nil {
			return tasks, nil
		}
		sawEmpty = sawEmpty || errors.Is(err, ErrEmptyTaskList)
		lastErr = err
	}
	if sawEmpty {
		return nil, ErrEmptyTaskList
	}
	return nil, lastErr
}

// BraceScan is tier 3: among all maximal balanced {...} substrings, the
// longest one that decodes to a schema-conforming task_list wins.
type BraceScan struct{}

func (BraceScan) Name() string { return "brace_scan" }

func (BraceScan) Recover(_ context.Context, text string) ([]Task, error) {
	candidates := balancedObjects(text)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no balanced object", ErrTierSkipped)
	}
	var best []Task
	bestLen := -1
	sawEmpty := false
	for _, c := range candidates {
		if len(c) <= bestLen {
			continue
		}
		tasks, err := decodeTaskList(c, true)
		if err != nil {
			sawEmpty = sawEmpty || errors.Is(err, ErrEmptyTaskList)
			continue
		}
		best, bestLen = tasks, len(c)
	}
	if best == nil && sawEmpty {
		return nil, ErrEmptyTaskList
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %d candidates, none matched the task_list schema", ErrNoTaskList, len(candidates))
	}
	return best, nil
}

// balancedObjects returns every top-level balanced brace span of s.
// An opening brace that never closes is skipped rather than swallowing the rest.
func balancedObjects(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			continue
		}
		out = append(out, s[i:end+1])
		i = end
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
