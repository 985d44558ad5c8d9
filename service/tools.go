package service

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrOutsideRoot = errors.New("documents: path escapes the document root")

// documentPath resolves file inside root, following symlinks. Both the
// lexical path and its resolved target must stay under root.
func documentPath(root string, file string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	path = filepath.Clean(path)
	if !within(absRoot, path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, file)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	if !within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, file)
	}
	return realPath, nil
}

func within(root string, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// mergeRanges sorts 1-based [start, end] ranges and merges overlapping ones.
func mergeRanges(lines [][]int) [][]int {
	valid := [][]int{}
	for _, line := range lines {
		if len(line) == 2 && line[0] >= 1 && line[0] <= line[1] {
			valid = append(valid, []int{line[0], line[1]})
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		return valid[i][0] < valid[j][0]
	})
	merged := [][]int{}
	for _, r := range valid {
		if n := len(merged); n > 0 && r[0] <= merged[n-1][1]+1 {
			merged[n-1][1] = max(merged[n-1][1], r[1])
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// ViewDocument returns the requested line ranges of a document under root,
// each line prefixed with its number.
func ViewDocument(root string, file string, lines [][]int) (string, error) {
	path, err := documentPath(root, file)
	if err != nil {
		return "", err
	}
	ranges := mergeRanges(lines)
	if len(ranges) == 0 {
		return "", fmt.Errorf("no valid line range for %s", file)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var builder strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	idx := 0
	currentLine := 1
	for scanner.Scan() && idx < len(ranges) {
		if currentLine >= ranges[idx][0] {
			builder.WriteString(fmt.Sprintf("%d|%s\n", currentLine, scanner.Text()))
		}
		if currentLine == ranges[idx][1] {
			idx++
		}
		currentLine++
	}
	return builder.String(), scanner.Err()
}

type DocumentHit struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SearchDocuments returns up to limit lines under root containing every
// whitespace-separated term of query, case-insensitively.
func SearchDocuments(root string, query string, limit int) ([]DocumentHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 20
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	hits := []DocumentHit{}
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("skipping unreadable document path")
			return nil
		}
		if d.IsDir() {
			if path != absRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(absRoot, path)
		if d.Type()&fs.ModeSymlink != 0 {
			if _, err := documentPath(absRoot, rel); err != nil {
				log.Warn().Err(err).Str("file", rel).Msg("skipping document link")
				return nil
			}
		}
		found, err := searchFile(path, filepath.ToSlash(rel), terms, limit-len(hits))
		hits = append(hits, found...)
		if err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("skipping rest of unreadable document")
		}
		if len(hits) >= limit {
			return filepath.SkipAll
		}
		return nil
	})
	return hits, err
}

// searchFile returns up to limit lines of path containing every term.
// Hits found before a read error are returned along with it.
func searchFile(path string, rel string, terms []string, limit int) ([]DocumentHit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hits []DocumentHit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		lower := strings.ToLower(text)
		match := true
		for _, term := range terms {
			if !strings.Contains(lower, term) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		hits = append(hits, DocumentHit{File: rel, Line: line, Text: strings.TrimSpace(text)})
		if len(hits) >= limit {
			return hits, nil
		}
	}
	return hits, scanner.Err()
}
