package service

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var taskReference = regexp.MustCompile(`(?i)\btask[ _]?(?:#|no\.?|number)?\s*(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\b`)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

// InferMissingDependencies backfills required_context for tasks that declare
// none but mention "task N" in their instructions or objective. Only
// references to strictly earlier positions are kept. tasks is modified in place.
func InferMissingDependencies(tasks []Task) []Task {
	for i := range tasks {
		if len(tasks[i].RequiredContext) > 0 {
			continue
		}
		var inferred []string
		for _, pos := range referencedPositions(tasks[i].Instructions + "\n" + tasks[i].Objective) {
			if pos < 1 || pos > i {
				continue
			}
			name := tasks[pos-1].Name
			if name == "" || slices.Contains(inferred, name) {
				continue
			}
			inferred = append(inferred, name)
		}
		if len(inferred) > 0 {
			log.Debug().Str("task", tasks[i].Name).Strs("context", inferred).Msg("inferred dependencies from instructions")
			tasks[i].RequiredContext = inferred
		}
	}
	return tasks
}

// referencedPositions returns the 1-based task positions mentioned in text.
func referencedPositions(text string) []int {
	var out []int
	for _, m := range taskReference.FindAllStringSubmatch(text, -1) {
		ref := strings.ToLower(m[1])
		if n, ok := numberWords[ref]; ok {
			out = append(out, n)
			continue
		}
		if n, err := strconv.Atoi(ref); err == nil {
			out = append(out, n)
		}
	}
	return out
}
