// Package filematch assigns input files to schema sides by matching file
// basenames against each side's declared patterns.
package filematch

import (
	"path/filepath"
	"regexp"
	"strings"

	"reconciliation-task-service/internal/schema"
	"reconciliation-task-service/pkg/errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Classify assigns every file to exactly one side. Sides are tried in
// declaration order and the first side with a matching pattern claims the
// file, so overlapping patterns resolve deterministically. A file no side
// claims fails the whole classification with file_unclassified.
//
// The returned map holds the files of each side in input order; sides that
// claimed nothing are present with an empty slice, which downstream treats
// as an empty side.
func Classify(files []string, s *schema.Schema) (map[string][]string, error) {
	assignments := make(map[string][]string, len(s.SideOrder))
	for _, side := range s.SideOrder {
		assignments[side] = []string{}
	}

	for _, file := range files {
		side, err := classifyOne(file, s)
		if err != nil {
			return nil, err
		}
		assignments[side] = append(assignments[side], file)
	}
	return assignments, nil
}

func classifyOne(file string, s *schema.Schema) (string, error) {
	base := filepath.Base(file)
	for _, sideName := range s.SideOrder {
		for _, pattern := range s.Sides[sideName].FilePatterns {
			ok, err := matchPattern(pattern, base)
			if err != nil {
				// Patterns are syntax-checked at schema validation, so a
				// failure here means the schema was mutated after the fact.
				return "", errors.SchemaError("file pattern "+pattern+" no longer compiles", err)
			}
			if ok {
				return sideName, nil
			}
		}
	}
	return "", errors.FileError(errors.CodeFileUnclassified, file, nil)
}

// matchPattern matches a basename against one pattern: a glob by default,
// or a regular expression when prefixed with re:.
func matchPattern(pattern, name string) (bool, error) {
	if rest, ok := strings.CutPrefix(pattern, schema.RegexPatternPrefix); ok {
		re, err := regexp.Compile(rest)
		if err != nil {
			return false, err
		}
		return re.MatchString(name), nil
	}
	return doublestar.Match(pattern, name)
}

// Basenames maps each side's assigned paths to basenames, the shape kept
// in result metadata.
func Basenames(assignments map[string][]string) map[string][]string {
	out := make(map[string][]string, len(assignments))
	for side, paths := range assignments {
		names := make([]string, len(paths))
		for i, p := range paths {
			names[i] = filepath.Base(p)
		}
		out[side] = names
	}
	return out
}
