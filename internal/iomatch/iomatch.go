// Package iomatch implements the input/output classifier: turning a task's
// declared input/output patterns into concrete file lists and computing
// which of them are out of date.
//
// Glob expansion uses github.com/bmatcuk/doublestar/v4 (the pack's own
// grafana-loki carries it for exactly this job) instead of the standard
// library's path/filepath.Glob, because doublestar understands "**" for
// recursive matching and still sorts results by path, which the classifier
// needs for deterministic ordering.
package iomatch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vk/pake/internal/pakeerr"
)

// Result holds everything the classifier derives for one task at the
// moment it is evaluated.
type Result struct {
	ConcreteInputs  []string
	ConcreteOutputs []string
	OutdatedInputs  []string
	OutdatedOutputs []string
	OutdatedPairs   [][2]string
	Outdated        bool
}

// isGlobPattern reports whether s contains glob metacharacters.
func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// isDerivedPattern reports whether s is a "%"-substitution output template.
// Exactly one "%" is expected; classify rejects anything else.
func isDerivedPattern(s string) bool {
	return strings.Contains(s, "%")
}

// Stem returns a path's basename without its final extension, the
// substitution used when expanding a derived output pattern.
func Stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// Classify expands taskInputs/taskOutputs relative to root (the process
// working directory, typically) and computes freshness. taskName is used
// only to annotate MissingInput errors.
func Classify(root, taskName string, taskInputs, taskOutputs []string) (*Result, error) {
	fsys := os.DirFS(root)

	concreteInputs, err := expandInputs(fsys, root, taskName, taskInputs)
	if err != nil {
		return nil, err
	}

	concreteOutputs, err := expandOutputs(fsys, root, concreteInputs, taskOutputs)
	if err != nil {
		return nil, err
	}

	res := &Result{ConcreteInputs: concreteInputs, ConcreteOutputs: concreteOutputs}

	// Phony: declared (not concrete) collections are both empty.
	if len(taskInputs) == 0 && len(taskOutputs) == 0 {
		res.Outdated = true
		return res, nil
	}

	if len(concreteInputs) == len(concreteOutputs) {
		classifySymmetric(root, res)
	} else {
		classifyAsymmetric(root, res)
	}
	return res, nil
}

func expandInputs(fsys fs.FS, root, taskName string, patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, p := range patterns {
		if isDerivedPattern(p) {
			return nil, fmt.Errorf("iomatch: task %q: derived pattern %q is only valid as an output", taskName, p)
		}
		var matches []string
		if isGlobPattern(p) {
			var err error
			matches, err = doublestar.Glob(fsys, p)
			if err != nil {
				return nil, fmt.Errorf("iomatch: task %q: bad glob %q: %w", taskName, p, err)
			}
			sort.Strings(matches)
		} else {
			if _, err := os.Stat(filepath.Join(root, p)); err != nil {
				return nil, &pakeerr.MissingInput{Task: taskName, Path: p}
			}
			matches = []string{p}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func expandOutputs(fsys fs.FS, root string, concreteInputs, patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		switch {
		case isDerivedPattern(p):
			if strings.Count(p, "%") != 1 {
				return nil, fmt.Errorf("iomatch: derived pattern %q must contain exactly one %%", p)
			}
			for _, in := range concreteInputs {
				out = append(out, strings.Replace(p, "%", Stem(in), 1))
			}
		case isGlobPattern(p):
			matches, err := doublestar.Glob(fsys, p)
			if err != nil {
				return nil, fmt.Errorf("iomatch: bad glob %q: %w", p, err)
			}
			sort.Strings(matches)
			out = append(out, matches...)
		default:
			out = append(out, p)
		}
	}
	_ = root
	return out, nil
}

func mtime(root, path string) (time.Time, bool) {
	info, err := os.Stat(filepath.Join(root, path))
	if err != nil {
		return time.Time{}, false
	}
	// Directories participate using their own mtime, never a recursive scan
	// of their contents — preserved verbatim from the source design note.
	return info.ModTime(), true
}

func classifySymmetric(root string, res *Result) {
	for i, in := range res.ConcreteInputs {
		out := res.ConcreteOutputs[i]
		outdated := false
		outMTime, outExists := mtime(root, out)
		if !outExists {
			outdated = true
		} else if inMTime, ok := mtime(root, in); ok && inMTime.After(outMTime) {
			outdated = true
		}
		if outdated {
			res.OutdatedInputs = append(res.OutdatedInputs, in)
			res.OutdatedOutputs = append(res.OutdatedOutputs, out)
			res.OutdatedPairs = append(res.OutdatedPairs, [2]string{in, out})
		}
	}
	res.Outdated = len(res.OutdatedPairs) > 0
}

func classifyAsymmetric(root string, res *Result) {
	var maxIn time.Time
	haveIn := false
	for _, in := range res.ConcreteInputs {
		if t, ok := mtime(root, in); ok {
			if !haveIn || t.After(maxIn) {
				maxIn = t
			}
			haveIn = true
		}
	}

	var minOut time.Time
	haveOut := true
	anyOutMissing := len(res.ConcreteOutputs) == 0
	for _, out := range res.ConcreteOutputs {
		t, ok := mtime(root, out)
		if !ok {
			anyOutMissing = true
			continue
		}
		if minOut.IsZero() || t.Before(minOut) {
			minOut = t
		}
	}
	if len(res.ConcreteOutputs) == 0 {
		haveOut = false
	}

	outdated := anyOutMissing || (haveIn && haveOut && maxIn.After(minOut))
	res.Outdated = outdated
	if outdated {
		res.OutdatedInputs = append([]string{}, res.ConcreteInputs...)
		res.OutdatedOutputs = append([]string{}, res.ConcreteOutputs...)
	}
}
