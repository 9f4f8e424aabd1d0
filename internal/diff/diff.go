// Package diff renders snapshot differences for people: a summary of
// created, deleted and modified paths and unified text diffs of changed
// files.
package diff

import (
	"fmt"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

const DefaultContext = 3

// LineStats counts the lines a unified diff adds and removes.
type LineStats struct {
	Additions int
	Deletions int
}

func (l LineStats) String() string {
	return fmt.Sprintf("+%d -%d lines", l.Additions, l.Deletions)
}

// Unified produces a unified diff of a and b. It returns "" when the
// contents are equal.
func Unified(aName, bName string, a, b []byte, context int) (string, error) {
	if context < 0 {
		context = DefaultContext
	}
	u := difflib.UnifiedDiff{
		A:        splitLines(string(a)),
		B:        splitLines(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  context,
	}
	return difflib.GetUnifiedDiffString(u)
}

// CountLines tallies the added and removed lines of a unified diff.
func CountLines(unified string) LineStats {
	var stats LineStats
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			stats.Additions++
		case strings.HasPrefix(line, "-"):
			stats.Deletions++
		}
	}
	return stats
}

// splitLines keeps the newline of every line; a missing final newline is
// added so hunks stay one line per row.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if last := lines[len(lines)-1]; !strings.HasSuffix(last, "\n") {
		lines[len(lines)-1] = last + "\n"
	}
	return lines
}
