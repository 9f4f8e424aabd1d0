package diff

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"freesync/internal/merkle"
)

// Stats summarizes a set of structural differences. Files counts the
// leaves under created and deleted nodes plus every changed leaf.
type Stats struct {
	Created int
	Deleted int
	Changed int
	Files   int
}

func (s Stats) Empty() bool {
	return s.Created+s.Deleted+s.Changed == 0
}

func (s Stats) String() string {
	return fmt.Sprintf("%d created, %d deleted, %d modified (%d files)", s.Created, s.Deleted, s.Changed, s.Files)
}

// Summarize counts diffs by kind. base is the snapshot the diffs apply to
// and is used to size deleted subtrees; it may be nil.
func Summarize(base *merkle.Tree, diffs []merkle.Diff) Stats {
	var s Stats
	for _, d := range diffs {
		switch d.Kind {
		case merkle.Created:
			s.Created++
			if d.Node != nil {
				s.Files += merkle.CountLeaves(d.Node)
			}
		case merkle.Deleted:
			s.Deleted++
			if base != nil {
				if n := base.Find(d.Path); n != nil {
					s.Files += merkle.CountLeaves(n)
					continue
				}
			}
			s.Files++
		case merkle.Changed:
			s.Changed++
			s.Files++
		}
	}
	return s
}

type Options struct {
	// Root makes printed paths relative to it.
	Root string
	// Text adds a unified diff for every changed file. It needs Base.
	Text    bool
	Base    *merkle.Tree
	Context int
}

var (
	createdColor = color.New(color.FgGreen)
	deletedColor = color.New(color.FgRed)
	changedColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgCyan)
)

// Format writes one "A", "D" or "M" line per diff and, with Options.Text,
// the colored unified diff of each modified file.
func Format(w io.Writer, diffs []merkle.Diff, opts Options) error {
	for _, d := range diffs {
		path := displayPath(opts.Root, d.Path)
		switch d.Kind {
		case merkle.Created:
			if _, err := createdColor.Fprintf(w, "A %s\n", path); err != nil {
				return err
			}
		case merkle.Deleted:
			if _, err := deletedColor.Fprintf(w, "D %s\n", path); err != nil {
				return err
			}
		case merkle.Changed:
			if _, err := changedColor.Fprintf(w, "M %s\n", path); err != nil {
				return err
			}
			if opts.Text {
				if err := formatText(w, d, path, opts); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func formatText(w io.Writer, d merkle.Diff, path string, opts Options) error {
	text, err := unifiedFor(opts.Base, d, path, opts.Context)
	if err != nil {
		return err
	}
	return printColored(w, text)
}

// unifiedFor rebuilds the new content of a changed leaf by applying its
// edit script to the base leaf and diffs the two as text.
func unifiedFor(base *merkle.Tree, d merkle.Diff, path string, context int) (string, error) {
	if base == nil {
		return "", fmt.Errorf("rendering %s: no base snapshot", path)
	}
	old, ok := base.Find(d.Path).(*merkle.Leaf)
	if !ok {
		return "", fmt.Errorf("rendering %s: not a file in the base snapshot", path)
	}

	before, err := old.Content()
	if err != nil {
		return "", err
	}
	patched := merkle.Clone(old).(*merkle.Leaf)
	if err := patched.Apply(d.Changes); err != nil {
		return "", fmt.Errorf("rendering %s: %w", path, err)
	}
	after, err := patched.Content()
	if err != nil {
		return "", err
	}

	if context <= 0 {
		context = DefaultContext
	}
	return Unified("a/"+path, "b/"+path, before, after, context)
}

// ChangedLines totals the lines added and removed across the modified
// files of diffs.
func ChangedLines(base *merkle.Tree, diffs []merkle.Diff) (LineStats, error) {
	var total LineStats
	for _, d := range diffs {
		if d.Kind != merkle.Changed {
			continue
		}
		text, err := unifiedFor(base, d, d.Path, DefaultContext)
		if err != nil {
			return LineStats{}, err
		}
		lines := CountLines(text)
		total.Additions += lines.Additions
		total.Deletions += lines.Deletions
	}
	return total, nil
}

func printColored(w io.Writer, text string) error {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		var err error
		switch {
		case strings.HasPrefix(line, "@@"):
			_, err = headerColor.Fprint(w, line)
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			_, err = fmt.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			_, err = added.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			_, err = removed.Fprint(w, line)
		default:
			_, err = fmt.Fprint(w, line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func displayPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
