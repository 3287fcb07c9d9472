package evaluator

import (
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// Changes lists the line-level differences between two queries as "- old" and "+ new" items.
func Changes(before, after string) []string {
	before = withTrailingNewline(before)
	after = withTrailingNewline(after)
	if before == after {
		return nil
	}

	edits := myers.ComputeEdits(span.URIFromPath("before.sql"), before, after)
	unified := gotextdiff.ToUnified("before.sql", "after.sql", before, edits)

	var changes []string
	for _, h := range unified.Hunks {
		for _, l := range h.Lines {
			line := strings.TrimRight(l.Content, "\r\n")
			switch l.Kind {
			case gotextdiff.Delete:
				changes = append(changes, "- "+line)
			case gotextdiff.Insert:
				changes = append(changes, "+ "+line)
			}
		}
	}
	return changes
}

func withTrailingNewline(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return s + "\n"
}
