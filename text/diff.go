// Package text provides the diff analysis used to describe suggestions:
// line-level addition/deletion counts for feedback events and a similarity
// score for comparing generated lines against buffer content.
package text

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats summarizes a suggestion as line-level additions and deletions
// relative to the text it replaces.
type Stats struct {
	Additions int
	Deletions int
}

// DiffStats computes line-level change counts between oldText and newText.
func DiffStats(oldText, newText string) Stats {
	if oldText == newText {
		return Stats{}
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(chars1, chars2, false)
	lineDiffs := dmp.DiffCharsToLines(diffs, lineArray)

	var s Stats
	for _, d := range lineDiffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.Additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			s.Deletions += countLines(d.Text)
		}
	}
	return s
}

// LineSimilarity scores how alike two lines are, 0 (disjoint) to 1 (equal),
// based on character-level edit distance.
func LineSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	distance := dmp.DiffLevenshtein(diffs)
	return 1 - float64(distance)/float64(longest)
}

// countLines counts the lines covered by a diff fragment. Fragments produced
// by DiffCharsToLines are newline-terminated except possibly the last one.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
