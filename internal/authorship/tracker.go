package authorship

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Advance computes the attribution state for one file after an edit
// round. prev is the complete prior state (line numbers refer to
// oldText); the result refers to newText. Added lines are claimed by
// authorID at ts; lines replacing someone else's line record the
// superseded author in Overrode. Attributions on deleted lines drop.
//
// passThrough shifts existing attributions through the diff without
// claiming anything, used when content moves without being authored
// (squash merges, branch switches).
func Advance(prev []LineAttribution, oldText, newText, authorID string, ts int64, passThrough bool) ([]LineAttribution, LineStats) {
	prevAt := make(map[int]LineAttribution, len(prev))
	for _, la := range prev {
		prevAt[la.Line] = la
	}

	dmp := diffmatchpatch.New()
	c1, c2, arr := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), arr)

	var next []LineAttribution
	var stats LineStats
	oldLine, newLine := 1, 1
	claim := func(pos int, overrode string) {
		la := LineAttribution{Line: pos, AuthorID: authorID, Timestamp: ts}
		if overrode != "" && overrode != authorID {
			la.Overrode = overrode
		}
		next = append(next, la)
	}

	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for k := 0; k < n; k++ {
				if la, ok := prevAt[oldLine+k]; ok {
					la.Line = newLine + k
					next = append(next, la)
				}
			}
			oldLine += n
			newLine += n

		case diffmatchpatch.DiffDelete:
			stats = stats.Add(textStats(d.Text, false))
			// A delete immediately followed by an insert is a
			// replacement: pair the lines so Overrode records who was
			// overwritten.
			ins := 0
			var insText string
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				insText = diffs[i+1].Text
				ins = countLines(insText)
				stats = stats.Add(textStats(insText, true))
				i++
			}
			if !passThrough {
				for k := 0; k < ins; k++ {
					overrode := ""
					if k < n {
						if old, ok := prevAt[oldLine+k]; ok {
							overrode = old.AuthorID
						}
					}
					claim(newLine+k, overrode)
				}
			}
			oldLine += n
			newLine += ins

		case diffmatchpatch.DiffInsert:
			stats = stats.Add(textStats(d.Text, true))
			if !passThrough {
				for k := 0; k < n; k++ {
					claim(newLine+k, "")
				}
			}
			newLine += n
		}
	}

	sortLines(next)
	return next, stats
}

// ContentFingerprint hashes the (path, blob) pairs of a checkpoint so
// back-to-back observations of an unchanged tree can be deduplicated.
func ContentFingerprint(entries []FileAttributionEntry) string {
	pairs := make([]string, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, e.Path+"\x00"+e.BlobSHA)
	}
	sort.Strings(pairs)
	h := sha256.New()
	for _, p := range pairs {
		fmt.Fprintf(h, "%s\n", p)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// textStats counts churn for one diff hunk; added selects which side
// of the stats the lines land on.
func textStats(text string, added bool) LineStats {
	var s LineStats
	if text == "" {
		return s
	}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		sloc := strings.TrimSpace(line) != ""
		if added {
			s.Additions++
			if sloc {
				s.AdditionsSLOC++
			}
		} else {
			s.Deletions++
			if sloc {
				s.DeletionsSLOC++
			}
		}
	}
	return s
}
