package authorship

import "sort"

// LineRange is an inclusive run of attributed lines.
type LineRange struct {
	Start int
	End   int
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Lines returns the number of lines covered.
func (r LineRange) Lines() int {
	return r.End - r.Start + 1
}

// AttestationEntry assigns a set of line ranges to one author.
type AttestationEntry struct {
	AuthorID string
	Ranges   []LineRange
}

// lineCount sums the lines covered by every range.
func (e AttestationEntry) lineCount() int {
	n := 0
	for _, r := range e.Ranges {
		n += r.Lines()
	}
	return n
}

// FileAttestation holds every author's claims for one path.
type FileAttestation struct {
	Path    string
	Entries []AttestationEntry
}

// AuthorAt resolves the author covering line, or "" when no entry
// covers it.
func (f *FileAttestation) AuthorAt(line int) string {
	for _, e := range f.Entries {
		for _, r := range e.Ranges {
			if r.Contains(line) {
				return e.AuthorID
			}
		}
	}
	return ""
}

// Entry expands the attestation into per-line attributions, all stamped
// with ts and bound to blobSHA. Used when rebuilding working-log state
// from committed records.
func (f *FileAttestation) Entry(blobSHA string, ts int64) FileAttributionEntry {
	var lines []LineAttribution
	for _, e := range f.Entries {
		for _, r := range e.Ranges {
			for n := r.Start; n <= r.End; n++ {
				lines = append(lines, LineAttribution{Line: n, AuthorID: e.AuthorID, Timestamp: ts})
			}
		}
	}
	sortLines(lines)
	return FileAttributionEntry{Path: f.Path, BlobSHA: blobSHA, Lines: lines}
}

// PromptRecord preserves the conversation behind one AI session plus
// its contribution counters.
type PromptRecord struct {
	AgentID        AgentID   `json:"agent_id"`
	Messages       []Message `json:"messages,omitempty"`
	AcceptedLines  int       `json:"accepted_lines"`
	TotalAdditions int       `json:"total_additions"`
	TotalDeletions int       `json:"total_deletions"`
}

// Metadata is the JSON trailer of a serialized log.
type Metadata struct {
	SchemaVersion string                  `json:"schema_version"`
	BaseCommitSHA string                  `json:"base_commit_sha"`
	Prompts       map[string]PromptRecord `json:"prompts"`
}

// Log is the immutable per-commit attribution record stored in git
// notes. One log exists per attributed commit; rewrites produce new
// logs for the rewritten commits instead of mutating old ones.
type Log struct {
	Attestations []FileAttestation
	Metadata     Metadata
}

// NewLog returns an empty log bound to sha.
func NewLog(sha string) *Log {
	return &Log{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			BaseCommitSHA: sha,
			Prompts:       map[string]PromptRecord{},
		},
	}
}

// IsEmpty reports whether the log carries no attestations and no
// prompts. Empty logs are not worth a note.
func (l *Log) IsEmpty() bool {
	return len(l.Attestations) == 0 && len(l.Metadata.Prompts) == 0
}

// File returns the attestation for path, if present.
func (l *Log) File(path string) (*FileAttestation, bool) {
	for i := range l.Attestations {
		if l.Attestations[i].Path == path {
			return &l.Attestations[i], true
		}
	}
	return nil, false
}

// AuthorAt resolves the author covering path:line, or "" when the log
// has no claim there.
func (l *Log) AuthorAt(path string, line int) string {
	f, ok := l.File(path)
	if !ok {
		return ""
	}
	return f.AuthorAt(line)
}

// TouchedPaths lists every attested path in sorted order.
func (l *Log) TouchedPaths() []string {
	paths := make([]string, 0, len(l.Attestations))
	for _, f := range l.Attestations {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths
}

// SetFileAuthors replaces the attestation for path from a line→author
// mapping, collapsing runs into ranges.
func (l *Log) SetFileAuthors(path string, authors map[int]string) {
	byAuthor := map[string][]int{}
	for line, author := range authors {
		byAuthor[author] = append(byAuthor[author], line)
	}
	entries := make([]AttestationEntry, 0, len(byAuthor))
	for author, lines := range byAuthor {
		entries = append(entries, AttestationEntry{
			AuthorID: author,
			Ranges:   rangesFromLines(lines),
		})
	}
	f := FileAttestation{Path: path, Entries: entries}

	for i := range l.Attestations {
		if l.Attestations[i].Path == path {
			l.Attestations[i] = f
			l.normalize()
			return
		}
	}
	l.Attestations = append(l.Attestations, f)
	l.normalize()
}

// AddAttestation inserts f, replacing any existing attestation for the
// same path.
func (l *Log) AddAttestation(f FileAttestation) {
	for i := range l.Attestations {
		if l.Attestations[i].Path == f.Path {
			l.Attestations[i] = f
			l.normalize()
			return
		}
	}
	l.Attestations = append(l.Attestations, f)
	l.normalize()
}

// AcceptedLineCounts tallies attested lines per author across the
// whole log.
func (l *Log) AcceptedLineCounts() map[string]int {
	counts := map[string]int{}
	for _, f := range l.Attestations {
		for _, e := range f.Entries {
			counts[e.AuthorID] += e.lineCount()
		}
	}
	return counts
}

// Clone deep-copies the log so rewrite handling can derive new logs
// without aliasing.
func (l *Log) Clone() *Log {
	out := NewLog(l.Metadata.BaseCommitSHA)
	out.Attestations = make([]FileAttestation, len(l.Attestations))
	for i, f := range l.Attestations {
		nf := FileAttestation{Path: f.Path, Entries: make([]AttestationEntry, len(f.Entries))}
		for j, e := range f.Entries {
			ne := AttestationEntry{AuthorID: e.AuthorID, Ranges: make([]LineRange, len(e.Ranges))}
			copy(ne.Ranges, e.Ranges)
			nf.Entries[j] = ne
		}
		out.Attestations[i] = nf
	}
	for k, p := range l.Metadata.Prompts {
		np := p
		np.Messages = make([]Message, len(p.Messages))
		copy(np.Messages, p.Messages)
		out.Metadata.Prompts[k] = np
	}
	return out
}

// normalize enforces the canonical shape the codec emits: attestations
// sorted by path, entries by author, ranges by start line.
func (l *Log) normalize() {
	for i := range l.Attestations {
		f := &l.Attestations[i]
		for j := range f.Entries {
			sort.Slice(f.Entries[j].Ranges, func(a, b int) bool {
				return f.Entries[j].Ranges[a].Start < f.Entries[j].Ranges[b].Start
			})
		}
		sort.Slice(f.Entries, func(a, b int) bool {
			return f.Entries[a].AuthorID < f.Entries[b].AuthorID
		})
	}
	sort.Slice(l.Attestations, func(a, b int) bool {
		return l.Attestations[a].Path < l.Attestations[b].Path
	})
}

// rangesFromLines collapses a line set into sorted inclusive ranges.
func rangesFromLines(lines []int) []LineRange {
	if len(lines) == 0 {
		return nil
	}
	sort.Ints(lines)
	ranges := []LineRange{{Start: lines[0], End: lines[0]}}
	for _, n := range lines[1:] {
		last := &ranges[len(ranges)-1]
		switch {
		case n == last.End:
			// duplicate line, already covered
		case n == last.End+1:
			last.End = n
		default:
			ranges = append(ranges, LineRange{Start: n, End: n})
		}
	}
	return ranges
}
