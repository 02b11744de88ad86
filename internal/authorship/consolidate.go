package authorship

import (
	"fmt"
	"sort"
)

// BlobFunc resolves the blob object id a path is being committed with.
// Empty means the path has no blob in the commit (deleted).
type BlobFunc func(path string) (string, error)

// ConsolidateRequest carries everything needed to fold a working log
// into the attribution record for one new commit.
type ConsolidateRequest struct {
	// CommitSHA is the commit the resulting log attaches to.
	CommitSHA string

	// Initial is attribution carried over from the previous base
	// (edits that were live but uncommitted when that base was made).
	Initial        []FileAttributionEntry
	InitialPrompts map[string]PromptRecord

	// Checkpoints are the working log records for the base, oldest
	// first.
	Checkpoints []Checkpoint

	// CommittedPaths lists the paths the commit actually changed.
	CommittedPaths []string

	// DirtyPaths marks paths that still differ from what was staged;
	// their attribution stays live for the next base.
	DirtyPaths map[string]bool

	// StagedBlob validates entry content against what is committed.
	StagedBlob BlobFunc
}

// Consolidation is the outcome of a fold: the log to store, the
// attribution that stays live, and anything rejected.
type Consolidation struct {
	Log          *Log
	Carry        []FileAttributionEntry
	CarryPrompts map[string]PromptRecord

	// DroppedPaths had attribution but no entry matching the committed
	// content; callers should surface these as warnings.
	DroppedPaths []string
}

// sequenced pairs an entry with its append order so ties between equal
// timestamps resolve to the most recently appended attribution.
type sequenced struct {
	seq   int
	entry FileAttributionEntry
}

// Consolidate folds checkpoints into the immutable attribution log for
// a commit. Per line the latest timestamp wins; equal timestamps go to
// the most recently appended entry. Only entries whose blob matches
// the committed content participate, which also guarantees that every
// merged entry describes the same line coordinates.
func Consolidate(req ConsolidateRequest) (*Consolidation, error) {
	if req.CommitSHA == "" {
		return nil, fmt.Errorf("consolidate: empty commit sha")
	}
	for i := range req.Checkpoints {
		if err := req.Checkpoints[i].Validate(); err != nil {
			return nil, err
		}
	}

	byPath := map[string][]sequenced{}
	seq := 0
	record := func(entries []FileAttributionEntry) {
		for _, e := range entries {
			byPath[e.Path] = append(byPath[e.Path], sequenced{seq: seq, entry: e})
			seq++
		}
	}
	record(req.Initial)
	for _, cp := range req.Checkpoints {
		record(cp.Entries)
	}

	sessions := collectSessions(req.InitialPrompts, req.Checkpoints)

	committed := make(map[string]bool, len(req.CommittedPaths))
	for _, p := range req.CommittedPaths {
		committed[p] = true
	}

	out := &Consolidation{
		Log:          NewLog(req.CommitSHA),
		CarryPrompts: map[string]PromptRecord{},
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	carryAuthors := map[string]bool{}
	for _, path := range paths {
		entries := byPath[path]
		latest := entries[len(entries)-1].entry

		if committed[path] {
			blob, err := req.StagedBlob(path)
			if err != nil {
				return nil, fmt.Errorf("consolidate %s: %w", path, err)
			}
			switch {
			case blob == "":
				// Deleted by this commit; nothing left to attest.
			default:
				var matching []sequenced
				for _, se := range entries {
					if se.entry.BlobSHA == blob {
						matching = append(matching, se)
					}
				}
				if len(matching) == 0 {
					out.DroppedPaths = append(out.DroppedPaths, path)
				} else if authors := mergeLines(matching); len(authors) > 0 {
					out.Log.SetFileAuthors(path, authors)
				}
			}
			if !req.DirtyPaths[path] {
				continue
			}
			// Staged part is committed but the worktree moved on:
			// the latest state stays live below.
		}

		if len(latest.Lines) == 0 {
			continue
		}
		out.Carry = append(out.Carry, latest)
		for _, la := range latest.Lines {
			carryAuthors[la.AuthorID] = true
		}
	}

	accepted := out.Log.AcceptedLineCounts()
	for id, rec := range sessions {
		rec.AcceptedLines = accepted[id]
		out.Log.Metadata.Prompts[id] = rec
		if carryAuthors[id] {
			out.CarryPrompts[id] = rec
		}
	}
	return out, nil
}

// mergeLines resolves the winning attribution per line across entries
// that all describe identical content.
func mergeLines(entries []sequenced) map[int]string {
	type winner struct {
		seq int
		la  LineAttribution
	}
	wins := map[int]winner{}
	for _, se := range entries {
		for _, la := range se.entry.Lines {
			cur, ok := wins[la.Line]
			if !ok || la.Timestamp > cur.la.Timestamp ||
				(la.Timestamp == cur.la.Timestamp && se.seq > cur.seq) {
				wins[la.Line] = winner{seq: se.seq, la: la}
			}
		}
	}
	authors := make(map[int]string, len(wins))
	for line, w := range wins {
		authors[line] = w.la.AuthorID
	}
	return authors
}

// collectSessions folds AI checkpoints into one prompt record per
// author: churn counters accumulate, the transcript and agent identity
// come from the most recent checkpoint.
func collectSessions(initial map[string]PromptRecord, checkpoints []Checkpoint) map[string]PromptRecord {
	sessions := map[string]PromptRecord{}
	for id, rec := range initial {
		sessions[id] = rec
	}
	for _, cp := range checkpoints {
		if cp.Kind != KindAIAgent || cp.AgentID == nil {
			continue
		}
		id := cp.AuthorID()
		rec := sessions[id]
		rec.AgentID = *cp.AgentID
		rec.TotalAdditions += cp.Stats.Additions
		rec.TotalDeletions += cp.Stats.Deletions
		if len(cp.Transcript) > 0 {
			rec.Messages = cp.Transcript
		}
		sessions[id] = rec
	}
	return sessions
}
