// Package worklog stores the mutable attribution state between commits.
//
// Each base commit gets its own directory under <gitdir>/ai/working_logs
// holding the checkpoints taken since that base (JSONL, append-only) and
// the attribution carried over from the previous base. Consolidation
// consumes a base's log and deletes it; history rewrites rename or
// reconstruct logs so in-flight attribution follows HEAD.
package worklog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/jsonl"
	"github.com/git-ai-project/git-ai/internal/lockfile"
)

// InitialBase names the working log used before any commit exists
// (unborn HEAD).
const InitialBase = "initial"

const (
	checkpointsFile = "checkpoints.jsonl"
	initialFile     = "initial.json"
)

// Store manages every working log in one repository worktree.
type Store struct {
	root string
}

// NewStore roots a store under the repository state dir.
func NewStore(stateDir string) *Store {
	return &Store{root: filepath.Join(stateDir, "working_logs")}
}

// For returns the log handle for a base commit. An empty base maps to
// the unborn-HEAD log.
func (s *Store) For(base string) *Log {
	if base == "" {
		base = InitialBase
	}
	return &Log{base: base, dir: filepath.Join(s.root, base)}
}

// Bases lists every base with a live working log, sorted.
func (s *Store) Bases() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list working logs: %w", err)
	}
	var bases []string
	for _, e := range entries {
		if e.IsDir() && s.For(e.Name()).Exists() {
			bases = append(bases, e.Name())
		}
	}
	sort.Strings(bases)
	return bases, nil
}

// Any reports whether any working log holds state. Hooks use this for
// a cheap early exit in repositories that never saw an agent.
func (s *Store) Any() (bool, error) {
	bases, err := s.Bases()
	return len(bases) > 0, err
}

// Rename moves the log for oldBase to newBase, replacing whatever was
// there. Renaming a log that does not exist is a no-op.
func (s *Store) Rename(oldBase, newBase string) error {
	old, dst := s.For(oldBase), s.For(newBase)
	if old.base == dst.base || !old.Exists() {
		return nil
	}
	if err := os.RemoveAll(dst.dir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dst.dir, err)
	}
	if err := os.Rename(old.dir, dst.dir); err != nil {
		return fmt.Errorf("failed to move working log %s -> %s: %w", old.base, dst.base, err)
	}
	return nil
}

// Delete removes the log for base entirely.
func (s *Store) Delete(base string) error {
	return s.For(base).Delete()
}

// Log is the working log for one base commit.
type Log struct {
	base string
	dir  string
}

// Base returns the commit SHA this log tracks edits on top of.
func (l *Log) Base() string { return l.base }

// Exists reports whether the log holds any state.
func (l *Log) Exists() bool {
	for _, name := range []string{checkpointsFile, initialFile} {
		if _, err := os.Stat(filepath.Join(l.dir, name)); err == nil {
			return true
		}
	}
	return false
}

// Lock serializes writers of this log across processes. Hook
// invocations can re-enter git and spawn further hooks, so appends and
// the reads that precede them take this lock.
func (l *Log) Lock() (release func(), err error) {
	if err := l.ensure(); err != nil {
		return nil, err
	}
	return lockfile.Acquire(filepath.Join(l.dir, "worklog"))
}

// AppendCheckpoint validates cp and appends it.
func (l *Log) AppendCheckpoint(cp *authorship.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	if err := l.ensure(); err != nil {
		return err
	}
	return jsonl.Append(filepath.Join(l.dir, checkpointsFile), cp)
}

// Checkpoints returns every checkpoint in append order. A missing log
// reads as empty.
func (l *Log) Checkpoints() ([]authorship.Checkpoint, error) {
	lines, err := jsonl.ReadLines(filepath.Join(l.dir, checkpointsFile))
	if err != nil {
		return nil, err
	}
	cps := make([]authorship.Checkpoint, 0, len(lines))
	for _, line := range lines {
		var cp authorship.Checkpoint
		if err := json.Unmarshal(line, &cp); err != nil {
			return nil, fmt.Errorf("%w: checkpoint: %v", authorship.ErrDecode, err)
		}
		if err := cp.Validate(); err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// ReplaceCheckpoints atomically rewrites the checkpoint file.
func (l *Log) ReplaceCheckpoints(cps []authorship.Checkpoint) error {
	if err := l.ensure(); err != nil {
		return err
	}
	records := make([]any, len(cps))
	for i := range cps {
		records[i] = &cps[i]
	}
	return jsonl.Rewrite(filepath.Join(l.dir, checkpointsFile), records)
}

// initialState is the on-disk shape of attribution carried over from
// the previous base: edits that were live but uncommitted when that
// base was created, plus the prompt context behind them.
type initialState struct {
	Files   []authorship.FileAttributionEntry  `json:"files"`
	Prompts map[string]authorship.PromptRecord `json:"prompts,omitempty"`
}

// Initial returns the carried-over attribution, if any.
func (l *Log) Initial() ([]authorship.FileAttributionEntry, map[string]authorship.PromptRecord, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, initialFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read %s: %w", initialFile, err)
	}
	var st initialState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", authorship.ErrDecode, initialFile, err)
	}
	return st.Files, st.Prompts, nil
}

// WriteInitial replaces the carried-over attribution. Writing an empty
// state removes the file.
func (l *Log) WriteInitial(files []authorship.FileAttributionEntry, prompts map[string]authorship.PromptRecord) error {
	path := filepath.Join(l.dir, initialFile)
	if len(files) == 0 && len(prompts) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", initialFile, err)
		}
		return nil
	}
	if err := l.ensure(); err != nil {
		return err
	}
	data, err := json.Marshal(initialState{Files: files, Prompts: prompts})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", initialFile, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", initialFile, err)
	}
	return nil
}

// CurrentState resolves the latest complete attribution entry per path
// across the carried-over state and every checkpoint.
func (l *Log) CurrentState() (map[string]authorship.FileAttributionEntry, error) {
	files, _, err := l.Initial()
	if err != nil {
		return nil, err
	}
	state := make(map[string]authorship.FileAttributionEntry, len(files))
	for _, e := range files {
		state[e.Path] = e
	}
	cps, err := l.Checkpoints()
	if err != nil {
		return nil, err
	}
	for _, cp := range cps {
		for _, e := range cp.Entries {
			state[e.Path] = e
		}
	}
	return state, nil
}

// FilterEntries drops attribution for every path keep rejects, in both
// the checkpoints and the carried-over state. Checkpoints left with no
// entries are removed; prompt records survive only while some surviving
// line still references their author. Used after branch switches to
// trim state down to what is actually in flight.
func (l *Log) FilterEntries(keep func(path string) bool) error {
	cps, err := l.Checkpoints()
	if err != nil {
		return err
	}
	var kept []authorship.Checkpoint
	for _, cp := range cps {
		var entries []authorship.FileAttributionEntry
		for _, e := range cp.Entries {
			if keep(e.Path) {
				entries = append(entries, e)
			}
		}
		if len(entries) == 0 {
			continue
		}
		cp.Entries = entries
		kept = append(kept, cp)
	}

	files, prompts, err := l.Initial()
	if err != nil {
		return err
	}
	var keptFiles []authorship.FileAttributionEntry
	for _, e := range files {
		if keep(e.Path) {
			keptFiles = append(keptFiles, e)
		}
	}

	if len(kept) == 0 && len(keptFiles) == 0 {
		return l.Delete()
	}

	referenced := map[string]bool{}
	for _, cp := range kept {
		for _, e := range cp.Entries {
			for _, la := range e.Lines {
				referenced[la.AuthorID] = true
			}
		}
	}
	for _, e := range keptFiles {
		for _, la := range e.Lines {
			referenced[la.AuthorID] = true
		}
	}
	keptPrompts := map[string]authorship.PromptRecord{}
	for id, rec := range prompts {
		if referenced[id] {
			keptPrompts[id] = rec
		}
	}

	if err := l.ReplaceCheckpoints(kept); err != nil {
		return err
	}
	return l.WriteInitial(keptFiles, keptPrompts)
}

// Delete removes the whole log directory.
func (l *Log) Delete() error {
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("failed to delete working log %s: %w", l.base, err)
	}
	return nil
}

func (l *Log) ensure() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create working log %s: %w", l.base, err)
	}
	return nil
}
