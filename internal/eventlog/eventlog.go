// Package eventlog persists history-rewrite events and feeds them to
// reconciliation in the order git produced them.
//
// Hooks append events as they observe rewrites; a consumer cursor marks
// how far reconciliation has progressed. Every event carries an
// idempotency key derived from its defining SHAs, and appends are
// deduplicated against the unconsumed window, so a hook firing twice
// for one operation records it once while a genuine later repeat of the
// same SHAs (after the first was consumed) is recorded again.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/git-ai-project/git-ai/internal/jsonl"
	"github.com/git-ai-project/git-ai/internal/lockfile"
)

// Type names a rewrite event kind.
type Type string

const (
	TypeCommit             Type = "commit"
	TypeCommitAmend        Type = "commit_amend"
	TypeReset              Type = "reset"
	TypeRebaseComplete     Type = "rebase_complete"
	TypeCherryPickComplete Type = "cherry_pick_complete"
)

// ResetKind mirrors git's reset modes.
type ResetKind string

const (
	ResetSoft  ResetKind = "soft"
	ResetMixed ResetKind = "mixed"
	ResetHard  ResetKind = "hard"
)

// Mapping pairs a pre-rewrite commit with its rewritten successor.
type Mapping struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Event is one observed rewrite. Payload fields are populated per Type;
// Key is the idempotency key appends deduplicate on.
type Event struct {
	Seq       int64  `json:"seq"`
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Key       string `json:"key"`

	// commit, commit_amend
	Commit         string `json:"commit,omitempty"`
	Base           string `json:"base,omitempty"`
	OriginalCommit string `json:"original_commit,omitempty"`

	// reset
	ResetKind ResetKind `json:"reset_kind,omitempty"`
	FromSHA   string    `json:"from_sha,omitempty"`
	ToSHA     string    `json:"to_sha,omitempty"`

	// rebase_complete, cherry_pick_complete
	Mappings []Mapping `json:"mappings,omitempty"`
}

// NewCommit records a commit created on top of base ("" for a root
// commit).
func NewCommit(base, commit string) Event {
	return Event{
		Type:   TypeCommit,
		Key:    "commit:" + commit,
		Commit: commit,
		Base:   base,
	}
}

// NewAmend records original being replaced by amended.
func NewAmend(original, amended string) Event {
	return Event{
		Type:           TypeCommitAmend,
		Key:            "amend:" + original + ":" + amended,
		OriginalCommit: original,
		Commit:         amended,
	}
}

// NewReset records HEAD moving from -> to via git reset.
func NewReset(kind ResetKind, from, to string) Event {
	return Event{
		Type:      TypeReset,
		Key:       fmt.Sprintf("reset:%s:%s:%s", kind, from, to),
		ResetKind: kind,
		FromSHA:   from,
		ToSHA:     to,
	}
}

// NewRebaseComplete records the old->new commit mapping of a finished
// rebase.
func NewRebaseComplete(mappings []Mapping) Event {
	return Event{
		Type:     TypeRebaseComplete,
		Key:      "rebase:" + mappingKey(mappings),
		Mappings: mappings,
	}
}

// NewCherryPickComplete records source commits replayed as new ones.
func NewCherryPickComplete(mappings []Mapping) Event {
	return Event{
		Type:     TypeCherryPickComplete,
		Key:      "cherry-pick:" + mappingKey(mappings),
		Mappings: mappings,
	}
}

func mappingKey(mappings []Mapping) string {
	parts := make([]string, len(mappings))
	for i, m := range mappings {
		parts[i] = m.Old + ">" + m.New
	}
	return strings.Join(parts, ",")
}

// FileName is the event log file under the repository state dir.
// Watchers key on it to notice new events.
const FileName = "rewrite_events.jsonl"

// Store is the on-disk event log for one repository worktree.
type Store struct {
	path       string
	cursorPath string
	archiveDir string
}

// NewStore places the log under the repository state dir.
func NewStore(stateDir string) *Store {
	return &Store{
		path:       filepath.Join(stateDir, FileName),
		cursorPath: filepath.Join(stateDir, "rewrite_events.cursor"),
		archiveDir: filepath.Join(stateDir, "archive"),
	}
}

// Append records ev unless its key is already pending. It returns
// whether the event was actually written.
func (s *Store) Append(ev Event) (bool, error) {
	release, err := lockfile.Acquire(s.path)
	if err != nil {
		return false, err
	}
	defer release()

	events, err := s.readAll()
	if err != nil {
		return false, err
	}
	cursor, err := s.readCursor()
	if err != nil {
		return false, err
	}

	nextSeq := cursor
	for _, e := range events {
		if e.Seq > nextSeq {
			nextSeq = e.Seq
		}
		if e.Seq > cursor && e.Key == ev.Key {
			return false, nil
		}
	}

	ev.Seq = nextSeq + 1
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	if err := jsonl.Append(s.path, &ev); err != nil {
		return false, err
	}
	return true, nil
}

// Pending returns unconsumed events, oldest first.
func (s *Store) Pending() ([]Event, error) {
	events, err := s.readAll()
	if err != nil {
		return nil, err
	}
	cursor, err := s.readCursor()
	if err != nil {
		return nil, err
	}
	var pending []Event
	for _, e := range events {
		if e.Seq > cursor {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

// All returns every retained event, consumed or not.
func (s *Store) All() ([]Event, error) {
	return s.readAll()
}

// Drain applies fn to each pending event in order, advancing the
// cursor after every success. A failing event stops the drain and
// stays pending for the next run. fn must not append events: the log
// is locked for the duration.
func (s *Store) Drain(fn func(Event) error) (int, error) {
	release, err := lockfile.Acquire(s.path)
	if err != nil {
		return 0, err
	}
	defer release()

	pending, err := s.Pending()
	if err != nil {
		return 0, err
	}
	done := 0
	for _, ev := range pending {
		if err := fn(ev); err != nil {
			return done, fmt.Errorf("event %d (%s): %w", ev.Seq, ev.Type, err)
		}
		if err := s.writeCursor(ev.Seq); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// Compact archives consumed events beyond keep into a zstd-compressed
// file and rewrites the live log without them.
func (s *Store) Compact(keep int) error {
	release, err := lockfile.Acquire(s.path)
	if err != nil {
		return err
	}
	defer release()

	events, err := s.readAll()
	if err != nil {
		return err
	}
	cursor, err := s.readCursor()
	if err != nil {
		return err
	}

	split := 0
	for split < len(events) && events[split].Seq <= cursor {
		split++
	}
	if split <= keep {
		return nil
	}
	archived, retained := events[:split-keep], events[split-keep:]

	if err := s.writeArchive(archived); err != nil {
		return err
	}
	records := make([]any, len(retained))
	for i := range retained {
		records[i] = &retained[i]
	}
	return jsonl.Rewrite(s.path, records)
}

func (s *Store) readAll() ([]Event, error) {
	lines, err := jsonl.ReadLines(s.path)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("malformed event record: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

type cursorFile struct {
	ConsumedSeq int64 `json:"consumed_seq"`
}

func (s *Store) readCursor() (int64, error) {
	data, err := os.ReadFile(s.cursorPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	var c cursorFile
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("malformed cursor file: %w", err)
	}
	return c.ConsumedSeq, nil
}

// writeCursor persists progress atomically and never moves backward.
func (s *Store) writeCursor(seq int64) error {
	cur, err := s.readCursor()
	if err != nil {
		return err
	}
	if seq <= cur {
		return nil
	}
	data, err := json.Marshal(cursorFile{ConsumedSeq: seq})
	if err != nil {
		return err
	}
	tmp := s.cursorPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cursor: %w", err)
	}
	if err := os.Rename(tmp, s.cursorPath); err != nil {
		return fmt.Errorf("failed to replace cursor: %w", err)
	}
	return nil
}
