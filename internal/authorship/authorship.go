// Package authorship defines the attribution data model: checkpoints
// recorded in the working log while edits happen, and the immutable
// per-commit attribution log distilled from them at commit time.
package authorship

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

const (
	// SchemaVersion is the only attribution log wire version this build
	// reads or writes. A mismatch is a hard error, never a silent
	// downgrade.
	SchemaVersion = "authorship/3.0.0"

	// CheckpointSchemaVersion stamps working-log checkpoint records.
	CheckpointSchemaVersion = "checkpoint/1.0.0"

	// HumanAuthorID marks lines typed by the repository's human actor.
	// AI authors get a derived 16-hex identifier instead.
	HumanAuthorID = "human"
)

// ErrDecode reports malformed or incompatible attribution content.
var ErrDecode = errors.New("malformed attribution record")

// Kind distinguishes who produced a checkpoint.
type Kind string

const (
	KindHuman   Kind = "human"
	KindAIAgent Kind = "ai_agent"
)

// AgentID names one AI editing session.
type AgentID struct {
	Tool  string `json:"tool"`
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
}

// AuthorID derives the stable identifier AI attestations are keyed by:
// the first 16 hex chars of a sha256 over the session coordinates.
// Raw session ids can contain whitespace, which the attestation wire
// format cannot carry.
func (a AgentID) AuthorID() string {
	sum := sha256.Sum256([]byte(a.Tool + "\x00" + a.ID + "\x00" + a.Model))
	return hex.EncodeToString(sum[:8])
}

// SessionKey groups checkpoints belonging to one conversation. The
// model is deliberately excluded: it can change mid-session.
func (a AgentID) SessionKey() string {
	return a.Tool + ":" + a.ID
}

// LineStats aggregates the churn one checkpoint observed.
type LineStats struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	AdditionsSLOC int `json:"additions_sloc"`
	DeletionsSLOC int `json:"deletions_sloc"`
}

// Add returns the element-wise sum of two counters.
func (s LineStats) Add(o LineStats) LineStats {
	return LineStats{
		Additions:     s.Additions + o.Additions,
		Deletions:     s.Deletions + o.Deletions,
		AdditionsSLOC: s.AdditionsSLOC + o.AdditionsSLOC,
		DeletionsSLOC: s.DeletionsSLOC + o.DeletionsSLOC,
	}
}

// LineAttribution records who owns one line of a file. Overrode keeps
// the superseded author when an edit replaced someone else's line; it
// exists for audit display only and never participates in resolution.
type LineAttribution struct {
	Line      int    `json:"line"`
	AuthorID  string `json:"author_id"`
	Timestamp int64  `json:"timestamp"`
	Overrode  string `json:"overrode,omitempty"`
}

// FileAttributionEntry is the complete known attribution state for one
// file at checkpoint time. BlobSHA fingerprints the exact content the
// line numbers refer to; consolidation rejects entries whose blob no
// longer matches what is being committed.
type FileAttributionEntry struct {
	Path    string            `json:"path"`
	BlobSHA string            `json:"blob_sha"`
	Lines   []LineAttribution `json:"line_attributions"`
}

// Validate enforces the one-attribution-per-line invariant.
func (e *FileAttributionEntry) Validate() error {
	seen := make(map[int]bool, len(e.Lines))
	for _, la := range e.Lines {
		if la.Line < 1 {
			return fmt.Errorf("%w: line number %d in %s", ErrDecode, la.Line, e.Path)
		}
		if seen[la.Line] {
			return fmt.Errorf("%w: duplicate attribution for %s:%d", ErrDecode, e.Path, la.Line)
		}
		seen[la.Line] = true
	}
	return nil
}

// Checkpoint is one attribution snapshot, appended to the working log
// whenever an editing actor pauses between edits.
type Checkpoint struct {
	SchemaVersion   string                 `json:"schema_version"`
	Kind            Kind                   `json:"kind"`
	Actor           string                 `json:"actor"`
	Timestamp       int64                  `json:"timestamp"`
	DiffFingerprint string                 `json:"diff_fingerprint"`
	Entries         []FileAttributionEntry `json:"entries"`
	AgentID         *AgentID               `json:"agent_id,omitempty"`
	Transcript      []Message              `json:"transcript,omitempty"`
	Stats           LineStats              `json:"line_stats"`

	// PassThrough checkpoints track line movement (e.g. after a squash
	// merge) without claiming authorship of the moved lines.
	PassThrough bool `json:"pass_through,omitempty"`
}

// AuthorID returns the identifier this checkpoint's new lines are
// claimed under.
func (c *Checkpoint) AuthorID() string {
	if c.Kind == KindAIAgent && c.AgentID != nil {
		return c.AgentID.AuthorID()
	}
	return HumanAuthorID
}

// Validate checks structural invariants before a checkpoint is
// appended or folded.
func (c *Checkpoint) Validate() error {
	if c.SchemaVersion != CheckpointSchemaVersion {
		return fmt.Errorf("%w: unsupported checkpoint version %q (engine supports %q)",
			ErrDecode, c.SchemaVersion, CheckpointSchemaVersion)
	}
	switch c.Kind {
	case KindHuman, KindAIAgent:
	default:
		return fmt.Errorf("%w: unknown checkpoint kind %q", ErrDecode, c.Kind)
	}
	if c.Kind == KindAIAgent && c.AgentID == nil {
		return fmt.Errorf("%w: ai_agent checkpoint without agent_id", ErrDecode)
	}
	for i := range c.Entries {
		if err := c.Entries[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EntryFor returns the checkpoint's entry for path, if present.
func (c *Checkpoint) EntryFor(path string) (FileAttributionEntry, bool) {
	for _, e := range c.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return FileAttributionEntry{}, false
}

// sortLines orders attributions by line number in place.
func sortLines(lines []LineAttribution) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
}
