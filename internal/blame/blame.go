// Package blame resolves per-line authorship from attribution notes.
//
// Attribution for a line at some revision lives in the note of the most
// recent commit (at or before that revision) whose note covers the
// line. Walking stops at the first covering note; lines no note covers
// predate attribution tracking and report an empty author. For the
// worktree view, in-flight working-log state overlays the committed
// record so an agent's uncommitted edits are visible immediately.
package blame

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/notes"
	"github.com/git-ai-project/git-ai/internal/worklog"
)

// ErrNotFound reports that the path does not exist at the blamed
// revision.
var ErrNotFound = errors.New("path not found")

// Line is the authorship of one line. An empty AuthorID means no
// attribution record covers the line.
type Line struct {
	Number   int    `json:"line"`
	AuthorID string `json:"author_id"`
	Overrode string `json:"overrode,omitempty"`
	Content  string `json:"content"`
}

// Result is the authorship of a contiguous line range of one file.
type Result struct {
	Path     string `json:"path"`
	Revision string `json:"revision,omitempty"`
	Lines    []Line `json:"lines"`

	// Agents maps the author ids appearing in Lines to the session
	// identity recorded for them, when one is known. Display layers use
	// it to show tool names instead of raw ids.
	Agents map[string]authorship.AgentID `json:"agents,omitempty"`
}

// Options narrow a blame query.
type Options struct {
	// Revision blames the committed content at this revision. Empty
	// means the worktree view: current file content with working-log
	// state overlaid.
	Revision string

	// StartLine/EndLine restrict output to a 1-based inclusive range.
	// Zero values mean the whole file.
	StartLine int
	EndLine   int
}

// Blamer answers blame queries for one repository.
type Blamer struct {
	repo  *git.Repo
	notes *notes.Client
	logs  *worklog.Store
}

// New wires a blamer over the repository's notes and working logs.
func New(repo *git.Repo, nc *notes.Client, logs *worklog.Store) *Blamer {
	return &Blamer{repo: repo, notes: nc, logs: logs}
}

// Blame resolves authorship for path. The path must be repo-relative
// in slash form.
func (b *Blamer) Blame(ctx context.Context, path string, opts Options) (*Result, error) {
	if opts.Revision == "" {
		return b.blameWorktree(ctx, path, opts)
	}
	sha, err := b.repo.ResolveCommit(opts.Revision)
	if err != nil {
		return nil, err
	}
	content, ok, err := b.repo.FileAtCommit(sha, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNotFound, path, opts.Revision)
	}
	authors, agents, err := b.committedAuthors(ctx, sha, path)
	if err != nil {
		return nil, err
	}
	return assemble(path, opts, content, authors, agents)
}

// blameWorktree blames the file as it sits on disk. Working-log state
// wins over committed notes; when the on-disk content has moved past
// the last checkpoint, recorded attributions are shifted through the
// diff without claiming the new lines.
func (b *Blamer) blameWorktree(ctx context.Context, path string, opts Options) (*Result, error) {
	if b.repo.WorkDir() == "" {
		return nil, fmt.Errorf("cannot blame the worktree of a bare repository")
	}
	raw, err := os.ReadFile(filepath.Join(b.repo.WorkDir(), filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s in worktree", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(raw)
	blob := git.BlobHash(raw)

	head, err := b.repo.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}

	// In-flight state, if any checkpoint or carried entry covers the
	// path on the current base.
	var live *authorship.FileAttributionEntry
	agents := map[string]authorship.AgentID{}
	for _, base := range []string{head, worklog.InitialBase} {
		if base == "" {
			continue
		}
		wl := b.logs.For(base)
		if live == nil {
			state, err := wl.CurrentState()
			if err != nil {
				return nil, err
			}
			if e, ok := state[path]; ok {
				live = &e
			}
		}
		if err := harvestWorklogAgents(wl, agents); err != nil {
			return nil, err
		}
	}

	var lines []authorship.LineAttribution
	switch {
	case live != nil && live.BlobSHA == blob:
		lines = live.Lines
	case live != nil:
		old, err := b.repo.BlobContent(live.BlobSHA)
		if err != nil {
			return nil, err
		}
		lines, _ = authorship.Advance(live.Lines, string(old), content,
			authorship.HumanAuthorID, time.Now().UnixMilli(), true)
	case head != "":
		// Nothing in flight: project the committed record onto the
		// worktree content.
		committedContent, ok, err := b.repo.FileAtCommit(head, path)
		if err != nil {
			return nil, err
		}
		if !ok {
			break // untracked file with no checkpoints: nothing covers it
		}
		authors, committedAgents, err := b.committedAuthors(ctx, head, path)
		if err != nil {
			return nil, err
		}
		for id, a := range committedAgents {
			agents[id] = a
		}
		lines = attributionsFromAuthors(authors)
		if committedContent != content {
			lines, _ = authorship.Advance(lines, committedContent, content,
				authorship.HumanAuthorID, time.Now().UnixMilli(), true)
		}
	}

	byLine := make(map[int]authorship.LineAttribution, len(lines))
	for _, la := range lines {
		byLine[la.Line] = la
	}
	return assembleOverlay(path, opts, content, byLine, agents)
}

// harvestWorklogAgents records the agent identity of every AI
// checkpoint in the log, keyed by author id.
func harvestWorklogAgents(wl *worklog.Log, agents map[string]authorship.AgentID) error {
	if !wl.Exists() {
		return nil
	}
	cps, err := wl.Checkpoints()
	if err != nil {
		return err
	}
	for i := range cps {
		if cps[i].AgentID != nil {
			agents[cps[i].AuthorID()] = *cps[i].AgentID
		}
	}
	_, prompts, err := wl.Initial()
	if err != nil {
		return err
	}
	for id, rec := range prompts {
		agents[id] = rec.AgentID
	}
	return nil
}

// committedAuthors resolves the author per line of path at sha by
// walking the notes of the commits that touched it, newest first. The
// second map carries the agent identities those notes recorded.
func (b *Blamer) committedAuthors(ctx context.Context, sha, path string) (map[int]string, map[string]authorship.AgentID, error) {
	agents := map[string]authorship.AgentID{}
	commits, err := b.repo.CommitsTouchingPath(ctx, sha, path)
	if err != nil {
		return nil, nil, err
	}
	if len(commits) == 0 {
		return map[int]string{}, agents, nil
	}
	noteLogs, err := b.notes.LoadMany(ctx, commits)
	if err != nil {
		return nil, nil, err
	}

	attested := make([]*authorship.FileAttestation, 0, len(noteLogs))
	for _, c := range commits {
		log := noteLogs[c]
		if log == nil {
			continue
		}
		for id, rec := range log.Metadata.Prompts {
			agents[id] = rec.AgentID
		}
		if f, ok := log.File(path); ok {
			attested = append(attested, f)
		}
	}

	authors := map[int]string{}
	if len(attested) == 0 {
		return authors, agents, nil
	}
	content, ok, err := b.repo.FileAtCommit(sha, path)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return authors, agents, nil
	}
	total := len(splitLines(content))
	for line := 1; line <= total; line++ {
		for _, f := range attested {
			if a := f.AuthorAt(line); a != "" {
				authors[line] = a
				break
			}
		}
	}
	return authors, agents, nil
}

func attributionsFromAuthors(authors map[int]string) []authorship.LineAttribution {
	lines := make([]authorship.LineAttribution, 0, len(authors))
	for line, author := range authors {
		lines = append(lines, authorship.LineAttribution{Line: line, AuthorID: author})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })
	return lines
}

func assemble(path string, opts Options, content string, authors map[int]string, agents map[string]authorship.AgentID) (*Result, error) {
	byLine := make(map[int]authorship.LineAttribution, len(authors))
	for line, author := range authors {
		byLine[line] = authorship.LineAttribution{Line: line, AuthorID: author}
	}
	res, err := assembleOverlay(path, opts, content, byLine, agents)
	if err != nil {
		return nil, err
	}
	res.Revision = opts.Revision
	return res, nil
}

func assembleOverlay(path string, opts Options, content string, byLine map[int]authorship.LineAttribution, agents map[string]authorship.AgentID) (*Result, error) {
	text := splitLines(content)
	start, end := opts.StartLine, opts.EndLine
	if start == 0 {
		start = 1
	}
	if end == 0 {
		end = len(text)
	}
	if start < 1 || start > end {
		return nil, fmt.Errorf("invalid line range %d,%d", opts.StartLine, opts.EndLine)
	}
	if end > len(text) {
		return nil, fmt.Errorf("file %s has only %d lines", path, len(text))
	}

	res := &Result{Path: path, Lines: make([]Line, 0, end-start+1)}
	for n := start; n <= end; n++ {
		l := Line{Number: n, Content: text[n-1]}
		if la, ok := byLine[n]; ok {
			l.AuthorID = la.AuthorID
			l.Overrode = la.Overrode
		}
		res.Lines = append(res.Lines, l)
	}

	// Keep only the identities the emitted lines actually reference.
	for _, l := range res.Lines {
		for _, id := range []string{l.AuthorID, l.Overrode} {
			if a, ok := agents[id]; ok {
				if res.Agents == nil {
					res.Agents = map[string]authorship.AgentID{}
				}
				res.Agents[id] = a
			}
		}
	}
	return res, nil
}

// splitLines breaks content into lines without a phantom entry for a
// trailing newline.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
