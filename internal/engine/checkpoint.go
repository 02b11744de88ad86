package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/git"
)

// CheckpointRequest describes one attribution snapshot to record.
type CheckpointRequest struct {
	Kind  authorship.Kind
	Actor string

	// Agent identifies the AI session; required for KindAIAgent.
	Agent      *authorship.AgentID
	Transcript []authorship.Message

	// Paths restricts the snapshot to specific repo-relative paths.
	// Empty means every path the worktree has changed.
	Paths []string

	// StagedOnly attributes index content instead of worktree content
	// and leaves unstaged changes for a later checkpoint.
	StagedOnly bool

	// PassThrough shifts existing attributions through the edit without
	// claiming the new lines (content moved in, not authored).
	PassThrough bool
}

// CheckpointResult reports what a checkpoint recorded.
type CheckpointResult struct {
	// Deduped is set when the snapshot matched the previous checkpoint
	// byte for byte and nothing was appended.
	Deduped bool

	// Paths are the files the checkpoint attributed.
	Paths []string

	Stats authorship.LineStats

	// SkippedUnstaged lists paths with unstaged edits that StagedOnly
	// left out; callers surface these as a warning.
	SkippedUnstaged []string
}

// OnCheckpoint records the current edit state into the working log for
// the checked-out base commit.
func (e *Engine) OnCheckpoint(ctx context.Context, req CheckpointRequest) (res *CheckpointResult, err error) {
	ctx, span, t0 := e.op(ctx, "checkpoint", attribute.String("git_ai.kind", string(req.Kind)))
	defer func() {
		if err == nil && res != nil {
			span.SetAttributes(attribute.Int("git_ai.paths", len(res.Paths)))
			countLines(ctx, req.Kind, res.Stats.Additions)
		}
		e.done(ctx, span, t0, err)
	}()

	head, err := e.repo.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}
	wl := e.logs.For(head)
	release, err := wl.Lock()
	if err != nil {
		return nil, err
	}
	defer release()

	status, err := e.repo.WorktreeStatus(ctx)
	if err != nil {
		return nil, err
	}
	candidates, skipped := e.checkpointPaths(req, status)
	res = &CheckpointResult{SkippedUnstaged: skipped}
	if len(candidates) == 0 {
		return res, nil
	}

	state, err := wl.CurrentState()
	if err != nil {
		return nil, err
	}
	sd, err := e.loadSeed(ctx, head)
	if err != nil {
		return nil, err
	}

	author := authorship.HumanAuthorID
	if req.Kind == authorship.KindAIAgent && req.Agent != nil {
		author = req.Agent.AuthorID()
	}
	now := time.Now().UnixMilli()

	var entries []authorship.FileAttributionEntry
	for _, path := range candidates {
		newText, newBlob, ok, err := e.snapshot(ctx, path, req.StagedOnly)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // deleted from disk, or not in the index under StagedOnly
		}
		prev, oldText, oldBlob, err := e.prevFor(ctx, state, sd, path)
		if err != nil {
			return nil, err
		}
		if newBlob == oldBlob {
			continue // nothing changed since the last record
		}
		lines, st := authorship.Advance(prev, oldText, newText, author, now, req.PassThrough)
		entries = append(entries, authorship.FileAttributionEntry{
			Path:    path,
			BlobSHA: newBlob,
			Lines:   lines,
		})
		res.Stats = res.Stats.Add(st)
		res.Paths = append(res.Paths, path)
	}
	if len(entries) == 0 {
		return res, nil
	}

	fingerprint := authorship.ContentFingerprint(entries)
	cps, err := wl.Checkpoints()
	if err != nil {
		return nil, err
	}
	if n := len(cps); n > 0 {
		last := &cps[n-1]
		if last.DiffFingerprint == fingerprint && last.AuthorID() == author {
			res.Deduped = true
			res.Stats = authorship.LineStats{}
			return res, nil
		}
	}

	cp := &authorship.Checkpoint{
		SchemaVersion:   authorship.CheckpointSchemaVersion,
		Kind:            req.Kind,
		Actor:           req.Actor,
		Timestamp:       now,
		DiffFingerprint: fingerprint,
		Entries:         entries,
		AgentID:         req.Agent,
		Transcript:      req.Transcript,
		Stats:           res.Stats,
		PassThrough:     req.PassThrough,
	}
	if err := wl.AppendCheckpoint(cp); err != nil {
		return nil, err
	}
	e.log.Debug("recorded checkpoint",
		"base", wl.Base(), "kind", req.Kind, "paths", len(entries),
		"additions", res.Stats.Additions, "deletions", res.Stats.Deletions)
	return res, nil
}

// checkpointPaths selects which paths a checkpoint covers, applying the
// ignore patterns and the StagedOnly restriction.
func (e *Engine) checkpointPaths(req CheckpointRequest, status git.Status) (candidates, skipped []string) {
	seen := map[string]bool{}
	add := func(dst *[]string, paths ...string) {
		for _, p := range paths {
			if p == "" || seen[p] || e.cfg.Ignored(p) {
				continue
			}
			seen[p] = true
			*dst = append(*dst, p)
		}
	}

	switch {
	case len(req.Paths) > 0:
		add(&candidates, req.Paths...)
	case req.StagedOnly:
		add(&candidates, status.Staged...)
		seen = map[string]bool{}
		add(&skipped, status.Unstaged...)
		add(&skipped, status.Untracked...)
	default:
		add(&candidates, status.Staged...)
		add(&candidates, status.Unstaged...)
		add(&candidates, status.Untracked...)
	}
	sort.Strings(candidates)
	sort.Strings(skipped)
	return candidates, skipped
}

// snapshot captures the content a checkpoint should attribute for path
// and writes it to the object store so later diffs can recover it. The
// third return is false when there is nothing to snapshot.
func (e *Engine) snapshot(ctx context.Context, path string, stagedOnly bool) (string, string, bool, error) {
	if stagedOnly {
		oid, err := e.repo.StagedBlobOID(ctx, path)
		if err != nil || oid == "" {
			return "", "", false, err
		}
		content, err := e.repo.BlobContent(oid)
		if err != nil {
			return "", "", false, err
		}
		return string(content), oid, true, nil
	}

	raw, err := os.ReadFile(filepath.Join(e.repo.WorkDir(), filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	oid, err := e.repo.HashObject(ctx, raw)
	if err != nil {
		return "", "", false, err
	}
	return string(raw), oid, true, nil
}

// seed is the fallback attribution source for paths the working log
// has not touched yet: the base commit's note, expanded lazily.
type seed struct {
	sha  string
	note *authorship.Log
	ts   int64
}

func (e *Engine) loadSeed(ctx context.Context, sha string) (*seed, error) {
	sd := &seed{sha: sha}
	if sha == "" {
		return sd, nil
	}
	note, err := e.notes.Get(ctx, sha)
	if err != nil {
		return nil, err
	}
	if note != nil {
		sd.note = note
		ts, err := e.repo.CommitTimestamp(ctx, sha)
		if err != nil {
			return nil, err
		}
		sd.ts = ts * 1000
	}
	return sd, nil
}

// prevFor resolves the state to diff against for path: the live
// working-log entry when one exists, otherwise the seed commit's
// content with its note attributions expanded. Seeding is what makes
// each note cumulative per file: attribution recorded by earlier
// commits rides along through every later checkpoint.
func (e *Engine) prevFor(ctx context.Context, state map[string]authorship.FileAttributionEntry, sd *seed, path string) ([]authorship.LineAttribution, string, string, error) {
	if pe, ok := state[path]; ok {
		old, err := e.repo.BlobContent(pe.BlobSHA)
		if err != nil {
			return nil, "", "", err
		}
		return pe.Lines, string(old), pe.BlobSHA, nil
	}
	if sd.sha == "" {
		return nil, "", "", nil
	}
	content, ok, err := e.repo.FileAtCommit(sd.sha, path)
	if err != nil {
		return nil, "", "", err
	}
	if !ok {
		return nil, "", "", nil
	}
	blob, err := e.repo.BlobAtCommit(ctx, sd.sha, path)
	if err != nil {
		return nil, "", "", err
	}
	if sd.note != nil {
		if f, found := sd.note.File(path); found {
			return f.Entry(blob, sd.ts).Lines, content, blob, nil
		}
	}
	return nil, content, blob, nil
}
