package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/worklog"
)

// OnCommitCreated folds the working log of the commit's parent into an
// attribution note for the new commit. Safe to call more than once for
// the same commit: a commit that already has its note is only drained.
func (e *Engine) OnCommitCreated(ctx context.Context, sha string) (err error) {
	ctx, span, t0 := e.op(ctx, "commit", attribute.String("git_ai.commit", sha))
	defer func() { e.done(ctx, span, t0, err) }()

	active, err := e.Active(ctx)
	if err != nil || !active {
		return err
	}
	if _, ok, err := e.notes.GetRaw(ctx, sha); err != nil {
		return err
	} else if ok {
		_, err := e.Reconcile(ctx)
		return err
	}

	parent, err := e.repo.FirstParent(sha)
	if err != nil {
		return err
	}
	if err := e.consolidate(ctx, sha, parent); err != nil {
		return err
	}
	if _, err := e.events.Append(eventlog.NewCommit(parent, sha)); err != nil {
		return err
	}
	_, err = e.Reconcile(ctx)
	return err
}

// OnCommitAmended records the staged-but-uncheckpointed edits of an
// amend as human work, then hands the merge of old note and working log
// to reconciliation.
func (e *Engine) OnCommitAmended(ctx context.Context, original, amended string) (err error) {
	ctx, span, t0 := e.op(ctx, "amend",
		attribute.String("git_ai.from", original),
		attribute.String("git_ai.to", amended))
	defer func() { e.done(ctx, span, t0, err) }()

	active, err := e.Active(ctx)
	if err != nil || !active {
		return err
	}
	if _, ok, err := e.notes.GetRaw(ctx, amended); err != nil {
		return err
	} else if ok {
		_, err := e.Reconcile(ctx)
		return err
	}

	wl := e.logs.For(original)
	release, err := wl.Lock()
	if err != nil {
		return err
	}
	committed, err := e.repo.CommitChangedPaths(ctx, amended)
	if err != nil {
		release()
		return err
	}
	if err := e.implicitHumanCheckpoint(ctx, wl, original, amended, committed); err != nil {
		release()
		return err
	}
	release()

	if _, err := e.events.Append(eventlog.NewAmend(original, amended)); err != nil {
		return err
	}
	_, err = e.Reconcile(ctx)
	return err
}

// consolidate folds the working log for base into the note of sha and
// carries still-dirty attribution to the new base.
func (e *Engine) consolidate(ctx context.Context, sha, base string) error {
	wl := e.logs.For(base)
	release, err := wl.Lock()
	if err != nil {
		return err
	}
	defer release()

	committed, err := e.repo.CommitChangedPaths(ctx, sha)
	if err != nil {
		return err
	}
	// Staged edits no checkpoint captured belong to the human who
	// committed them.
	if err := e.implicitHumanCheckpoint(ctx, wl, base, sha, committed); err != nil {
		return err
	}

	initial, initialPrompts, err := wl.Initial()
	if err != nil {
		return err
	}
	cps, err := wl.Checkpoints()
	if err != nil {
		return err
	}
	if len(initial) == 0 && len(cps) == 0 {
		return nil
	}

	status, err := e.repo.WorktreeStatus(ctx)
	if err != nil {
		return err
	}
	dirty := map[string]bool{}
	for _, p := range append(status.Unstaged, status.Untracked...) {
		dirty[p] = true
	}

	res, err := authorship.Consolidate(authorship.ConsolidateRequest{
		CommitSHA:      sha,
		Initial:        initial,
		InitialPrompts: initialPrompts,
		Checkpoints:    cps,
		CommittedPaths: committed,
		DirtyPaths:     dirty,
		StagedBlob: func(path string) (string, error) {
			return e.repo.BlobAtCommit(ctx, sha, path)
		},
	})
	if err != nil {
		return err
	}
	for _, p := range res.DroppedPaths {
		e.log.Warn("attribution out of date for committed file, dropping", "path", p)
	}

	if !res.Log.IsEmpty() {
		if err := e.notes.Put(ctx, sha, res.Log); err != nil {
			return err
		}
	}
	if err := e.logs.For(sha).WriteInitial(res.Carry, res.CarryPrompts); err != nil {
		return err
	}
	if err := wl.Delete(); err != nil {
		return err
	}
	e.log.Debug("consolidated working log", "commit", sha,
		"files", len(res.Log.Attestations), "carried", len(res.Carry))
	return nil
}

// implicitHumanCheckpoint appends a human checkpoint covering committed
// paths whose content no checkpoint attributed, advancing prior
// attribution through the uncaptured edits.
func (e *Engine) implicitHumanCheckpoint(ctx context.Context, wl *worklog.Log, base, target string, committed []string) error {
	state, err := wl.CurrentState()
	if err != nil {
		return err
	}
	sd, err := e.loadSeed(ctx, base)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	var entries []authorship.FileAttributionEntry
	var stats authorship.LineStats
	for _, path := range committed {
		if e.cfg.Ignored(path) {
			continue
		}
		blob, err := e.repo.BlobAtCommit(ctx, target, path)
		if err != nil {
			return err
		}
		if blob == "" {
			continue // deletion; consolidation retires the path
		}
		if pe, ok := state[path]; ok && pe.BlobSHA == blob {
			continue // last checkpoint matches what was committed
		}
		prev, oldText, oldBlob, err := e.prevFor(ctx, state, sd, path)
		if err != nil {
			return err
		}
		if oldBlob == blob {
			continue // unchanged since the base commit
		}
		newText, ok, err := e.repo.FileAtCommit(target, path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		lines, st := authorship.Advance(prev, oldText, newText, authorship.HumanAuthorID, now, false)
		entries = append(entries, authorship.FileAttributionEntry{
			Path:    path,
			BlobSHA: blob,
			Lines:   lines,
		})
		stats = stats.Add(st)
	}
	if len(entries) == 0 {
		return nil
	}

	actor, err := e.repo.CommitAuthorName(ctx, target)
	if err != nil || actor == "" {
		actor = "unknown"
	}
	cp := &authorship.Checkpoint{
		SchemaVersion:   authorship.CheckpointSchemaVersion,
		Kind:            authorship.KindHuman,
		Actor:           actor,
		Timestamp:       now,
		DiffFingerprint: authorship.ContentFingerprint(entries),
		Entries:         entries,
		Stats:           stats,
	}
	return wl.AppendCheckpoint(cp)
}
