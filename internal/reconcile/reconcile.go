// Package reconcile migrates attribution across history rewrites.
//
// Each recorded rewrite event carries the SHAs that define it; applying
// an event moves notes and working logs so attribution follows the
// rewritten commits. Migrations are append-only — the note at a
// pre-rewrite SHA is never deleted, so stale refs stay resolvable — and
// idempotent: a destination that already has its note is left alone.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/logging"
	"github.com/git-ai-project/git-ai/internal/notes"
	"github.com/git-ai-project/git-ai/internal/worklog"
)

// Reconciler applies rewrite events for one repository.
type Reconciler struct {
	repo  *git.Repo
	notes *notes.Client
	logs  *worklog.Store
	log   *slog.Logger
}

// Option tweaks New.
type Option func(*Reconciler)

// WithLogger attaches a diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// New wires a reconciler over the repository's note and working-log
// stores.
func New(repo *git.Repo, nc *notes.Client, logs *worklog.Store, opts ...Option) *Reconciler {
	r := &Reconciler{repo: repo, notes: nc, logs: logs, log: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply migrates attribution for one event. Failures leave the event
// pending; the caller retries it on the next drain.
func (r *Reconciler) Apply(ctx context.Context, ev eventlog.Event) error {
	switch ev.Type {
	case eventlog.TypeCommit:
		// Consolidation already wrote the note when the commit was
		// observed; the event exists for auditing and idempotency.
		return nil
	case eventlog.TypeCommitAmend:
		return r.applyAmend(ctx, ev.OriginalCommit, ev.Commit)
	case eventlog.TypeReset:
		return r.applyReset(ctx, ev)
	case eventlog.TypeRebaseComplete, eventlog.TypeCherryPickComplete:
		return r.applyMappings(ctx, ev.Mappings)
	default:
		return fmt.Errorf("unknown rewrite event type %q", ev.Type)
	}
}

// applyMappings copies the note from each old commit to its rewritten
// successor, rebinding the base SHA. The mapping is trusted as a 1:1
// correspondence; line ranges are not recomputed.
func (r *Reconciler) applyMappings(ctx context.Context, mappings []eventlog.Mapping) error {
	for _, m := range mappings {
		if m.Old == m.New || m.Old == "" || m.New == "" {
			continue
		}
		existing, ok, err := r.notes.GetRaw(ctx, m.New)
		if err != nil {
			return err
		}
		if ok && len(existing) > 0 {
			continue
		}
		src, err := r.notes.Get(ctx, m.Old)
		if err != nil {
			return err
		}
		if src == nil {
			continue
		}
		moved := src.Clone()
		moved.Metadata.BaseCommitSHA = m.New
		if err := r.notes.Put(ctx, m.New, moved); err != nil {
			return err
		}
		r.log.Debug("migrated attribution note", "from", m.Old, "to", m.New)
	}
	return nil
}

// applyAmend handles commit --amend: with no checkpoints recorded since
// the original commit the note is copied verbatim (attestation content
// is identical); otherwise the working log is folded in and merged with
// the original note.
func (r *Reconciler) applyAmend(ctx context.Context, original, amended string) error {
	if original == "" || amended == "" || original == amended {
		return nil
	}
	if _, ok, err := r.notes.GetRaw(ctx, amended); err != nil {
		return err
	} else if ok {
		return nil
	}

	oldLog, err := r.notes.Get(ctx, original)
	if err != nil {
		return err
	}

	// Read, fold and delete under the log's writer lock: a re-entrant
	// checkpoint must not append between the read and the delete.
	wl := r.logs.For(original)
	release, err := wl.Lock()
	if err != nil {
		return err
	}
	defer release()

	if !wl.Exists() {
		if oldLog == nil {
			return nil
		}
		moved := oldLog.Clone()
		moved.Metadata.BaseCommitSHA = amended
		return r.notes.Put(ctx, amended, moved)
	}

	initial, initialPrompts, err := wl.Initial()
	if err != nil {
		return err
	}
	cps, err := wl.Checkpoints()
	if err != nil {
		return err
	}
	changed, err := r.repo.CommitChangedPaths(ctx, amended)
	if err != nil {
		return err
	}
	status, err := r.repo.WorktreeStatus(ctx)
	if err != nil {
		return err
	}
	dirty := map[string]bool{}
	for _, p := range append(status.Unstaged, status.Untracked...) {
		dirty[p] = true
	}

	res, err := authorship.Consolidate(authorship.ConsolidateRequest{
		CommitSHA:      amended,
		Initial:        initial,
		InitialPrompts: initialPrompts,
		Checkpoints:    cps,
		CommittedPaths: changed,
		DirtyPaths:     dirty,
		StagedBlob: func(path string) (string, error) {
			return r.repo.BlobAtCommit(ctx, amended, path)
		},
	})
	if err != nil {
		return err
	}
	for _, p := range res.DroppedPaths {
		r.log.Warn("attribution out of date for amended file, dropping", "path", p)
	}

	merged := res.Log
	if oldLog != nil {
		if err := r.mergeUntouched(ctx, oldLog, merged, original, amended); err != nil {
			return err
		}
	}
	if !merged.IsEmpty() {
		if err := r.notes.Put(ctx, amended, merged); err != nil {
			return err
		}
	}
	if err := r.logs.For(amended).WriteInitial(res.Carry, res.CarryPrompts); err != nil {
		return err
	}
	return wl.Delete()
}

// mergeUntouched carries attestations from the original commit's note
// for files the amend did not change. A file whose content differs
// between the two commits and has no folded state is stale and dropped.
func (r *Reconciler) mergeUntouched(ctx context.Context, oldLog, merged *authorship.Log, original, amended string) error {
	for _, f := range oldLog.Attestations {
		if _, ok := merged.File(f.Path); ok {
			continue
		}
		oldBlob, err := r.repo.BlobAtCommit(ctx, original, f.Path)
		if err != nil {
			return err
		}
		newBlob, err := r.repo.BlobAtCommit(ctx, amended, f.Path)
		if err != nil {
			return err
		}
		if oldBlob == "" || oldBlob != newBlob {
			r.log.Warn("attribution out of date for amended file, dropping", "path", f.Path)
			continue
		}
		merged.AddAttestation(f)
	}
	for id, rec := range oldLog.Metadata.Prompts {
		if _, ok := merged.Metadata.Prompts[id]; !ok {
			merged.Metadata.Prompts[id] = rec
		}
	}
	return nil
}

// applyReset moves working-log state to the new HEAD. Committed notes
// are never migrated: reset rewrites no commits.
func (r *Reconciler) applyReset(ctx context.Context, ev eventlog.Event) error {
	from, to := ev.FromSHA, ev.ToSHA
	if from == "" || to == "" {
		return nil
	}

	switch ev.ResetKind {
	case eventlog.ResetHard:
		// The worktree now matches the target commit, so in-flight
		// attribution dies with it — except untracked files, which
		// git reset --hard leaves alone.
		if !r.logs.For(from).Exists() {
			return nil
		}
		status, err := r.repo.WorktreeStatus(ctx)
		if err != nil {
			return err
		}
		untracked := map[string]bool{}
		for _, p := range status.Untracked {
			untracked[p] = true
		}
		if err := r.logs.Rename(from, to); err != nil {
			return err
		}
		return r.logs.For(to).FilterEntries(func(path string) bool {
			return untracked[path]
		})

	case eventlog.ResetSoft, eventlog.ResetMixed:
		// File contents are untouched, so in-flight attribution stays
		// valid; it just belongs to the new base now.
		backward, err := r.repo.IsAncestor(ctx, to, from)
		if err != nil {
			return err
		}
		if err := r.logs.Rename(from, to); err != nil {
			return err
		}
		if backward && from != to {
			return r.SeedWorkingLog(ctx, from, to)
		}
		return nil

	default:
		return fmt.Errorf("unknown reset kind %q", ev.ResetKind)
	}
}

// SeedWorkingLog rebuilds carried-over attribution for the working log
// at to from the notes of the commits in to..from, reading file content
// as of from. This is how committed attribution survives becoming
// uncommitted content again: a backward soft/mixed reset peels commits
// into the worktree, a squash merge stages another branch's tree.
// Without the seed, re-committing that content would attribute it to
// whoever runs the commit.
func (r *Reconciler) SeedWorkingLog(ctx context.Context, from, to string) error {
	commits, err := r.repo.CommitsBetween(ctx, to, from)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		return nil
	}
	noteLogs, err := r.notes.LoadMany(ctx, commits)
	if err != nil {
		return err
	}
	if len(noteLogs) == 0 {
		return nil
	}

	wl := r.logs.For(to)
	state, err := wl.CurrentState()
	if err != nil {
		return err
	}

	entries := map[string]authorship.FileAttributionEntry{}
	prompts := map[string]authorship.PromptRecord{}
	// Oldest first, so records from newer commits win per path.
	for i := len(commits) - 1; i >= 0; i-- {
		noteLog := noteLogs[commits[i]]
		if noteLog == nil {
			continue
		}
		ts, err := r.repo.CommitTimestamp(ctx, commits[i])
		if err != nil {
			return err
		}
		for _, f := range noteLog.Attestations {
			if _, live := state[f.Path]; live {
				continue // the working log already tracks this file
			}
			blob, err := r.repo.BlobAtCommit(ctx, from, f.Path)
			if err != nil {
				return err
			}
			if blob == "" {
				continue // deleted again before the reset
			}
			entries[f.Path] = f.Entry(blob, ts*1000)
		}
		for id, rec := range noteLog.Metadata.Prompts {
			prompts[id] = rec
		}
	}
	if len(entries) == 0 && len(prompts) == 0 {
		return nil
	}

	files, filePrompts, err := wl.Initial()
	if err != nil {
		return err
	}
	for _, e := range files {
		entries[e.Path] = e // live carried state wins
	}
	for id, rec := range filePrompts {
		prompts[id] = rec
	}
	merged := make([]authorship.FileAttributionEntry, 0, len(entries))
	for _, e := range entries {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Path < merged[j].Path })
	return wl.WriteInitial(merged, prompts)
}
