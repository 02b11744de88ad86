// Package hooks translates git hook invocations into engine calls.
//
// Hook installation is the user's business (plain .git/hooks scripts,
// husky, lefthook, an IDE); this package only consumes what an
// installed `git-ai hook <name>` invocation reports. Every entry point
// tolerates being fired twice for one operation: event appends
// deduplicate, consolidation checks for an existing note first, and a
// repository with no attribution state is left untouched.
package hooks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/git-ai-project/git-ai/internal/config"
	"github.com/git-ai-project/git-ai/internal/engine"
	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/logging"
)

// pendingPickMaxAge bounds how long a remembered cherry-pick source
// stays usable. An aborted pick leaves the marker behind; it must not
// misattribute an unrelated commit days later.
const pendingPickMaxAge = 5 * time.Minute

// Dispatcher routes hook invocations for one repository.
type Dispatcher struct {
	repo   *git.Repo
	cfg    *config.Config
	eng    *engine.Engine
	log    *slog.Logger
	dryRun bool
}

// Option tweaks New.
type Option func(*Dispatcher)

// WithLogger attaches a diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithDryRun makes every hook a no-op that records nothing.
func WithDryRun(on bool) Option {
	return func(d *Dispatcher) { d.dryRun = on }
}

// New wires a dispatcher over an engine.
func New(repo *git.Repo, cfg *config.Config, eng *engine.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{repo: repo, cfg: cfg, eng: eng, log: logging.Discard()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// skip reports whether hook processing is turned off entirely, via
// config, dry-run mode, or GIT_AI=0 in the environment.
func (d *Dispatcher) skip() bool {
	if d.cfg.Disabled || d.dryRun {
		return true
	}
	return os.Getenv("GIT_AI") == "0"
}

// PreCommit runs before git finalizes a commit. Its only job is to
// remember the cherry-pick source while CHERRY_PICK_HEAD still exists:
// a conflicted pick concluded by a plain git commit loses the ref
// before post-commit fires.
func (d *Dispatcher) PreCommit(ctx context.Context) error {
	if d.skip() {
		return nil
	}
	if !d.repo.CherryPickInProgress() {
		return nil
	}
	if active, err := d.eng.Active(ctx); err != nil || !active {
		return err
	}
	source, err := d.repo.ResolveCommit("CHERRY_PICK_HEAD")
	if err != nil {
		d.log.Debug("CHERRY_PICK_HEAD did not resolve", "err", err)
		return nil
	}
	return d.savePendingPick(pendingPick{
		Source:    source,
		CreatedAt: time.Now().UnixMilli(),
	})
}

// PostCommit records the commit that was just created. Amends and
// mid-rebase commits are deliberately not handled here: git fires
// post-rewrite for those, and that hook owns the old→new mapping.
func (d *Dispatcher) PostCommit(ctx context.Context) error {
	if d.skip() {
		return nil
	}
	if d.repo.RebaseInProgress() {
		d.log.Debug("mid-rebase commit, post-rewrite owns the mapping")
		return nil
	}
	head, err := d.repo.HeadSHA(ctx)
	if err != nil {
		return err
	}
	if head == "" {
		return nil
	}

	active, err := d.eng.Active(ctx)
	if err != nil || !active {
		return err
	}

	if handled, err := d.finishCherryPick(ctx, head); handled || err != nil {
		return err
	}

	amend, err := d.looksLikeAmend(ctx, head)
	if err != nil {
		return err
	}
	if amend {
		d.log.Debug("amend commit, post-rewrite owns it")
		return nil
	}
	return d.eng.OnCommitCreated(ctx, head)
}

// PostRewrite consumes the "old new" SHA pairs git reports after an
// amend or a rebase.
func (d *Dispatcher) PostRewrite(ctx context.Context, kind string, stdin io.Reader) error {
	if d.skip() {
		return nil
	}
	mappings, err := parseMappings(stdin)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		return nil
	}

	switch kind {
	case "amend":
		if d.repo.RebaseInProgress() {
			// Per-commit amends inside a rebase are reported again by
			// the final post-rewrite rebase invocation.
			d.log.Debug("amend during rebase, deferring to the rebase mapping")
			return nil
		}
		m := mappings[len(mappings)-1]
		return d.eng.OnCommitAmended(ctx, m.Old, m.New)
	case "rebase":
		return d.eng.OnHistoryRewrite(ctx, eventlog.NewRebaseComplete(mappings))
	default:
		return fmt.Errorf("unknown post-rewrite kind %q", kind)
	}
}

// PostCheckout follows a checkout: a clone's first checkout fetches
// notes, a branch switch carries in-flight attribution to the new HEAD,
// and a file checkout drops checkpoints for the edits it reverted.
func (d *Dispatcher) PostCheckout(ctx context.Context, oldHead, newHead string, branch bool) error {
	if d.skip() {
		return nil
	}
	if isZeroOID(oldHead) {
		// First checkout after clone. Best-effort: the remote may not
		// carry the notes ref at all.
		if err := d.eng.Notes().Fetch(ctx, d.cfg.Remote); err != nil {
			d.log.Debug("notes fetch after clone failed", "remote", d.cfg.Remote, "err", err)
		}
		return nil
	}

	switch {
	case branch && oldHead != newHead:
		if !d.eng.Worklogs().For(oldHead).Exists() {
			return nil
		}
		if err := d.eng.Worklogs().Rename(oldHead, newHead); err != nil {
			return err
		}
		return d.trimWorklog(ctx, newHead)
	case !branch && oldHead == newHead:
		return d.trimWorklog(ctx, oldHead)
	}
	return nil
}

// PostMerge handles the two merge shapes post-commit never sees: a
// squash merge stages another branch's tree without committing, and a
// real merge creates its commit inside git-merge.
func (d *Dispatcher) PostMerge(ctx context.Context, squashed bool) error {
	if d.skip() {
		return nil
	}
	if squashed || d.repo.SquashMsgPresent() {
		source := mergeSourceFromReflogAction(os.Getenv("GIT_REFLOG_ACTION"))
		if source == "" {
			d.log.Debug("squash merge without a resolvable source ref")
			return nil
		}
		return d.eng.OnSquashMerge(ctx, source)
	}

	head, err := d.repo.HeadSHA(ctx)
	if err != nil {
		return err
	}
	prev, err := d.repo.PrevHeadFromReflog(ctx)
	if err != nil {
		return err
	}
	if head == "" || prev == "" || prev == head {
		return nil
	}
	parent, err := d.repo.FirstParent(head)
	if err != nil {
		return err
	}
	parents, err := d.repo.ParentCount(head)
	if err != nil {
		return err
	}
	if parents >= 2 && parent == prev {
		// The merge created a commit on top of the old head. Fold the
		// working log the same way post-commit would.
		return d.eng.OnCommitCreated(ctx, head)
	}
	// Fast-forward: HEAD jumped to an existing commit and nothing was
	// consolidated. In-flight attribution follows the new base.
	if !d.eng.Worklogs().For(prev).Exists() {
		return nil
	}
	return d.eng.Worklogs().Rename(prev, head)
}

// PrePush ships the attribution notes ref alongside the user's push.
// Failures are logged, never returned: a pre-push hook exiting non-zero
// would abort the push itself.
func (d *Dispatcher) PrePush(ctx context.Context, remote string) error {
	if d.skip() {
		return nil
	}
	if remote == "" {
		remote = d.cfg.Remote
	}
	ok, err := d.eng.Notes().RefExists(ctx)
	if err != nil || !ok {
		return err
	}
	if err := d.eng.Notes().Push(ctx, remote); err != nil {
		d.log.Warn("attribution notes push failed", "remote", remote, "err", err)
	}
	return nil
}

// ObserveReset records a reset the calling wrapper performed. from is
// HEAD before the reset ("" falls back to the reflog); the kind is
// inferred from what the reset left behind, mirroring what --soft,
// --mixed and --hard leave in the index and worktree.
func (d *Dispatcher) ObserveReset(ctx context.Context, from string) error {
	if d.skip() {
		return nil
	}
	to, err := d.repo.HeadSHA(ctx)
	if err != nil {
		return err
	}
	if from == "" {
		if from, err = d.repo.PrevHeadFromReflog(ctx); err != nil {
			return err
		}
	} else if from, err = d.repo.ResolveCommit(from); err != nil {
		return fmt.Errorf("reset origin: %w", err)
	}
	if from == "" || to == "" || from == to {
		return nil
	}

	kind, err := d.classifyReset(ctx)
	if err != nil {
		return err
	}
	return d.eng.OnHistoryRewrite(ctx, eventlog.NewReset(kind, from, to))
}

// classifyReset infers the reset mode from the worktree. A soft reset
// leaves the peeled changes staged, a mixed reset leaves them unstaged,
// and a hard reset leaves tracked files clean. Untracked files carry no
// signal: every mode leaves them alone.
func (d *Dispatcher) classifyReset(ctx context.Context) (eventlog.ResetKind, error) {
	status, err := d.repo.WorktreeStatus(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case len(status.Staged) > 0:
		return eventlog.ResetSoft, nil
	case len(status.Unstaged) > 0:
		return eventlog.ResetMixed, nil
	default:
		return eventlog.ResetHard, nil
	}
}

// finishCherryPick records the source→new mapping when the commit
// concluded a cherry-pick. CHERRY_PICK_HEAD is still readable during
// post-commit for picks the sequencer commits itself; a conflicted pick
// resolved by plain git commit loses the ref first, so the marker
// PreCommit captured fills in, confirmed against the reflog.
func (d *Dispatcher) finishCherryPick(ctx context.Context, head string) (bool, error) {
	var source string
	if d.repo.CherryPickInProgress() {
		if sha, err := d.repo.ResolveCommit("CHERRY_PICK_HEAD"); err == nil {
			source = sha
		}
	}
	if source == "" {
		pending, err := d.loadPendingPick()
		if err != nil || pending == nil {
			return false, err
		}
		subjects, err := d.repo.ReflogSubjects(ctx, 1)
		if err != nil {
			return false, err
		}
		if len(subjects) == 0 || !strings.Contains(subjects[0], "cherry-pick") {
			return false, nil
		}
		source = pending.Source
	}
	if err := d.clearPendingPick(); err != nil {
		return false, err
	}
	if source == head {
		return false, nil
	}

	ev := eventlog.NewCherryPickComplete([]eventlog.Mapping{{Old: source, New: head}})
	return true, d.eng.OnHistoryRewrite(ctx, ev)
}

// looksLikeAmend reports whether the new commit replaced HEAD instead
// of extending it. git commit --amend fires post-commit and
// post-rewrite both; post-rewrite is the single source of truth for
// the rewrite, so post-commit must recognize and skip it.
func (d *Dispatcher) looksLikeAmend(ctx context.Context, head string) (bool, error) {
	subjects, err := d.repo.ReflogSubjects(ctx, 1)
	if err != nil {
		return false, err
	}
	if len(subjects) > 0 && strings.HasPrefix(subjects[0], "commit (amend):") {
		return true, nil
	}
	prev, err := d.repo.PrevHeadFromReflog(ctx)
	if err != nil || prev == "" {
		return false, err
	}
	parent, err := d.repo.FirstParent(head)
	if err != nil {
		return false, err
	}
	return prev != parent, nil
}

// trimWorklog drops working-log attribution for every path that is no
// longer dirty; the checkout just reverted those edits.
func (d *Dispatcher) trimWorklog(ctx context.Context, base string) error {
	wl := d.eng.Worklogs().For(base)
	if !wl.Exists() {
		return nil
	}
	status, err := d.repo.WorktreeStatus(ctx)
	if err != nil {
		return err
	}
	dirty := map[string]bool{}
	for _, paths := range [][]string{status.Staged, status.Unstaged, status.Untracked} {
		for _, p := range paths {
			dirty[p] = true
		}
	}

	release, err := wl.Lock()
	if err != nil {
		return err
	}
	defer release()
	return wl.FilterEntries(func(path string) bool { return dirty[path] })
}

// pendingPick remembers the source commit of an in-flight cherry-pick
// across the window where git has already removed CHERRY_PICK_HEAD.
type pendingPick struct {
	Source    string `json:"source"`
	CreatedAt int64  `json:"created_at"`
}

func (d *Dispatcher) pendingPickPath() (string, error) {
	dir, err := d.repo.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pending-cherry-pick.json"), nil
}

func (d *Dispatcher) savePendingPick(p pendingPick) error {
	path, err := d.pendingPickPath()
	if err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save cherry-pick marker: %w", err)
	}
	return nil
}

func (d *Dispatcher) loadPendingPick() (*pendingPick, error) {
	path, err := d.pendingPickPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var p pendingPick
	if err := json.Unmarshal(data, &p); err != nil {
		// A corrupt marker is useless; drop it.
		return nil, d.clearPendingPick()
	}
	if time.Now().UnixMilli()-p.CreatedAt > pendingPickMaxAge.Milliseconds() {
		return nil, d.clearPendingPick()
	}
	return &p, nil
}

func (d *Dispatcher) clearPendingPick() error {
	path, err := d.pendingPickPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// parseMappings reads the "old new" SHA pairs a post-rewrite hook
// receives on stdin. Malformed lines are skipped.
func parseMappings(r io.Reader) ([]eventlog.Mapping, error) {
	var mappings []eventlog.Mapping
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		mappings = append(mappings, eventlog.Mapping{Old: fields[0], New: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rewrite mappings: %w", err)
	}
	return mappings, nil
}

// mergeSourceFromReflogAction extracts the merged ref from the
// GIT_REFLOG_ACTION value git exports to merge hooks, e.g.
// "merge feature-x" or "merge --squash feature-x".
func mergeSourceFromReflogAction(action string) string {
	tokens := strings.Fields(action)
	if len(tokens) == 0 || tokens[0] != "merge" {
		return ""
	}
	for i := len(tokens) - 1; i >= 1; i-- {
		if !strings.HasPrefix(tokens[i], "-") && tokens[i] != "merge" {
			return tokens[i]
		}
	}
	return ""
}

// isZeroOID reports whether oid is the all-zero id git uses to mean
// "no commit", e.g. the old head of a clone's first checkout.
func isZeroOID(oid string) bool {
	if oid == "" {
		return false
	}
	return strings.Trim(oid, "0") == ""
}
