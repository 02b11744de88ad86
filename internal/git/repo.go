// Package git wraps the repository plumbing the engine depends on.
//
// Worktree-sensitive operations (status, index, notes, hooks state) shell
// out to the git binary because go-git does not handle linked worktrees
// correctly. Pure object-store reads (commits, trees, file contents at a
// revision) go through go-git to avoid a subprocess per lookup.
package git

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/git-ai-project/git-ai/internal/logging"
)

// ZeroOID is the all-zeros object id git passes to hooks for "no commit",
// e.g. the old HEAD of a fresh clone's first checkout.
const ZeroOID = "0000000000000000000000000000000000000000"

// Repo is a handle on one repository (or linked worktree). All paths it
// reports are absolute. A Repo is safe for concurrent readers.
type Repo struct {
	workDir   string // worktree root; empty in a bare repo
	gitDir    string // per-worktree git dir (.git or .git/worktrees/<name>)
	commonDir string // shared git dir holding objects and refs
	gitCmd    string
	log       *slog.Logger

	openOnce sync.Once
	gg       *gogit.Repository
	ggErr    error
}

// Option tweaks Open.
type Option func(*Repo)

// WithGitCommand overrides the git binary (tests point this at a stub).
func WithGitCommand(cmd string) Option {
	return func(r *Repo) { r.gitCmd = cmd }
}

// WithLogger attaches a diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repo) { r.log = log }
}

// Open locates the repository containing dir. In a linked worktree the
// per-worktree git dir and the shared common dir differ; state files stay
// per-worktree while objects and notes are shared.
func Open(dir string, opts ...Option) (*Repo, error) {
	r := &Repo{gitCmd: "git", log: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	out, err := r.runIn(abs, "rev-parse", "--git-dir", "--git-common-dir")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("unexpected rev-parse output: %q", out)
	}
	r.gitDir = absJoin(abs, lines[0])
	r.commonDir = absJoin(abs, lines[1])

	// --show-toplevel fails in a bare repository; treat that as "no worktree".
	if top, err := r.runIn(abs, "rev-parse", "--show-toplevel"); err == nil {
		r.workDir = strings.TrimSpace(top)
	}

	return r, nil
}

func absJoin(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// WorkDir returns the worktree root ("" for bare repositories).
func (r *Repo) WorkDir() string { return r.workDir }

// GitDir returns the per-worktree git directory.
func (r *Repo) GitDir() string { return r.gitDir }

// CommonDir returns the shared git directory (objects, refs, notes).
func (r *Repo) CommonDir() string { return r.commonDir }

// IsWorktree reports whether this handle points at a linked worktree,
// determined by comparing the git dir against the common dir.
func (r *Repo) IsWorktree() bool { return r.gitDir != r.commonDir }

// StateDir returns <gitdir>/ai, creating it on first use. Working logs,
// the rewrite-event log, and local config live here, per worktree.
func (r *Repo) StateDir() (string, error) {
	dir := filepath.Join(r.gitDir, "ai")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// StatePath resolves a git state file relative to the per-worktree git
// dir (rebase-merge, CHERRY_PICK_HEAD, SQUASH_MSG, ...).
func (r *Repo) StatePath(name string) string {
	return filepath.Join(r.gitDir, name)
}

// RelToTopLevel resolves path (absolute, or relative to cwd) into a
// repo-root-relative slash path, so queries behave identically from any
// working directory.
func (r *Repo) RelToTopLevel(cwd, path string) (string, error) {
	if r.workDir == "" {
		return "", fmt.Errorf("bare repository has no worktree paths")
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	rel, err := filepath.Rel(r.workDir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the repository", path)
	}
	return filepath.ToSlash(rel), nil
}

// object returns the lazily opened go-git handle for object-store reads.
func (r *Repo) object() (*gogit.Repository, error) {
	r.openOnce.Do(func() {
		openFrom := r.workDir
		if openFrom == "" {
			openFrom = r.gitDir
		}
		r.gg, r.ggErr = gogit.PlainOpenWithOptions(openFrom, &gogit.PlainOpenOptions{
			DetectDotGit:          true,
			EnableDotGitCommonDir: true,
		})
	})
	return r.gg, r.ggErr
}

// ResolveCommit resolves a revision expression to a full commit SHA via the
// object store.
func (r *Repo) ResolveCommit(rev string) (string, error) {
	gg, err := r.object()
	if err != nil {
		return "", fmt.Errorf("failed to open object store: %w", err)
	}
	h, err := gg.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", rev, err)
	}
	// ResolveRevision accepts any well-formed full hash; verify the
	// object exists and peel annotated tags to their commit.
	if _, err := gg.CommitObject(*h); err == nil {
		return h.String(), nil
	}
	tag, err := gg.TagObject(*h)
	if err != nil {
		return "", fmt.Errorf("%q does not name a commit", rev)
	}
	commit, err := tag.Commit()
	if err != nil {
		return "", fmt.Errorf("%q does not name a commit", rev)
	}
	return commit.Hash.String(), nil
}

// FileAtCommit returns the content of a repo-relative path at the given
// commit. The second return is false when the path does not exist there.
func (r *Repo) FileAtCommit(sha, path string) (string, bool, error) {
	gg, err := r.object()
	if err != nil {
		return "", false, fmt.Errorf("failed to open object store: %w", err)
	}
	commit, err := gg.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return "", false, fmt.Errorf("failed to load commit %s: %w", short(sha), err)
	}
	f, err := commit.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s at %s: %w", path, short(sha), err)
	}
	content, err := f.Contents()
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s at %s: %w", path, short(sha), err)
	}
	return content, true, nil
}

// BlobContent returns the raw bytes of a blob object.
func (r *Repo) BlobContent(oid string) ([]byte, error) {
	gg, err := r.object()
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}
	blob, err := gg.BlobObject(plumbing.NewHash(oid))
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", short(oid), err)
	}
	rd, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", short(oid), err)
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

// BlobHash computes the blob object id content would hash to, without
// writing anything to the object store.
func BlobHash(content []byte) string {
	return plumbing.ComputeHash(plumbing.BlobObject, content).String()
}

// FirstParent returns the first parent SHA of a commit, or "" for a root
// commit.
func (r *Repo) FirstParent(sha string) (string, error) {
	gg, err := r.object()
	if err != nil {
		return "", fmt.Errorf("failed to open object store: %w", err)
	}
	commit, err := gg.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return "", fmt.Errorf("failed to load commit %s: %w", short(sha), err)
	}
	if commit.NumParents() == 0 {
		return "", nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return "", fmt.Errorf("failed to load parent of %s: %w", short(sha), err)
	}
	return parent.Hash.String(), nil
}

// ParentCount returns how many parents a commit has. Merge commits
// have two or more.
func (r *Repo) ParentCount(sha string) (int, error) {
	gg, err := r.object()
	if err != nil {
		return 0, fmt.Errorf("failed to open object store: %w", err)
	}
	commit, err := gg.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return 0, fmt.Errorf("failed to load commit %s: %w", short(sha), err)
	}
	return commit.NumParents(), nil
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
