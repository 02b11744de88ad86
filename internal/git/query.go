package git

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Status reports working-tree state grouped the way the engine consumes
// it: reset-kind classification and checkpoint scoping both key off which
// buckets are non-empty.
type Status struct {
	Staged    []string
	Unstaged  []string
	Untracked []string
}

// HeadSHA returns the current HEAD commit, or "" on an unborn branch.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		if ExitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		if ExitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CommitsTouchingPath lists the commits that changed path, newest first,
// reachable from rev. An unborn branch yields no commits.
func (r *Repo) CommitsTouchingPath(ctx context.Context, rev, path string) ([]string, error) {
	out, err := r.Run(ctx, "log", "--format=%H", rev, "--", path)
	if err != nil {
		if ExitCode(err) == 128 {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitChangedPaths lists the paths touched by one commit (including a
// root commit).
func (r *Repo) CommitChangedPaths(ctx context.Context, sha string) ([]string, error) {
	out, err := r.Run(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "--root", sha)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// StagedBlobOID returns the index blob id for path, or "" when the path is
// not staged.
func (r *Repo) StagedBlobOID(ctx context.Context, path string) (string, error) {
	out, err := r.Run(ctx, "ls-files", "-s", "--", path)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", nil
	}
	// "<mode> <oid> <stage>\t<path>"
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", fmt.Errorf("unexpected ls-files output: %q", out)
	}
	return fields[1], nil
}

// HashObject writes content to the object store and returns its blob id.
// Checkpoints store this id so stale snapshots can be rejected later.
func (r *Repo) HashObject(ctx context.Context, content []byte) (string, error) {
	return r.RunStdin(ctx, content, "hash-object", "-w", "--stdin")
}

// BlobAtCommit returns the blob object id of path at sha, or "" when the
// path does not exist in that commit's tree.
func (r *Repo) BlobAtCommit(ctx context.Context, sha, path string) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "--verify", "-q", sha+":"+path)
	if err != nil {
		if ExitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// CommitsBetween lists commits reachable from to but not from from,
// newest first. An equal pair yields nothing.
func (r *Repo) CommitsBetween(ctx context.Context, from, to string) ([]string, error) {
	out, err := r.Run(ctx, "rev-list", from+".."+to)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// WorktreeStatus classifies porcelain status output into staged, unstaged
// and untracked paths. Renames report their new name. Untracked files are
// listed individually (--untracked-files=all) so a brand-new directory
// yields its files, never a bare "dir/" entry.
func (r *Repo) WorktreeStatus(ctx context.Context) (Status, error) {
	out, err := r.Run(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return Status{}, err
	}

	var st Status
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y, path := line[0], line[1], line[3:]
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		path = strings.Trim(path, `"`)
		switch {
		case x == '?' && y == '?':
			st.Untracked = append(st.Untracked, path)
		default:
			if x != ' ' {
				st.Staged = append(st.Staged, path)
			}
			if y != ' ' {
				st.Unstaged = append(st.Unstaged, path)
			}
		}
	}
	return st, nil
}

// ReflogSubjects returns the most recent n HEAD reflog subjects, newest
// first. An unborn branch has no reflog and yields nothing.
func (r *Repo) ReflogSubjects(ctx context.Context, n int) ([]string, error) {
	out, err := r.Run(ctx, "log", "-g", fmt.Sprintf("-n%d", n), "--format=%gs", "HEAD")
	if err != nil {
		if ExitCode(err) == 128 {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// PrevHeadFromReflog returns the commit HEAD pointed at before its most
// recent move, or "" when the reflog has no previous entry (fresh repo,
// first commit).
func (r *Repo) PrevHeadFromReflog(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "rev-parse", "-q", "--verify", "HEAD@{1}^{commit}")
	if err != nil {
		if code := ExitCode(err); code == 1 || code == 128 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// RebaseInProgress reports whether this worktree is mid-rebase. The
// post-commit hook must stay quiet then; post-rewrite owns the mapping.
func (r *Repo) RebaseInProgress() bool {
	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		if info, err := os.Stat(r.StatePath(dir)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// CherryPickInProgress reports whether CHERRY_PICK_HEAD exists.
func (r *Repo) CherryPickInProgress() bool {
	_, err := os.Stat(r.StatePath("CHERRY_PICK_HEAD"))
	return err == nil
}

// SquashMsgPresent reports whether SQUASH_MSG exists (a squash merge was
// prepared in this worktree).
func (r *Repo) SquashMsgPresent() bool {
	_, err := os.Stat(r.StatePath("SQUASH_MSG"))
	return err == nil
}

// RevList lists commits reachable from rev, newest first, optionally
// bounded by committer time and count. An unborn HEAD yields nothing.
func (r *Repo) RevList(ctx context.Context, rev string, since time.Time, limit int) ([]string, error) {
	args := []string{"rev-list", rev}
	if !since.IsZero() {
		args = append(args, "--since="+since.Format(time.RFC3339))
	}
	if limit > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", limit))
	}
	out, err := r.Run(ctx, args...)
	if err != nil {
		if ExitCode(err) == 128 {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitSubject returns the first line of a commit's message.
func (r *Repo) CommitSubject(ctx context.Context, sha string) (string, error) {
	return r.Run(ctx, "log", "-1", "--format=%s", sha)
}

// CommitAuthorName returns the author name recorded on a commit.
func (r *Repo) CommitAuthorName(ctx context.Context, sha string) (string, error) {
	return r.Run(ctx, "log", "-1", "--format=%an", sha)
}

// CommitAuthorFallback returns the configured user.name, or "" when
// unset. Exit code 1 means the key is simply absent.
func (r *Repo) CommitAuthorFallback(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, "config", "user.name")
	if err != nil {
		if ExitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// CommitTimestamp returns the committer time of sha as unix seconds.
func (r *Repo) CommitTimestamp(ctx context.Context, sha string) (int64, error) {
	out, err := r.Run(ctx, "log", "-1", "--format=%ct", sha)
	if err != nil {
		return 0, err
	}
	var ts int64
	if _, err := fmt.Sscanf(out, "%d", &ts); err != nil {
		return 0, fmt.Errorf("unexpected timestamp %q for %s: %w", out, short(sha), err)
	}
	return ts, nil
}
