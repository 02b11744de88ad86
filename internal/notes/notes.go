// Package notes reads and writes attribution logs stored in git notes.
//
// One note per attributed commit, under refs/notes/<ref> (default
// refs/notes/ai). Notes travel between clones through an explicit
// refspec; a tracking ref per remote keeps fetched state separate until
// it is merged into the local notes ref.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/logging"
)

// Client scopes note operations to one repository and notes ref.
type Client struct {
	repo *git.Repo
	ref  string
	log  *slog.Logger
}

// Option tweaks New.
type Option func(*Client)

// WithLogger attaches a diagnostic logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for the given short ref name (e.g. "ai").
func New(repo *git.Repo, ref string, opts ...Option) *Client {
	c := &Client{repo: repo, ref: ref, log: logging.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FullRef returns the fully qualified notes ref.
func (c *Client) FullRef() string {
	if strings.HasPrefix(c.ref, "refs/") {
		return c.ref
	}
	return "refs/notes/" + c.ref
}

// trackingRef names where fetched notes from a remote land before
// merging. Remote names can contain characters refs cannot.
func (c *Client) trackingRef(remote string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, remote)
	return c.FullRef() + "-remote/" + sanitized
}

// RefExists reports whether any note has ever been written under this
// ref.
func (c *Client) RefExists(ctx context.Context) (bool, error) {
	_, err := c.repo.Run(ctx, "rev-parse", "--verify", "-q", c.FullRef())
	if err != nil {
		if git.ExitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put serializes log and attaches it to sha, replacing any existing
// note.
func (c *Client) Put(ctx context.Context, sha string, log *authorship.Log) error {
	data, err := log.Serialize()
	if err != nil {
		return err
	}
	return c.PutRaw(ctx, sha, data)
}

// PutRaw attaches already-serialized note content to sha.
func (c *Client) PutRaw(ctx context.Context, sha string, data []byte) error {
	if _, err := c.repo.RunStdin(ctx, data, "notes", "--ref="+c.FullRef(), "add", "-f", "-F", "-", sha); err != nil {
		return fmt.Errorf("failed to write note for %s: %w", sha, err)
	}
	c.log.Debug("wrote attribution note", "commit", sha, "bytes", len(data))
	return nil
}

// GetRaw returns the note content for sha. The second return is false
// when the commit has no note.
func (c *Client) GetRaw(ctx context.Context, sha string) ([]byte, bool, error) {
	out, err := c.repo.Run(ctx, "notes", "--ref="+c.FullRef(), "show", sha)
	if err != nil {
		// git exits 1 when the object has no note.
		if git.ExitCode(err) == 1 {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read note for %s: %w", sha, err)
	}
	return []byte(out + "\n"), true, nil
}

// Get returns the decoded attribution log for sha, or nil when the
// commit has no note.
func (c *Client) Get(ctx context.Context, sha string) (*authorship.Log, error) {
	raw, ok, err := c.GetRaw(ctx, sha)
	if err != nil || !ok {
		return nil, err
	}
	log, err := authorship.Deserialize(raw)
	if err != nil {
		return nil, fmt.Errorf("note for %s: %w", sha, err)
	}
	return log, nil
}

// Remove deletes the note for sha if one exists.
func (c *Client) Remove(ctx context.Context, sha string) error {
	if _, err := c.repo.Run(ctx, "notes", "--ref="+c.FullRef(), "remove", "--ignore-missing", sha); err != nil {
		return fmt.Errorf("failed to remove note for %s: %w", sha, err)
	}
	return nil
}

// List maps every annotated commit to its note blob id. A ref with no
// notes yields an empty map.
func (c *Client) List(ctx context.Context) (map[string]string, error) {
	out, err := c.repo.Run(ctx, "notes", "--ref="+c.FullRef(), "list")
	if err != nil {
		if git.ExitCode(err) == 1 {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	byCommit := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		noteOID, commit, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unexpected notes list line: %q", line)
		}
		byCommit[commit] = noteOID
	}
	return byCommit, nil
}

// LoadMany decodes the notes for the given commits in one object-store
// round trip. Commits without a note are absent from the result.
func (c *Client) LoadMany(ctx context.Context, shas []string) (map[string]*authorship.Log, error) {
	raw, err := c.loadRaw(ctx, shas)
	if err != nil {
		return nil, err
	}
	logs := make(map[string]*authorship.Log, len(raw))
	for sha, data := range raw {
		log, err := authorship.Deserialize(data)
		if err != nil {
			return nil, fmt.Errorf("note for %s: %w", sha, err)
		}
		logs[sha] = log
	}
	return logs, nil
}

// TouchedPaths maps each annotated commit among shas to the paths its
// note attests, without fully decoding the notes.
func (c *Client) TouchedPaths(ctx context.Context, shas []string) (map[string][]string, error) {
	raw, err := c.loadRaw(ctx, shas)
	if err != nil {
		return nil, err
	}
	paths := make(map[string][]string, len(raw))
	for sha, data := range raw {
		paths[sha] = authorship.TouchedPathsFromRaw(data)
	}
	return paths, nil
}

func (c *Client) loadRaw(ctx context.Context, shas []string) (map[string][]byte, error) {
	byCommit, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var oids []string
	oidToCommit := map[string]string{}
	for _, sha := range shas {
		if noteOID, ok := byCommit[sha]; ok {
			oids = append(oids, noteOID)
			oidToCommit[noteOID] = sha
		}
	}
	blobs, err := c.repo.CatFileBatch(ctx, oids)
	if err != nil {
		return nil, err
	}
	raw := make(map[string][]byte, len(blobs))
	for oid, data := range blobs {
		raw[oidToCommit[oid]] = data
	}
	return raw, nil
}

// Fetch pulls the remote's notes into the tracking ref and merges them
// into the local notes ref. Local notes win on conflict: a clone never
// rewrites attribution it created.
func (c *Client) Fetch(ctx context.Context, remote string) (err error) {
	ctx, end := syncSpan(ctx, "fetch", remote)
	defer func() { end(err) }()

	if _, err := c.repo.Run(ctx, "ls-remote", "--exit-code", remote, c.FullRef()); err != nil {
		// ls-remote exits 2 when the remote has no matching ref.
		if git.ExitCode(err) == 2 {
			return nil
		}
		return fmt.Errorf("failed to reach %s: %w", remote, err)
	}
	tracking := c.trackingRef(remote)
	if _, err := c.repo.Run(ctx, "fetch", remote, "+"+c.FullRef()+":"+tracking); err != nil {
		return fmt.Errorf("failed to fetch notes from %s: %w", remote, err)
	}
	if _, err := c.repo.Run(ctx, "notes", "--ref="+c.FullRef(), "merge", "-s", "ours", "--quiet", tracking); err != nil {
		return fmt.Errorf("failed to merge notes from %s: %w", remote, err)
	}
	c.log.Debug("fetched attribution notes", "remote", remote)
	return nil
}

// Push publishes the local notes ref. A rejected push (someone else
// pushed notes first) triggers a fetch-merge-retry cycle; anything the
// remote knows and we do not is merged in before trying again.
func (c *Client) Push(ctx context.Context, remote string) (err error) {
	ctx, end := syncSpan(ctx, "push", remote)
	defer func() { end(err) }()

	exists, err := c.RefExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	refspec := c.FullRef() + ":" + c.FullRef()
	attempt := func() error {
		_, pushErr := c.repo.Run(ctx, "push", remote, refspec)
		if pushErr == nil {
			return nil
		}
		if git.ExitCode(pushErr) != 1 {
			return backoff.Permanent(pushErr)
		}
		if fetchErr := c.Fetch(ctx, remote); fetchErr != nil {
			return backoff.Permanent(fetchErr)
		}
		return pushErr
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("failed to push notes to %s: %w", remote, err)
	}
	c.log.Debug("pushed attribution notes", "remote", remote)
	return nil
}
