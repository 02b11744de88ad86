// Package gittest builds throwaway repositories for tests that exercise
// real git plumbing. Tests skip when no git binary is on PATH.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RequireGit skips the test when git is unavailable.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not found on PATH")
	}
}

// InitRepo creates an empty repository in a temp dir with a deterministic
// default branch and identity, and returns its path.
func InitRepo(t *testing.T) string {
	t.Helper()
	RequireGit(t)

	dir := t.TempDir()
	Run(t, dir, "init")
	// Pin the default branch so output is stable across git versions.
	Run(t, dir, "symbolic-ref", "HEAD", "refs/heads/main")
	Run(t, dir, "config", "user.name", "Test User")
	Run(t, dir, "config", "user.email", "test@example.com")
	Run(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

// Run executes git in dir and fails the test on a non-zero exit.
func Run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// WriteFile writes content to a path relative to the repository root,
// creating parent directories as needed.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// Commit stages everything and commits, returning the new HEAD SHA.
func Commit(t *testing.T, dir, message string) string {
	t.Helper()
	Run(t, dir, "add", "-A")
	Run(t, dir, "commit", "-m", message)
	return Run(t, dir, "rev-parse", "HEAD")
}

// HeadSHA returns the current HEAD commit.
func HeadSHA(t *testing.T, dir string) string {
	t.Helper()
	return Run(t, dir, "rev-parse", "HEAD")
}

// BlobOID hashes content into the repository's object store and returns
// the blob id, the same way checkpoints fingerprint file snapshots.
func BlobOID(t *testing.T, dir, content string) string {
	t.Helper()
	cmd := exec.Command("git", "-C", dir, "hash-object", "-w", "--stdin")
	cmd.Stdin = strings.NewReader(content)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("hash-object failed: %v", err)
	}
	return strings.TrimSpace(string(out))
}
