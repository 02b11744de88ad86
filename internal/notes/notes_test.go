package notes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/gittest"
)

func setup(t *testing.T) (*Client, *git.Repo, string) {
	t.Helper()
	gittest.RequireGit(t)
	dir := gittest.InitRepo(t)
	repo, err := git.Open(dir)
	require.NoError(t, err)
	return New(repo, "ai"), repo, dir
}

func sampleLog(sha string) *authorship.Log {
	log := authorship.NewLog(sha)
	log.SetFileAuthors("main.go", map[int]string{1: "abcd1234abcd1234", 2: "human"})
	return log
}

func TestPutGetRoundTrip(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")

	want := sampleLog(sha)
	require.NoError(t, client.Put(ctx, sha, want))

	got, err := client.Get(ctx, sha)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetWithoutNote(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")

	got, err := client.Get(ctx, sha)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := client.RefExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPutReplacesExistingNote(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")

	require.NoError(t, client.Put(ctx, sha, sampleLog(sha)))

	updated := authorship.NewLog(sha)
	updated.SetFileAuthors("other.go", map[int]string{3: "human"})
	require.NoError(t, client.Put(ctx, sha, updated))

	got, err := client.Get(ctx, sha)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestRemove(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")

	require.NoError(t, client.Remove(ctx, sha), "removing a missing note is fine")

	require.NoError(t, client.Put(ctx, sha, sampleLog(sha)))
	require.NoError(t, client.Remove(ctx, sha))

	got, err := client.Get(ctx, sha)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListAndLoadMany(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "a.go", "package a\n")
	sha1 := gittest.Commit(t, dir, "first")
	gittest.WriteFile(t, dir, "b.go", "package b\n")
	sha2 := gittest.Commit(t, dir, "second")
	gittest.WriteFile(t, dir, "c.go", "package c\n")
	sha3 := gittest.Commit(t, dir, "third")

	require.NoError(t, client.Put(ctx, sha1, sampleLog(sha1)))
	require.NoError(t, client.Put(ctx, sha3, sampleLog(sha3)))

	listed, err := client.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Contains(t, listed, sha1)
	assert.Contains(t, listed, sha3)

	logs, err := client.LoadMany(ctx, []string{sha1, sha2, sha3})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, sha1, logs[sha1].Metadata.BaseCommitSHA)
	assert.NotContains(t, logs, sha2)
}

func TestTouchedPaths(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")

	log := authorship.NewLog(sha)
	log.SetFileAuthors("main.go", map[int]string{1: "human"})
	log.SetFileAuthors("pkg/util.go", map[int]string{2: "human"})
	require.NoError(t, client.Put(ctx, sha, log))

	paths, err := client.TouchedPaths(ctx, []string{sha})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "pkg/util.go"}, paths[sha])
}

func TestListEmptyRef(t *testing.T) {
	client, _, _ := setup(t)

	listed, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestPushAndFetchThroughBareRemote(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")
	require.NoError(t, client.Put(ctx, sha, sampleLog(sha)))

	bare := filepath.Join(t.TempDir(), "remote.git")
	gittest.Run(t, dir, "init", "--bare", bare)
	gittest.Run(t, dir, "remote", "add", "origin", bare)
	gittest.Run(t, dir, "push", "origin", "HEAD:refs/heads/main")

	require.NoError(t, client.Push(ctx, "origin"))

	cloneDir := filepath.Join(t.TempDir(), "clone")
	gittest.Run(t, dir, "clone", bare, cloneDir)
	cloneRepo, err := git.Open(cloneDir)
	require.NoError(t, err)
	cloneClient := New(cloneRepo, "ai")

	got, err := cloneClient.Get(ctx, sha)
	require.NoError(t, err)
	require.Nil(t, got, "clone starts without notes")

	require.NoError(t, cloneClient.Fetch(ctx, "origin"))

	got, err = cloneClient.Get(ctx, sha)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sha, got.Metadata.BaseCommitSHA)
}

func TestPushWithoutNotesIsNoop(t *testing.T) {
	client, _, _ := setup(t)
	// No remote is configured; Push must exit before contacting one.
	require.NoError(t, client.Push(context.Background(), "origin"))
}

func TestFetchFromRemoteWithoutNotes(t *testing.T) {
	client, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	gittest.Commit(t, dir, "init")

	bare := filepath.Join(t.TempDir(), "remote.git")
	gittest.Run(t, dir, "init", "--bare", bare)
	gittest.Run(t, dir, "remote", "add", "origin", bare)
	gittest.Run(t, dir, "push", "origin", "HEAD:refs/heads/main")

	require.NoError(t, client.Fetch(ctx, "origin"))
}
