package reconcile

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-project/git-ai/internal/authorship"
	"github.com/git-ai-project/git-ai/internal/eventlog"
	"github.com/git-ai-project/git-ai/internal/git"
	"github.com/git-ai-project/git-ai/internal/gittest"
	"github.com/git-ai-project/git-ai/internal/notes"
	"github.com/git-ai-project/git-ai/internal/worklog"
)

var testAgent = authorship.AgentID{Tool: "claude-code", ID: "session-1", Model: "opus"}

func setup(t *testing.T) (*Reconciler, *notes.Client, *worklog.Store, *git.Repo, string) {
	t.Helper()
	gittest.RequireGit(t)
	dir := gittest.InitRepo(t)
	repo, err := git.Open(dir)
	require.NoError(t, err)
	stateDir, err := repo.StateDir()
	require.NoError(t, err)
	nc := notes.New(repo, "ai")
	logs := worklog.NewStore(stateDir)
	return New(repo, nc, logs), nc, logs, repo, dir
}

func agentCheckpoint(ts int64, entries ...authorship.FileAttributionEntry) *authorship.Checkpoint {
	return &authorship.Checkpoint{
		SchemaVersion: authorship.CheckpointSchemaVersion,
		Kind:          authorship.KindAIAgent,
		Actor:         testAgent.Tool,
		Timestamp:     ts,
		Entries:       entries,
		AgentID:       &testAgent,
		Stats:         authorship.LineStats{Additions: 1, AdditionsSLOC: 1},
	}
}

func TestApplyCommitEventIsNoOp(t *testing.T) {
	r, nc, _, _, dir := setup(t)
	ctx := context.Background()
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	sha := gittest.Commit(t, dir, "init")

	require.NoError(t, r.Apply(ctx, eventlog.NewCommit("", sha)))

	got, err := nc.Get(ctx, sha)
	require.NoError(t, err)
	assert.Nil(t, got, "commit events must not synthesize notes")
}

func TestApplyUnknownEventType(t *testing.T) {
	r, _, _, _, _ := setup(t)
	err := r.Apply(context.Background(), eventlog.Event{Type: "squash"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "squash")
}

func TestRebaseMappingCopiesNote(t *testing.T) {
	r, nc, _, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "base.go", "package base\n")
	gittest.Commit(t, dir, "base")
	gittest.WriteFile(t, dir, "main.go", "package main\n")
	old := gittest.Commit(t, dir, "feature")

	note := authorship.NewLog(old)
	note.SetFileAuthors("main.go", map[int]string{1: testAgent.AuthorID()})
	require.NoError(t, nc.Put(ctx, old, note))

	// Same tree under a new SHA, as a rebase would produce.
	gittest.Run(t, dir, "commit", "--amend", "-m", "feature (rebased)")
	rebased := gittest.HeadSHA(t, dir)

	ev := eventlog.NewRebaseComplete([]eventlog.Mapping{{Old: old, New: rebased}})
	require.NoError(t, r.Apply(ctx, ev))

	moved, err := nc.Get(ctx, rebased)
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, rebased, moved.Metadata.BaseCommitSHA)
	assert.Equal(t, testAgent.AuthorID(), moved.AuthorAt("main.go", 1))

	// Migration is append-only: the old SHA keeps its note.
	kept, err := nc.Get(ctx, old)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMappingSkipsExistingDestinationNote(t *testing.T) {
	r, nc, _, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "a.go", "package a\n")
	old := gittest.Commit(t, dir, "one")
	gittest.Run(t, dir, "commit", "--amend", "-m", "one (picked)")
	picked := gittest.HeadSHA(t, dir)

	oldNote := authorship.NewLog(old)
	oldNote.SetFileAuthors("a.go", map[int]string{1: testAgent.AuthorID()})
	require.NoError(t, nc.Put(ctx, old, oldNote))

	existing := authorship.NewLog(picked)
	existing.SetFileAuthors("a.go", map[int]string{1: "human"})
	require.NoError(t, nc.Put(ctx, picked, existing))

	ev := eventlog.NewCherryPickComplete([]eventlog.Mapping{{Old: old, New: picked}})
	require.NoError(t, r.Apply(ctx, ev))
	require.NoError(t, r.Apply(ctx, ev)) // reapplying changes nothing either

	got, err := nc.Get(ctx, picked)
	require.NoError(t, err)
	assert.Equal(t, "human", got.AuthorAt("a.go", 1), "existing note must win")
}

func TestMappingWithoutSourceNote(t *testing.T) {
	r, nc, _, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "a.go", "package a\n")
	old := gittest.Commit(t, dir, "one")
	gittest.Run(t, dir, "commit", "--amend", "-m", "one (rebased)")
	rebased := gittest.HeadSHA(t, dir)

	ev := eventlog.NewRebaseComplete([]eventlog.Mapping{
		{Old: old, New: rebased},
		{Old: rebased, New: rebased}, // identity pairs are skipped
	})
	require.NoError(t, r.Apply(ctx, ev))

	got, err := nc.Get(ctx, rebased)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAmendCopiesNoteWhenNoWorkingLog(t *testing.T) {
	r, nc, logs, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	original := gittest.Commit(t, dir, "init")

	note := authorship.NewLog(original)
	note.SetFileAuthors("main.go", map[int]string{1: testAgent.AuthorID()})
	require.NoError(t, nc.Put(ctx, original, note))

	// Message-only amend: content identical, no checkpoints since.
	gittest.Run(t, dir, "commit", "--amend", "-m", "init (reworded)")
	amended := gittest.HeadSHA(t, dir)

	require.NoError(t, r.Apply(ctx, eventlog.NewAmend(original, amended)))

	moved, err := nc.Get(ctx, amended)
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, amended, moved.Metadata.BaseCommitSHA)
	assert.Equal(t, testAgent.AuthorID(), moved.AuthorAt("main.go", 1))
	assert.False(t, logs.For(amended).Exists())
}

func TestAmendFoldsWorkingLog(t *testing.T) {
	r, nc, logs, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "edited.go", "package edited\n")
	gittest.WriteFile(t, dir, "untouched.go", "package untouched\n")
	gittest.WriteFile(t, dir, "stale.go", "package stale\n")
	original := gittest.Commit(t, dir, "init")

	oldNote := authorship.NewLog(original)
	oldNote.SetFileAuthors("edited.go", map[int]string{1: "human"})
	oldNote.SetFileAuthors("untouched.go", map[int]string{1: testAgent.AuthorID()})
	oldNote.SetFileAuthors("stale.go", map[int]string{1: testAgent.AuthorID()})
	require.NoError(t, nc.Put(ctx, original, oldNote))

	// The agent rewrites edited.go and checkpoints; stale.go changes
	// without any checkpoint covering it.
	gittest.WriteFile(t, dir, "edited.go", "package edited // v2\n")
	gittest.WriteFile(t, dir, "stale.go", "package stale // v2\n")
	editedBlob := gittest.BlobOID(t, dir, "package edited // v2\n")
	cp := agentCheckpoint(500, authorship.FileAttributionEntry{
		Path:    "edited.go",
		BlobSHA: editedBlob,
		Lines: []authorship.LineAttribution{
			{Line: 1, AuthorID: testAgent.AuthorID(), Timestamp: 500, Overrode: "human"},
		},
	})
	require.NoError(t, logs.For(original).AppendCheckpoint(cp))

	gittest.Run(t, dir, "add", "-A")
	gittest.Run(t, dir, "commit", "--amend", "-m", "init (amended)")
	amended := gittest.HeadSHA(t, dir)

	require.NoError(t, r.Apply(ctx, eventlog.NewAmend(original, amended)))

	merged, err := nc.Get(ctx, amended)
	require.NoError(t, err)
	require.NotNil(t, merged)

	// Checkpointed rewrite wins for the edited file.
	assert.Equal(t, testAgent.AuthorID(), merged.AuthorAt("edited.go", 1))
	// Content unchanged since the original commit: attribution carries.
	assert.Equal(t, testAgent.AuthorID(), merged.AuthorAt("untouched.go", 1))
	// Changed without a checkpoint: the old attestation is stale.
	assert.Equal(t, "", merged.AuthorAt("stale.go", 1))

	// The fold records the agent session with its accepted line.
	rec, ok := merged.Metadata.Prompts[testAgent.AuthorID()]
	require.True(t, ok)
	assert.Equal(t, 1, rec.AcceptedLines)

	// Consumed log is gone; nothing was dirty, so nothing carries.
	assert.False(t, logs.For(original).Exists())
	assert.False(t, logs.For(amended).Exists())

	kept, err := nc.Get(ctx, original)
	require.NoError(t, err)
	assert.NotNil(t, kept, "original note is retained for audit")
}

func TestAmendWaitsForWorklogWriter(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "js" {
		t.Skip("advisory locks are a no-op on this platform")
	}
	r, nc, logs, _, dir := setup(t)
	ctx := context.Background()

	content := "package f\n"
	gittest.WriteFile(t, dir, "f.go", content)
	original := gittest.Commit(t, dir, "init")

	cp := agentCheckpoint(500, authorship.FileAttributionEntry{
		Path:    "f.go",
		BlobSHA: gittest.BlobOID(t, dir, content),
		Lines: []authorship.LineAttribution{
			{Line: 1, AuthorID: testAgent.AuthorID(), Timestamp: 500},
		},
	})
	require.NoError(t, logs.For(original).AppendCheckpoint(cp))

	gittest.Run(t, dir, "commit", "--amend", "-m", "init (amended)")
	amended := gittest.HeadSHA(t, dir)

	// A checkpoint writer holds the worklog lock; the fold must not read
	// or delete the log out from under it.
	release, err := logs.For(original).Lock()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Apply(ctx, eventlog.NewAmend(original, amended)) }()

	select {
	case err := <-done:
		release()
		t.Fatalf("amend folded while the worklog lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)

	merged, err := nc.Get(ctx, amended)
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, testAgent.AuthorID(), merged.AuthorAt("f.go", 1))
	assert.False(t, logs.For(original).Exists(), "folded log is consumed")
}

func TestAmendIsIdempotent(t *testing.T) {
	r, nc, _, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	original := gittest.Commit(t, dir, "init")
	note := authorship.NewLog(original)
	note.SetFileAuthors("main.go", map[int]string{1: testAgent.AuthorID()})
	require.NoError(t, nc.Put(ctx, original, note))

	gittest.Run(t, dir, "commit", "--amend", "-m", "init (reworded)")
	amended := gittest.HeadSHA(t, dir)

	ev := eventlog.NewAmend(original, amended)
	require.NoError(t, r.Apply(ctx, ev))
	first, ok, err := nc.GetRaw(ctx, amended)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.Apply(ctx, ev))
	second, ok, err := nc.GetRaw(ctx, amended)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestResetHardKeepsOnlyUntracked(t *testing.T) {
	r, _, logs, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "a.go", "package a\n")
	base := gittest.Commit(t, dir, "base")
	gittest.WriteFile(t, dir, "a.go", "package a // v2\n")
	from := gittest.Commit(t, dir, "work")

	// In-flight edits on top of from: one to a tracked file, one to a
	// brand-new untracked file.
	gittest.WriteFile(t, dir, "a.go", "package a // v3\n")
	gittest.WriteFile(t, dir, "scratch.go", "package scratch\n")
	cp := agentCheckpoint(700,
		authorship.FileAttributionEntry{
			Path:    "a.go",
			BlobSHA: gittest.BlobOID(t, dir, "package a // v3\n"),
			Lines:   []authorship.LineAttribution{{Line: 1, AuthorID: testAgent.AuthorID(), Timestamp: 700}},
		},
		authorship.FileAttributionEntry{
			Path:    "scratch.go",
			BlobSHA: gittest.BlobOID(t, dir, "package scratch\n"),
			Lines:   []authorship.LineAttribution{{Line: 1, AuthorID: testAgent.AuthorID(), Timestamp: 700}},
		},
	)
	require.NoError(t, logs.For(from).AppendCheckpoint(cp))

	gittest.Run(t, dir, "reset", "--hard", base)

	require.NoError(t, r.Apply(ctx, eventlog.NewReset(eventlog.ResetHard, from, base)))

	assert.False(t, logs.For(from).Exists())
	state, err := logs.For(base).CurrentState()
	require.NoError(t, err)
	_, hasTracked := state["a.go"]
	assert.False(t, hasTracked, "tracked edits died with the hard reset")
	_, hasUntracked := state["scratch.go"]
	assert.True(t, hasUntracked, "untracked files survive a hard reset")
}

func TestResetHardWithoutWorkingLog(t *testing.T) {
	r, _, logs, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "a.go", "package a\n")
	base := gittest.Commit(t, dir, "base")
	gittest.WriteFile(t, dir, "a.go", "package a // v2\n")
	from := gittest.Commit(t, dir, "work")
	gittest.Run(t, dir, "reset", "--hard", base)

	require.NoError(t, r.Apply(ctx, eventlog.NewReset(eventlog.ResetHard, from, base)))
	assert.False(t, logs.For(base).Exists())
}

func TestResetMixedReconstructsFromNotes(t *testing.T) {
	r, nc, logs, repo, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	base := gittest.Commit(t, dir, "base")

	gittest.WriteFile(t, dir, "main.go", "package main\n\nfunc run() {}\n")
	top := gittest.Commit(t, dir, "add run")
	note := authorship.NewLog(top)
	note.SetFileAuthors("main.go", map[int]string{
		1: "human",
		3: testAgent.AuthorID(),
	})
	require.NoError(t, nc.Put(ctx, top, note))

	// Mixed reset: HEAD moves back, the worktree keeps the new content.
	gittest.Run(t, dir, "reset", "--mixed", base)

	require.NoError(t, r.Apply(ctx, eventlog.NewReset(eventlog.ResetMixed, top, base)))

	files, _, err := logs.For(base).Initial()
	require.NoError(t, err)
	require.Len(t, files, 1)

	entry := files[0]
	assert.Equal(t, "main.go", entry.Path)
	assert.Equal(t, gittest.BlobOID(t, dir, "package main\n\nfunc run() {}\n"), entry.BlobSHA)

	byLine := map[int]authorship.LineAttribution{}
	for _, la := range entry.Lines {
		byLine[la.Line] = la
	}
	assert.Equal(t, "human", byLine[1].AuthorID)
	assert.Equal(t, testAgent.AuthorID(), byLine[3].AuthorID)

	ts, err := repo.CommitTimestamp(ctx, top)
	require.NoError(t, err)
	assert.Equal(t, ts*1000, byLine[1].Timestamp, "reconstructed lines carry the commit time")

	// The peeled commit keeps its note; only working state moved.
	kept, err := nc.Get(ctx, top)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestResetMixedLiveWorklogStateWins(t *testing.T) {
	r, nc, logs, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	base := gittest.Commit(t, dir, "base")
	gittest.WriteFile(t, dir, "main.go", "package main // v2\n")
	top := gittest.Commit(t, dir, "v2")

	note := authorship.NewLog(top)
	note.SetFileAuthors("main.go", map[int]string{1: "human"})
	require.NoError(t, nc.Put(ctx, top, note))

	// Live in-flight edits on top of the peeled commit.
	liveBlob := gittest.BlobOID(t, dir, "package main // v3\n")
	cp := agentCheckpoint(900, authorship.FileAttributionEntry{
		Path:    "main.go",
		BlobSHA: liveBlob,
		Lines:   []authorship.LineAttribution{{Line: 1, AuthorID: testAgent.AuthorID(), Timestamp: 900}},
	})
	require.NoError(t, logs.For(top).AppendCheckpoint(cp))

	gittest.Run(t, dir, "reset", "--mixed", base)
	require.NoError(t, r.Apply(ctx, eventlog.NewReset(eventlog.ResetMixed, top, base)))

	// The renamed log still holds the live checkpoint, and no initial
	// entry was synthesized over it.
	state, err := logs.For(base).CurrentState()
	require.NoError(t, err)
	require.Contains(t, state, "main.go")
	assert.Equal(t, liveBlob, state["main.go"].BlobSHA)
	assert.Equal(t, testAgent.AuthorID(), state["main.go"].Lines[0].AuthorID)

	files, _, err := logs.For(base).Initial()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestResetForwardMovesWorklogOnly(t *testing.T) {
	r, _, logs, _, dir := setup(t)
	ctx := context.Background()

	gittest.WriteFile(t, dir, "main.go", "package main\n")
	base := gittest.Commit(t, dir, "base")
	gittest.WriteFile(t, dir, "main.go", "package main // v2\n")
	top := gittest.Commit(t, dir, "v2")

	// Soft reset forward again (base -> top) after someone reset back.
	gittest.Run(t, dir, "reset", "--soft", base)
	cp := agentCheckpoint(100, authorship.FileAttributionEntry{
		Path:    "main.go",
		BlobSHA: gittest.BlobOID(t, dir, "package main // v2\n"),
		Lines:   []authorship.LineAttribution{{Line: 1, AuthorID: testAgent.AuthorID(), Timestamp: 100}},
	})
	require.NoError(t, logs.For(base).AppendCheckpoint(cp))
	gittest.Run(t, dir, "reset", "--soft", top)

	require.NoError(t, r.Apply(ctx, eventlog.NewReset(eventlog.ResetSoft, base, top)))

	assert.False(t, logs.For(base).Exists())
	state, err := logs.For(top).CurrentState()
	require.NoError(t, err)
	assert.Contains(t, state, "main.go")

	// No commits were peeled off, so nothing is reconstructed.
	files, _, err := logs.For(top).Initial()
	require.NoError(t, err)
	assert.Empty(t, files)
}
