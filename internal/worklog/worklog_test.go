package worklog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-ai-project/git-ai/internal/authorship"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func checkpoint(ts int64, entries ...authorship.FileAttributionEntry) *authorship.Checkpoint {
	return &authorship.Checkpoint{
		SchemaVersion: authorship.CheckpointSchemaVersion,
		Kind:          authorship.KindHuman,
		Actor:         "Test User",
		Timestamp:     ts,
		Entries:       entries,
	}
}

func fileEntry(path string, authors ...string) authorship.FileAttributionEntry {
	e := authorship.FileAttributionEntry{Path: path, BlobSHA: "blob-" + path}
	for i, a := range authors {
		e.Lines = append(e.Lines, authorship.LineAttribution{
			Line: i + 1, AuthorID: a, Timestamp: 100,
		})
	}
	return e
}

func TestAppendAndReadCheckpoints(t *testing.T) {
	log := newStore(t).For("abc123")

	require.NoError(t, log.AppendCheckpoint(checkpoint(1, fileEntry("a.go", "human"))))
	require.NoError(t, log.AppendCheckpoint(checkpoint(2, fileEntry("b.go", "human"))))

	cps, err := log.Checkpoints()
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, int64(1), cps[0].Timestamp)
	assert.Equal(t, int64(2), cps[1].Timestamp)
	assert.True(t, log.Exists())
}

func TestMissingLogReadsEmpty(t *testing.T) {
	log := newStore(t).For("nothing")

	cps, err := log.Checkpoints()
	require.NoError(t, err)
	assert.Empty(t, cps)
	assert.False(t, log.Exists())

	files, prompts, err := log.Initial()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, prompts)
}

func TestAppendRejectsInvalidCheckpoint(t *testing.T) {
	log := newStore(t).For("abc")
	cp := checkpoint(1)
	cp.SchemaVersion = "checkpoint/99"

	err := log.AppendCheckpoint(cp)
	require.ErrorIs(t, err, authorship.ErrDecode)
	assert.False(t, log.Exists())
}

func TestEmptyBaseMapsToInitial(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, InitialBase, s.For("").Base())
}

func TestInitialRoundTrip(t *testing.T) {
	log := newStore(t).For("abc")
	files := []authorship.FileAttributionEntry{fileEntry("x.go", "human", "aabb")}
	prompts := map[string]authorship.PromptRecord{
		"aabb": {AgentID: authorship.AgentID{Tool: "claude-code", ID: "s1"}},
	}

	require.NoError(t, log.WriteInitial(files, prompts))

	gotFiles, gotPrompts, err := log.Initial()
	require.NoError(t, err)
	assert.Equal(t, files, gotFiles)
	assert.Equal(t, prompts, gotPrompts)

	// Writing empty state removes the file.
	require.NoError(t, log.WriteInitial(nil, nil))
	assert.False(t, log.Exists())
}

func TestCurrentStateLatestEntryWins(t *testing.T) {
	log := newStore(t).For("abc")
	require.NoError(t, log.WriteInitial(
		[]authorship.FileAttributionEntry{fileEntry("a.go", "carried")}, nil))
	require.NoError(t, log.AppendCheckpoint(checkpoint(1, fileEntry("a.go", "human"), fileEntry("b.go", "human"))))
	require.NoError(t, log.AppendCheckpoint(checkpoint(2, fileEntry("b.go", "human", "human"))))

	state, err := log.CurrentState()
	require.NoError(t, err)
	require.Len(t, state, 2)
	assert.Equal(t, "human", state["a.go"].Lines[0].AuthorID)
	assert.Len(t, state["b.go"].Lines, 2)
}

func TestRenameMovesAndOverwrites(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.For("old").AppendCheckpoint(checkpoint(1, fileEntry("a.go", "human"))))
	require.NoError(t, s.For("new").AppendCheckpoint(checkpoint(9, fileEntry("stale.go", "human"))))

	require.NoError(t, s.Rename("old", "new"))

	assert.False(t, s.For("old").Exists())
	cps, err := s.For("new").Checkpoints()
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, "a.go", cps[0].Entries[0].Path)
}

func TestRenameMissingLogIsNoop(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Rename("ghost", "elsewhere"))
	assert.False(t, s.For("elsewhere").Exists())
}

func TestBasesAndAny(t *testing.T) {
	s := newStore(t)

	any, err := s.Any()
	require.NoError(t, err)
	assert.False(t, any)

	require.NoError(t, s.For("bbb").AppendCheckpoint(checkpoint(1, fileEntry("a.go", "human"))))
	require.NoError(t, s.For("aaa").AppendCheckpoint(checkpoint(1, fileEntry("b.go", "human"))))

	bases, err := s.Bases()
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, bases)

	any, err = s.Any()
	require.NoError(t, err)
	assert.True(t, any)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.For("abc").AppendCheckpoint(checkpoint(1, fileEntry("a.go", "human"))))

	require.NoError(t, s.Delete("abc"))
	assert.False(t, s.For("abc").Exists())
}

func TestFilterEntries(t *testing.T) {
	log := newStore(t).For("abc")
	require.NoError(t, log.WriteInitial(
		[]authorship.FileAttributionEntry{fileEntry("keep.go", "aabb"), fileEntry("drop.go", "ccdd")},
		map[string]authorship.PromptRecord{
			"aabb": {AgentID: authorship.AgentID{Tool: "claude-code", ID: "s1"}},
			"ccdd": {AgentID: authorship.AgentID{Tool: "claude-code", ID: "s2"}},
		}))
	require.NoError(t, log.AppendCheckpoint(checkpoint(1, fileEntry("keep.go", "human"))))
	require.NoError(t, log.AppendCheckpoint(checkpoint(2, fileEntry("drop.go", "human"))))

	require.NoError(t, log.FilterEntries(func(path string) bool { return path == "keep.go" }))

	cps, err := log.Checkpoints()
	require.NoError(t, err)
	require.Len(t, cps, 1, "checkpoints left with no entries disappear")
	assert.Equal(t, "keep.go", cps[0].Entries[0].Path)

	files, prompts, err := log.Initial()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.go", files[0].Path)
	assert.Contains(t, prompts, "aabb")
	assert.NotContains(t, prompts, "ccdd", "prompts lose their record once nothing references them")
}

func TestFilterEverythingDeletesLog(t *testing.T) {
	log := newStore(t).For("abc")
	require.NoError(t, log.AppendCheckpoint(checkpoint(1, fileEntry("a.go", "human"))))

	require.NoError(t, log.FilterEntries(func(string) bool { return false }))
	assert.False(t, log.Exists())
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	s := newStore(t)

	release, err := s.For("abc").Lock()
	require.NoError(t, err)
	release()

	release2, err := s.For("abc").Lock()
	require.NoError(t, err)
	release2()
}
