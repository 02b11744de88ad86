package eventlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsSequence(t *testing.T) {
	s := NewStore(t.TempDir())

	ok, err := s.Append(NewCommit("base1", "sha1"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Append(NewCommit("sha1", "sha2"))
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := s.All()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)
	assert.NotZero(t, events[0].Timestamp)
}

func TestAppendDeduplicatesPendingKeys(t *testing.T) {
	s := NewStore(t.TempDir())

	ok, err := s.Append(NewAmend("old", "new"))
	require.NoError(t, err)
	assert.True(t, ok)

	// The hook fired twice for the same amend.
	ok, err = s.Append(NewAmend("old", "new"))
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestAppendAcceptsRepeatAfterDrain(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.Append(NewReset(ResetHard, "a", "b"))
	require.NoError(t, err)
	_, err = s.Drain(func(Event) error { return nil })
	require.NoError(t, err)

	// The same reset happening again later is a new event.
	ok, err := s.Append(NewReset(ResetHard, "a", "b"))
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := s.All()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[1].Seq, "sequence keeps growing")
}

func TestDrainAppliesInOrder(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append(NewCommit("", "sha1"))
	require.NoError(t, err)
	_, err = s.Append(NewAmend("sha1", "sha2"))
	require.NoError(t, err)
	_, err = s.Append(NewCommit("sha2", "sha3"))
	require.NoError(t, err)

	var seen []Type
	n, err := s.Drain(func(ev Event) error {
		seen = append(seen, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []Type{TypeCommit, TypeCommitAmend, TypeCommit}, seen)

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainHaltsOnFailureAndResumes(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append(NewCommit("", "sha1"))
	require.NoError(t, err)
	_, err = s.Append(NewCommit("sha1", "sha2"))
	require.NoError(t, err)
	_, err = s.Append(NewCommit("sha2", "sha3"))
	require.NoError(t, err)

	boom := errors.New("boom")
	n, err := s.Drain(func(ev Event) error {
		if ev.Commit == "sha2" {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2, "failed event stays pending")
	assert.Equal(t, "sha2", pending[0].Commit)

	n, err = s.Drain(func(Event) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDrainEmptyLog(t *testing.T) {
	s := NewStore(t.TempDir())
	n, err := s.Drain(func(Event) error {
		t.Fatal("nothing to drain")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCompactArchivesConsumedEvents(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < 5; i++ {
		_, err := s.Append(NewCommit("", string(rune('a'+i))))
		require.NoError(t, err)
	}
	_, err := s.Drain(func(Event) error { return nil })
	require.NoError(t, err)

	require.NoError(t, s.Compact(2))

	events, err := s.All()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Seq)

	archives, err := s.Archives()
	require.NoError(t, err)
	require.Len(t, archives, 1)

	archived, err := ReadArchive(archives[0])
	require.NoError(t, err)
	require.Len(t, archived, 3)
	assert.Equal(t, int64(1), archived[0].Seq)
	assert.Equal(t, int64(3), archived[2].Seq)
}

func TestCompactKeepsPendingEvents(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append(NewCommit("", "done"))
	require.NoError(t, err)
	_, err = s.Drain(func(Event) error { return nil })
	require.NoError(t, err)
	_, err = s.Append(NewCommit("done", "pending"))
	require.NoError(t, err)

	require.NoError(t, s.Compact(0))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].Commit)
}

func TestCompactNothingToArchive(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Append(NewCommit("", "sha1"))
	require.NoError(t, err)

	require.NoError(t, s.Compact(10))

	events, err := s.All()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMappingEventKeys(t *testing.T) {
	a := NewRebaseComplete([]Mapping{{Old: "a", New: "b"}, {Old: "c", New: "d"}})
	b := NewRebaseComplete([]Mapping{{Old: "a", New: "b"}, {Old: "c", New: "d"}})
	c := NewRebaseComplete([]Mapping{{Old: "a", New: "x"}})

	assert.Equal(t, a.Key, b.Key)
	assert.NotEqual(t, a.Key, c.Key)
	assert.NotEqual(t, a.Key, NewCherryPickComplete([]Mapping{{Old: "a", New: "b"}, {Old: "c", New: "d"}}).Key)
}
