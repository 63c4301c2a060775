package script

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replayd/internal/session"
)

// =============================================================================
// Helper functions
// =============================================================================

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testScript(id, name string) *Script {
	return &Script{
		ID:        id,
		Name:      name,
		Version:   FormatVersion,
		CreatedAt: time.Now(),
		Actions: []session.Action{
			{Type: session.ActionMouseClick, Timestamp: 0, Data: map[string]any{"x": 1.0}},
			{Type: session.ActionKeyType, Timestamp: 1.5, Data: map[string]any{"text": "hi"}},
		},
	}
}

// =============================================================================
// Tests for Save / Get
// =============================================================================

func TestSaveAndGet(t *testing.T) {
	st := openTestStore(t)

	s := testScript("s-1", "first")
	path, err := st.Save(s)
	require.NoError(t, err)
	require.FileExists(t, path)

	got, err := st.Get("s-1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.Len(t, got.Actions, 2)
	assert.Equal(t, session.ActionKeyType, got.Actions[1].Type)
}

func TestGetUnknownID(t *testing.T) {
	st := openTestStore(t)

	_, err := st.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUpsertsByID(t *testing.T) {
	st := openTestStore(t)

	s := testScript("s-1", "before")
	_, err := st.Save(s)
	require.NoError(t, err)

	s.Name = "after"
	_, err = st.Save(s)
	require.NoError(t, err)

	entries, err := st.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "after", entries[0].Name)
}

// =============================================================================
// Tests for List
// =============================================================================

func TestListNewestFirst(t *testing.T) {
	st := openTestStore(t)

	older := testScript("s-old", "older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	_, err := st.Save(older)
	require.NoError(t, err)

	newer := testScript("s-new", "newer")
	_, err = st.Save(newer)
	require.NoError(t, err)

	entries, err := st.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s-new", entries[0].ID)
	assert.Equal(t, "s-old", entries[1].ID)
	assert.Equal(t, 2, entries[0].ActionCount)
	assert.InDelta(t, 1.5, entries[0].Duration, 0.001)
}

func TestListEmptyStore(t *testing.T) {
	st := openTestStore(t)

	entries, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// Tests for Delete
// =============================================================================

func TestDeleteRemovesFileAndIndex(t *testing.T) {
	st := openTestStore(t)

	path, err := st.Save(testScript("s-1", "doomed"))
	require.NoError(t, err)

	require.NoError(t, st.Delete("s-1"))

	_, err = st.Get("s-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, path)
}

func TestDeleteUnknownID(t *testing.T) {
	st := openTestStore(t)
	assert.ErrorIs(t, st.Delete("nope"), ErrNotFound)
}

// =============================================================================
// Tests for Verify
// =============================================================================

func TestVerifyDetectsTampering(t *testing.T) {
	st := openTestStore(t)

	path, err := st.Save(testScript("s-1", "x"))
	require.NoError(t, err)

	ok, err := st.Verify("s-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Flip the file contents behind the index's back.
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"s-1","actions":[]}`), 0o600))

	ok, err = st.Verify("s-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
