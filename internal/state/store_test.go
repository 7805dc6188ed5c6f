package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickops/fieldsync/internal/events"
)

type testEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, "text", os.Stderr)
}

func TestJSONStore(t *testing.T) {
	store, err := NewJSONStore(t.TempDir(), newTestLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), newTestLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func testStoreOperations(t *testing.T, store Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		var out testEntry
		err := store.Get("missing", &out)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		in := testEntry{Name: "B-100", Count: 3}
		require.NoError(t, store.Put("record:B-100", in))

		var out testEntry
		require.NoError(t, store.Get("record:B-100", &out))
		assert.Equal(t, in, out)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put("record:B-100", testEntry{Name: "B-100", Count: 7}))

		var out testEntry
		require.NoError(t, store.Get("record:B-100", &out))
		assert.Equal(t, 7, out.Count)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		require.NoError(t, store.Put("queue:1", testEntry{Name: "a"}))
		require.NoError(t, store.Put("queue:2", testEntry{Name: "b"}))
		require.NoError(t, store.Put("cache:violations:B-1", testEntry{Name: "c"}))

		keys, err := store.Keys("queue:")
		require.NoError(t, err)
		assert.Equal(t, []string{"queue:1", "queue:2"}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Put("record:gone", testEntry{Name: "x"}))
		require.NoError(t, store.Delete("record:gone"))

		var out testEntry
		assert.ErrorIs(t, store.Get("record:gone", &out), ErrKeyNotFound)

		// Deleting again is fine.
		assert.NoError(t, store.Delete("record:gone"))
	})
}

func TestJSONStoreChecksumRecovery(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir, newTestLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("record:B-9", testEntry{Name: "v1", Count: 1}))
	require.NoError(t, store.Put("record:B-9", testEntry{Name: "v2", Count: 2}))

	// Corrupt the primary file; the backup holds v1.
	path := store.entryPath("record:B-9")
	require.NoError(t, os.WriteFile(path, []byte("{ not json"), 0600))

	var out testEntry
	require.NoError(t, store.Get("record:B-9", &out))
	assert.Equal(t, "v1", out.Name)
}

func TestJSONStoreCorruptWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir, newTestLogger())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("record:B-9", testEntry{Name: "v1"}))
	require.NoError(t, os.WriteFile(store.entryPath("record:B-9"), []byte("garbage"), 0600))

	var out testEntry
	assert.ErrorIs(t, store.Get("record:B-9", &out), ErrStateCorrupt)
}

func TestJSONStoreKeyEscaping(t *testing.T) {
	store, err := NewJSONStore(t.TempDir(), newTestLogger())
	require.NoError(t, err)
	defer store.Close()

	key := "cache:summary:MN/01-0042"
	require.NoError(t, store.Put(key, testEntry{Name: "escaped"}))

	keys, err := store.Keys("cache:summary:")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}
