package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newArchive builds an archive with the given entries, storing those whose
// names appear in stored.
func newArchive(t *testing.T, path string, entries map[string][]byte, stored ...string) {
	t.Helper()

	storedSet := make(map[string]bool, len(stored))
	for _, name := range stored {
		storedSet[name] = true
	}

	w, err := Create(path)
	require.NoError(t, err)

	for name, data := range entries {
		require.NoError(t, w.WriteBytes(name, data, storedSet[name]))
	}

	require.NoError(t, w.Close())
}

// TestWriteReadRoundtrip checks entries survive a write/read cycle intact.
func TestWriteReadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pkg.zip")
	newArchive(t, path, map[string][]byte{
		"a.txt":  []byte("alpha"),
		"b/c.imgdata": []byte("bravo charlie"),
	}, "a.txt")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.ElementsMatch(t, []string{"a.txt", "b/c.imgdata"}, r.Names())
	require.True(t, r.Has("a.txt"))
	require.False(t, r.Has("missing"))

	data, err := r.ReadEntry("b/c.imgdata")
	require.NoError(t, err)
	require.Equal(t, []byte("bravo charlie"), data)

	prefix, err := r.ReadEntryPrefix("b/c.imgdata", 5)
	require.NoError(t, err)
	require.Equal(t, []byte("bravo"), prefix)
}

// TestStoredEntryOffset verifies the resolved offset/length of a stored
// entry maps onto the raw archive bytes, which is what streaming clients
// rely on.
func TestStoredEntryOffset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pkg.zip")
	content := []byte("raw addressable payload bytes")
	newArchive(t, path, map[string][]byte{"payload.bin": content}, "payload.bin")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	offset, size, err := r.EntryOffsetSize("payload.bin")
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), size)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, raw[offset:offset+size])
}

// TestAppendPreservesEntries checks appending keeps existing entries and
// their content.
func TestAppendPreservesEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pkg.zip")
	newArchive(t, path, map[string][]byte{"first.txt": []byte("one")})

	w, err := Append(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteBytes("second.txt", []byte("two"), false))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	data, err := r.ReadEntry("first.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("one"), data)

	data, err = r.ReadEntry("second.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)
}

// TestDelete checks entry removal and that absent names are tolerated.
func TestDelete(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pkg.zip")
	newArchive(t, path, map[string][]byte{
		"keep.txt": []byte("keep"),
		"drop.txt": []byte("drop"),
	})

	require.NoError(t, Delete(path, "drop.txt", "never-existed.txt"))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, []string{"keep.txt"}, r.Names())

	_, err = r.ReadEntry("drop.txt")
	require.ErrorIs(t, err, ErrEntryNotFound)
}
