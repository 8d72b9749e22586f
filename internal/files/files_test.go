package files

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "keys.json")

	require.NoError(t, WriteAtomic(path, []byte("first"), 0644))
	require.NoError(t, WriteAtomic(path, []byte("second"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadIfExistsAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.dat")

	_, ok, err := ReadIfExists(path)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, Remove(path))

	require.NoError(t, os.WriteFile(path, []byte("token"), 0600))
	data, ok, err := ReadIfExists(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "token", string(data))
	assert.True(t, FileExists(path))

	require.NoError(t, Remove(path))
	assert.False(t, FileExists(path))
}

func TestFindByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"B.json", "a.JSON", ".hidden.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0755))

	found, err := NewDiscovery(dir).FindByExtension(".json")
	require.NoError(t, err)

	names := make([]string, 0, len(found))
	for _, f := range found {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"B.json", "a.JSON"}, names)
}

func TestFindByExtensionMissingDir(t *testing.T) {
	found, err := NewDiscovery(filepath.Join(t.TempDir(), "absent")).FindByExtension(".json")
	assert.NoError(t, err)
	assert.Empty(t, found)
}

