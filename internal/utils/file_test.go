package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "a.json")

	require.NoError(t, WriteFileAtomic(target, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(target, []byte("two"), 0o644))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t, HashBytes([]byte("x")), HashBytes([]byte("x")))
	assert.NotEqual(t, HashBytes([]byte("x")), HashBytes([]byte("y")))
	assert.Len(t, HashBytes(nil), 64)
}
