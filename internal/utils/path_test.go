package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ResolvePath("~/projects")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects"), got)

	_, err = ResolvePath("")
	assert.Error(t, err)

	got, err = ResolvePath("a/../b")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "b", filepath.Base(got))
}

func TestEnsureParent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "x", "y", "file.txt")
	require.NoError(t, EnsureParent(target))
	assert.True(t, DirExists(filepath.Dir(target)))
	assert.False(t, FileExists(target))
}

func TestIsSubPath(t *testing.T) {
	cases := map[string]bool{
		"main.ts":          true,
		"assets/img.png":   true,
		"a/../b.txt":       true,
		"../escape.txt":    false,
		"a/../../x":        false,
		"":                 false,
		"/etc/passwd":      false,
		"..":               false,
		"..hidden/file.md": true,
	}
	for rel, want := range cases {
		assert.Equal(t, want, IsSubPath(rel), rel)
	}
}
