package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestImportDir_HonorsIgnoreRules(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, openWorkspace(t, t.TempDir()))

	src := filepath.Join(t.TempDir(), "rover")
	writeFile(t, filepath.Join(src, "main.ts"), "let x = 1")
	writeFile(t, filepath.Join(src, "lib", "util.ts"), "export {}")
	writeFile(t, filepath.Join(src, "node_modules", "dep", "index.js"), "skip")
	writeFile(t, filepath.Join(src, ".git", "HEAD"), "ref")
	writeFile(t, filepath.Join(src, "notes.secret"), "skip")
	writeFile(t, filepath.Join(src, ignoreFileName), "*.secret\n")
	require.NoError(t, os.WriteFile(filepath.Join(src, "icon.bin"), []byte{0xff, 0xfe, 0x00}, 0o644))

	h, err := ImportDir(ctx, store, src, "")
	require.NoError(t, err)
	assert.Equal(t, "rover", h.Name)
	assert.Empty(t, h.BlobID)

	text, err := store.GetText(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, cloudsync.Text{
		"main.ts":     "let x = 1",
		"lib/util.ts": "export {}",
	}, text)
}

func TestImportDir_NotADirectory(t *testing.T) {
	store := openStore(t, openWorkspace(t, t.TempDir()))
	_, err := ImportDir(context.Background(), store, filepath.Join(t.TempDir(), "missing"), "x")
	assert.Error(t, err)
}

func TestExportDir(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, openWorkspace(t, t.TempDir()))

	h, err := store.Create(ctx, "rover", cloudsync.Text{
		"main.ts":        "main",
		"lib/util.ts":    "util",
		"assets/pic.txt": "pic",
	})
	require.NoError(t, err)

	out := t.TempDir()
	manifest, err := ExportDir(ctx, store, h.ID, out, []string{"**/*.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/util.ts", "main.ts"}, manifest.Files)

	assert.FileExists(t, filepath.Join(out, "main.ts"))
	assert.FileExists(t, filepath.Join(out, "lib", "util.ts"))
	assert.NoFileExists(t, filepath.Join(out, "assets", "pic.txt"))

	data, err := os.ReadFile(filepath.Join(out, manifestFile))
	require.NoError(t, err)
	var decoded Manifest
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, h.ID, decoded.ID)
	assert.Equal(t, "rover", decoded.Name)
}

func TestExportDir_RejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, openWorkspace(t, t.TempDir()))

	h, err := store.Create(ctx, "evil", cloudsync.Text{"../outside.ts": "x"})
	require.NoError(t, err)

	_, err = ExportDir(ctx, store, h.ID, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestExportDir_InvalidPattern(t *testing.T) {
	store := openStore(t, openWorkspace(t, t.TempDir()))
	_, err := ExportDir(context.Background(), store, "x", t.TempDir(), []string{"[unclosed"})
	assert.Error(t, err)
}
