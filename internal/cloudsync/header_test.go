package cloudsync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_CommitUploadRejectsIDDrift(t *testing.T) {
	h := hdr("a", "b1", "v1", false, false)
	token, _ := h.beginUpload()

	err := h.commitUpload(&FileInfo{ID: "b2", Version: "v2"}, token)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, "v1", h.BlobVersion)
}

func TestHeader_UninstallIsTerminal(t *testing.T) {
	h := hdr("a", "b1", "v4", true, false)
	assert.True(t, h.markUninstalled())
	assert.True(t, h.IsUninstalled())
	assert.False(t, h.markUninstalled())
}

func TestHeader_ApplyDownloadKeepsLocalID(t *testing.T) {
	h := hdr("local", "b1", "v1", false, true)
	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	h.applyDownload(&FileInfo{ID: "b1", Version: "v5", UpdatedAt: updated}, &Header{ID: "remote", PubID: "p1"}, "")

	assert.Equal(t, "local", h.ID)
	assert.Equal(t, "local", h.Name)
	assert.Equal(t, "v5", h.BlobVersion)
	assert.True(t, h.BlobCurrent)
	assert.False(t, h.IsDeleted)
	assert.Equal(t, "p1", h.PubID)
	assert.Equal(t, updated, h.ModificationTime)
}

func TestWire_HeaderEntry(t *testing.T) {
	h := hdr("a", "b1", "v1", true, false)
	files, err := bundle(h, Text{"main.ts": "x"})
	require.NoError(t, err)

	assert.Equal(t, "x", files["main.ts"])
	assert.True(t, strings.HasPrefix(files[HeaderKey], "{\n    \"id\": \"a\""))

	decoded, err := DecodeHeader(files)
	require.NoError(t, err)
	assert.Equal(t, "b1", decoded.BlobID)

	empty, err := DecodeHeader(Text{"main.ts": "x"})
	require.NoError(t, err)
	assert.Empty(t, empty.ID)

	_, err = DecodeHeader(Text{HeaderKey: "not json"})
	assert.Error(t, err)
}
