package cloudsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hdr(id, blobID, version string, current, deleted bool) *Header {
	return &Header{
		ID:               id,
		Name:             id,
		BlobID:           blobID,
		BlobVersion:      version,
		BlobCurrent:      current,
		IsDeleted:        deleted,
		ModificationTime: time.Unix(0, 0),
	}
}

func fi(id, version string) *FileInfo {
	return &FileInfo{ID: id, Name: id, Version: version, UpdatedAt: time.Unix(0, 0)}
}

func TestReconcile_TableDriven(t *testing.T) {
	cases := []struct {
		name    string
		headers []*Header
		entries []*FileInfo
		expect  func(*ReconcileOperations)
	}{
		{
			name:    "in sync is unchanged",
			headers: []*Header{hdr("a", "b1", "v1", true, false)},
			entries: []*FileInfo{fi("b1", "v1")},
			expect: func(r *ReconcileOperations) {
				assert.False(t, r.HasChanges())
				assert.Equal(t, 1, r.Unchanged)
			},
		},
		{
			name:    "local edit uploads",
			headers: []*Header{hdr("a", "b1", "v1", false, false)},
			entries: []*FileInfo{fi("b1", "v1")},
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.Uploads, 1)
				assert.Equal(t, "b1", r.Uploads[0].Remote.ID)
			},
		},
		{
			name:    "remote edit downloads",
			headers: []*Header{hdr("a", "b1", "v1", true, false)},
			entries: []*FileInfo{fi("b1", "v2")},
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.Downloads, 1)
				assert.Equal(t, "a", r.Downloads[0].Header.ID)
			},
		},
		{
			name:    "both edited conflicts",
			headers: []*Header{hdr("a", "b1", "v1", false, false)},
			entries: []*FileInfo{fi("b1", "v2")},
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.Conflicts, 1)
				assert.Equal(t, OpConflict, r.Conflicts[0].Type)
			},
		},
		{
			name:    "local delete removes remote",
			headers: []*Header{hdr("a", "b1", "v1", true, true)},
			entries: []*FileInfo{fi("b1", "v3")},
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.RemoteDeletes, 1)
				assert.Empty(t, r.Uploads)
			},
		},
		{
			name:    "remote gone uninstalls even with local edits",
			headers: []*Header{hdr("a", "b1", "v1", false, false)},
			entries: nil,
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.Uninstalls, 1)
				assert.Nil(t, r.Uninstalls[0].Remote)
			},
		},
		{
			name:    "never synced uploads",
			headers: []*Header{hdr("a", "", "", false, false)},
			entries: nil,
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.Uploads, 1)
				assert.Nil(t, r.Uploads[0].Remote)
			},
		},
		{
			name:    "deleted never synced still uploads",
			headers: []*Header{hdr("a", "", "", false, true)},
			entries: nil,
			expect: func(r *ReconcileOperations) {
				assert.Len(t, r.Uploads, 1)
			},
		},
		{
			name:    "already uninstalled is classified uninstall",
			headers: []*Header{hdr("a", "b1", DeletedVersion, false, true)},
			entries: nil,
			expect: func(r *ReconcileOperations) {
				assert.Len(t, r.Uninstalls, 1)
			},
		},
		{
			name:    "unknown remote is imported",
			headers: nil,
			entries: []*FileInfo{fi("b7", "v1")},
			expect: func(r *ReconcileOperations) {
				require.Len(t, r.Downloads, 1)
				assert.Nil(t, r.Downloads[0].Header)
				assert.Equal(t, "b7", r.Downloads[0].Remote.ID)
			},
		},
		{
			name: "mixed",
			headers: []*Header{
				hdr("a", "b1", "v1", true, false),
				hdr("b", "b2", "v1", false, false),
				hdr("c", "", "", false, false),
				hdr("d", "b4", "v1", true, false),
			},
			entries: []*FileInfo{fi("b1", "v1"), fi("b2", "v2"), fi("b5", "v1")},
			expect: func(r *ReconcileOperations) {
				assert.Equal(t, 1, r.Unchanged)
				assert.Len(t, r.Conflicts, 1)
				assert.Len(t, r.Uploads, 1)
				assert.Len(t, r.Uninstalls, 1)
				assert.Len(t, r.Downloads, 1)
				assert.Equal(t, 4, r.Len())
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ops := Reconcile(tc.headers, tc.entries)
			tc.expect(ops)
		})
	}
}

func TestReconcile_EveryItemClassifiedOnce(t *testing.T) {
	headers := []*Header{
		hdr("a", "b1", "v1", true, false),
		hdr("b", "b2", "v1", false, false),
		hdr("c", "", "", false, false),
		hdr("d", "b4", "v1", true, true),
		hdr("e", "b5", "v2", false, false),
	}
	entries := []*FileInfo{fi("b1", "v2"), fi("b2", "v1"), fi("b4", "v1"), fi("b9", "v1")}

	ops := Reconcile(headers, entries)

	seen := map[*Header]int{}
	imports := 0
	for _, op := range ops.All() {
		if op.Header == nil {
			imports++
			continue
		}
		seen[op.Header]++
	}
	for _, h := range headers {
		assert.Equal(t, 1, seen[h], "header %s", h.ID)
	}
	assert.Equal(t, 1, imports)
	assert.Equal(t, 0, ops.Unchanged)
}
