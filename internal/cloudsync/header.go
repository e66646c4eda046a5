package cloudsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// HeaderKey is the reserved content key that carries the serialized Header
	// inside every bundle exchanged with a provider.
	HeaderKey = ".header.json"

	// DeletedVersion is the terminal blob version of an uninstalled header.
	DeletedVersion = "DELETED"
)

// Text maps a project relative path to its contents.
type Text map[string]string

// Clone returns a shallow copy of the text map.
func (t Text) Clone() Text {
	out := make(Text, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Header is the local record of a project plus its last known remote sync state.
// BlobID and BlobVersion are empty when unset.
type Header struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	BlobID           string    `json:"blobId,omitempty"`
	BlobVersion      string    `json:"blobVersion,omitempty"`
	BlobCurrent      bool      `json:"blobCurrent"`
	IsDeleted        bool      `json:"isDeleted,omitempty"`
	ModificationTime time.Time `json:"modificationTime"`
	PubID            string    `json:"pubId,omitempty"`
	PubCurrent       bool      `json:"pubCurrent"`
	Target           string    `json:"target,omitempty"`

	// saveID is the ephemeral race guard between an in-flight upload and a
	// local re-save. It is never serialized.
	mu     sync.Mutex
	saveID string
}

// Clone copies the data fields of the header. The save token is not copied.
func (h *Header) Clone() *Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cloneLocked()
}

func (h *Header) cloneLocked() *Header {
	return &Header{
		ID:               h.ID,
		Name:             h.Name,
		BlobID:           h.BlobID,
		BlobVersion:      h.BlobVersion,
		BlobCurrent:      h.BlobCurrent,
		IsDeleted:        h.IsDeleted,
		ModificationTime: h.ModificationTime,
		PubID:            h.PubID,
		PubCurrent:       h.PubCurrent,
		Target:           h.Target,
	}
}

// MarkEdited records a local edit. Any upload in flight will no longer be able
// to mark the header as current.
func (h *Header) MarkEdited() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveID = uuid.NewString()
	h.BlobCurrent = false
	h.ModificationTime = time.Now().UTC()
}

// MarkStale records that the stored record changed outside this copy. An
// upload in flight will no longer be able to mark it as current.
func (h *Header) MarkStale() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveID = ""
	h.BlobCurrent = false
}

// MarkDeleted requests removal of the project. The next pass deletes the
// remote copy and uninstalls the header.
func (h *Header) MarkDeleted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.IsDeleted = true
	h.ModificationTime = time.Now().UTC()
}

// IsUninstalled reports whether the header reached the terminal uninstalled state.
func (h *Header) IsUninstalled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.IsDeleted && h.BlobVersion == DeletedVersion
}

// beginUpload snapshots a fresh save token and returns it with a copy of the
// header as it is being uploaded.
func (h *Header) beginUpload() (string, *Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveID = uuid.NewString()
	return h.saveID, h.cloneLocked()
}

// commitUpload adopts the identity and version returned by the provider.
func (h *Header) commitUpload(info *FileInfo, token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.BlobID == "" {
		h.BlobID = info.ID
	} else if h.BlobID != info.ID {
		return &InvariantViolation{
			Op:       OpUpload,
			HeaderID: h.ID,
			Msg:      "provider returned id " + info.ID + " for blob " + h.BlobID,
		}
	}

	h.BlobVersion = info.Version
	if h.saveID == token {
		h.BlobCurrent = true
	}
	return nil
}

// applyDownload makes the header mirror the fetched remote entry. meta is the
// header embedded in the remote bundle and may be empty.
func (h *Header) applyDownload(resp *FileInfo, meta *Header, target string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.BlobCurrent = true
	h.BlobVersion = resp.Version
	h.ModificationTime = resp.UpdatedAt

	switch {
	case meta.Name != "":
		h.Name = meta.Name
	case h.Name == "":
		h.Name = "???"
	}
	if h.ID == "" {
		h.ID = meta.ID
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.PubID = meta.PubID
	h.PubCurrent = meta.PubCurrent
	h.IsDeleted = false
	h.saveID = ""
	if target != "" {
		h.Target = target
	}
}

// markUninstalled flags the header as removed by sync. It reports false when
// the header was already uninstalled.
func (h *Header) markUninstalled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.IsDeleted && h.BlobVersion == DeletedVersion {
		return false
	}
	h.IsDeleted = true
	h.BlobVersion = DeletedVersion
	return true
}

// yieldToRemote marks h as a clean mirror of its recorded version once its
// local edits were moved elsewhere, so an interrupted conflict resolution
// resumes as a plain download.
func (h *Header) yieldToRemote() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saveID = ""
	h.BlobCurrent = true
}

// detach strips remote sync state so the header is treated as never synced.
func (h *Header) detach(namePrefix string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.BlobID = ""
	h.BlobVersion = ""
	h.BlobCurrent = false
	h.Name = namePrefix + h.Name
}

// syncState returns the fields the driver classifies on, read under the lock.
func (h *Header) syncState() (blobID, blobVersion string, blobCurrent, isDeleted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.BlobID, h.BlobVersion, h.BlobCurrent, h.IsDeleted
}

// FileInfo describes one cloud stored project version.
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	Content   Text      `json:"content,omitempty"`
}
