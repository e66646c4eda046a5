package cloudsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// download makes header mirror the remote entry. A nil header imports the
// entry as a new local record.
func (p *syncPass) download(ctx context.Context, header *Header, remote *FileInfo) *OpResult {
	isNew := header == nil
	h := header
	if isNew {
		h = &Header{BlobID: remote.ID}
	}

	if blobID, _, _, _ := h.syncState(); blobID != remote.ID {
		return resultFromError(OpDownload, h, remote.ID, &InvariantViolation{
			Op:       OpDownload,
			HeaderID: h.ID,
			Msg:      fmt.Sprintf("header blob %q paired with remote %q", blobID, remote.ID),
		})
	}

	slog.Debug("sync down", "blobId", remote.ID, "version", remote.Version)
	resp, err := p.provider.Download(ctx, remote.ID)
	if err != nil {
		return resultFromError(OpDownload, h, remote.ID, err)
	}
	if resp.ID != remote.ID {
		return resultFromError(OpDownload, h, remote.ID, &InvariantViolation{
			Op:       OpDownload,
			HeaderID: h.ID,
			Msg:      fmt.Sprintf("requested %q, provider returned %q", remote.ID, resp.ID),
		})
	}

	meta, err := DecodeHeader(resp.Content)
	if err != nil {
		return resultFromError(OpDownload, h, remote.ID, err)
	}

	h.applyDownload(resp, meta, p.sess.Target)
	if isNew && !p.localIDs.Add(h.ID) {
		// the embedded id is already taken by another local project
		h.ID = uuid.NewString()
		p.localIDs.Add(h.ID)
	}

	files := resp.Content.Clone()
	delete(files, HeaderKey)

	p.updated.Add(remote.ID)

	if isNew {
		err = p.sess.Store.Import(ctx, h, files)
	} else {
		err = p.sess.Store.Save(ctx, h, files)
	}
	if err != nil {
		return resultFromError(OpDownload, h, remote.ID, fmt.Errorf("store %s: %w", h.ID, err))
	}
	return resultFromError(OpDownload, h, remote.ID, nil)
}
