package cloudsync

import (
	"context"
	"fmt"
	"log/slog"
)

// upload pushes the local content of h. A version conflict is skipped with a
// warning; the next full pass resolves it.
func (p *syncPass) upload(ctx context.Context, h *Header) *OpResult {
	token, snapshot := h.beginUpload()

	text, err := p.sess.Store.GetText(ctx, snapshot.ID)
	if err != nil {
		return resultFromError(OpUpload, snapshot, snapshot.BlobID, fmt.Errorf("read text %s: %w", snapshot.ID, err))
	}

	files, err := bundle(snapshot, text)
	if err != nil {
		return resultFromError(OpUpload, snapshot, snapshot.BlobID, err)
	}

	info, err := p.provider.Upload(ctx, snapshot.BlobID, snapshot.BlobVersion, files)
	if err != nil {
		if IsConflict(err) {
			p.sess.warning(fmt.Sprintf("Conflict saving %s; please do a full cloud sync", snapshot.Name))
		}
		return resultFromError(OpUpload, snapshot, snapshot.BlobID, err)
	}
	slog.Debug("synced up", "id", snapshot.ID, "blobId", info.ID, "version", info.Version)

	if err := h.commitUpload(info, token); err != nil {
		return resultFromError(OpUpload, snapshot, snapshot.BlobID, err)
	}

	if err := p.sess.Store.Save(ctx, h, nil); err != nil {
		return resultFromError(OpUpload, snapshot, info.ID, fmt.Errorf("save header %s: %w", snapshot.ID, err))
	}

	return resultFromError(OpUpload, snapshot, info.ID, nil)
}
