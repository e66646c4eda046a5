package cloudsync

import (
	"context"
	"fmt"
	"log/slog"
)

// deleteRemote removes the cloud copy of a locally deleted header and then
// uninstalls it.
func (p *syncPass) deleteRemote(ctx context.Context, h *Header) *OpResult {
	blobID, _, _, _ := h.syncState()
	if err := p.provider.Delete(ctx, blobID); err != nil {
		return resultFromError(OpDeleteRemote, h, blobID, err)
	}
	return p.uninstall(ctx, h, OpDeleteRemote)
}

// uninstall flags h as removed by sync. The local text is left in place so
// the last known content stays recoverable.
func (p *syncPass) uninstall(ctx context.Context, h *Header, op OpType) *OpResult {
	blobID, _, _, _ := h.syncState()
	if !h.markUninstalled() {
		return &OpResult{Op: op, HeaderID: h.ID, BlobID: blobID, Status: StatusUnchanged}
	}
	slog.Debug("uninstall local", "id", h.ID, "blobId", blobID)
	if err := p.sess.Store.Save(ctx, h, nil); err != nil {
		return resultFromError(op, h, blobID, fmt.Errorf("save header %s: %w", h.ID, err))
	}
	return resultFromError(op, h, blobID, nil)
}
