package cloudsync

import (
	"context"
	"fmt"
	"log/slog"
)

// ConflictPrefix marks the name of the local copy created for diverged edits.
const ConflictPrefix = "# "

// resolveConflict keeps both sides: the local edits move to a detached copy
// that will be pushed as a new project, and h becomes a mirror of remote.
func (p *syncPass) resolveConflict(ctx context.Context, h *Header, remote *FileInfo) *OpResult {
	text, err := p.sess.Store.GetText(ctx, h.ID)
	if err != nil {
		return resultFromError(OpConflict, h, remote.ID, fmt.Errorf("read text %s: %w", h.ID, err))
	}

	local := h.Clone()
	local.detach(ConflictPrefix)
	dup, err := p.sess.Store.Duplicate(ctx, local, text)
	if err != nil {
		return resultFromError(OpConflict, h, remote.ID, fmt.Errorf("duplicate %s: %w", h.ID, err))
	}
	p.localIDs.Add(dup.ID)

	slog.Warn("sync", "op", OpConflict, "id", h.ID, "blobId", remote.ID, "copy", dup.ID)
	p.sess.warning(fmt.Sprintf("%s changed on another device; your edits were kept as %q", h.Clone().Name, dup.Clone().Name))

	h.yieldToRemote()
	if err := p.sess.Store.Save(ctx, h, nil); err != nil {
		return resultFromError(OpConflict, h, remote.ID, fmt.Errorf("save header %s: %w", h.ID, err))
	}

	res := p.download(ctx, h, remote)
	res.Op = OpConflict
	return res
}
