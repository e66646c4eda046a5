package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

// SyncEngine drives reconciliation passes between the local store and the
// active provider of a session.
type SyncEngine struct {
	muSync sync.Mutex
}

func NewSyncEngine() *SyncEngine {
	return &SyncEngine{}
}

// RunSync performs one full pass. Provider failures are reported through the
// session notifier and never abort the pass; the returned error is reserved
// for overlapping passes, local store failures and invariant violations.
func (se *SyncEngine) RunSync(ctx context.Context, sess *Session) (*PassResult, error) {
	if !se.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.muSync.Unlock()

	result := &PassResult{Updated: make(map[string]bool)}

	provider := sess.Provider()
	if provider == nil {
		return result, nil
	}

	tStart := time.Now()

	entries, err := provider.List(ctx)
	if err != nil {
		sess.handleNetworkError(fmt.Errorf("list: %w", err))
		return result, nil
	}
	tRemoteState := time.Since(tStart)

	headers, err := sess.Store.GetHeaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("get headers: %w", err)
	}

	ops := Reconcile(headers, entries)
	result.Unchanged = ops.Unchanged
	if ops.HasChanges() {
		slog.Debug("reconcile decisions",
			"uploads", len(ops.Uploads),
			"downloads", len(ops.Downloads),
			"conflicts", len(ops.Conflicts),
			"remoteDeletes", len(ops.RemoteDeletes),
			"uninstalls", len(ops.Uninstalls),
		)
	}

	pass := newSyncPass(sess, provider, headers)
	pass.execute(ctx, ops, result)

	sess.info(msgSyncingDone)
	if sess.Subscriber != nil {
		sess.Subscriber.NotifySyncDone(result.Updated)
	}

	if ops.HasChanges() {
		slog.Info("full sync",
			"uploads", result.Uploads,
			"downloads", result.Downloads,
			"conflicts", result.Conflicts,
			"deletes", result.Deletes,
			"uninstalls", result.Uninstalls,
			"unchanged", result.Unchanged,
			"failures", len(result.Failures),
			"tsRemoteState", tRemoteState,
			"tsTotal", time.Since(tStart),
		)
	}

	var violations []error
	for _, res := range result.Results {
		if res.Status == StatusInvariant {
			violations = append(violations, res.Err)
		}
	}
	return result, errors.Join(violations...)
}

// SaveToCloud pushes a single header outside of a pass, e.g. right after the
// user saved it. A version conflict is reported as a warning, not an error.
func (se *SyncEngine) SaveToCloud(ctx context.Context, sess *Session, h *Header) error {
	provider := sess.Provider()
	if provider == nil {
		return nil
	}
	headers, err := sess.Store.GetHeaders(ctx)
	if err != nil {
		return fmt.Errorf("get headers: %w", err)
	}
	res := newSyncPass(sess, provider, headers).upload(ctx, h)
	switch res.Status {
	case StatusFailed, StatusInvariant:
		return res.Err
	}
	return nil
}

// Reset drops any per account sync state. The engine keeps none between
// passes, so there is nothing to clear.
func (se *SyncEngine) Reset() error {
	return nil
}

// Reconcile classifies every local header and remote entry into exactly one
// operation.
func Reconcile(headers []*Header, entries []*FileInfo) *ReconcileOperations {
	ops := &ReconcileOperations{}

	remote := make(map[string]*FileInfo, len(entries))
	for _, e := range entries {
		remote[e.ID] = e
	}

	known := mapset.NewThreadUnsafeSet[string]()
	for _, h := range headers {
		blobID, blobVersion, blobCurrent, isDeleted := h.syncState()
		if blobID != "" {
			known.Add(blobID)
		}

		if chd, ok := remote[blobID]; ok && blobID != "" {
			switch {
			case isDeleted:
				ops.add(&SyncOperation{Type: OpDeleteRemote, Header: h, Remote: chd})
			case chd.Version == blobVersion && blobCurrent:
				ops.Unchanged++
			case chd.Version == blobVersion:
				ops.add(&SyncOperation{Type: OpUpload, Header: h, Remote: chd})
			case blobCurrent:
				ops.add(&SyncOperation{Type: OpDownload, Header: h, Remote: chd})
			default:
				ops.add(&SyncOperation{Type: OpConflict, Header: h, Remote: chd})
			}
			continue
		}

		if blobVersion != "" {
			// pushed to the cloud once and gone now: uninstall wins
			ops.add(&SyncOperation{Type: OpUninstall, Header: h})
		} else {
			ops.add(&SyncOperation{Type: OpUpload, Header: h})
		}
	}

	for _, e := range entries {
		if !known.Contains(e.ID) {
			ops.add(&SyncOperation{Type: OpDownload, Remote: e})
		}
	}

	return ops
}

// syncPass holds the state shared by the tasks of one pass.
type syncPass struct {
	sess     *Session
	provider Provider
	progress *ProgressReporter
	updated  mapset.Set[string]
	localIDs mapset.Set[string]
}

func newSyncPass(sess *Session, provider Provider, headers []*Header) *syncPass {
	localIDs := mapset.NewSet[string]()
	for _, h := range headers {
		localIDs.Add(h.ID)
	}
	return &syncPass{
		sess:     sess,
		provider: provider,
		progress: NewProgressReporter(sess.info),
		updated:  mapset.NewSet[string](),
		localIDs: localIDs,
	}
}

// execute schedules every operation at once and waits for all of them. A
// failing task never cancels its siblings.
func (p *syncPass) execute(ctx context.Context, ops *ReconcileOperations, result *PassResult) {
	all := ops.All()
	results := make([]*OpResult, len(all))

	var g errgroup.Group
	for i, op := range all {
		switch op.Type {
		case OpUpload:
			p.progress.StartUpload()
		case OpDownload, OpConflict:
			p.progress.StartDownload()
		}
		g.Go(func() error {
			results[i] = p.run(ctx, op)
			return nil
		})
	}
	p.progress.Publish()
	_ = g.Wait()

	for _, res := range results {
		p.record(res, result)
	}
	for _, id := range p.updated.ToSlice() {
		result.Updated[id] = true
	}
}

func (p *syncPass) run(ctx context.Context, op *SyncOperation) *OpResult {
	switch op.Type {
	case OpUpload:
		defer p.progress.DoneUpload()
		return p.upload(ctx, op.Header)
	case OpDownload:
		defer p.progress.DoneDownload()
		return p.download(ctx, op.Header, op.Remote)
	case OpConflict:
		defer p.progress.DoneDownload()
		return p.resolveConflict(ctx, op.Header, op.Remote)
	case OpDeleteRemote:
		return p.deleteRemote(ctx, op.Header)
	case OpUninstall:
		return p.uninstall(ctx, op.Header, OpUninstall)
	}
	return &OpResult{Op: op.Type, Status: StatusFailed, Err: fmt.Errorf("unknown op %q", op.Type)}
}

func (p *syncPass) record(res *OpResult, result *PassResult) {
	result.Results = append(result.Results, res)

	switch res.Status {
	case StatusSynced:
		slog.Info("sync", "op", res.Op, "id", res.HeaderID, "blobId", res.BlobID)
		switch res.Op {
		case OpUpload:
			result.Uploads++
		case OpDownload:
			result.Downloads++
		case OpConflict:
			result.Conflicts++
		case OpDeleteRemote:
			result.Deletes++
		case OpUninstall:
			result.Uninstalls++
		}
	case StatusUnchanged:
		result.Unchanged++
	case StatusConflict:
		slog.Warn("sync", "op", res.Op, "id", res.HeaderID, "blobId", res.BlobID, "error", res.Err)
	case StatusFailed:
		result.Failures = append(result.Failures, res.Err)
		p.sess.handleNetworkError(res.Err)
	case StatusInvariant:
		result.Failures = append(result.Failures, res.Err)
		slog.Error("sync", "op", res.Op, "id", res.HeaderID, "blobId", res.BlobID, "error", res.Err)
	}
}
