package cloudsync

import "errors"

type OpType string

const (
	OpUpload       OpType = "Upload"
	OpDownload     OpType = "Download"
	OpConflict     OpType = "Conflict"
	OpDeleteRemote OpType = "DeleteRemote"
	OpUninstall    OpType = "Uninstall"
)

// SyncOperation pairs a local header with the remote entry it was matched to.
// Header is nil for remote entries unknown locally; Remote is nil for headers
// with no remote entry.
type SyncOperation struct {
	Type   OpType
	Header *Header
	Remote *FileInfo
}

// ReconcileOperations is the classification of one pass.
type ReconcileOperations struct {
	Uploads       []*SyncOperation
	Downloads     []*SyncOperation
	Conflicts     []*SyncOperation
	RemoteDeletes []*SyncOperation
	Uninstalls    []*SyncOperation
	Unchanged     int
}

func (r *ReconcileOperations) add(op *SyncOperation) {
	switch op.Type {
	case OpUpload:
		r.Uploads = append(r.Uploads, op)
	case OpDownload:
		r.Downloads = append(r.Downloads, op)
	case OpConflict:
		r.Conflicts = append(r.Conflicts, op)
	case OpDeleteRemote:
		r.RemoteDeletes = append(r.RemoteDeletes, op)
	case OpUninstall:
		r.Uninstalls = append(r.Uninstalls, op)
	}
}

// All returns every scheduled operation.
func (r *ReconcileOperations) All() []*SyncOperation {
	all := make([]*SyncOperation, 0, r.Len())
	all = append(all, r.Uploads...)
	all = append(all, r.Downloads...)
	all = append(all, r.Conflicts...)
	all = append(all, r.RemoteDeletes...)
	all = append(all, r.Uninstalls...)
	return all
}

func (r *ReconcileOperations) Len() int {
	return len(r.Uploads) + len(r.Downloads) + len(r.Conflicts) + len(r.RemoteDeletes) + len(r.Uninstalls)
}

func (r *ReconcileOperations) HasChanges() bool {
	return r.Len() > 0
}

// OpStatus is the outcome kind of a per item primitive.
type OpStatus string

const (
	StatusSynced    OpStatus = "synced"
	StatusUnchanged OpStatus = "unchanged"
	StatusConflict  OpStatus = "conflict"
	StatusFailed    OpStatus = "failed"
	StatusInvariant OpStatus = "invariant"
)

// OpResult is returned by every primitive instead of panicking across task
// boundaries.
type OpResult struct {
	Op       OpType
	HeaderID string
	BlobID   string
	Status   OpStatus
	Err      error
}

func resultFromError(op OpType, h *Header, blobID string, err error) *OpResult {
	res := &OpResult{Op: op, BlobID: blobID, Status: StatusSynced}
	if h != nil {
		res.HeaderID = h.ID
	}
	if err == nil {
		return res
	}
	res.Err = err
	var iv *InvariantViolation
	switch {
	case IsConflict(err):
		res.Status = StatusConflict
	case errors.As(err, &iv):
		res.Status = StatusInvariant
	default:
		res.Status = StatusFailed
	}
	return res
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Uploads    int
	Downloads  int
	Conflicts  int
	Deletes    int
	Uninstalls int
	Unchanged  int
	// Updated holds the remote ids written locally during the pass.
	Updated  map[string]bool
	Results  []*OpResult
	Failures []error
}
