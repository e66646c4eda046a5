package files

import "github.com/openmined/cloudsync/internal/server/files"

// UploadRequest is the body of a create or update.
type UploadRequest struct {
	Name    string            `json:"name"`
	Content map[string]string `json:"content" binding:"required"`
}

type ListResponse struct {
	Files []*files.File `json:"files"`
}
