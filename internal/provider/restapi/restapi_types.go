package restapi

import (
	"errors"
	"fmt"

	"github.com/openmined/cloudsync/internal/cloudsync"
)

const (
	HeaderUserAgent     = "User-Agent"
	HeaderCloudVersion  = "X-CloudSync-Version"
	HeaderCloudDeviceID = "X-CloudSync-Device"

	codeVersionConflict = "E_VERSION_CONFLICT"
	codeFileNotFound    = "E_FILE_NOT_FOUND"
)

var (
	ErrNoServerURL  = errors.New("restapi: server url missing")
	ErrNoToken      = errors.New("restapi: access token missing")
	ErrTokenExpired = errors.New("restapi: access token expired")
)

// APIError is the error body returned by the server.
type APIError struct {
	Code           string `json:"code"`
	Message        string `json:"error"`
	CurrentVersion string `json:"currentVersion,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

type uploadRequest struct {
	Name    string         `json:"name"`
	Content cloudsync.Text `json:"content"`
}

type listResponse struct {
	Files []*cloudsync.FileInfo `json:"files"`
}
