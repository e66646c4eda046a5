package files

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/cloudsync/internal/server/files"
	"github.com/openmined/cloudsync/internal/server/handlers/api"
	"github.com/openmined/cloudsync/internal/syncmsg"
)

const maxUploadSize = 8 << 20 // 8 MiB

// Broadcaster pushes change events to a user's live connections.
type Broadcaster interface {
	SendMessageUser(user string, msg *syncmsg.Message) bool
}

type FilesHandler struct {
	svc *files.FileService
	hub Broadcaster
}

func New(svc *files.FileService, hub Broadcaster) *FilesHandler {
	return &FilesHandler{svc: svc, hub: hub}
}

func (h *FilesHandler) List(ctx *gin.Context) {
	list, err := h.svc.List(ctx, api.User(ctx))
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeFileListFailed, err)
		return
	}
	ctx.PureJSON(http.StatusOK, &ListResponse{Files: list})
}

func (h *FilesHandler) Get(ctx *gin.Context) {
	file, err := h.svc.Get(ctx, api.User(ctx), ctx.Param("id"))
	if err != nil {
		h.abortFileError(ctx, api.CodeFileGetFailed, err)
		return
	}
	ctx.Header("ETag", quote(file.Version))
	ctx.PureJSON(http.StatusOK, file)
}

func (h *FilesHandler) Create(ctx *gin.Context) {
	req, ok := bindUpload(ctx)
	if !ok {
		return
	}

	user := api.User(ctx)
	file, err := h.svc.Create(ctx, user, req.Name, req.Content)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeFilePutFailed, err)
		return
	}

	slog.Info("file create", "user", user, "id", file.ID, "version", file.Version)
	h.notify(user, syncmsg.NewFileChanged(file.ID, file.Version))
	ctx.Header("ETag", quote(file.Version))
	ctx.PureJSON(http.StatusCreated, file)
}

// Update writes a new version. An If-Match header makes the write
// conditional on the current version.
func (h *FilesHandler) Update(ctx *gin.Context) {
	req, ok := bindUpload(ctx)
	if !ok {
		return
	}

	user := api.User(ctx)
	id := ctx.Param("id")
	base := unquote(ctx.GetHeader("If-Match"))

	file, err := h.svc.Update(ctx, user, id, base, req.Name, req.Content)
	if err != nil {
		h.abortFileError(ctx, api.CodeFilePutFailed, err)
		return
	}

	slog.Info("file update", "user", user, "id", id, "base", base, "version", file.Version)
	h.notify(user, syncmsg.NewFileChanged(file.ID, file.Version))
	ctx.Header("ETag", quote(file.Version))
	ctx.PureJSON(http.StatusOK, file)
}

func (h *FilesHandler) Delete(ctx *gin.Context) {
	user := api.User(ctx)
	id := ctx.Param("id")

	if err := h.svc.Delete(ctx, user, id); err != nil {
		h.abortFileError(ctx, api.CodeFileDeleteFailed, err)
		return
	}

	slog.Info("file delete", "user", user, "id", id)
	h.notify(user, syncmsg.NewFileDeleted(id))
	ctx.Status(http.StatusNoContent)
}

func (h *FilesHandler) notify(user string, msg *syncmsg.Message) {
	if h.hub != nil {
		h.hub.SendMessageUser(user, msg)
	}
}

func (h *FilesHandler) abortFileError(ctx *gin.Context, code string, err error) {
	var conflict *files.VersionConflictError
	switch {
	case errors.Is(err, files.ErrFileNotFound):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeFileNotFound, err)
	case errors.As(err, &conflict):
		ctx.Abort()
		ctx.Error(err)
		ctx.PureJSON(http.StatusConflict, api.APIError{
			Code:           api.CodeVersionConflict,
			Message:        err.Error(),
			CurrentVersion: conflict.CurrentVersion,
		})
	default:
		api.AbortWithError(ctx, http.StatusInternalServerError, code, err)
	}
}

func bindUpload(ctx *gin.Context) (*UploadRequest, bool) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadSize)

	var req UploadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return nil, false
	}
	return &req, true
}

func quote(version string) string {
	return `"` + version + `"`
}

func unquote(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
