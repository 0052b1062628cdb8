package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/storage"
)

// SignedObjects serves blobs behind signed links. storage.DBStore
// satisfies it.
type SignedObjects interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	VerifyToken(token, bucket, path string) error
}

// StorageHandler serves GET /storage/v1/object/sign/{bucket}/{path...}.
type StorageHandler struct {
	store SignedObjects
	log   *slog.Logger
}

// NewStorageHandler creates a StorageHandler.
func NewStorageHandler(store SignedObjects, log *slog.Logger) *StorageHandler {
	return &StorageHandler{store: store, log: log}
}

// Signed streams the object named by the URL when its token is valid.
func (h *StorageHandler) Signed(w http.ResponseWriter, r *http.Request) {
	bucket, p := r.PathValue("bucket"), r.PathValue("path")
	if err := h.store.VerifyToken(r.URL.Query().Get("token"), bucket, p); err != nil {
		jsonapi.RenderError(w, http.StatusForbidden, "invalid_token", "Forbidden", "download link is invalid or expired")
		return
	}

	ctx := r.Context()
	data, err := h.store.Download(ctx, bucket, p)
	if errors.Is(err, storage.ErrObjectNotFound) {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "object does not exist")
		return
	}
	if err != nil {
		h.log.ErrorContext(ctx, "signed download", "bucket", bucket, "path", p, "err", err)
		jsonapi.RenderError(w, http.StatusInternalServerError, "download_failed", "Internal Server Error", "object could not be read")
		return
	}

	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(p)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
