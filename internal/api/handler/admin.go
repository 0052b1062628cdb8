package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/erasure"
	"github.com/d9705996/protestpro/internal/export"
)

// Eraser deletes identities and their data. erasure.Eraser satisfies it.
type Eraser interface {
	DeleteUsers(ctx context.Context, actorID string, userIDs []string) (*erasure.Report, error)
}

// Exporter bundles documents. export.Packager satisfies it.
type Exporter interface {
	Export(ctx context.Context, actorID string, f export.Filters) (*export.Result, error)
}

// AdminHandler handles /api/v1/admin/* routes.
type AdminHandler struct {
	eraser   Eraser
	exporter Exporter
	log      *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(eraser Eraser, exporter Exporter, log *slog.Logger) *AdminHandler {
	return &AdminHandler{eraser: eraser, exporter: exporter, log: log}
}

type deleteUsersRequest struct {
	UserIDs []string `json:"userIds"`
}

type deleteUsersAttrs struct {
	Success bool             `json:"success"`
	Results []erasure.Result `json:"results"`
	Summary erasure.Summary  `json:"summary"`
}

// DeleteUsers handles POST /api/v1/admin/users/delete. Per-identity failures
// are reported in the results, not as an error status.
func (h *AdminHandler) DeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req deleteUsersRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	actor := middleware.ClaimsFromContext(ctx).UserID()

	rep, err := h.eraser.DeleteUsers(ctx, actor, req.UserIDs)
	if err != nil {
		fail(ctx, h.log, w, "user deletion rejected", err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "user_deletions",
		ID:         actor,
		Attributes: deleteUsersAttrs{Success: true, Results: rep.Results, Summary: rep.Summary},
	})
}

type exportRequest struct {
	Filters export.Filters `json:"filters"`
}

type exportAttrs struct {
	Success bool `json:"success"`
	*export.Result
}

// ExportDocuments handles POST /api/v1/admin/documents/export.
func (h *AdminHandler) ExportDocuments(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	actor := middleware.ClaimsFromContext(ctx).UserID()

	res, err := h.exporter.Export(ctx, actor, req.Filters)
	if err != nil {
		fail(ctx, h.log, w, "document export failed", err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "document_exports",
		ID:         res.FileName,
		Attributes: exportAttrs{Success: true, Result: res},
	})
}
