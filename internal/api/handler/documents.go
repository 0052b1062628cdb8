package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/documents"
	"go.opentelemetry.io/otel/trace"
)

// Generator produces documents. documents.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req documents.Request) (*documents.Result, error)
}

// Authorizer evaluates the permission policy. authz.Checker satisfies it.
type Authorizer interface {
	Require(ctx context.Context, userID, obj, act string) error
}

// decodeBody decodes a JSON body, rendering a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return false
	}
	return true
}

// fail logs server-side failures once at the boundary and renders err.
func fail(ctx context.Context, log *slog.Logger, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"err", err}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs, "trace_id", sc.TraceID().String())
	}
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindConfig, apperr.KindUnavailable:
		log.ErrorContext(ctx, msg, attrs...)
	default:
		log.InfoContext(ctx, msg, attrs...)
	}
	jsonapi.RenderAppError(w, err)
}

// DocumentsHandler handles /api/v1/documents/* routes.
type DocumentsHandler struct {
	docs  Generator
	authz Authorizer
	log   *slog.Logger
}

// NewDocumentsHandler creates a DocumentsHandler.
func NewDocumentsHandler(docs Generator, az Authorizer, log *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{docs: docs, authz: az, log: log}
}

type generateRequest struct {
	IdentityID   string `json:"identityId"`
	UserID       string `json:"userId"`
	PropertyID   string `json:"propertyId"`
	DocumentType string `json:"documentType"`
}

type generateAttrs struct {
	Success    bool   `json:"success"`
	Filename   string `json:"filename"`
	IsExisting bool   `json:"isExisting"`
}

// Generate handles POST /api/v1/documents/generate. Callers generate their
// own documents; generating for another identity needs administrator
// standing.
func (h *DocumentsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	caller := middleware.ClaimsFromContext(ctx).UserID()

	target := req.IdentityID
	if target == "" {
		target = req.UserID
	}
	if target == "" {
		target = caller
	}
	if target != caller {
		if err := h.authz.Require(ctx, caller, authz.ObjDocuments, authz.ActGenerateAny); err != nil {
			fail(ctx, h.log, w, "generate for another identity denied", err)
			return
		}
	}

	res, err := h.docs.Generate(ctx, documents.Request{
		UserID:       target,
		PropertyID:   req.PropertyID,
		DocumentType: req.DocumentType,
	})
	if err != nil {
		fail(ctx, h.log, w, "document generation failed", err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "documents",
		ID:         res.DocumentID,
		Attributes: generateAttrs{Success: true, Filename: res.Filename, IsExisting: res.IsExisting},
	})
}
