// Package jsonapi provides the JSON:API 1.1 envelope types and rendering
// helpers used by every handler, including the mapping from pipeline
// failures to error documents.
package jsonapi

import (
	"encoding/json"
	"net/http"

	"github.com/d9705996/protestpro/internal/apperr"
)

const contentType = "application/vnd.api+json"

// ---- Document types -------------------------------------------------------

// Document is a JSON:API single-resource document.
type Document struct {
	Data  any    `json:"data"`
	Meta  Meta   `json:"meta,omitempty"`
	Links *Links `json:"links,omitempty"`
}

// ResourceObject is the canonical JSON:API resource object.
type ResourceObject struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes,omitempty"`
	Links      *Links `json:"links,omitempty"`
	Meta       Meta   `json:"meta,omitempty"`
}

// Links holds JSON:API link objects.
type Links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
}

// Meta is a free-form map of non-standard meta-information.
type Meta map[string]any

// ---- Error types ----------------------------------------------------------

// ErrorDocument is a JSON:API error response document.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// ErrorObject represents a single JSON:API error.
type ErrorObject struct {
	Status string       `json:"status,omitempty"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource identifies the source of a JSON:API error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ---- Render helpers -------------------------------------------------------

// Render writes a JSON:API document to w with the given HTTP status code.
func Render(w http.ResponseWriter, status int, doc any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// RenderOne writes a single-resource document.
func RenderOne(w http.ResponseWriter, status int, data any) {
	Render(w, status, Document{Data: data})
}

// RenderError writes a single JSON:API error.
func RenderError(w http.ResponseWriter, status int, code, title, detail string) {
	RenderErrors(w, status, []ErrorObject{
		{
			Status: http.StatusText(status),
			Code:   code,
			Title:  title,
			Detail: detail,
		},
	})
}

// RenderErrors writes multiple JSON:API errors.
func RenderErrors(w http.ResponseWriter, status int, errs []ErrorObject) {
	Render(w, status, ErrorDocument{Errors: errs})
}

// RenderAppError writes err using its kind for the status and its code for
// the error code. The wrapped cause is never rendered; untagged errors
// become a generic 500.
func RenderAppError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if !ok {
		RenderError(w, http.StatusInternalServerError, "internal_error",
			http.StatusText(http.StatusInternalServerError), "an unexpected error occurred")
		return
	}
	status := apperr.HTTPStatus(e.Kind)
	RenderError(w, status, e.Code, http.StatusText(status), e.Message)
}
