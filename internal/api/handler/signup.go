package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/signup"
)

// Signups runs the signup flow. signup.Service satisfies it.
type Signups interface {
	Submit(ctx context.Context, sub signup.Submission) (*signup.Result, error)
}

// SignupHandler handles POST /api/v1/signup.
type SignupHandler struct {
	svc Signups
	log *slog.Logger
}

// NewSignupHandler creates a SignupHandler.
func NewSignupHandler(svc Signups, log *slog.Logger) *SignupHandler {
	return &SignupHandler{svc: svc, log: log}
}

type signupRequest struct {
	FormData signup.Submission `json:"formData"`
}

type signupAttrs struct {
	Success bool `json:"success"`
	signup.Result
}

// Submit handles POST /api/v1/signup.
func (h *SignupHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	res, err := h.svc.Submit(ctx, req.FormData)
	if err != nil {
		fail(ctx, h.log, w, "signup failed", err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
		Type:       "signups",
		ID:         res.PropertyID,
		Attributes: signupAttrs{Success: true, Result: *res},
	})
}
