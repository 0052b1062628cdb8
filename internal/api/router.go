// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/d9705996/protestpro/internal/api/handler"
	"github.com/d9705996/protestpro/internal/api/middleware"
	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/health"
)

// Handlers are the route groups to mount. Auth is nil when sign-in is
// delegated to an external identity provider; Storage is nil when blobs
// are served by an external store.
type Handlers struct {
	Health    *health.Handler
	Auth      *handler.AuthHandler
	Relay     *handler.RelayHandler
	Signup    *handler.SignupHandler
	Documents *handler.DocumentsHandler
	Admin     *handler.AdminHandler
	Storage   *handler.StorageHandler
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, h Handlers, az middleware.Authorizer, jwtSecret string) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", h.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.Health.ServeReady)

	protected := middleware.RequireAuth(jwtSecret)
	admin := func(obj, act string, fn http.HandlerFunc) http.Handler {
		return protected(middleware.RequirePermission(az, obj, act)(fn))
	}

	if h.Auth != nil {
		mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
		mux.HandleFunc("POST /api/v1/auth/refresh", h.Auth.Refresh)
		mux.Handle("POST /api/v1/auth/logout", protected(http.HandlerFunc(h.Auth.Logout)))
		mux.Handle("POST /api/v1/auth/password", protected(http.HandlerFunc(h.Auth.Password)))
	}
	mux.Handle("POST /api/v1/auth/relay", middleware.OptionalAuth(jwtSecret)(http.HandlerFunc(h.Relay.Relay)))

	mux.HandleFunc("POST /api/v1/signup", h.Signup.Submit)
	mux.Handle("POST /api/v1/documents/generate", protected(http.HandlerFunc(h.Documents.Generate)))

	// The pipelines re-check standing themselves; the middleware rejects
	// early without touching the body.
	mux.Handle("POST /api/v1/admin/users/delete", admin(authz.ObjUsers, authz.ActDelete, h.Admin.DeleteUsers))
	mux.Handle("POST /api/v1/admin/documents/export", admin(authz.ObjDocuments, authz.ActExport, h.Admin.ExportDocuments))

	if h.Storage != nil {
		mux.HandleFunc("GET /storage/v1/object/sign/{bucket}/{path...}", h.Storage.Signed)
	}
}
