package main

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/d9705996/protestpro/internal/app"
	"github.com/d9705996/protestpro/ui"
)

// registerPages mounts the embedded callback and set-password pages.
func registerPages(mux *http.ServeMux, log *slog.Logger) {
	sub, err := fs.Sub(ui.FS, "pages")
	if err != nil {
		log.Error("embed ui/pages: sub failed", "err", err)
		return
	}
	mux.Handle("GET "+app.CallbackPath, page(sub, "callback.html"))
	mux.Handle("GET "+app.SetPasswordPath, page(sub, "set-password.html"))
}

// page serves one embedded HTML file. The pages read their tokens from the
// URL fragment, which never reaches the server.
func page(fsys fs.FS, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		http.ServeFileFS(w, r, fsys, name)
	})
}
