// Package health exposes the /api/v1/health and /api/v1/ready HTTP handlers.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/d9705996/protestpro/internal/api/jsonapi"
	"github.com/d9705996/protestpro/internal/version"
)

// Pinger is implemented by anything that can check a downstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependency is an optional downstream checked by /ready next to the
// database, such as the audit stream's Redis.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// Handler holds dependencies for the health and ready endpoints.
type Handler struct {
	db        Pinger
	deps      []Dependency
	startTime time.Time
}

// New creates a Handler. db may be nil during startup before the pool is
// established; in that case /ready will return 503 immediately.
func New(db Pinger, deps ...Dependency) *Handler {
	return &Handler{db: db, deps: deps, startTime: time.Now()}
}

// healthAttrs is the JSON:API attributes payload for the health response.
type healthAttrs struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ServeHealth handles GET /api/v1/health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "health",
		ID:   "1",
		Attributes: healthAttrs{
			Status:        "ok",
			Version:       version.Version,
			Commit:        version.Commit,
			BuildDate:     version.Date,
			UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		},
	})
}

// ServeReady handles GET /api/v1/ready.
// Returns 200 when the database and every dependency answer; 503 with one
// error per failing dependency otherwise.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		jsonapi.RenderError(w, http.StatusServiceUnavailable,
			"dependency_unavailable", "Service Unavailable",
			"database connection is not initialised")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var errs []jsonapi.ErrorObject
	check := func(name string, p Pinger) {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, jsonapi.ErrorObject{
				Status: http.StatusText(http.StatusServiceUnavailable),
				Code:   "dependency_unavailable",
				Title:  "Service Unavailable",
				Detail: name + " is unreachable: " + err.Error(),
				Source: &jsonapi.ErrorSource{Parameter: name},
			})
		}
	}
	check("database", h.db)
	for _, d := range h.deps {
		check(d.Name, d.Pinger)
	}
	if len(errs) > 0 {
		jsonapi.RenderErrors(w, http.StatusServiceUnavailable, errs)
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "ready",
		ID:         "1",
		Attributes: map[string]string{"status": "ok"},
	})
}
