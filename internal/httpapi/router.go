// Package httpapi exposes the edit session controllers over HTTP using the
// form-encoded action protocol.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/manash/designedit/internal/identity"
	"github.com/manash/designedit/internal/session"
)

// Deps wires the router. Designs and DesignIdentity may be nil, in which
// case the per-design editor routes are not mounted.
type Deps struct {
	Sessions       *session.Controller
	Designs        *session.Controller
	Cookies        *identity.Cookies
	DesignIdentity *identity.Designs
	Logger         zerolog.Logger
	MaxUploadBytes int64
	MediaPrefix    string
}

type api struct {
	Deps
	media map[string]*session.Store
}

func NewRouter(d Deps) http.Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 20 << 20
	}
	if d.MediaPrefix == "" {
		d.MediaPrefix = "/media"
	}
	if d.Cookies == nil {
		d.Cookies = identity.NewCookies("", 0)
	}

	a := &api{Deps: d, media: map[string]*session.Store{"sessions": d.Sessions.Store()}}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, AccessLog(d.Logger), middleware.Recoverer)

	r.Get("/healthz", a.health)

	r.Route("/editor", func(r chi.Router) {
		r.Get("/actions", a.sessionAction)
		r.Post("/actions", a.sessionAction)
	})

	if d.Designs != nil && d.DesignIdentity != nil {
		a.media["designs"] = d.Designs.Store()
		r.Route("/designs/{designID}/editor", func(r chi.Router) {
			r.Get("/actions", a.designAction)
			r.Post("/actions", a.designAction)
		})
	}

	r.Get(strings.TrimRight(d.MediaPrefix, "/")+"/{scope}/*", a.serveMedia)

	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
