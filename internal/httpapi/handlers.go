package httpapi

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/manash/designedit/internal/identity"
	"github.com/manash/designedit/internal/session"
)

var errUnknownAction = errors.New("unknown action")

func (a *api) sessionAction(w http.ResponseWriter, r *http.Request) {
	sid := a.Cookies.SessionID(w, r)
	a.dispatch(w, r, a.Sessions, sid, true)
}

func (a *api) designAction(w http.ResponseWriter, r *http.Request) {
	sid, err := a.DesignIdentity.Resolve(r.Context(), chi.URLParam(r, "designID"))
	if errors.Is(err, identity.ErrUnknownDesign) {
		writeJSON(w, http.StatusNotFound, failure(err, session.KindInput))
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.dispatch(w, r, a.Designs, sid, false)
}

func (a *api) dispatch(w http.ResponseWriter, r *http.Request, c *session.Controller, sid string, allowUpload bool) {
	ctx := r.Context()
	parseErr := a.parse(w, r)
	action := r.FormValue("action")

	if parseErr != nil {
		a.fail(w, r, &session.UploadError{Cause: parseErr})
		return
	}

	switch action {
	case "upload":
		if !allowUpload {
			writeJSON(w, http.StatusBadRequest, failure(errors.New("upload is not available for designs"), session.KindInput))
			return
		}
		res, err := c.Upload(ctx, sid, readUpload(r))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, versionReply(res))

	case "edit":
		res, err := c.Edit(ctx, sid, r.FormValue("prompt"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, versionReply(res))

	case "undo":
		current, err := c.Undo(ctx, sid)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": 1, "current_base": current})

	case "rollback":
		current, err := c.Rollback(ctx, sid, r.FormValue("path"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": 1, "current_base": current})

	case "list":
		h, err := c.List(ctx, sid)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": 1, "all": versionsOf(h), "current_base": h.CurrentBasePath})

	default:
		writeJSON(w, http.StatusBadRequest, failure(errUnknownAction, session.KindInput))
	}
}

// parse reads the form body, capping multipart requests at MaxUploadBytes.
func (a *api) parse(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return r.ParseForm()
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(a.MaxUploadBytes)
	}
	return r.ParseForm()
}

func readUpload(r *http.Request) session.Upload {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return session.Upload{}
	}
	if err != nil {
		return session.Upload{Err: err}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return session.Upload{Err: err}
	}
	return session.Upload{
		Data:     data,
		MIME:     header.Header.Get("Content-Type"),
		Filename: header.Filename,
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := session.Classify(err)
	status := statusFor(kind)

	// Bad requests are routine; only system faults are logged above debug.
	var ev *zerolog.Event
	switch {
	case session.IsUserError(err):
		ev = a.Logger.Debug()
	case status >= http.StatusInternalServerError:
		ev = a.Logger.Error()
	default:
		ev = a.Logger.Warn()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("kind", string(kind)).
		Msg("editor action failed")

	writeJSON(w, status, failure(err, kind))
}

func statusFor(kind session.ErrorKind) int {
	switch kind {
	case session.KindInput:
		return http.StatusBadRequest
	case session.KindInconsistency:
		return http.StatusConflict
	case session.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func failure(err error, kind session.ErrorKind) map[string]any {
	return map[string]any{"ok": 0, "error": err.Error(), "kind": kind}
}

func versionReply(res *session.Result) map[string]any {
	return map[string]any{
		"ok":           1,
		"version":      res.Version,
		"all":          versionsOf(res.History),
		"current_base": res.History.CurrentBasePath,
	}
}

func versionsOf(h *session.History) []session.Version {
	if h == nil || h.Versions == nil {
		return []session.Version{}
	}
	return h.Versions
}

// serveMedia streams a stored image. Only image keys inside a known scope
// resolve, so history files are never served.
func (a *api) serveMedia(w http.ResponseWriter, r *http.Request) {
	store, ok := a.media[chi.URLParam(r, "scope")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	path, err := store.Resolve(chi.URLParam(r, "*"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
