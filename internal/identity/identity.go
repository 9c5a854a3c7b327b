// Package identity decides which edit session a request belongs to.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manash/designedit/internal/designs"
	"github.com/manash/designedit/internal/security"
	"github.com/manash/designedit/internal/session"
)

const (
	DefaultCookieName = "designedit_sid"
	DefaultCookieAge  = 30 * 24 * time.Hour
)

var ErrUnknownDesign = errors.New("unknown design")

// NewSessionID returns a random 32 character alphanumeric id.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Cookies issues and reads the visitor session cookie.
type Cookies struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

func NewCookies(name string, maxAge time.Duration) *Cookies {
	if name == "" {
		name = DefaultCookieName
	}
	if maxAge <= 0 {
		maxAge = DefaultCookieAge
	}
	return &Cookies{Name: name, MaxAge: maxAge}
}

// SessionID returns the sanitized id carried by the request cookie. When the
// cookie is absent or nothing usable survives sanitizing, a new id is minted
// and set on w.
func (c *Cookies) SessionID(w http.ResponseWriter, r *http.Request) string {
	if ck, err := r.Cookie(c.Name); err == nil {
		if sid := security.SanitizeSessionID(ck.Value); sid != "" {
			return sid
		}
	}

	sid := NewSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    sid,
		Path:     "/",
		Expires:  time.Now().Add(c.MaxAge),
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// SeedSource looks up the image a design record was created with.
type SeedSource interface {
	FindSeedImage(ctx context.Context, id string) ([]byte, error)
}

// Designs binds one edit session to each design record, seeded from the
// record's image.
type Designs struct {
	seeds      SeedSource
	controller *session.Controller
}

func NewDesigns(seeds SeedSource, controller *session.Controller) *Designs {
	return &Designs{seeds: seeds, controller: controller}
}

// Resolve returns the session id for designID, bootstrapping the session
// from the design image the first time it is used.
func (d *Designs) Resolve(ctx context.Context, designID string) (string, error) {
	sid := security.SanitizeSessionID(designID)
	if sid == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownDesign, designID)
	}

	h, err := d.controller.List(ctx, sid)
	if err != nil {
		return "", err
	}
	if !h.IsEmpty() {
		return sid, nil
	}

	data, err := d.seeds.FindSeedImage(ctx, sid)
	switch {
	case errors.Is(err, designs.ErrDesignNotFound), errors.Is(err, designs.ErrSeedMissing):
		return "", fmt.Errorf("%w: %s: %v", ErrUnknownDesign, sid, err)
	case err != nil:
		return "", fmt.Errorf("%w: load design %s: %v", session.ErrStorage, sid, err)
	}
	if _, err := d.controller.Bootstrap(ctx, sid, &session.Seed{Data: data}); err != nil {
		return "", err
	}
	return sid, nil
}
