package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manash/designedit/internal/image"
	"github.com/manash/designedit/internal/security"
	"github.com/manash/designedit/pkg/models"
)

// Gateway produces an image from a prompt and an optional base image.
type Gateway interface {
	Generate(ctx context.Context, req *models.EditRequest) (*models.Result, error)
}

type UsageEntry struct {
	SessionID string
	VersionID string
	Provider  string
	Model     string
	Cost      float64
	Usage     map[string]any
	Timestamp time.Time
}

// UsageRecorder receives one entry per successful edit.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, entry UsageEntry) error
}

// Seed is the image an empty session is bootstrapped from.
type Seed struct {
	Data []byte
	MIME string
}

// Upload is a user supplied image. Err is the transport-level failure, if
// reading the file from the request did not succeed.
type Upload struct {
	Data     []byte
	MIME     string
	Filename string
	Err      error
}

// Result is the outcome of an operation that created a version.
type Result struct {
	Version Version
	History *History
}

type Controller struct {
	store   *Store
	gateway Gateway
	usage   UsageRecorder
	log     zerolog.Logger
	now     func() time.Time
}

type Option func(*Controller)

func WithUsageRecorder(r UsageRecorder) Option {
	return func(c *Controller) { c.usage = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(store *Store, gateway Gateway, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		gateway: gateway,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Store() *Store {
	return c.store
}

// Bootstrap makes sure the session exists. When it has no versions and a
// seed is supplied, the seed becomes the original version. Calling it on a
// populated session does nothing.
func (c *Controller) Bootstrap(ctx context.Context, sessionID string, seed *Seed) (*History, error) {
	if seed == nil || len(seed.Data) == 0 {
		return c.store.Load(ctx, sessionID)
	}

	var created Version
	h, err := c.store.Update(ctx, sessionID, func(h *History) error {
		if !h.IsEmpty() {
			return errUnchanged
		}
		mime := seed.MIME
		if mime == "" {
			mime = image.DetectMIME(seed.Data)
		}
		v, err := c.addOriginal(ctx, sessionID, h, seed.Data, mime)
		created = v
		return err
	})
	if err != nil {
		c.discard(created.Path)
		return nil, err
	}
	if created.Path != "" {
		c.log.Debug().Str("session", sessionID).Str("path", created.Path).Msg("session bootstrapped")
	}
	return h, nil
}

// Upload stores a new original, making it both the original and the current
// base. Earlier versions stay in the history.
func (c *Controller) Upload(ctx context.Context, sessionID string, up Upload) (*Result, error) {
	if up.Err != nil {
		return nil, &UploadError{Cause: up.Err}
	}
	if len(up.Data) == 0 {
		return nil, ErrNoFile
	}

	filename := security.SanitizeFilename(up.Filename)
	norm := image.Normalize(up.Data, up.MIME)
	if norm.ConversionErr != nil {
		c.log.Warn().Err(norm.ConversionErr).
			Str("session", sessionID).
			Str("file", filename).
			Str("mime", norm.MIME).
			Msg("upload kept in its original format")
	}

	var created Version
	h, err := c.store.Update(ctx, sessionID, func(h *History) error {
		v, err := c.addOriginal(ctx, sessionID, h, norm.Data, norm.MIME)
		created = v
		return err
	})
	if err != nil {
		c.discard(created.Path)
		return nil, err
	}

	c.log.Debug().
		Str("session", sessionID).
		Str("file", filename).
		Str("path", created.Path).
		Bool("converted", norm.Converted).
		Msg("upload stored")
	return &Result{Version: created, History: h}, nil
}

func (c *Controller) addOriginal(ctx context.Context, sessionID string, h *History, data []byte, mime string) (Version, error) {
	ref, err := c.store.StoreImageBytes(ctx, sessionID, data, mime, "original")
	if err != nil {
		return Version{}, err
	}
	v := Version{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC(),
		Type:      TypeOriginal,
		Path:      ref.Path,
		URL:       ref.URL,
	}
	h.prepend(v)
	h.OriginalPath = strPtr(ref.Path)
	h.setCurrent(ref.Path)
	return v, nil
}

// Edit transforms the current base with prompt. The gateway runs without
// the session lock held; only persisting the new version takes it, so
// concurrent edits each add their own version.
func (c *Controller) Edit(ctx context.Context, sessionID, prompt string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	h, err := c.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	base := h.Current()
	if base == "" {
		return nil, fmt.Errorf("%w: session has no current image", ErrMissingBase)
	}
	data, mime, err := c.store.ReadImage(base)
	if err != nil {
		c.log.Error().Err(err).Str("session", sessionID).Str("base", base).Msg("current base unreadable")
		return nil, fmt.Errorf("%w: %s", ErrMissingBase, base)
	}

	res, err := c.gateway.Generate(ctx, models.NewEditRequest(prompt, &models.SourceImage{Data: data, MIME: mime}))
	if err != nil {
		c.log.Warn().Err(err).Str("session", sessionID).Msg("image generation failed")
		return nil, err
	}

	usage := editUsage(res)
	var created Version
	h, err = c.store.Update(ctx, sessionID, func(h *History) error {
		ref, err := c.store.StoreImageBytes(ctx, sessionID, res.Data, res.MIME, "edit")
		if err != nil {
			return err
		}
		created = Version{
			ID:        uuid.NewString(),
			Timestamp: c.now().UTC(),
			Type:      TypeEdit,
			Path:      ref.Path,
			URL:       ref.URL,
			Prompt:    strPtr(prompt),
			Base:      strPtr(base),
			Usage:     usage,
		}
		h.prepend(created)
		h.setCurrent(ref.Path)
		return nil
	})
	if err != nil {
		c.discard(created.Path)
		return nil, err
	}

	c.log.Debug().
		Str("session", sessionID).
		Str("path", created.Path).
		Str("base", base).
		Msg("edit stored")
	c.recordUsage(ctx, sessionID, created, res)
	return &Result{Version: created, History: h}, nil
}

func editUsage(res *models.Result) map[string]any {
	usage := make(map[string]any, len(res.Usage)+3)
	maps.Copy(usage, res.Usage)
	if res.Provider != "" {
		usage["provider"] = string(res.Provider)
	}
	if res.Model != "" {
		usage["model"] = res.Model
	}
	if res.Cost != nil {
		usage["estimated_cost_usd"] = res.Cost.Total
	}
	if len(usage) == 0 {
		return nil
	}
	return usage
}

func (c *Controller) recordUsage(ctx context.Context, sessionID string, v Version, res *models.Result) {
	if c.usage == nil {
		return
	}
	entry := UsageEntry{
		SessionID: sessionID,
		VersionID: v.ID,
		Provider:  string(res.Provider),
		Model:     res.Model,
		Usage:     res.Usage,
		Timestamp: v.Timestamp,
	}
	if res.Cost != nil {
		entry.Cost = res.Cost.Total
	}
	if err := c.usage.RecordUsage(ctx, entry); err != nil {
		c.log.Error().Err(err).Str("session", sessionID).Str("version", v.ID).Msg("failed to record usage")
	}
}

// Undo moves the current base one hop back along its base reference.
func (c *Controller) Undo(ctx context.Context, sessionID string) (string, error) {
	h, err := c.store.Update(ctx, sessionID, func(h *History) error {
		current := h.Current()
		if current == "" {
			return ErrNothingToUndo
		}
		v, ok := h.Find(current)
		if !ok || v.Base == nil || !c.store.Exists(*v.Base) {
			return ErrAlreadyAtOriginal
		}
		h.setCurrent(*v.Base)
		return nil
	})
	if err != nil {
		return "", err
	}
	c.log.Debug().Str("session", sessionID).Str("current", h.Current()).Msg("undo")
	return h.Current(), nil
}

// Rollback points the current base at target. Any existing image in the
// store is accepted. A target that is not one of this session's versions is
// first copied in as a new original, so edit bases never leave the history;
// rolling back to the same image again reuses that copy.
func (c *Controller) Rollback(ctx context.Context, sessionID, target string) (string, error) {
	key, err := c.store.KeyFromRef(target)
	if err != nil || !c.store.Exists(key) {
		return "", fmt.Errorf("%w: %s", ErrInvalidVersion, target)
	}

	var imported Version
	h, err := c.store.Update(ctx, sessionID, func(h *History) error {
		next := key
		if _, ok := h.Find(key); !ok {
			if v, ok := h.importedFrom(key); ok {
				next = v.Path
			} else {
				v, err := c.importVersion(ctx, sessionID, h, key)
				if err != nil {
					return err
				}
				imported = v
				next = v.Path
			}
		}
		if h.Current() == next {
			return errUnchanged
		}
		h.setCurrent(next)
		return nil
	})
	if err != nil {
		c.discard(imported.Path)
		return "", err
	}
	if imported.Path != "" {
		c.log.Debug().Str("session", sessionID).Str("source", key).Str("path", imported.Path).Msg("rollback target imported")
	}
	c.log.Debug().Str("session", sessionID).Str("current", h.Current()).Msg("rollback")
	return h.Current(), nil
}

// importVersion copies the image at key into the session as an original.
// The source key is kept in the version's usage so a later rollback to the
// same image finds the copy.
func (c *Controller) importVersion(ctx context.Context, sessionID string, h *History, key string) (Version, error) {
	data, mime, err := c.store.ReadImage(key)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %s", ErrInvalidVersion, key)
	}
	ref, err := c.store.StoreImageBytes(ctx, sessionID, data, mime, "original")
	if err != nil {
		return Version{}, err
	}
	v := Version{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC(),
		Type:      TypeOriginal,
		Path:      ref.Path,
		URL:       ref.URL,
		Usage:     map[string]any{usageImportedFrom: key},
	}
	h.prepend(v)
	if h.OriginalPath == nil {
		h.OriginalPath = strPtr(ref.Path)
	}
	return v, nil
}

// discard removes an image written for a history update that was not saved.
func (c *Controller) discard(ref string) {
	if ref == "" {
		return
	}
	if err := c.store.RemoveImage(ref); err != nil {
		c.log.Warn().Err(err).Str("path", ref).Msg("failed to remove unsaved image")
	}
}

// List returns the session history without changing it.
func (c *Controller) List(ctx context.Context, sessionID string) (*History, error) {
	return c.store.Load(ctx, sessionID)
}

// IsUserError reports whether err was caused by the request rather than by
// the system.
func IsUserError(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && Classify(err) == KindInput
}
