package session

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/manash/designedit/internal/image"
	"github.com/manash/designedit/internal/security"
)

const (
	historyFile = "history.json"
	schemaURL   = "mem://designedit/history.schema.json"
)

//go:embed history.schema.json
var historySchema []byte

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// errUnchanged lets an Update callback finish without rewriting the file.
var errUnchanged = errors.New("history unchanged")

// Store keeps one JSON history file and a directory of images per session
// under a single root. Writers to the same session serialize on an
// in-process mutex and on flock(2) over the history file.
type Store struct {
	root      string
	publicURL string
	schema    *jsonschema.Schema

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is dropped from Store.locks once nobody holds or waits on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore opens (creating if needed) a store rooted at root. Image URLs
// are publicURL joined with the storage key.
func NewStore(root, publicURL string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("session: storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("session: resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("session: ensure storage root: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(historySchema)); err != nil {
		return nil, fmt.Errorf("session: add history schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("session: compile history schema: %w", err)
	}

	return &Store{
		root:      abs,
		publicURL: strings.TrimRight(publicURL, "/"),
		schema:    schema,
		locks:     make(map[string]*sessionLock),
	}, nil
}

func (s *Store) Root() string {
	return s.root
}

// URLFor returns the public URL of a storage key.
func (s *Store) URLFor(key string) string {
	return s.publicURL + "/" + key
}

// Load returns the session's history, persisting the empty skeleton when
// the session has none yet.
func (s *Store) Load(ctx context.Context, sessionID string) (*History, error) {
	var out *History
	err := s.withLock(ctx, sessionID, func(f *os.File) error {
		h, err := s.read(f)
		if err != nil {
			return err
		}
		if h == nil {
			h = NewHistory()
			if err := s.write(f, h); err != nil {
				return err
			}
		}
		out = h
		return nil
	})
	return out, err
}

// Save replaces the persisted history. The file is truncated and rewritten
// while the session lock is held.
func (s *Store) Save(ctx context.Context, sessionID string, h *History) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("%w: refusing to save: %v", ErrStorage, err)
	}
	return s.withLock(ctx, sessionID, func(f *os.File) error {
		return s.write(f, h)
	})
}

// Update runs fn against the freshly loaded history and persists the result,
// all under the session lock. If fn fails, or ctx is done by the time it
// returns, nothing is written and the error is returned as is.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(h *History) error) (*History, error) {
	var out *History
	err := s.withLock(ctx, sessionID, func(f *os.File) error {
		h, err := s.read(f)
		if err != nil {
			return err
		}
		if h == nil {
			h = NewHistory()
		}

		switch err := fn(h); {
		case errors.Is(err, errUnchanged):
			out = h
			return nil
		case err != nil:
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%w: refusing to save: %v", ErrStorage, err)
		}
		if err := s.write(f, h); err != nil {
			return err
		}
		out = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StoreImageBytes writes data into the session directory under a fresh
// collision-free name and returns its reference.
func (s *Store) StoreImageBytes(ctx context.Context, sessionID string, data []byte, mime, prefix string) (ImageRef, error) {
	if err := ctx.Err(); err != nil {
		return ImageRef{}, err
	}
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return ImageRef{}, err
	}
	if len(data) == 0 {
		return ImageRef{}, fmt.Errorf("%w: no image data", ErrStorage)
	}

	for attempt := 0; attempt < 3; attempt++ {
		name := image.GenerateFilename(prefix, mime)
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return ImageRef{}, fmt.Errorf("%w: create image: %v", ErrStorage, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return ImageRef{}, fmt.Errorf("%w: write image: %v", ErrStorage, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return ImageRef{}, fmt.Errorf("%w: close image: %v", ErrStorage, err)
		}

		key := sessionID + "/" + name
		return ImageRef{Path: key, URL: s.URLFor(key)}, nil
	}
	return ImageRef{}, fmt.Errorf("%w: could not allocate a unique image name", ErrStorage)
}

// RemoveImage deletes a stored image. Callers use it for images whose
// version was never persisted.
func (s *Store) RemoveImage(ref string) error {
	path, err := s.Resolve(ref)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// KeyFromRef accepts either a storage key or a public URL produced by this
// store and returns the cleaned storage key.
func (s *Store) KeyFromRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if s.publicURL != "" {
		ref = strings.TrimPrefix(ref, s.publicURL+"/")
	}
	return security.CleanKey(ref)
}

// Resolve maps an image reference to an absolute path inside the root.
func (s *Store) Resolve(ref string) (string, error) {
	key, err := s.KeyFromRef(ref)
	if err != nil {
		return "", err
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(key))] {
		return "", fmt.Errorf("%w: not an image key", security.ErrInvalidKey)
	}
	return security.ResolveKey(s.root, key)
}

// Exists reports whether ref resolves to a regular image file in the store.
func (s *Store) Exists(ref string) bool {
	path, err := s.Resolve(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadImage returns the bytes of a stored image and its MIME type, sniffed
// from the content and falling back to the file extension.
func (s *Store) ReadImage(ref string) ([]byte, string, error) {
	path, err := s.Resolve(ref)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	mime := image.DetectMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		mime = image.MIMEForExtension(filepath.Ext(path))
	}
	return data, mime, nil
}

func (s *Store) sessionDir(sessionID string) (string, error) {
	if sessionID == "" || security.SanitizeSessionID(sessionID) != sessionID {
		return "", fmt.Errorf("%w: %q", ErrInvalidSession, sessionID)
	}
	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: ensure session directory: %v", ErrStorage, err)
	}
	return dir, nil
}

func (s *Store) acquire(sessionID string) *sessionLock {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) release(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

// withLock holds the session's mutex and an exclusive flock on its history
// file while fn runs. Both are released on every return path.
func (s *Store) withLock(ctx context.Context, sessionID string, fn func(f *os.File) error) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}

	l := s.acquire(sessionID)
	defer s.release(sessionID, l)

	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, historyFile), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open history: %v", ErrStorage, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("%w: lock history: %v", ErrStorage, err)
	}
	defer unlockFile(f)

	return fn(f)
}

// read decodes the history file. A nil history with a nil error means the
// file is empty.
func (s *Store) read(f *os.File) (*History, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seek history: %v", ErrStorage, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read history: %v", ErrStorage, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	if h.Versions == nil {
		h.Versions = []Version{}
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	return &h, nil
}

func (s *Store) write(f *os.File, h *History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode history: %v", ErrStorage, err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate history: %v", ErrStorage, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek history: %v", ErrStorage, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: write history: %v", ErrStorage, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync history: %v", ErrStorage, err)
	}
	return nil
}
