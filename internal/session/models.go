package session

import (
	"fmt"
	"time"
)

type VersionType string

const (
	TypeOriginal VersionType = "original"
	TypeEdit     VersionType = "edit"
)

// Version is one stored image in a session. Prompt and Base are nil for
// originals and serialize as null.
type Version struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      VersionType    `json:"type"`
	Path      string         `json:"path"`
	URL       string         `json:"url"`
	Prompt    *string        `json:"prompt"`
	Base      *string        `json:"base"`
	Usage     map[string]any `json:"usage"`
}

func (v Version) PromptText() string {
	if v.Prompt == nil {
		return ""
	}
	return *v.Prompt
}

func (v Version) BaseRef() string {
	if v.Base == nil {
		return ""
	}
	return *v.Base
}

// History is the persisted state of one session. Versions are newest
// first and are never re-sorted.
type History struct {
	Versions        []Version `json:"versions"`
	CurrentBasePath *string   `json:"current_base_path"`
	OriginalPath    *string   `json:"original_path"`
}

func NewHistory() *History {
	return &History{Versions: []Version{}}
}

func (h *History) Current() string {
	if h.CurrentBasePath == nil {
		return ""
	}
	return *h.CurrentBasePath
}

func (h *History) Original() string {
	if h.OriginalPath == nil {
		return ""
	}
	return *h.OriginalPath
}

func (h *History) IsEmpty() bool {
	return len(h.Versions) == 0
}

// Find returns the first version, in insertion order from the front, whose
// path equals ref.
func (h *History) Find(ref string) (Version, bool) {
	for _, v := range h.Versions {
		if v.Path == ref {
			return v, true
		}
	}
	return Version{}, false
}

// usageImportedFrom marks an original copied in by a rollback to an image
// outside the session's history.
const usageImportedFrom = "imported_from"

func (h *History) importedFrom(key string) (Version, bool) {
	for _, v := range h.Versions {
		if v.Type != TypeOriginal || v.Usage == nil {
			continue
		}
		if src, ok := v.Usage[usageImportedFrom].(string); ok && src == key {
			return v, true
		}
	}
	return Version{}, false
}

func (h *History) prepend(v Version) {
	h.Versions = append([]Version{v}, h.Versions...)
}

func (h *History) setCurrent(ref string) {
	h.CurrentBasePath = &ref
}

// Validate checks the structural invariants a decoded history must hold.
func (h *History) Validate() error {
	ids := make(map[string]bool, len(h.Versions))
	paths := make(map[string]int, len(h.Versions))
	for i, v := range h.Versions {
		if ids[v.ID] {
			return fmt.Errorf("duplicate version id %q", v.ID)
		}
		ids[v.ID] = true
		if _, dup := paths[v.Path]; dup {
			return fmt.Errorf("duplicate version path %q", v.Path)
		}
		paths[v.Path] = i
	}

	for i, v := range h.Versions {
		switch v.Type {
		case TypeOriginal:
			if v.Base != nil {
				return fmt.Errorf("original version %q has a base", v.ID)
			}
		case TypeEdit:
			if v.Base == nil {
				return fmt.Errorf("edit version %q has no base", v.ID)
			}
			// Bases must point at something inserted earlier, i.e. further back.
			if j, ok := paths[*v.Base]; !ok || j <= i {
				return fmt.Errorf("edit version %q references unknown base %q", v.ID, *v.Base)
			}
		default:
			return fmt.Errorf("version %q has unknown type %q", v.ID, v.Type)
		}
	}

	if len(h.Versions) > 0 && h.CurrentBasePath == nil {
		return fmt.Errorf("history has versions but no current base")
	}
	return nil
}

// ImageRef locates a stored image: Path is the storage key, URL the public
// address it is served from.
type ImageRef struct {
	Path string
	URL  string
}

func strPtr(s string) *string {
	return &s
}
