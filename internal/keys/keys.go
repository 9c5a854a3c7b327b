// Package keys stores provider API keys on disk and resolves which key a
// run should use.
package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/manash/designedit/pkg/models"
)

var (
	ErrNoKey           = errors.New("no stored key")
	ErrAPIKeyNotFound  = errors.New("API key required")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Store keeps one key per provider in <dir>/keys.json, readable only by
// the owner.
type Store struct {
	dir string
}

type entry struct {
	Key string `json:"key"`
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, "keys.json")
}

func (s *Store) load() (map[string]entry, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]entry{}, nil
	}
	if err != nil {
		return nil, err
	}

	keys := map[string]entry{}
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path(), err)
	}
	return keys, nil
}

// save replaces keys.json through a temp file so a crash never leaves a
// half-written key file behind.
func (s *Store) save(keys map[string]entry) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".keys-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path())
}

func (s *Store) Set(p models.ProviderType, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key cannot be empty")
	}
	keys, err := s.load()
	if err != nil {
		return err
	}
	keys[p.String()] = entry{Key: key}
	return s.save(keys)
}

// Get returns ErrNoKey when nothing is stored for p.
func (s *Store) Get(p models.ProviderType) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	e, ok := keys[p.String()]
	if !ok || e.Key == "" {
		return "", fmt.Errorf("%w for %s", ErrNoKey, p)
	}
	return e.Key, nil
}

func (s *Store) Delete(p models.ProviderType) error {
	keys, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := keys[p.String()]; !ok {
		return fmt.Errorf("%w for %s", ErrNoKey, p)
	}
	delete(keys, p.String())
	return s.save(keys)
}

// List returns the providers that have a stored key, sorted.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// EnvVar is the environment variable holding the key for p.
func EnvVar(p models.ProviderType) (string, error) {
	switch p {
	case models.ProviderOpenAI:
		return "OPENAI_API_KEY", nil
	case models.ProviderGemini:
		return "GEMINI_API_KEY", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
}

// Resolve picks the key for p: an explicit key (flag or config file) wins,
// then the stored key, then the provider's environment variable. The second
// return value says where the key came from.
func Resolve(store *Store, explicit string, p models.ProviderType) (string, string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, "explicit", nil
	}

	envVar, err := EnvVar(p)
	if err != nil {
		return "", "", err
	}

	if store != nil {
		key, err := store.Get(p)
		if err == nil {
			return key, "stored key (" + store.Path() + ")", nil
		}
		if !errors.Is(err, ErrNoKey) {
			return "", "", err
		}
	}

	if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
		return key, "environment variable (" + envVar + ")", nil
	}

	return "", "", fmt.Errorf("%w: run 'designedit keys set %s' or set %s", ErrAPIKeyNotFound, p, envVar)
}
