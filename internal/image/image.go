package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Saver struct{}

func NewSaver() *Saver {
	return &Saver{}
}

// Save writes data to path, creating parent directories as needed.
func (s *Saver) Save(data []byte, path string) error {
	if len(data) == 0 {
		return fmt.Errorf("no image data available")
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// GenerateFilename names a stored image <prefix>_<timestamp>_<random>.<ext>.
func GenerateFilename(prefix, mime string) string {
	return GenerateFilenameWithTime(prefix, mime, time.Now(), RandomSuffix())
}

func GenerateFilenameWithTime(prefix, mime string, t time.Time, random string) string {
	prefix = strings.Trim(prefix, "_ ")
	if prefix == "" {
		prefix = "image"
	}
	t = t.UTC()
	return fmt.Sprintf("%s_%s%06d_%s.%s", prefix, t.Format("20060102150405"), t.Nanosecond()/1000, random, ExtensionForMIME(mime))
}

// RandomSuffix returns 12 random hex characters.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
