package session

import (
	"errors"
	"fmt"

	"github.com/manash/designedit/internal/provider"
	"github.com/manash/designedit/pkg/models"
)

var (
	ErrEmptyPrompt       = models.ErrEmptyPrompt
	ErrNoFile            = errors.New("no image file was uploaded")
	ErrInvalidSession    = errors.New("invalid session id")
	ErrMissingBase       = errors.New("current base image is missing")
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrAlreadyAtOriginal = errors.New("already at the original image")
	ErrInvalidVersion    = errors.New("rollback target does not exist")
	ErrCorruptHistory    = errors.New("session history is corrupt")
	ErrStorage           = errors.New("session storage failure")
)

// UploadError carries the transport-level reason an upload could not be
// read (too large, interrupted, malformed multipart body).
type UploadError struct {
	Cause error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Cause)
}

func (e *UploadError) Unwrap() error { return e.Cause }

type ErrorKind string

const (
	KindInput         ErrorKind = "input"
	KindInconsistency ErrorKind = "inconsistency"
	KindProvider      ErrorKind = "provider"
	KindStorage       ErrorKind = "storage"
)

// Classify maps a controller error onto the four failure families.
// Anything unrecognized is treated as a storage fault.
func Classify(err error) ErrorKind {
	var uploadErr *UploadError
	switch {
	case errors.Is(err, ErrEmptyPrompt),
		errors.Is(err, ErrNoFile),
		errors.Is(err, ErrInvalidSession),
		errors.Is(err, ErrNothingToUndo),
		errors.Is(err, ErrAlreadyAtOriginal),
		errors.As(err, &uploadErr):
		return KindInput
	case errors.Is(err, ErrMissingBase),
		errors.Is(err, ErrInvalidVersion),
		errors.Is(err, ErrCorruptHistory):
		return KindInconsistency
	case provider.IsTransformError(err),
		errors.Is(err, provider.ErrModelNotSupported),
		errors.Is(err, models.ErrEditNotSupported):
		return KindProvider
	default:
		return KindStorage
	}
}
