//go:build !unix

package session

import "os"

// Without flock only the in-process mutex serializes writers, so a single
// server process per storage root is required on these platforms.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) error { return nil }
