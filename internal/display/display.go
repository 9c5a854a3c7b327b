// Package display previews images inline in terminals that speak the kitty
// graphics protocol.
package display

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/term"

	"github.com/manash/designedit/internal/image"
	"github.com/manash/designedit/pkg/models"
)

// Displayer writes images to out when inline preview is enabled and does
// nothing otherwise.
type Displayer struct {
	out     io.Writer
	enabled bool
	columns int
}

// New enables preview only when out is a terminal known to render kitty
// graphics.
func New(out io.Writer) *Displayer {
	return &Displayer{out: out, enabled: IsTerminal(out) && IsTerminalSupported()}
}

// NewForced always previews, regardless of what out is connected to.
func NewForced(out io.Writer) *Displayer {
	return &Displayer{out: out, enabled: true}
}

func (d *Displayer) Enabled() bool { return d.enabled }

// SetColumns caps the preview width in terminal cells. Zero means the
// image's natural size.
func (d *Displayer) SetColumns(n int) { d.columns = n }

// Show renders data. The protocol only carries PNG directly, so anything
// else is converted first.
func (d *Displayer) Show(data []byte, mime string) error {
	if !d.enabled {
		return nil
	}
	if len(data) == 0 {
		return fmt.Errorf("nothing to display")
	}

	if image.DetectMIME(data) != models.MIMEPNG {
		converted, err := image.ConvertToPNG(data)
		if err != nil {
			return fmt.Errorf("preview %s: %w", mime, err)
		}
		data = converted
	}

	enc := NewKittyEncoder(d.out)
	enc.Columns = d.columns
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	_, err := fmt.Fprintln(d.out)
	return err
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var kittyPrograms = []string{"kitty", "ghostty", "iterm.app", "wezterm"}

func IsTerminalSupported() bool {
	if slices.Contains(kittyPrograms, strings.ToLower(os.Getenv("TERM_PROGRAM"))) {
		return true
	}
	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}
	t := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
