package display

import (
	"encoding/base64"
	"fmt"
	"io"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data as kitty graphics escape sequences,
// split into 4096-byte base64 chunks.
type KittyEncoder struct {
	out     io.Writer
	Columns int
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	for i := 0; i < len(encoded); i += chunkSize {
		end := min(i+chunkSize, len(encoded))
		more := 0
		if end < len(encoded) {
			more = 1
		}

		params := fmt.Sprintf("m=%d", more)
		if i == 0 {
			params = e.header() + "," + params
		}
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, encoded[i:end], escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

func (e *KittyEncoder) header() string {
	h := "a=T,f=100,q=2"
	if e.Columns > 0 {
		h += fmt.Sprintf(",c=%d", e.Columns)
	}
	return h
}
