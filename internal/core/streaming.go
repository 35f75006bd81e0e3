package core

// streaming.go normalizes uploaded CSV text without buffering the whole file.
//
// Spreadsheet exports from Windows frequently start with a byte order mark and
// occasionally carry bytes that are not valid UTF-8. Both would otherwise leak
// into the header row and make "name" fail to match.

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// NewTextReader strips a leading BOM (decoding UTF-16 when the BOM says so)
// and replaces ill-formed UTF-8 with U+FFFD.
func NewTextReader(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(transform.Nop),
		runes.ReplaceIllFormed(),
	))
}

// CountingReader tracks how many bytes have passed through it.
type CountingReader struct {
	r io.Reader
	n int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// BytesRead returns the total number of bytes read so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n
}
