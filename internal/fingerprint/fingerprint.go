// Package fingerprint computes the 64-bit content hashes used as cache keys.
//
// Fingerprints are xxHash64 digests. They are fast and stable across runs but
// not collision resistant, so they serve as change signals only.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Sum is a 64-bit content fingerprint.
type Sum uint64

// String renders the sum as decimal text, the form stored in the cache.
func (s Sum) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Bytes fingerprints an in-memory buffer.
func Bytes(b []byte) Sum {
	return Sum(xxhash.Sum64(b))
}

// String fingerprints a string without copying it.
func String(s string) Sum {
	return Sum(xxhash.Sum64String(s))
}

// Reader wraps an io.Reader and hashes every byte read through it.
type Reader struct {
	r io.Reader
	d *xxhash.Digest
}

// NewReader returns a Reader hashing everything read from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, d: xxhash.New()}
}

func (h *Reader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.d.Write(p[:n])
	}
	return n, err
}

// Sum returns the fingerprint of the bytes read so far.
func (h *Reader) Sum() Sum {
	return Sum(h.d.Sum64())
}

// ReadAll reads r to EOF and returns its contents with their fingerprint,
// computed in the same pass.
func ReadAll(r io.Reader) ([]byte, Sum, error) {
	hr := NewReader(r)
	b, err := io.ReadAll(hr)
	if err != nil {
		return nil, 0, err
	}
	return b, hr.Sum(), nil
}

// File fingerprints the file at path without buffering it.
func File(path string) (Sum, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return Sum(d.Sum64()), nil
}

// Combiner folds an ordered sequence of sums and strings into one sum.
// Order matters: the same parts in a different order combine differently.
type Combiner struct {
	d   *xxhash.Digest
	buf [8]byte
}

// NewCombiner returns an empty Combiner.
func NewCombiner() *Combiner {
	return &Combiner{d: xxhash.New()}
}

// Add folds in a sum.
func (c *Combiner) Add(s Sum) *Combiner {
	binary.LittleEndian.PutUint64(c.buf[:], uint64(s))
	c.d.Write(c.buf[:])
	return c
}

// AddString folds in a string. Each string is NUL terminated so that
// ("ab", "c") and ("a", "bc") combine differently.
func (c *Combiner) AddString(s string) *Combiner {
	c.d.WriteString(s)
	c.d.Write([]byte{0})
	return c
}

// Sum returns the combined fingerprint.
func (c *Combiner) Sum() Sum {
	return Sum(c.d.Sum64())
}
