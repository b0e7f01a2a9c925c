package bcl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Reader reads the calls of one BCL file in cluster order. The Scan method
// returns the next call, returning a boolean indicating whether the read
// succeeded, in the manner of bufio.Scanner. Readers are not threadsafe.
type Reader struct {
	b   *bufio.Reader
	n   int // declared cluster count
	i   int // calls returned so far
	err error
}

// NewReader constructs a Reader from raw (already decompressed) BCL data.
// It consumes the header; NewReader fails with ErrInvalid if the header is
// incomplete.
func NewReader(r io.Reader) (*Reader, error) {
	b := bufio.NewReader(r)
	var hdr [4]byte
	if _, err := io.ReadFull(b, hdr[:]); err != nil {
		return nil, ErrInvalid
	}
	return &Reader{b: b, n: int(binary.LittleEndian.Uint32(hdr[:]))}, nil
}

// Len returns the cluster count declared in the file header.
func (r *Reader) Len() int { return r.n }

// Scan decodes the next call into *c. Once Scan returns false, it never
// returns true again; the caller should then check Err to distinguish a
// clean end of file from truncation.
func (r *Reader) Scan(c *Call) bool {
	if r.err != nil || r.i == r.n {
		return false
	}
	b, err := r.b.ReadByte()
	if err != nil {
		// Fewer call bytes than the header declared.
		r.err = ErrShort
		return false
	}
	r.i++
	*c = Decode(b)
	return true
}

// Err returns the first error encountered during scanning, if any.
func (r *Reader) Err() error { return r.err }

// Writer writes a BCL file: the header up front, then one call per Write.
type Writer struct {
	w   io.Writer
	n   int
	i   int
	err error
}

// NewWriter constructs a Writer that will hold n clusters and writes the
// file header.
func NewWriter(w io.Writer, n int) (*Writer, error) {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(n))
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, err
	}
	return &Writer{w: w, n: n}, nil
}

// Write appends one call. Writing more than the declared cluster count is a
// programmer error and fails.
func (w *Writer) Write(c Call) error {
	if w.err != nil {
		return w.err
	}
	if w.i == w.n {
		w.err = fmt.Errorf("bcl: write past declared cluster count %d", w.n)
		return w.err
	}
	b, err := Encode(c)
	if err != nil {
		w.err = err
		return err
	}
	if _, err := w.w.Write([]byte{b}); err != nil {
		w.err = err
		return err
	}
	w.i++
	return nil
}
