// Package fastq writes and reads the 4-line-per-record FASTQ format used
// for demultiplexed output.
package fastq

import (
	"bufio"
	"errors"
	"io"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
)

// A Read is one FASTQ record. Name is stored without the leading "@"; the
// third ("+") line carries no data and is not represented.
type Read struct {
	Name string
	Seq  string
	Qual string
}

var (
	at      = []byte{'@'}
	plus    = []byte{'+', '\n'}
	newline = []byte{'\n'}
)

// Writer is a FASTQ file writer.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter constructs a new FASTQ writer that writes reads to the
// underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes the read r in FASTQ format. An error is returned if the
// write failed.
func (w *Writer) Write(r *Read) error {
	w.write(at)
	w.writeln(r.Name)
	w.writeln(r.Seq)
	w.write(plus)
	w.writeln(r.Qual)
	return w.err
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	if _, w.err = io.WriteString(w.w, line); w.err == nil {
		_, w.err = w.w.Write(newline)
	}
}

var errEOF = errors.New("eof")

// Scanner reads FASTQ records. The Scan method returns the next read,
// returning a boolean indicating whether the read succeeded. Scanners are
// not threadsafe.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a new Scanner that reads raw FASTQ data from the
// provided reader.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan the next read into the provided read. Once Scan returns false, it
// never returns true again; the caller should then check Err.
func (s *Scanner) Scan(read *Read) bool {
	if s.err != nil {
		return false
	}
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errEOF
		}
		return false
	}
	name := s.b.Bytes()
	if len(name) == 0 || name[0] != '@' {
		s.err = ErrInvalid
		return false
	}
	read.Name = string(name[1:])
	if !s.scan() {
		return false
	}
	read.Seq = s.b.Text()
	if !s.scan() {
		return false
	}
	if sep := s.b.Bytes(); len(sep) == 0 || sep[0] != '+' {
		s.err = ErrInvalid
		return false
	}
	if !s.scan() {
		return false
	}
	read.Qual = s.b.Text()
	return true
}

func (s *Scanner) scan() bool {
	ok := s.b.Scan()
	if !ok {
		if s.err = s.b.Err(); s.err == nil {
			s.err = ErrShort
		}
	}
	return ok
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}
