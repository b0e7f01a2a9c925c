package bcl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// filterVersion is the only pass-filter file version this package reads.
const filterVersion = 3

// ErrFilterInvalid is returned when a pass-filter file has a bad header.
var ErrFilterInvalid = errors.New("invalid filter file")

// ReadFilter reads a per-tile pass-filter file: a u32-LE zero, a u32-LE
// version, a u32-LE cluster count, then one byte per cluster whose low bit
// marks the cluster as passing. The returned slice is indexed by cluster,
// in the same order as the tile's BCL files.
func ReadFilter(r io.Reader) ([]bool, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ErrFilterInvalid
	}
	if zero := binary.LittleEndian.Uint32(hdr[0:4]); zero != 0 {
		return nil, ErrFilterInvalid
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != filterVersion {
		return nil, fmt.Errorf("unsupported filter file version %d", v)
	}
	n := int(binary.LittleEndian.Uint32(hdr[8:12]))
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, ErrShort
	}
	pass := make([]bool, n)
	for i, b := range raw {
		pass[i] = b&1 != 0
	}
	return pass, nil
}

// ReadFilterHeader reads only the cluster count from a pass-filter file.
// Run-layout discovery uses this to record per-tile cluster counts without
// touching the (much larger) cycle files.
func ReadFilterHeader(r io.Reader) (int, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, ErrFilterInvalid
	}
	if zero := binary.LittleEndian.Uint32(hdr[0:4]); zero != 0 {
		return 0, ErrFilterInvalid
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != filterVersion {
		return 0, fmt.Errorf("unsupported filter file version %d", v)
	}
	return int(binary.LittleEndian.Uint32(hdr[8:12])), nil
}

// WriteFilter writes a pass-filter file for the given per-cluster booleans.
func WriteFilter(w io.Writer, pass []bool) error {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[4:8], filterVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(pass)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	raw := make([]byte, len(pass))
	for i, p := range pass {
		if p {
			raw[i] = 1
		}
	}
	_, err := w.Write(raw)
	return err
}
