// Package bcl reads and writes per-cycle base-call (BCL) files.
//
// A BCL file stores the calls made for every cluster of one tile during one
// sequencing cycle. The layout is a four-byte little-endian cluster count
// followed by one byte per cluster. Within a call byte, bits 0-1 encode the
// base (A=0, C=1, G=2, T=3) and bits 2-7 encode the quality score. A zero
// byte marks a no-call: quality zero is reserved for no-calls, so a called
// base always carries a quality in 1..MaxQual. Encode and Decode round-trip
// losslessly over that domain.
//
// The byte offset of a cluster's call is identical in every cycle file of a
// tile; that shared ordering is what lets callers join calls across cycles
// by cluster index alone.
package bcl

import (
	"errors"
	"fmt"
)

// Base symbols produced by Decode.
const (
	BaseA  = 'A'
	BaseC  = 'C'
	BaseG  = 'G'
	BaseT  = 'T'
	NoCall = 'N'
)

// MaxQual is the largest quality score representable in a call byte.
const MaxQual = 63

var (
	// ErrShort is returned when a BCL file holds fewer call bytes than its
	// header declares.
	ErrShort = errors.New("short BCL file")
	// ErrInvalid is returned when a BCL file is too small to hold a header.
	ErrInvalid = errors.New("invalid BCL file")
)

var decodeBase = [4]byte{BaseA, BaseC, BaseG, BaseT}

// A Call is one cluster's decoded output for one cycle: a base symbol and a
// quality score. A no-call has Base == NoCall and Qual == 0.
type Call struct {
	Base byte
	Qual byte
}

// Encode packs a call into its single-byte file representation. It fails if
// the base is not one of A, C, G, T, NoCall, if the quality exceeds MaxQual,
// or if a called base carries quality zero (reserved for no-calls).
func Encode(c Call) (byte, error) {
	if c.Base == NoCall {
		if c.Qual != 0 {
			return 0, fmt.Errorf("bcl: no-call must have quality 0, got %d", c.Qual)
		}
		return 0, nil
	}
	if c.Qual == 0 || c.Qual > MaxQual {
		return 0, fmt.Errorf("bcl: quality %d out of range 1..%d for base %c", c.Qual, MaxQual, c.Base)
	}
	var b byte
	switch c.Base {
	case BaseA:
		b = 0
	case BaseC:
		b = 1
	case BaseG:
		b = 2
	case BaseT:
		b = 3
	default:
		return 0, fmt.Errorf("bcl: invalid base %q", c.Base)
	}
	return b | c.Qual<<2, nil
}

// Decode unpacks a call byte. It is total: every byte value decodes.
func Decode(b byte) Call {
	if b == 0 {
		return Call{Base: NoCall, Qual: 0}
	}
	return Call{Base: decodeBase[b&0x3], Qual: b >> 2}
}
