package bcl

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, base := range []byte{BaseA, BaseC, BaseG, BaseT} {
		for qual := byte(1); qual <= MaxQual; qual++ {
			in := Call{Base: base, Qual: qual}
			b, err := Encode(in)
			if err != nil {
				t.Fatalf("encode %+v: %v", in, err)
			}
			if got, want := Decode(b), in; got != want {
				t.Errorf("got %+v, want %+v", got, want)
			}
		}
	}
	b, err := Encode(Call{Base: NoCall})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := b, byte(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := Decode(0), (Call{Base: NoCall, Qual: 0}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestEncodeInvalid(t *testing.T) {
	for _, c := range []Call{
		{Base: 'X', Qual: 10},
		{Base: BaseA, Qual: 0},           // quality 0 is reserved for no-calls
		{Base: BaseT, Qual: MaxQual + 1}, // out of range
		{Base: NoCall, Qual: 3},
	} {
		if _, err := Encode(c); err == nil {
			t.Errorf("Encode(%+v): expected error", c)
		}
	}
}

func writeBCL(t *testing.T, calls []Call) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, len(calls))
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range calls {
		if err := w.Write(c); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestReader(t *testing.T) {
	calls := []Call{
		{Base: BaseA, Qual: 30},
		{Base: NoCall, Qual: 0},
		{Base: BaseT, Qual: 2},
		{Base: BaseG, Qual: MaxQual},
	}
	r, err := NewReader(bytes.NewReader(writeBCL(t, calls)))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := r.Len(), len(calls); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	var c Call
	for i, want := range calls {
		if !r.Scan(&c) {
			t.Fatalf("scan %d: %v", i, r.Err())
		}
		if c != want {
			t.Errorf("call %d: got %+v, want %+v", i, c, want)
		}
	}
	if r.Scan(&c) {
		t.Error("scan past declared count")
	}
	if err := r.Err(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReaderTruncated(t *testing.T) {
	calls := []Call{
		{Base: BaseA, Qual: 30},
		{Base: BaseC, Qual: 30},
		{Base: BaseG, Qual: 30},
	}
	data := writeBCL(t, calls)
	r, err := NewReader(bytes.NewReader(data[:len(data)-1]))
	if err != nil {
		t.Fatal(err)
	}
	var c Call
	n := 0
	for r.Scan(&c) {
		n++
	}
	if got, want := n, 2; got != want {
		t.Errorf("got %v calls, want %v", got, want)
	}
	if got, want := r.Err(), ErrShort; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReaderBadHeader(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte{1, 2})); err != ErrInvalid {
		t.Errorf("got %v, want %v", err, ErrInvalid)
	}
}
