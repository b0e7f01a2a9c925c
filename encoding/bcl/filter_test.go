package bcl

import (
	"bytes"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestFilterRoundTrip(t *testing.T) {
	pass := []bool{true, true, false, true, false, false, true}
	var buf bytes.Buffer
	expect.NoError(t, WriteFilter(&buf, pass))

	got, err := ReadFilter(bytes.NewReader(buf.Bytes()))
	expect.NoError(t, err)
	expect.EQ(t, got, pass)

	n, err := ReadFilterHeader(bytes.NewReader(buf.Bytes()))
	expect.NoError(t, err)
	expect.EQ(t, n, len(pass))
}

func TestFilterTruncated(t *testing.T) {
	pass := []bool{true, false, true}
	var buf bytes.Buffer
	expect.NoError(t, WriteFilter(&buf, pass))

	_, err := ReadFilter(bytes.NewReader(buf.Bytes()[:len(buf.Bytes())-1]))
	expect.EQ(t, err, ErrShort)
}

func TestFilterBadHeader(t *testing.T) {
	_, err := ReadFilter(bytes.NewReader([]byte{1, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0}))
	expect.EQ(t, err, ErrFilterInvalid)

	_, err = ReadFilter(bytes.NewReader([]byte{0, 0}))
	expect.EQ(t, err, ErrFilterInvalid)
}
