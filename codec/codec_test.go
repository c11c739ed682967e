package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReader_RoundTripsAllFieldTypes(t *testing.T) {
	w := NewWriter()
	w.PutUint8(7)
	w.PutUint16(300)
	w.PutUint64(1 << 40)
	w.PutInt64(-1234)
	w.PutBytes([]byte("payload"))

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	require.Equal(t, uint8(7), r.Uint8())
	require.Equal(t, uint16(300), r.Uint16())
	require.Equal(t, uint64(1<<40), r.Uint64())
	require.Equal(t, int64(-1234), r.Int64())
	require.Equal(t, []byte("payload"), r.Bytes())
	require.NoError(t, r.Err())
}

func TestNewReader_RejectsBadMagic(t *testing.T) {
	data := []byte{0, 0, 0, 0, byte(CurrentVersion)}
	_, err := NewReader(data)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestNewReader_RejectsUnknownVersion(t *testing.T) {
	w := NewWriter()
	data := w.Bytes()
	data[4] = byte(CurrentVersion) + 1

	_, err := NewReader(data)
	require.Error(t, err)
	var verErr ErrUnknownVersion
	require.ErrorAs(t, err, &verErr)
	require.Equal(t, CurrentVersion+1, verErr.Got)
}

func TestNewReader_RejectsTruncatedHeader(t *testing.T) {
	_, err := NewReader([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestReader_SticksOnFirstError(t *testing.T) {
	w := NewWriter()
	w.PutUint8(1)
	r, err := NewReader(w.Bytes())
	require.NoError(t, err)

	require.Equal(t, uint8(1), r.Uint8())
	// No more fields were written: this read runs past the buffer.
	got := r.Uint64()
	require.Equal(t, uint64(0), got)
	require.Error(t, r.Err())

	// Once in an error state, further reads stay zero and don't overwrite
	// the first error.
	firstErr := r.Err()
	_ = r.Uint16()
	require.Equal(t, firstErr, r.Err())
}

func TestWriter_DigestBoundaryExcludesLaterAppends(t *testing.T) {
	w := NewWriter()
	w.PutUint8(9)
	boundary := w.DigestBoundary()
	w.PutBytes([]byte("signature"))

	require.Less(t, len(boundary), len(w.Bytes()))
	require.Equal(t, boundary, w.Bytes()[:len(boundary)])
}

func TestReader_RemainingReturnsUnreadSuffix(t *testing.T) {
	w := NewWriter()
	w.PutUint8(1)
	w.PutBytes([]byte("trailer"))

	r, err := NewReader(w.Bytes())
	require.NoError(t, err)
	r.Uint8()

	require.Equal(t, w.Bytes()[6:], r.Remaining())
}
