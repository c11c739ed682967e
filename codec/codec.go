// Package codec provides the canonical binary encoding for blocks and
// commits (spec.md §6): a leading magic number and format-version byte,
// followed by length-prefixed fields. Decoders refuse unknown versions
// rather than silently defaulting (spec.md §9).
package codec

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies the start of any value encoded by this package.
const Magic uint32 = 0x44414742 // "DAGB"

// Version is the format-version byte carried by every encoded value.
type Version uint8

// CurrentVersion is the only version this build of the codec emits.
// Upgrading the wire format is only permitted at epoch boundaries
// (spec.md §9).
const CurrentVersion Version = 1

// ErrUnknownVersion is returned by any Decode function when the header
// version byte (after the magic) does not match a version this build
// understands.
type ErrUnknownVersion struct {
	Got Version
}

func (e ErrUnknownVersion) Error() string {
	return fmt.Sprintf("codec: unknown format version %d", e.Got)
}

// ErrBadMagic is returned when the leading magic number does not match.
var ErrBadMagic = fmt.Errorf("codec: bad magic number")

// Writer accumulates a length-prefixed canonical encoding. All multi-byte
// integers are big-endian, matching the teacher's KeyAtRound convention of
// big-endian round prefixes for ordered iteration.
type Writer struct {
	buf []byte
}

// NewWriter starts a new value with the standard magic+version header.
func NewWriter() *Writer {
	w := &Writer{buf: make([]byte, 0, 256)}
	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[:4], Magic)
	hdr[4] = byte(CurrentVersion)
	w.buf = append(w.buf, hdr[:]...)
	return w
}

func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutBytes writes a length-prefixed (uint32) byte slice.
func (w *Writer) PutBytes(b []byte) {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b)))
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, b...)
}

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf }

// DigestBoundary returns the prefix of the accumulated bytes that the
// crypto facade should hash to compute a digest, i.e. everything written
// so far (excluding the signature field, which callers must append only
// after calling DigestBoundary). This implements the "digest boundary"
// field referenced in spec.md §6 and §9.
func (w *Writer) DigestBoundary() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Reader walks a canonical encoding produced by Writer.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader validates the header and returns a Reader positioned just past
// it, or an error if the magic number or version is unrecognized.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("codec: truncated header")
	}
	if binary.BigEndian.Uint32(data[:4]) != Magic {
		return nil, ErrBadMagic
	}
	v := Version(data[4])
	if v != CurrentVersion {
		return nil, ErrUnknownVersion{Got: v}
	}
	return &Reader{buf: data, off: 5}, nil
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) Uint8() uint8 {
	if r.err != nil || r.off+1 > len(r.buf) {
		r.fail(fmt.Errorf("codec: truncated uint8"))
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *Reader) Uint16() uint16 {
	if r.err != nil || r.off+2 > len(r.buf) {
		r.fail(fmt.Errorf("codec: truncated uint16"))
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *Reader) Uint64() uint64 {
	if r.err != nil || r.off+8 > len(r.buf) {
		r.fail(fmt.Errorf("codec: truncated uint64"))
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

func (r *Reader) Bytes() []byte {
	if r.err != nil || r.off+4 > len(r.buf) {
		r.fail(fmt.Errorf("codec: truncated length prefix"))
		return nil
	}
	n := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	if r.off+int(n) > len(r.buf) {
		r.fail(fmt.Errorf("codec: truncated bytes field"))
		return nil
	}
	v := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return v
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the unread suffix, for digest-boundary checks during
// decode (signatures live past the digest boundary).
func (r *Reader) Remaining() []byte { return r.buf[r.off:] }
