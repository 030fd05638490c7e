package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Reader decodes fields from a packet body in declaration order.
// The first failure sticks: later reads return zero values and Err reports
// the failing field. Callers discard everything they decoded when Err is set.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader creates a reader over body. The slice is not modified.
func NewReader(body []byte) *Reader {
	return &Reader{data: body}
}

// Err returns the first decode error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.off
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(field, typ string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = readError(field, typ, errShortBuffer)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8(field string) uint8 {
	b := r.take(field, "uint8", 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool(field string) bool {
	return r.Uint8(field) != 0
}

func (r *Reader) Uint16(field string) uint16 {
	b := r.take(field, "uint16", 2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint16BE reads a big-endian uint16 (world frame size prefix).
func (r *Reader) Uint16BE(field string) uint16 {
	b := r.take(field, "uint16be", 2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint32(field string) uint32 {
	b := r.take(field, "uint32", 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) Uint64(field string) uint64 {
	b := r.take(field, "uint64", 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) Float32(field string) float32 {
	b := r.take(field, "float32", 4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// Bytes reads n raw bytes into a fresh slice.
func (r *Reader) Bytes(field string, n int) []byte {
	b := r.take(field, "bytes", n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Array fills dst with the next len(dst) bytes.
func (r *Reader) Array(field string, dst []byte) {
	b := r.take(field, "bytes", len(dst))
	if b != nil {
		copy(dst, b)
	}
}

// CString reads a TerminatedString: bytes up to and including a single
// 0x00. A missing terminator or invalid UTF-8 is an InvalidString error.
func (r *Reader) CString(field string) string {
	if r.err != nil {
		return ""
	}
	idx := bytes.IndexByte(r.data[r.off:], 0)
	if idx < 0 {
		r.err = stringError(field, errNoTerminator)
		return ""
	}
	raw := r.data[r.off : r.off+idx]
	if !utf8.Valid(raw) {
		r.err = stringError(field, errNotUTF8)
		return ""
	}
	r.off += idx + 1
	return string(raw)
}

// FixedString reads an n-byte string. Trailing 0x00 padding is trimmed.
func (r *Reader) FixedString(field string, n int) string {
	b := r.take(field, "FixedString", n)
	if b == nil {
		return ""
	}
	b = bytes.TrimRight(b, "\x00")
	if !utf8.Valid(b) {
		r.err = &FieldError{Kind: ErrInvalidString, Field: field, Type: "FixedString", Err: errNotUTF8}
		return ""
	}
	return string(b)
}

// Rest returns all unread bytes.
func (r *Reader) Rest() []byte {
	return r.Bytes("rest", r.Len())
}

// Skip advances past n bytes.
func (r *Reader) Skip(field string, n int) {
	r.take(field, "padding", n)
}
