package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// PacketBuilder constructs packet bodies. Writes are chained; the first
// encoding failure sticks and is returned by Build.
type PacketBuilder struct {
	buf bytes.Buffer
	err error
}

// NewPacketBuilder creates a new PacketBuilder.
func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{}
}

// Reset clears the builder for reuse.
func (b *PacketBuilder) Reset() {
	b.buf.Reset()
	b.err = nil
}

// WriteUint8 writes a single byte.
func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteBool writes a boolean as one byte.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

// WriteUint16 writes a uint16 in little-endian order.
func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
	return b
}

// WriteUint16BE writes a uint16 in big-endian order.
func (b *PacketBuilder) WriteUint16BE(v uint16) *PacketBuilder {
	b.buf.Write(binary.BigEndian.AppendUint16(nil, v))
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return b
}

// WriteUint64 writes a uint64 in little-endian order.
func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	b.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
	return b
}

// WriteFloat32 writes a float32 in little-endian order.
func (b *PacketBuilder) WriteFloat32(v float32) *PacketBuilder {
	return b.WriteUint32(math.Float32bits(v))
}

// WriteCString writes a null-terminated string. A value containing 0x00
// cannot be represented and fails the build.
func (b *PacketBuilder) WriteCString(field, s string) *PacketBuilder {
	if strings.IndexByte(s, 0) >= 0 {
		b.fail(writeError(field, "TerminatedString", errEmbeddedNull))
		return b
	}
	b.buf.WriteString(s)
	b.buf.WriteByte(0)
	return b
}

// WriteFixedString writes s into an n-byte field, zero padded.
func (b *PacketBuilder) WriteFixedString(field, s string, n int) *PacketBuilder {
	if len(s) > n {
		b.fail(writeError(field, "FixedString", errFieldTooLong))
		return b
	}
	b.buf.WriteString(s)
	for i := len(s); i < n; i++ {
		b.buf.WriteByte(0)
	}
	return b
}

// WriteSizedBytes writes data into a field that must be exactly n bytes wide.
func (b *PacketBuilder) WriteSizedBytes(field string, data []byte, n int) *PacketBuilder {
	if len(data) != n {
		b.fail(writeError(field, fmt.Sprintf("[%d]byte", n), errFieldTooLong))
		return b
	}
	b.buf.Write(data)
	return b
}

// WriteBytes writes raw bytes.
func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf.Write(data)
	return b
}

func (b *PacketBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the constructed body, or the first write error.
func (b *PacketBuilder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out, nil
}

// Len returns the current size of the body being built.
func (b *PacketBuilder) Len() int {
	return b.buf.Len()
}

// String returns a hex dump of the current body for debugging.
func (b *PacketBuilder) String() string {
	data := b.buf.Bytes()
	return fmt.Sprintf("PacketBuilder[%d bytes]: %x", len(data), data)
}

func buildWorld(op WorldOpcode, b *PacketBuilder) (Packet, error) {
	body, err := b.Build()
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode %s: %w", op, err)
	}
	return NewWorldPacket(op, body), nil
}
