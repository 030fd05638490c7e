package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderTransform decrypts (or encrypts) header bytes in place. A nil
// transform leaves them as plaintext.
type HeaderTransform func([]byte)

// Security flag extensions that follow a successful logon challenge.
const (
	securityFlagPIN    = 0x01
	securityFlagMatrix = 0x02
	securityFlagToken  = 0x04
)

// ReadLoginFrame reads one auth server response. The auth protocol has no
// length prefix, so the size of each command is derived from its layout.
// The returned body excludes the command byte.
func ReadLoginFrame(r io.Reader) (Packet, error) {
	var op [1]byte
	if _, err := io.ReadFull(r, op[:]); err != nil {
		return Packet{}, fmt.Errorf("failed to read login opcode: %w", err)
	}

	var (
		body []byte
		err  error
	)
	switch LoginOpcode(op[0]) {
	case CmdAuthLogonChallenge:
		body, err = readLogonChallengeBody(r)
	case CmdAuthLogonProof:
		body, err = readLogonProofBody(r)
	case CmdRealmList:
		body, err = readRealmListBody(r)
	default:
		return Packet{}, fmt.Errorf("unknown login opcode 0x%02X: stream cannot be resynchronised", op[0])
	}
	if err != nil {
		return Packet{}, fmt.Errorf("failed to read %s: %w", LoginOpcode(op[0]), err)
	}

	return Packet{Space: LoginSpace, Opcode: uint32(op[0]), Header: op[:], Body: body}, nil
}

// frameAccumulator appends fixed-size reads from r.
type frameAccumulator struct {
	r   io.Reader
	buf []byte
	err error
}

func (a *frameAccumulator) read(n int) []byte {
	if a.err != nil || n == 0 {
		return nil
	}
	start := len(a.buf)
	a.buf = append(a.buf, make([]byte, n)...)
	if _, err := io.ReadFull(a.r, a.buf[start:]); err != nil {
		a.err = err
		return nil
	}
	return a.buf[start:]
}

func readLogonChallengeBody(r io.Reader) ([]byte, error) {
	a := &frameAccumulator{r: r}
	head := a.read(2) // unk, result
	if a.err != nil {
		return nil, a.err
	}
	if AuthResult(head[1]) != AuthSuccess {
		return a.buf, nil
	}

	a.read(32) // B
	if gLen := a.read(1); gLen != nil {
		a.read(int(gLen[0]))
	}
	if nLen := a.read(1); nLen != nil {
		a.read(int(nLen[0]))
	}
	a.read(32 + 16) // salt, crc salt
	flags := a.read(1)
	if a.err != nil {
		return nil, a.err
	}
	if flags[0]&securityFlagPIN != 0 {
		a.read(4 + 16)
	}
	if flags[0]&securityFlagMatrix != 0 {
		a.read(1 + 1 + 1 + 1 + 8)
	}
	if flags[0]&securityFlagToken != 0 {
		a.read(1)
	}
	return a.buf, a.err
}

func readLogonProofBody(r io.Reader) ([]byte, error) {
	a := &frameAccumulator{r: r}
	result := a.read(1)
	if a.err != nil {
		return nil, a.err
	}
	if AuthResult(result[0]) == AuthSuccess {
		a.read(20 + 4 + 4 + 2) // M2, account flags, survey id, login flags
	} else {
		a.read(2)
	}
	return a.buf, a.err
}

func readRealmListBody(r io.Reader) ([]byte, error) {
	var size [2]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(size[:])
	body := make([]byte, 2+int(n))
	copy(body, size[:])
	if _, err := io.ReadFull(r, body[2:]); err != nil {
		return nil, err
	}
	return body, nil
}

// ParseWorldHeader interprets a decrypted inbound world header and returns
// the body length and opcode. A set top bit on the first byte marks a
// 5-byte header with a 23-bit size.
func ParseWorldHeader(hdr []byte) (bodyLen int, opcode uint16, err error) {
	if len(hdr) < WorldInboundHeaderSize {
		return 0, 0, readError("header", "WorldHeader", errHeaderTooShort)
	}
	var size int
	if hdr[0]&0x80 != 0 {
		if len(hdr) < WorldLargeHeaderSize {
			return 0, 0, readError("header", "WorldHeader", errHeaderTooShort)
		}
		size = int(hdr[0]&0x7F)<<16 | int(hdr[1])<<8 | int(hdr[2])
		opcode = binary.LittleEndian.Uint16(hdr[3:5])
	} else {
		size = int(binary.BigEndian.Uint16(hdr[0:2]))
		opcode = binary.LittleEndian.Uint16(hdr[2:4])
	}
	if size < 2 {
		return 0, 0, readError("size", "uint16be", errSizeMismatch)
	}
	return size - 2, opcode, nil
}

// ReadWorldFrame reads one server-to-client world frame, decrypting the
// header through decrypt when encryption is armed. The body is never
// encrypted.
func ReadWorldFrame(r io.Reader, decrypt HeaderTransform) (Packet, error) {
	hdr := make([]byte, WorldLargeHeaderSize)
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return Packet{}, fmt.Errorf("failed to read world header: %w", err)
	}
	if decrypt != nil {
		decrypt(hdr[:1])
	}

	n := WorldInboundHeaderSize
	if hdr[0]&0x80 != 0 {
		n = WorldLargeHeaderSize
	}
	if _, err := io.ReadFull(r, hdr[1:n]); err != nil {
		return Packet{}, fmt.Errorf("failed to read world header: %w", err)
	}
	if decrypt != nil {
		decrypt(hdr[1:n])
	}
	hdr = hdr[:n]

	bodyLen, op, err := ParseWorldHeader(hdr)
	if err != nil {
		return Packet{}, err
	}
	if bodyLen > MaxPacketSize {
		return Packet{}, fmt.Errorf("world packet too large: %d bytes (max %d)", bodyLen, MaxPacketSize)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("failed to read %s body (%d bytes): %w", WorldOpcode(op), bodyLen, err)
	}

	return Packet{Space: WorldSpace, Opcode: uint32(op), Header: hdr, Body: body}, nil
}

// DecodeWorldFrame splits a complete plaintext inbound frame
// [size:2 BE][opcode:2 LE][body] into a packet. The declared size must
// match the buffer exactly.
func DecodeWorldFrame(raw []byte) (Packet, error) {
	n := WorldInboundHeaderSize
	if len(raw) > 0 && raw[0]&0x80 != 0 {
		n = WorldLargeHeaderSize
	}
	if len(raw) < n {
		return Packet{}, readError("header", "WorldHeader", errHeaderTooShort)
	}
	bodyLen, op, err := ParseWorldHeader(raw[:n])
	if err != nil {
		return Packet{}, err
	}
	if len(raw)-n != bodyLen {
		return Packet{}, readError("body", "bytes", errSizeMismatch)
	}

	hdr := make([]byte, n)
	copy(hdr, raw[:n])
	body := make([]byte, bodyLen)
	copy(body, raw[n:])
	return Packet{Space: WorldSpace, Opcode: uint32(op), Header: hdr, Body: body}, nil
}

// ServerWorldFrame encodes a server-to-client frame. The client never sends
// this shape; it exists for local servers and tests.
func ServerWorldFrame(op WorldOpcode, body []byte) []byte {
	out := make([]byte, WorldInboundHeaderSize+len(body))
	binary.BigEndian.PutUint16(out[0:2], uint16(2+len(body)))
	binary.LittleEndian.PutUint16(out[2:4], uint16(op))
	copy(out[4:], body)
	return out
}

// ReadClientWorldFrame reads a client-to-server frame
// [size:2 BE][opcode:4 LE][body], the mirror of ReadWorldFrame.
func ReadClientWorldFrame(r io.Reader, decrypt HeaderTransform) (Packet, error) {
	hdr := make([]byte, WorldOutboundHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Packet{}, fmt.Errorf("failed to read client header: %w", err)
	}
	if decrypt != nil {
		decrypt(hdr)
	}
	size := int(binary.BigEndian.Uint16(hdr[0:2]))
	if size < 4 {
		return Packet{}, readError("size", "uint16be", errSizeMismatch)
	}
	op := binary.LittleEndian.Uint32(hdr[2:6])
	body := make([]byte, size-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return Packet{}, fmt.Errorf("failed to read client body: %w", err)
	}
	return Packet{Space: WorldSpace, Opcode: op, Header: hdr, Body: body}, nil
}
