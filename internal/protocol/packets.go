// Package protocol implements the binary codec for the auth (login) and
// world protocols spoken by a 3.3.5a (build 12340) server. Integers are
// little-endian; the only big-endian field is the 16-bit size prefix of
// world frames.
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Space selects which opcode table a packet belongs to.
type Space uint8

const (
	// LoginSpace covers the auth server: 8-bit opcodes, no length prefix.
	LoginSpace Space = iota + 1
	// WorldSpace covers the realm server: 32-bit opcodes outbound, 16-bit inbound.
	WorldSpace
)

func (s Space) String() string {
	switch s {
	case LoginSpace:
		return "login"
	case WorldSpace:
		return "world"
	default:
		return fmt.Sprintf("space(%d)", uint8(s))
	}
}

// LoginOpcode is a command byte of the auth protocol.
type LoginOpcode uint8

// Auth server commands.
const (
	CmdAuthLogonChallenge LoginOpcode = 0x00
	CmdAuthLogonProof     LoginOpcode = 0x01
	CmdRealmList          LoginOpcode = 0x10
)

var loginOpcodeNames = map[LoginOpcode]string{
	CmdAuthLogonChallenge: "CMD_AUTH_LOGON_CHALLENGE",
	CmdAuthLogonProof:     "CMD_AUTH_LOGON_PROOF",
	CmdRealmList:          "CMD_REALM_LIST",
}

func (o LoginOpcode) String() string {
	if name, ok := loginOpcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("LOGIN_0x%02X", uint8(o))
}

// WorldOpcode is an opcode of the world protocol.
type WorldOpcode uint32

// World opcodes used by the client.
const (
	MsgNullAction              WorldOpcode = 0x000
	CmsgCharEnum               WorldOpcode = 0x037
	SmsgCharEnum               WorldOpcode = 0x03B
	CmsgPlayerLogin            WorldOpcode = 0x03D
	CmsgLogoutRequest          WorldOpcode = 0x04B
	SmsgLogoutResponse         WorldOpcode = 0x04C
	SmsgLogoutComplete         WorldOpcode = 0x04D
	CmsgNameQuery              WorldOpcode = 0x050
	SmsgNameQueryResponse      WorldOpcode = 0x051
	CmsgMessageChat            WorldOpcode = 0x095
	SmsgMessageChat            WorldOpcode = 0x096
	CmsgJoinChannel            WorldOpcode = 0x097
	SmsgTradeStatus            WorldOpcode = 0x120
	SmsgTradeStatusExtended    WorldOpcode = 0x121
	CmsgPing                   WorldOpcode = 0x1DC
	SmsgPong                   WorldOpcode = 0x1DD
	SmsgAuthChallenge          WorldOpcode = 0x1EC
	CmsgAuthSession            WorldOpcode = 0x1ED
	SmsgAuthResponse           WorldOpcode = 0x1EE
	SmsgLoginVerifyWorld       WorldOpcode = 0x236
	SmsgWardenData             WorldOpcode = 0x2E6
	CmsgWardenData             WorldOpcode = 0x2E7
	SmsgRealmSplit             WorldOpcode = 0x38B
	CmsgRealmSplit             WorldOpcode = 0x38C
	SmsgTimeSyncReq            WorldOpcode = 0x390
	CmsgTimeSyncResp           WorldOpcode = 0x391
	CmsgReadyForAccountDataTim WorldOpcode = 0x4FF
)

var worldOpcodeNames = map[WorldOpcode]string{
	MsgNullAction:              "MSG_NULL_ACTION",
	CmsgCharEnum:               "CMSG_CHAR_ENUM",
	SmsgCharEnum:               "SMSG_CHAR_ENUM",
	CmsgPlayerLogin:            "CMSG_PLAYER_LOGIN",
	CmsgLogoutRequest:          "CMSG_LOGOUT_REQUEST",
	SmsgLogoutResponse:         "SMSG_LOGOUT_RESPONSE",
	SmsgLogoutComplete:         "SMSG_LOGOUT_COMPLETE",
	CmsgNameQuery:              "CMSG_NAME_QUERY",
	SmsgNameQueryResponse:      "SMSG_NAME_QUERY_RESPONSE",
	CmsgMessageChat:            "CMSG_MESSAGECHAT",
	SmsgMessageChat:            "SMSG_MESSAGECHAT",
	CmsgJoinChannel:            "CMSG_JOIN_CHANNEL",
	SmsgTradeStatus:            "SMSG_TRADE_STATUS",
	SmsgTradeStatusExtended:    "SMSG_TRADE_STATUS_EXTENDED",
	CmsgPing:                   "CMSG_PING",
	SmsgPong:                   "SMSG_PONG",
	SmsgAuthChallenge:          "SMSG_AUTH_CHALLENGE",
	CmsgAuthSession:            "CMSG_AUTH_SESSION",
	SmsgAuthResponse:           "SMSG_AUTH_RESPONSE",
	SmsgLoginVerifyWorld:       "SMSG_LOGIN_VERIFY_WORLD",
	SmsgWardenData:             "SMSG_WARDEN_DATA",
	CmsgWardenData:             "CMSG_WARDEN_DATA",
	SmsgRealmSplit:             "SMSG_REALM_SPLIT",
	CmsgRealmSplit:             "CMSG_REALM_SPLIT",
	SmsgTimeSyncReq:            "SMSG_TIME_SYNC_REQ",
	CmsgTimeSyncResp:           "CMSG_TIME_SYNC_RESP",
	CmsgReadyForAccountDataTim: "CMSG_READY_FOR_ACCOUNT_DATA_TIMES",
}

func (o WorldOpcode) String() string {
	if name, ok := worldOpcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("WORLD_0x%03X", uint32(o))
}

// MaxPacketSize is the largest body the codec accepts. World frames use a
// 3-byte size when the top bit of the header is set, hence the 23-bit bound.
const MaxPacketSize = 0x7FFFFF

// Header sizes.
const (
	LoginHeaderSize         = 1
	WorldOutboundHeaderSize = 6 // [size:2 BE][opcode:4 LE]
	WorldInboundHeaderSize  = 4 // [size:2 BE][opcode:2 LE]
	WorldLargeHeaderSize    = 5 // [size:3 BE, top bit set][opcode:2 LE]
)

// Packet is a single protocol message. For inbound world packets Header holds
// the decrypted header bytes as read from the wire; outbound packets leave it
// empty and Bytes builds the header.
type Packet struct {
	Space  Space
	Opcode uint32
	Header []byte
	Body   []byte
}

// NewLoginPacket creates an outbound auth packet.
func NewLoginPacket(op LoginOpcode, body []byte) Packet {
	return Packet{Space: LoginSpace, Opcode: uint32(op), Body: body}
}

// NewWorldPacket creates an outbound world packet.
func NewWorldPacket(op WorldOpcode, body []byte) Packet {
	return Packet{Space: WorldSpace, Opcode: uint32(op), Body: body}
}

// Bytes returns the wire encoding of an outbound packet.
// Login: [opcode:1][body]. World: [size:2 BE][opcode:4 LE][body], where size
// covers opcode and body.
func (p Packet) Bytes() []byte {
	switch p.Space {
	case LoginSpace:
		out := make([]byte, LoginHeaderSize+len(p.Body))
		out[0] = byte(p.Opcode)
		copy(out[1:], p.Body)
		return out
	default:
		out := make([]byte, WorldOutboundHeaderSize+len(p.Body))
		binary.BigEndian.PutUint16(out[0:2], uint16(4+len(p.Body)))
		binary.LittleEndian.PutUint32(out[2:6], p.Opcode)
		copy(out[6:], p.Body)
		return out
	}
}

// OpcodeName returns the symbolic name of the packet opcode in its space.
func (p Packet) OpcodeName() string {
	if p.Space == LoginSpace {
		return LoginOpcode(p.Opcode).String()
	}
	return WorldOpcode(p.Opcode).String()
}

// LoginOpcode returns the opcode as an auth command.
func (p Packet) LoginOpcode() LoginOpcode { return LoginOpcode(p.Opcode) }

// WorldOpcode returns the opcode as a world opcode.
func (p Packet) WorldOpcode() WorldOpcode { return WorldOpcode(p.Opcode) }

// String renders the packet for debug logging.
func (p Packet) String() string {
	return fmt.Sprintf("%s %s [%d bytes]: %s", p.Space, p.OpcodeName(), len(p.Body), hex.EncodeToString(p.Body))
}

// Message is implemented by every outbound struct.
type Message interface {
	Packet() (Packet, error)
}

// HexBytes renders opaque byte arrays in log output. It is never used on
// the wire.
type HexBytes []byte

func (h HexBytes) String() string {
	return hex.EncodeToString(h)
}
