package protocol

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// AuthResponseCode is the result byte of SMSG_AUTH_RESPONSE.
type AuthResponseCode uint8

const (
	AuthResponseOK           AuthResponseCode = 0x0C
	AuthResponseFailed       AuthResponseCode = 0x0D
	AuthResponseReject       AuthResponseCode = 0x0E
	AuthResponseBadProof     AuthResponseCode = 0x0F
	AuthResponseUnavailable  AuthResponseCode = 0x10
	AuthResponseSystemError  AuthResponseCode = 0x11
	AuthResponseUnknownAcct  AuthResponseCode = 0x15
	AuthResponseWaitQueue    AuthResponseCode = 0x1B
	AuthResponseBanned       AuthResponseCode = 0x1C
	AuthResponseAlreadyIn    AuthResponseCode = 0x1D
	AuthResponseVersionError AuthResponseCode = 0x14
)

func (c AuthResponseCode) String() string {
	switch c {
	case AuthResponseOK:
		return "ok"
	case AuthResponseWaitQueue:
		return "queued"
	case AuthResponseBadProof:
		return "bad server proof"
	case AuthResponseBanned:
		return "banned"
	case AuthResponseAlreadyIn:
		return "already logged in"
	case AuthResponseUnknownAcct:
		return "unknown account"
	case AuthResponseVersionError:
		return "version mismatch"
	default:
		return fmt.Sprintf("auth response 0x%02X", uint8(c))
	}
}

// AuthChallenge is SMSG_AUTH_CHALLENGE.
type AuthChallenge struct {
	One        uint32
	ServerSeed uint32
	Seed1      [16]byte
	Seed2      [16]byte
}

func (m AuthChallenge) Encode() ([]byte, error) {
	return NewPacketBuilder().
		WriteUint32(m.One).
		WriteUint32(m.ServerSeed).
		WriteBytes(m.Seed1[:]).
		WriteBytes(m.Seed2[:]).
		Build()
}

func DecodeAuthChallenge(body []byte) (AuthChallenge, error) {
	r := NewReader(body)
	var m AuthChallenge
	m.One = r.Uint32("one")
	m.ServerSeed = r.Uint32("server_seed")
	r.Array("seed1", m.Seed1[:])
	r.Array("seed2", m.Seed2[:])
	if err := r.Err(); err != nil {
		return AuthChallenge{}, err
	}
	return m, nil
}

// AuthSession is CMSG_AUTH_SESSION. AddonInfo is the opaque
// [size:4][zlib stream] block.
type AuthSession struct {
	Build           uint32
	LoginServerID   uint32
	Account         string
	LoginServerType uint32
	ClientSeed      uint32
	RegionID        uint32
	BattlegroupID   uint32
	RealmID         uint32
	DosResponse     uint64
	Digest          [20]byte
	AddonInfo       []byte
}

func (m AuthSession) Encode() ([]byte, error) {
	return NewPacketBuilder().
		WriteUint32(m.Build).
		WriteUint32(m.LoginServerID).
		WriteCString("account", m.Account).
		WriteUint32(m.LoginServerType).
		WriteUint32(m.ClientSeed).
		WriteUint32(m.RegionID).
		WriteUint32(m.BattlegroupID).
		WriteUint32(m.RealmID).
		WriteUint64(m.DosResponse).
		WriteBytes(m.Digest[:]).
		WriteBytes(m.AddonInfo).
		Build()
}

func (m AuthSession) Packet() (Packet, error) {
	body, err := m.Encode()
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode %s: %w", CmsgAuthSession, err)
	}
	return NewWorldPacket(CmsgAuthSession, body), nil
}

func DecodeAuthSession(body []byte) (AuthSession, error) {
	r := NewReader(body)
	var m AuthSession
	m.Build = r.Uint32("build")
	m.LoginServerID = r.Uint32("login_server_id")
	m.Account = r.CString("account")
	m.LoginServerType = r.Uint32("login_server_type")
	m.ClientSeed = r.Uint32("client_seed")
	m.RegionID = r.Uint32("region_id")
	m.BattlegroupID = r.Uint32("battlegroup_id")
	m.RealmID = r.Uint32("realm_id")
	m.DosResponse = r.Uint64("dos_response")
	r.Array("digest", m.Digest[:])
	if r.Len() > 0 {
		m.AddonInfo = r.Rest()
	}
	if err := r.Err(); err != nil {
		return AuthSession{}, err
	}
	return m, nil
}

// AuthResponse is SMSG_AUTH_RESPONSE. The billing block follows an OK
// result; a queue position follows AuthResponseWaitQueue.
type AuthResponse struct {
	Result        AuthResponseCode
	BillingTime   uint32
	BillingFlags  uint8
	BillingRested uint32
	Expansion     uint8
	QueuePosition uint32
}

func (m AuthResponse) Encode() ([]byte, error) {
	b := NewPacketBuilder().WriteUint8(uint8(m.Result))
	switch m.Result {
	case AuthResponseOK:
		b.WriteUint32(m.BillingTime).WriteUint8(m.BillingFlags).WriteUint32(m.BillingRested).WriteUint8(m.Expansion)
	case AuthResponseWaitQueue:
		b.WriteUint32(m.QueuePosition)
	}
	return b.Build()
}

func DecodeAuthResponse(body []byte) (AuthResponse, error) {
	r := NewReader(body)
	var m AuthResponse
	m.Result = AuthResponseCode(r.Uint8("result"))
	switch {
	case m.Result == AuthResponseOK && r.Len() >= 10:
		m.BillingTime = r.Uint32("billing_time")
		m.BillingFlags = r.Uint8("billing_flags")
		m.BillingRested = r.Uint32("billing_rested")
		m.Expansion = r.Uint8("expansion")
	case m.Result == AuthResponseWaitQueue:
		m.QueuePosition = r.Uint32("queue_position")
	}
	if err := r.Err(); err != nil {
		return AuthResponse{}, err
	}
	return m, nil
}

// EquipmentSlots is the number of visible item slots in SMSG_CHAR_ENUM.
const EquipmentSlots = 23

// EquipmentDisplay is one visible item of a character list entry.
type EquipmentDisplay struct {
	DisplayID     uint32
	InventoryType uint8
	EnchantAura   uint32
}

// CharEnumEntry is one character of SMSG_CHAR_ENUM.
type CharEnumEntry struct {
	GUID         uint64
	Name         string
	Race         uint8
	Class        uint8
	Gender       uint8
	Skin         uint8
	Face         uint8
	HairStyle    uint8
	HairColor    uint8
	FacialHair   uint8
	Level        uint8
	Zone         uint32
	Map          uint32
	X, Y, Z      float32
	Guild        uint32
	Flags        uint32
	Customize    uint32
	FirstLogin   uint8
	PetDisplayID uint32
	PetLevel     uint32
	PetFamily    uint32
	Equipment    [EquipmentSlots]EquipmentDisplay
}

// CharEnum is SMSG_CHAR_ENUM.
type CharEnum struct {
	Characters []CharEnumEntry
}

func (m CharEnum) Encode() ([]byte, error) {
	if len(m.Characters) > 0xFF {
		return nil, writeError("count", "uint8", errFieldTooLong)
	}
	b := NewPacketBuilder().WriteUint8(uint8(len(m.Characters)))
	for _, c := range m.Characters {
		b.WriteUint64(c.GUID).
			WriteCString("name", c.Name).
			WriteUint8(c.Race).WriteUint8(c.Class).WriteUint8(c.Gender).
			WriteUint8(c.Skin).WriteUint8(c.Face).WriteUint8(c.HairStyle).WriteUint8(c.HairColor).WriteUint8(c.FacialHair).
			WriteUint8(c.Level).
			WriteUint32(c.Zone).WriteUint32(c.Map).
			WriteFloat32(c.X).WriteFloat32(c.Y).WriteFloat32(c.Z).
			WriteUint32(c.Guild).WriteUint32(c.Flags).WriteUint32(c.Customize).
			WriteUint8(c.FirstLogin).
			WriteUint32(c.PetDisplayID).WriteUint32(c.PetLevel).WriteUint32(c.PetFamily)
		for _, item := range c.Equipment {
			b.WriteUint32(item.DisplayID).WriteUint8(item.InventoryType).WriteUint32(item.EnchantAura)
		}
	}
	return b.Build()
}

func DecodeCharEnum(body []byte) (CharEnum, error) {
	r := NewReader(body)
	count := r.Uint8("count")
	chars := make([]CharEnumEntry, 0, count)
	for i := 0; i < int(count) && r.Err() == nil; i++ {
		var c CharEnumEntry
		c.GUID = r.Uint64("guid")
		c.Name = r.CString("name")
		c.Race = r.Uint8("race")
		c.Class = r.Uint8("class")
		c.Gender = r.Uint8("gender")
		c.Skin = r.Uint8("skin")
		c.Face = r.Uint8("face")
		c.HairStyle = r.Uint8("hair_style")
		c.HairColor = r.Uint8("hair_color")
		c.FacialHair = r.Uint8("facial_hair")
		c.Level = r.Uint8("level")
		c.Zone = r.Uint32("zone")
		c.Map = r.Uint32("map")
		c.X = r.Float32("x")
		c.Y = r.Float32("y")
		c.Z = r.Float32("z")
		c.Guild = r.Uint32("guild")
		c.Flags = r.Uint32("flags")
		c.Customize = r.Uint32("customize")
		c.FirstLogin = r.Uint8("first_login")
		c.PetDisplayID = r.Uint32("pet_display_id")
		c.PetLevel = r.Uint32("pet_level")
		c.PetFamily = r.Uint32("pet_family")
		for slot := range c.Equipment {
			c.Equipment[slot] = EquipmentDisplay{
				DisplayID:     r.Uint32("equipment_display_id"),
				InventoryType: r.Uint8("equipment_inventory_type"),
				EnchantAura:   r.Uint32("equipment_enchant"),
			}
		}
		chars = append(chars, c)
	}
	if err := r.Err(); err != nil {
		return CharEnum{}, err
	}
	var m CharEnum
	if len(chars) > 0 {
		m.Characters = chars
	}
	return m, nil
}

// PlayerLogin is CMSG_PLAYER_LOGIN.
type PlayerLogin struct {
	GUID uint64
}

func (m PlayerLogin) Packet() (Packet, error) {
	return buildWorld(CmsgPlayerLogin, NewPacketBuilder().WriteUint64(m.GUID))
}

func DecodePlayerLogin(body []byte) (PlayerLogin, error) {
	r := NewReader(body)
	m := PlayerLogin{GUID: r.Uint64("guid")}
	if err := r.Err(); err != nil {
		return PlayerLogin{}, err
	}
	return m, nil
}

// LoginVerifyWorld is SMSG_LOGIN_VERIFY_WORLD.
type LoginVerifyWorld struct {
	Map        uint32
	X, Y, Z, O float32
}

func (m LoginVerifyWorld) Encode() ([]byte, error) {
	return NewPacketBuilder().
		WriteUint32(m.Map).
		WriteFloat32(m.X).WriteFloat32(m.Y).WriteFloat32(m.Z).WriteFloat32(m.O).
		Build()
}

func DecodeLoginVerifyWorld(body []byte) (LoginVerifyWorld, error) {
	r := NewReader(body)
	var m LoginVerifyWorld
	m.Map = r.Uint32("map")
	m.X = r.Float32("x")
	m.Y = r.Float32("y")
	m.Z = r.Float32("z")
	m.O = r.Float32("orientation")
	if err := r.Err(); err != nil {
		return LoginVerifyWorld{}, err
	}
	return m, nil
}

// JoinChannel is CMSG_JOIN_CHANNEL.
type JoinChannel struct {
	ChannelID    uint32
	HasVoice     uint8
	JoinedByZone uint8
	Name         string
	Password     string
}

func (m JoinChannel) Packet() (Packet, error) {
	return buildWorld(CmsgJoinChannel, NewPacketBuilder().
		WriteUint32(m.ChannelID).
		WriteUint8(m.HasVoice).
		WriteUint8(m.JoinedByZone).
		WriteCString("name", m.Name).
		WriteCString("password", m.Password))
}

func DecodeJoinChannel(body []byte) (JoinChannel, error) {
	r := NewReader(body)
	var m JoinChannel
	m.ChannelID = r.Uint32("channel_id")
	m.HasVoice = r.Uint8("has_voice")
	m.JoinedByZone = r.Uint8("joined_by_zone")
	m.Name = r.CString("name")
	m.Password = r.CString("password")
	if err := r.Err(); err != nil {
		return JoinChannel{}, err
	}
	return m, nil
}

// RealmSplitAll asks the server for the split state of every realm.
const RealmSplitAll uint32 = 0xFFFFFFFF

// RealmSplitRequest is CMSG_REALM_SPLIT.
type RealmSplitRequest struct {
	Decision uint32
}

func (m RealmSplitRequest) Packet() (Packet, error) {
	return buildWorld(CmsgRealmSplit, NewPacketBuilder().WriteUint32(m.Decision))
}

// RealmSplit is SMSG_REALM_SPLIT.
type RealmSplit struct {
	Decision  uint32
	State     uint32
	SplitDate string
}

func (m RealmSplit) Encode() ([]byte, error) {
	return NewPacketBuilder().
		WriteUint32(m.Decision).
		WriteUint32(m.State).
		WriteCString("split_date", m.SplitDate).
		Build()
}

func DecodeRealmSplit(body []byte) (RealmSplit, error) {
	r := NewReader(body)
	var m RealmSplit
	m.Decision = r.Uint32("decision")
	m.State = r.Uint32("state")
	m.SplitDate = r.CString("split_date")
	if err := r.Err(); err != nil {
		return RealmSplit{}, err
	}
	return m, nil
}

// ChatType is the message type of chat packets.
type ChatType uint8

const (
	ChatSystem          ChatType = 0x00
	ChatSay             ChatType = 0x01
	ChatParty           ChatType = 0x02
	ChatRaid            ChatType = 0x03
	ChatGuild           ChatType = 0x04
	ChatOfficer         ChatType = 0x05
	ChatYell            ChatType = 0x06
	ChatWhisper         ChatType = 0x07
	ChatWhisperForeign  ChatType = 0x08
	ChatWhisperInform   ChatType = 0x09
	ChatEmote           ChatType = 0x0A
	ChatTextEmote       ChatType = 0x0B
	ChatMonsterSay      ChatType = 0x0C
	ChatMonsterParty    ChatType = 0x0D
	ChatMonsterYell     ChatType = 0x0E
	ChatMonsterWhisper  ChatType = 0x0F
	ChatMonsterEmote    ChatType = 0x10
	ChatChannel         ChatType = 0x11
	ChatRaidBossEmote   ChatType = 0x29
	ChatRaidBossWhisper ChatType = 0x2A
)

var chatTypeNames = map[ChatType]string{
	ChatSystem:          "system",
	ChatSay:             "say",
	ChatParty:           "party",
	ChatRaid:            "raid",
	ChatGuild:           "guild",
	ChatOfficer:         "officer",
	ChatYell:            "yell",
	ChatWhisper:         "whisper",
	ChatWhisperForeign:  "whisper",
	ChatWhisperInform:   "whisper_inform",
	ChatEmote:           "emote",
	ChatTextEmote:       "text_emote",
	ChatMonsterSay:      "monster_say",
	ChatMonsterParty:    "monster_party",
	ChatMonsterYell:     "monster_yell",
	ChatMonsterWhisper:  "monster_whisper",
	ChatMonsterEmote:    "monster_emote",
	ChatChannel:         "channel",
	ChatRaidBossEmote:   "raid_boss_emote",
	ChatRaidBossWhisper: "raid_boss_whisper",
}

func (t ChatType) String() string {
	if s, ok := chatTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("chat_0x%02X", uint8(t))
}

// ParseChatType maps a chat type name back to its value.
func ParseChatType(name string) (ChatType, bool) {
	for t, s := range chatTypeNames {
		if s == name && t != ChatWhisperForeign {
			return t, true
		}
	}
	return 0, false
}

func (t ChatType) isMonster() bool {
	switch t {
	case ChatMonsterSay, ChatMonsterParty, ChatMonsterYell, ChatMonsterWhisper,
		ChatMonsterEmote, ChatRaidBossEmote, ChatRaidBossWhisper:
		return true
	}
	return false
}

// Chat languages.
const (
	LangUniversal uint32 = 0
	LangOrcish    uint32 = 1
	LangCommon    uint32 = 7
	LangAddon     uint32 = 0xFFFFFFFF
)

// MessageChat is SMSG_MESSAGECHAT.
type MessageChat struct {
	Type       ChatType
	Language   uint32
	SenderGUID uint64
	Flags      uint32
	SenderName string
	Channel    string
	TargetGUID uint64
	TargetName string
	Text       string
	ChatTag    uint8
}

func (m MessageChat) Encode() ([]byte, error) {
	b := NewPacketBuilder().
		WriteUint8(uint8(m.Type)).
		WriteUint32(m.Language).
		WriteUint64(m.SenderGUID).
		WriteUint32(m.Flags)
	switch {
	case m.Type.isMonster():
		b.WriteUint32(uint32(len(m.SenderName) + 1)).WriteCString("sender_name", m.SenderName)
		b.WriteUint64(m.TargetGUID)
		if m.TargetGUID != 0 {
			b.WriteUint32(uint32(len(m.TargetName) + 1)).WriteCString("target_name", m.TargetName)
		}
	case m.Type == ChatChannel:
		b.WriteCString("channel", m.Channel).WriteUint64(m.TargetGUID)
	default:
		b.WriteUint64(m.TargetGUID)
	}
	b.WriteUint32(uint32(len(m.Text) + 1)).WriteCString("text", m.Text).WriteUint8(m.ChatTag)
	return b.Build()
}

func DecodeMessageChat(body []byte) (MessageChat, error) {
	r := NewReader(body)
	var m MessageChat
	m.Type = ChatType(r.Uint8("type"))
	m.Language = r.Uint32("language")
	m.SenderGUID = r.Uint64("sender_guid")
	m.Flags = r.Uint32("flags")
	switch {
	case m.Type.isMonster():
		m.SenderName = sizedString(r, "sender_name")
		m.TargetGUID = r.Uint64("target_guid")
		if m.TargetGUID != 0 {
			m.TargetName = sizedString(r, "target_name")
		}
	case m.Type == ChatChannel:
		m.Channel = r.CString("channel")
		m.TargetGUID = r.Uint64("target_guid")
	default:
		m.TargetGUID = r.Uint64("target_guid")
	}
	m.Text = sizedString(r, "text")
	m.ChatTag = r.Uint8("chat_tag")
	if err := r.Err(); err != nil {
		return MessageChat{}, err
	}
	return m, nil
}

// sizedString reads [length:4][bytes], where length counts the trailing 0x00.
func sizedString(r *Reader, field string) string {
	n := r.Uint32(field + "_length")
	if r.Err() != nil {
		return ""
	}
	if int(n) > r.Len() {
		r.err = readError(field, "SizedString", errShortBuffer)
		return ""
	}
	raw := r.Bytes(field, int(n))
	raw = bytes.TrimRight(raw, "\x00")
	if !utf8.Valid(raw) {
		r.err = stringError(field, errNotUTF8)
		return ""
	}
	return string(raw)
}

// SendChat is CMSG_MESSAGECHAT. Target is the whisper recipient or the
// channel name, depending on Type.
type SendChat struct {
	Type     ChatType
	Language uint32
	Target   string
	Text     string
}

func (m SendChat) Packet() (Packet, error) {
	b := NewPacketBuilder().WriteUint32(uint32(m.Type)).WriteUint32(m.Language)
	if m.Type == ChatWhisper || m.Type == ChatChannel {
		b.WriteCString("target", m.Target)
	}
	b.WriteCString("text", m.Text)
	return buildWorld(CmsgMessageChat, b)
}

func DecodeSendChat(body []byte) (SendChat, error) {
	r := NewReader(body)
	var m SendChat
	m.Type = ChatType(r.Uint32("type"))
	m.Language = r.Uint32("language")
	if m.Type == ChatWhisper || m.Type == ChatChannel {
		m.Target = r.CString("target")
	}
	m.Text = r.CString("text")
	if err := r.Err(); err != nil {
		return SendChat{}, err
	}
	return m, nil
}

// TimeSyncRequest is SMSG_TIME_SYNC_REQ.
type TimeSyncRequest struct {
	Counter uint32
}

func (m TimeSyncRequest) Encode() ([]byte, error) {
	return NewPacketBuilder().WriteUint32(m.Counter).Build()
}

func DecodeTimeSyncRequest(body []byte) (TimeSyncRequest, error) {
	r := NewReader(body)
	m := TimeSyncRequest{Counter: r.Uint32("counter")}
	if err := r.Err(); err != nil {
		return TimeSyncRequest{}, err
	}
	return m, nil
}

// TimeSyncResponse is CMSG_TIME_SYNC_RESP.
type TimeSyncResponse struct {
	Counter uint32
	Ticks   uint32
}

func (m TimeSyncResponse) Packet() (Packet, error) {
	return buildWorld(CmsgTimeSyncResp, NewPacketBuilder().WriteUint32(m.Counter).WriteUint32(m.Ticks))
}

// Ping is CMSG_PING.
type Ping struct {
	Sequence uint32
	Latency  uint32
}

func (m Ping) Packet() (Packet, error) {
	return buildWorld(CmsgPing, NewPacketBuilder().WriteUint32(m.Sequence).WriteUint32(m.Latency))
}

func DecodePing(body []byte) (Ping, error) {
	r := NewReader(body)
	m := Ping{Sequence: r.Uint32("sequence"), Latency: r.Uint32("latency")}
	if err := r.Err(); err != nil {
		return Ping{}, err
	}
	return m, nil
}

// Pong is SMSG_PONG.
type Pong struct {
	Sequence uint32
}

func (m Pong) Encode() ([]byte, error) {
	return NewPacketBuilder().WriteUint32(m.Sequence).Build()
}

func DecodePong(body []byte) (Pong, error) {
	r := NewReader(body)
	m := Pong{Sequence: r.Uint32("sequence")}
	if err := r.Err(); err != nil {
		return Pong{}, err
	}
	return m, nil
}

// EmptyRequest is a world packet without a body (CMSG_CHAR_ENUM,
// CMSG_LOGOUT_REQUEST, CMSG_READY_FOR_ACCOUNT_DATA_TIMES).
type EmptyRequest struct {
	Opcode WorldOpcode
}

func (m EmptyRequest) Packet() (Packet, error) {
	return NewWorldPacket(m.Opcode, nil), nil
}

// LogoutResponse is SMSG_LOGOUT_RESPONSE.
type LogoutResponse struct {
	Reason  uint32
	Instant uint8
}

func (m LogoutResponse) Encode() ([]byte, error) {
	return NewPacketBuilder().WriteUint32(m.Reason).WriteUint8(m.Instant).Build()
}

func DecodeLogoutResponse(body []byte) (LogoutResponse, error) {
	r := NewReader(body)
	m := LogoutResponse{Reason: r.Uint32("reason"), Instant: r.Uint8("instant")}
	if err := r.Err(); err != nil {
		return LogoutResponse{}, err
	}
	return m, nil
}

// NameQuery is CMSG_NAME_QUERY.
type NameQuery struct {
	GUID uint64
}

func (m NameQuery) Packet() (Packet, error) {
	return buildWorld(CmsgNameQuery, NewPacketBuilder().WriteUint64(m.GUID))
}

// NameQueryResponse is SMSG_NAME_QUERY_RESPONSE. Found is false when the
// server does not know the GUID; no further fields follow in that case.
type NameQueryResponse struct {
	GUID      uint64
	Found     bool
	Name      string
	RealmName string
	Race      uint8
	Gender    uint8
	Class     uint8
}

func (m NameQueryResponse) Encode() ([]byte, error) {
	b := NewPacketBuilder().WritePackedGUID(m.GUID)
	if !m.Found {
		return b.WriteUint8(1).Build()
	}
	return b.WriteUint8(0).
		WriteCString("name", m.Name).
		WriteCString("realm_name", m.RealmName).
		WriteUint8(m.Race).WriteUint8(m.Gender).WriteUint8(m.Class).
		WriteUint8(0).
		Build()
}

func DecodeNameQueryResponse(body []byte) (NameQueryResponse, error) {
	r := NewReader(body)
	var m NameQueryResponse
	m.GUID = r.PackedGUID("guid")
	m.Found = r.Uint8("name_unknown") == 0
	if r.Err() == nil && m.Found {
		m.Name = r.CString("name")
		m.RealmName = r.CString("realm_name")
		m.Race = r.Uint8("race")
		m.Gender = r.Uint8("gender")
		m.Class = r.Uint8("class")
		r.Uint8("declined")
	}
	if err := r.Err(); err != nil {
		return NameQueryResponse{}, err
	}
	return m, nil
}

// WardenData carries an RC4-encrypted anti-cheat payload in either
// direction. The codec does not look inside it.
type WardenData struct {
	Payload []byte
}

func (m WardenData) Packet() (Packet, error) {
	return NewWorldPacket(CmsgWardenData, m.Payload), nil
}

// PackedGUID reads a mask byte followed by one byte per set bit.
func (r *Reader) PackedGUID(field string) uint64 {
	mask := r.Uint8(field + "_mask")
	var guid uint64
	for i := 0; i < 8 && r.err == nil; i++ {
		if mask&(1<<i) != 0 {
			guid |= uint64(r.Uint8(field)) << (8 * i)
		}
	}
	return guid
}

// WritePackedGUID writes a mask byte followed by the non-zero bytes of guid.
func (b *PacketBuilder) WritePackedGUID(guid uint64) *PacketBuilder {
	var mask uint8
	var parts []byte
	for i := 0; i < 8; i++ {
		if v := byte(guid >> (8 * i)); v != 0 {
			mask |= 1 << i
			parts = append(parts, v)
		}
	}
	b.buf.WriteByte(mask)
	b.buf.Write(parts)
	return b
}
