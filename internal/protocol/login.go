package protocol

import "fmt"

// AuthResult is the result byte of logon challenge and proof responses.
type AuthResult uint8

const (
	AuthSuccess            AuthResult = 0x00
	AuthFailBanned         AuthResult = 0x03
	AuthFailUnknownAccount AuthResult = 0x04
	AuthFailIncorrectPass  AuthResult = 0x05
	AuthFailAlreadyOnline  AuthResult = 0x06
	AuthFailNoTime         AuthResult = 0x07
	AuthFailDBBusy         AuthResult = 0x08
	AuthFailVersionInvalid AuthResult = 0x09
	AuthFailVersionUpdate  AuthResult = 0x0A
	AuthFailSuspended      AuthResult = 0x0C
	AuthFailParentControl  AuthResult = 0x0F
	AuthFailLockedEnforced AuthResult = 0x10
)

var authResultNames = map[AuthResult]string{
	AuthSuccess:            "success",
	AuthFailBanned:         "account banned",
	AuthFailUnknownAccount: "unknown account",
	AuthFailIncorrectPass:  "incorrect password",
	AuthFailAlreadyOnline:  "already online",
	AuthFailNoTime:         "no game time",
	AuthFailDBBusy:         "database busy",
	AuthFailVersionInvalid: "invalid client version",
	AuthFailVersionUpdate:  "client update required",
	AuthFailSuspended:      "account suspended",
	AuthFailParentControl:  "parental control",
	AuthFailLockedEnforced: "account locked",
}

func (r AuthResult) String() string {
	if s, ok := authResultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("auth result 0x%02X", uint8(r))
}

// Client identification sent in the logon challenge. Four-character fields
// are stored reversed on the wire, as the client writes them as a uint32.
const (
	ClientGameName = "WoW"
	ClientPlatform = "68x"
	ClientOS       = "niW"
	ClientLocale   = "SUne"
	ClientBuild    = 12340
)

// ClientVersion is 3.3.5.
var ClientVersion = [3]uint8{3, 3, 5}

// LogonChallengeRequest is CMD_AUTH_LOGON_CHALLENGE from the client.
type LogonChallengeRequest struct {
	Protocol     uint8
	GameName     string
	Version      [3]uint8
	Build        uint16
	Platform     string
	OS           string
	Locale       string
	TimezoneBias uint32
	IP           uint32
	Account      string
}

// NewLogonChallengeRequest fills in the 3.3.5a client identification.
func NewLogonChallengeRequest(account string) LogonChallengeRequest {
	return LogonChallengeRequest{
		Protocol: 0x08,
		GameName: ClientGameName,
		Version:  ClientVersion,
		Build:    ClientBuild,
		Platform: ClientPlatform,
		OS:       ClientOS,
		Locale:   ClientLocale,
		Account:  account,
	}
}

func (m LogonChallengeRequest) Encode() ([]byte, error) {
	if len(m.Account) > 0xFF {
		return nil, writeError("account", "uint8-prefixed string", errFieldTooLong)
	}
	b := NewPacketBuilder()
	b.WriteUint8(m.Protocol).
		WriteUint16(uint16(30 + len(m.Account))).
		WriteFixedString("game_name", m.GameName, 4).
		WriteUint8(m.Version[0]).WriteUint8(m.Version[1]).WriteUint8(m.Version[2]).
		WriteUint16(m.Build).
		WriteFixedString("platform", m.Platform, 4).
		WriteFixedString("os", m.OS, 4).
		WriteFixedString("locale", m.Locale, 4).
		WriteUint32(m.TimezoneBias).
		WriteUint32(m.IP).
		WriteUint8(uint8(len(m.Account))).
		WriteBytes([]byte(m.Account))
	return b.Build()
}

func (m LogonChallengeRequest) Packet() (Packet, error) {
	body, err := m.Encode()
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode %s: %w", CmdAuthLogonChallenge, err)
	}
	return NewLoginPacket(CmdAuthLogonChallenge, body), nil
}

// DecodeLogonChallengeRequest decodes the body that follows the command byte.
func DecodeLogonChallengeRequest(body []byte) (LogonChallengeRequest, error) {
	r := NewReader(body)
	var m LogonChallengeRequest
	m.Protocol = r.Uint8("protocol")
	size := r.Uint16("size")
	m.GameName = r.FixedString("game_name", 4)
	m.Version[0] = r.Uint8("version_major")
	m.Version[1] = r.Uint8("version_minor")
	m.Version[2] = r.Uint8("version_patch")
	m.Build = r.Uint16("build")
	m.Platform = r.FixedString("platform", 4)
	m.OS = r.FixedString("os", 4)
	m.Locale = r.FixedString("locale", 4)
	m.TimezoneBias = r.Uint32("timezone_bias")
	m.IP = r.Uint32("ip")
	n := r.Uint8("account_length")
	m.Account = r.FixedString("account", int(n))
	if err := r.Err(); err != nil {
		return LogonChallengeRequest{}, err
	}
	if int(size) != 30+int(n) {
		return LogonChallengeRequest{}, readError("size", "uint16", errSizeMismatch)
	}
	return m, nil
}

// LogonChallengeResponse is CMD_AUTH_LOGON_CHALLENGE from the server.
// Everything after Result is present only on success.
type LogonChallengeResponse struct {
	Result        AuthResult
	B             [32]byte
	G             []byte
	N             []byte
	Salt          [32]byte
	CRCSalt       [16]byte
	SecurityFlags uint8
	SecurityData  []byte
}

func (m LogonChallengeResponse) Encode() ([]byte, error) {
	b := NewPacketBuilder()
	b.WriteUint8(0).WriteUint8(uint8(m.Result))
	if m.Result != AuthSuccess {
		return b.Build()
	}
	if len(m.G) > 0xFF || len(m.N) > 0xFF {
		return nil, writeError("g/N", "uint8-prefixed bytes", errFieldTooLong)
	}
	b.WriteBytes(m.B[:]).
		WriteUint8(uint8(len(m.G))).WriteBytes(m.G).
		WriteUint8(uint8(len(m.N))).WriteBytes(m.N).
		WriteBytes(m.Salt[:]).
		WriteBytes(m.CRCSalt[:]).
		WriteUint8(m.SecurityFlags).
		WriteBytes(m.SecurityData)
	return b.Build()
}

func DecodeLogonChallengeResponse(body []byte) (LogonChallengeResponse, error) {
	r := NewReader(body)
	var m LogonChallengeResponse
	r.Uint8("unknown")
	m.Result = AuthResult(r.Uint8("result"))
	if r.Err() == nil && m.Result == AuthSuccess {
		r.Array("B", m.B[:])
		m.G = r.Bytes("g", int(r.Uint8("g_length")))
		m.N = r.Bytes("N", int(r.Uint8("N_length")))
		r.Array("salt", m.Salt[:])
		r.Array("crc_salt", m.CRCSalt[:])
		m.SecurityFlags = r.Uint8("security_flags")
		if r.Len() > 0 {
			m.SecurityData = r.Rest()
		}
	}
	if err := r.Err(); err != nil {
		return LogonChallengeResponse{}, err
	}
	return m, nil
}

// LogonProofRequest is CMD_AUTH_LOGON_PROOF from the client.
type LogonProofRequest struct {
	A             [32]byte
	M1            [20]byte
	CRCHash       [20]byte
	NumberOfKeys  uint8
	SecurityFlags uint8
}

func (m LogonProofRequest) Encode() ([]byte, error) {
	b := NewPacketBuilder()
	b.WriteBytes(m.A[:]).
		WriteBytes(m.M1[:]).
		WriteBytes(m.CRCHash[:]).
		WriteUint8(m.NumberOfKeys).
		WriteUint8(m.SecurityFlags)
	return b.Build()
}

func (m LogonProofRequest) Packet() (Packet, error) {
	body, err := m.Encode()
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode %s: %w", CmdAuthLogonProof, err)
	}
	return NewLoginPacket(CmdAuthLogonProof, body), nil
}

func DecodeLogonProofRequest(body []byte) (LogonProofRequest, error) {
	r := NewReader(body)
	var m LogonProofRequest
	r.Array("A", m.A[:])
	r.Array("M1", m.M1[:])
	r.Array("crc_hash", m.CRCHash[:])
	m.NumberOfKeys = r.Uint8("number_of_keys")
	m.SecurityFlags = r.Uint8("security_flags")
	if err := r.Err(); err != nil {
		return LogonProofRequest{}, err
	}
	return m, nil
}

// LogonProofResponse is CMD_AUTH_LOGON_PROOF from the server.
type LogonProofResponse struct {
	Result       AuthResult
	M2           [20]byte
	AccountFlags uint32
	SurveyID     uint32
	LoginFlags   uint16
}

func (m LogonProofResponse) Encode() ([]byte, error) {
	b := NewPacketBuilder()
	b.WriteUint8(uint8(m.Result))
	if m.Result != AuthSuccess {
		b.WriteUint16(0)
		return b.Build()
	}
	b.WriteBytes(m.M2[:]).
		WriteUint32(m.AccountFlags).
		WriteUint32(m.SurveyID).
		WriteUint16(m.LoginFlags)
	return b.Build()
}

func DecodeLogonProofResponse(body []byte) (LogonProofResponse, error) {
	r := NewReader(body)
	var m LogonProofResponse
	m.Result = AuthResult(r.Uint8("result"))
	if r.Err() == nil && m.Result == AuthSuccess {
		r.Array("M2", m.M2[:])
		m.AccountFlags = r.Uint32("account_flags")
		m.SurveyID = r.Uint32("survey_id")
		m.LoginFlags = r.Uint16("login_flags")
	}
	if err := r.Err(); err != nil {
		return LogonProofResponse{}, err
	}
	return m, nil
}

// RealmListRequest is CMD_REALM_LIST from the client.
type RealmListRequest struct {
	Unknown uint32
}

func (m RealmListRequest) Encode() ([]byte, error) {
	return NewPacketBuilder().WriteUint32(m.Unknown).Build()
}

func (m RealmListRequest) Packet() (Packet, error) {
	body, err := m.Encode()
	if err != nil {
		return Packet{}, fmt.Errorf("failed to encode %s: %w", CmdRealmList, err)
	}
	return NewLoginPacket(CmdRealmList, body), nil
}

func DecodeRealmListRequest(body []byte) (RealmListRequest, error) {
	r := NewReader(body)
	m := RealmListRequest{Unknown: r.Uint32("unknown")}
	if err := r.Err(); err != nil {
		return RealmListRequest{}, err
	}
	return m, nil
}

// Realm flags.
const (
	RealmFlagInvalid       = 0x01
	RealmFlagOffline       = 0x02
	RealmFlagSpecifyBuild  = 0x04
	RealmFlagNewPlayers    = 0x20
	RealmFlagRecommended   = 0x40
	RealmFlagFull          = 0x80
	realmListFooter uint16 = 0x0010
)

// RealmVersion is present when RealmFlagSpecifyBuild is set.
type RealmVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
	Build uint16
}

// RealmEntry is one realm of a realm list response.
type RealmEntry struct {
	Icon       uint8
	Locked     uint8
	Flags      uint8
	Name       string
	Address    string
	Population float32
	Characters uint8
	Timezone   uint8
	ID         uint8
	Version    *RealmVersion
}

// RealmListResponse is CMD_REALM_LIST from the server.
type RealmListResponse struct {
	Unknown uint32
	Realms  []RealmEntry
}

func (m RealmListResponse) Encode() ([]byte, error) {
	inner := NewPacketBuilder()
	inner.WriteUint32(m.Unknown).WriteUint16(uint16(len(m.Realms)))
	for _, realm := range m.Realms {
		inner.WriteUint8(realm.Icon).
			WriteUint8(realm.Locked).
			WriteUint8(realm.Flags).
			WriteCString("name", realm.Name).
			WriteCString("address", realm.Address).
			WriteFloat32(realm.Population).
			WriteUint8(realm.Characters).
			WriteUint8(realm.Timezone).
			WriteUint8(realm.ID)
		if realm.Flags&RealmFlagSpecifyBuild != 0 {
			v := realm.Version
			if v == nil {
				return nil, writeError("version", "RealmVersion", fmt.Errorf("flag set without version"))
			}
			inner.WriteUint8(v.Major).WriteUint8(v.Minor).WriteUint8(v.Patch).WriteUint16(v.Build)
		}
	}
	inner.WriteUint16(realmListFooter)
	payload, err := inner.Build()
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xFFFF {
		return nil, writeError("size", "uint16", errFieldTooLong)
	}
	return NewPacketBuilder().WriteUint16(uint16(len(payload))).WriteBytes(payload).Build()
}

// DecodeRealmListResponse decodes the body including its size prefix.
func DecodeRealmListResponse(body []byte) (RealmListResponse, error) {
	r := NewReader(body)
	var m RealmListResponse
	size := r.Uint16("size")
	if r.Err() == nil && int(size) != r.Len() {
		return RealmListResponse{}, readError("size", "uint16", errSizeMismatch)
	}
	m.Unknown = r.Uint32("unknown")
	count := r.Uint16("realm_count")
	realms := make([]RealmEntry, 0, count)
	for i := 0; i < int(count) && r.Err() == nil; i++ {
		var e RealmEntry
		e.Icon = r.Uint8("icon")
		e.Locked = r.Uint8("locked")
		e.Flags = r.Uint8("flags")
		e.Name = r.CString("name")
		e.Address = r.CString("address")
		e.Population = r.Float32("population")
		e.Characters = r.Uint8("characters")
		e.Timezone = r.Uint8("timezone")
		e.ID = r.Uint8("id")
		if e.Flags&RealmFlagSpecifyBuild != 0 {
			e.Version = &RealmVersion{
				Major: r.Uint8("version_major"),
				Minor: r.Uint8("version_minor"),
				Patch: r.Uint8("version_patch"),
				Build: r.Uint16("version_build"),
			}
		}
		realms = append(realms, e)
	}
	r.Uint16("footer")
	if err := r.Err(); err != nil {
		return RealmListResponse{}, err
	}
	if len(realms) > 0 {
		m.Realms = realms
	}
	return m, nil
}
