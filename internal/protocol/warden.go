package protocol

import "fmt"

// WardenServerOpcode is the first decrypted byte of SMSG_WARDEN_DATA.
type WardenServerOpcode uint8

const (
	WardenSmsgModuleUse   WardenServerOpcode = 0x00
	WardenSmsgModuleCache WardenServerOpcode = 0x01
	WardenSmsgCheatChecks WardenServerOpcode = 0x02
	WardenSmsgModuleInit  WardenServerOpcode = 0x03
	WardenSmsgMemChecks   WardenServerOpcode = 0x04
	WardenSmsgHashRequest WardenServerOpcode = 0x05
)

var wardenServerNames = map[WardenServerOpcode]string{
	WardenSmsgModuleUse:   "WARDEN_SMSG_MODULE_USE",
	WardenSmsgModuleCache: "WARDEN_SMSG_MODULE_CACHE",
	WardenSmsgCheatChecks: "WARDEN_SMSG_CHEAT_CHECKS_REQUEST",
	WardenSmsgModuleInit:  "WARDEN_SMSG_MODULE_INITIALIZE",
	WardenSmsgMemChecks:   "WARDEN_SMSG_MEM_CHECKS_REQUEST",
	WardenSmsgHashRequest: "WARDEN_SMSG_HASH_REQUEST",
}

func (o WardenServerOpcode) String() string {
	if name, ok := wardenServerNames[o]; ok {
		return name
	}
	return fmt.Sprintf("WARDEN_SMSG_0x%02X", uint8(o))
}

// WardenClientOpcode is the first plaintext byte of CMSG_WARDEN_DATA.
type WardenClientOpcode uint8

const (
	WardenCmsgModuleMissing WardenClientOpcode = 0x00
	WardenCmsgModuleOK      WardenClientOpcode = 0x01
	WardenCmsgCheatResult   WardenClientOpcode = 0x02
	WardenCmsgMemResult     WardenClientOpcode = 0x03
	WardenCmsgHashResult    WardenClientOpcode = 0x04
	WardenCmsgModuleFailed  WardenClientOpcode = 0x05
)

// WardenModuleUse announces the module the server wants loaded.
type WardenModuleUse struct {
	ModuleHash [16]byte
	ModuleKey  [16]byte
	Size       uint32
}

func (m WardenModuleUse) Encode() ([]byte, error) {
	return NewPacketBuilder().
		WriteUint8(uint8(WardenSmsgModuleUse)).
		WriteBytes(m.ModuleHash[:]).
		WriteBytes(m.ModuleKey[:]).
		WriteUint32(m.Size).
		Build()
}

// DecodeWardenModuleUse decodes a decrypted payload including its sub-opcode.
func DecodeWardenModuleUse(plain []byte) (WardenModuleUse, error) {
	r := NewReader(plain)
	var m WardenModuleUse
	r.Uint8("opcode")
	r.Array("module_hash", m.ModuleHash[:])
	r.Array("module_key", m.ModuleKey[:])
	m.Size = r.Uint32("size")
	if err := r.Err(); err != nil {
		return WardenModuleUse{}, err
	}
	return m, nil
}

// WardenModuleCache is one chunk of a streamed module.
type WardenModuleCache struct {
	Data []byte
}

func (m WardenModuleCache) Encode() ([]byte, error) {
	if len(m.Data) > 0xFFFF {
		return nil, writeError("data", "uint16-prefixed bytes", errFieldTooLong)
	}
	return NewPacketBuilder().
		WriteUint8(uint8(WardenSmsgModuleCache)).
		WriteUint16(uint16(len(m.Data))).
		WriteBytes(m.Data).
		Build()
}

func DecodeWardenModuleCache(plain []byte) (WardenModuleCache, error) {
	r := NewReader(plain)
	r.Uint8("opcode")
	n := r.Uint16("length")
	m := WardenModuleCache{Data: r.Bytes("data", int(n))}
	if err := r.Err(); err != nil {
		return WardenModuleCache{}, err
	}
	return m, nil
}

// WardenHashRequest carries the seed the module hash is computed over.
type WardenHashRequest struct {
	Seed [16]byte
}

func (m WardenHashRequest) Encode() ([]byte, error) {
	return NewPacketBuilder().WriteUint8(uint8(WardenSmsgHashRequest)).WriteBytes(m.Seed[:]).Build()
}

func DecodeWardenHashRequest(plain []byte) (WardenHashRequest, error) {
	r := NewReader(plain)
	var m WardenHashRequest
	r.Uint8("opcode")
	r.Array("seed", m.Seed[:])
	if err := r.Err(); err != nil {
		return WardenHashRequest{}, err
	}
	return m, nil
}

// WardenCheatResult answers a cheat-check request.
type WardenCheatResult struct {
	Checksum uint32
	Results  []byte
}

func (m WardenCheatResult) Encode() ([]byte, error) {
	return encodeCheckResult(WardenCmsgCheatResult, m.Checksum, m.Results)
}

// WardenMemResult answers a memory-check request. It has the same
// layout as WardenCheatResult.
type WardenMemResult struct {
	Checksum uint32
	Results  []byte
}

func (m WardenMemResult) Encode() ([]byte, error) {
	return encodeCheckResult(WardenCmsgMemResult, m.Checksum, m.Results)
}

func encodeCheckResult(op WardenClientOpcode, checksum uint32, results []byte) ([]byte, error) {
	if len(results) > 0xFFFF {
		return nil, writeError("results", "uint16-prefixed bytes", errFieldTooLong)
	}
	return NewPacketBuilder().
		WriteUint8(uint8(op)).
		WriteUint16(uint16(len(results))).
		WriteUint32(checksum).
		WriteBytes(results).
		Build()
}

// WardenHashResult answers a hash request.
type WardenHashResult struct {
	Hash [20]byte
}

func (m WardenHashResult) Encode() ([]byte, error) {
	return NewPacketBuilder().WriteUint8(uint8(WardenCmsgHashResult)).WriteBytes(m.Hash[:]).Build()
}

// WardenStatus is a bare one-byte answer (module missing, ok, failed).
type WardenStatus struct {
	Opcode WardenClientOpcode
}

func (m WardenStatus) Encode() ([]byte, error) {
	return []byte{uint8(m.Opcode)}, nil
}
