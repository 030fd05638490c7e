package handler

import (
	"context"
	"crypto/sha1"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
)

// Anti-cheat handlers decrypt the whole payload, which advances the
// inbound warden keystream; the processor only peeks at a copy.

// encoder is implemented by the plaintext warden answers.
type encoder interface {
	Encode() ([]byte, error)
}

func wardenPlaintext(in *Input) (*crypto.WardenCipher, []byte, error) {
	w := in.Session.Warden()
	if w == nil {
		return nil, nil, fmt.Errorf("%w: warden data before encryption", ErrUnexpected)
	}
	plain := w.Decrypt(in.Packet.Body)
	if len(plain) == 0 {
		return nil, nil, fmt.Errorf("empty %s payload", protocol.SmsgWardenData)
	}
	return w, plain, nil
}

func wardenReply(w *crypto.WardenCipher, msg encoder) (Data, error) {
	plain, err := msg.Encode()
	if err != nil {
		return Data{}, fmt.Errorf("failed to encode warden reply: %w", err)
	}
	return Send(protocol.WardenData{Payload: w.Encrypt(plain)})
}

// WardenModuleUse reports the requested module as missing so the server
// streams it.
type WardenModuleUse struct{}

func (WardenModuleUse) Handle(_ context.Context, in *Input) ([]Output, error) {
	w, plain, err := wardenPlaintext(in)
	if err != nil {
		return nil, err
	}
	req, err := protocol.DecodeWardenModuleUse(plain)
	if err != nil {
		return nil, decodeError(protocol.WardenSmsgModuleUse, err)
	}
	data, err := wardenReply(w, protocol.WardenStatus{Opcode: protocol.WardenCmsgModuleMissing})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Stringer("module", protocol.HexBytes(req.ModuleHash[:])).
		Uint32("size", req.Size).
		Msg("warden module requested")
	return []Output{UpdateState{StartWardenModule{Size: req.Size}}, data}, nil
}

// WardenModuleCache accounts a module chunk and acknowledges the module
// once all of it arrived.
type WardenModuleCache struct{}

func (WardenModuleCache) Handle(_ context.Context, in *Input) ([]Output, error) {
	w, plain, err := wardenPlaintext(in)
	if err != nil {
		return nil, err
	}
	chunk, err := protocol.DecodeWardenModuleCache(plain)
	if err != nil {
		return nil, decodeError(protocol.WardenSmsgModuleCache, err)
	}

	out := []Output{UpdateState{WardenModuleChunk{Size: len(chunk.Data)}}}
	size, received := in.Session.WardenModuleProgress()
	if size > 0 && received+uint32(len(chunk.Data)) >= size {
		data, err := wardenReply(w, protocol.WardenStatus{Opcode: protocol.WardenCmsgModuleOK})
		if err != nil {
			return nil, err
		}
		out = append(out, data, Message("Warden module received"))
	}
	return out, nil
}

// WardenCheatChecks answers with an empty result set. The real checks
// run inside the module, which this client does not execute.
type WardenCheatChecks struct{}

func (WardenCheatChecks) Handle(_ context.Context, in *Input) ([]Output, error) {
	w, plain, err := wardenPlaintext(in)
	if err != nil {
		return nil, err
	}
	log.Warn().Int("size", len(plain)).Msg("warden cheat checks answered with an empty result")

	data, err := wardenReply(w, protocol.WardenCheatResult{Checksum: crypto.WardenChecksum(nil)})
	if err != nil {
		return nil, err
	}
	return []Output{data}, nil
}

// WardenMemChecks answers memory checks with an empty result set, like
// WardenCheatChecks.
type WardenMemChecks struct{}

func (WardenMemChecks) Handle(_ context.Context, in *Input) ([]Output, error) {
	w, plain, err := wardenPlaintext(in)
	if err != nil {
		return nil, err
	}
	log.Debug().Stringer("payload", protocol.HexBytes(plain)).Msg("warden memory checks answered with an empty result")

	data, err := wardenReply(w, protocol.WardenMemResult{Checksum: crypto.WardenChecksum(nil)})
	if err != nil {
		return nil, err
	}
	return []Output{data}, nil
}

// WardenHashRequest answers with SHA1 of the seed.
type WardenHashRequest struct{}

func (WardenHashRequest) Handle(_ context.Context, in *Input) ([]Output, error) {
	w, plain, err := wardenPlaintext(in)
	if err != nil {
		return nil, err
	}
	req, err := protocol.DecodeWardenHashRequest(plain)
	if err != nil {
		return nil, decodeError(protocol.WardenSmsgHashRequest, err)
	}
	data, err := wardenReply(w, protocol.WardenHashResult{Hash: sha1.Sum(req.Seed[:])})
	if err != nil {
		return nil, err
	}
	return []Output{data}, nil
}

// WardenDiscard consumes a payload with an unknown sub-opcode so the
// keystream stays aligned with the server.
type WardenDiscard struct{}

func (WardenDiscard) Handle(_ context.Context, in *Input) ([]Output, error) {
	_, plain, err := wardenPlaintext(in)
	if err != nil {
		return nil, err
	}
	log.Debug().Stringer("opcode", protocol.WardenServerOpcode(plain[0])).Msg("unhandled warden request")
	return []Output{Void{}}, nil
}
