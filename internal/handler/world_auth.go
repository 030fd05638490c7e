package handler

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
)

// AuthChallenge answers SMSG_AUTH_CHALLENGE with CMSG_AUTH_SESSION and arms
// the header cipher. The session packet itself goes out in plaintext; the
// next frame in either direction is encrypted.
type AuthChallenge struct{}

func (AuthChallenge) Handle(_ context.Context, in *Input) ([]Output, error) {
	challenge, err := protocol.DecodeAuthChallenge(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgAuthChallenge, err)
	}

	key := in.Session.SessionKey()
	if len(key) == 0 {
		return nil, crypto.ErrNoSessionKey
	}

	rnd := in.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	var seed [4]byte
	if _, err := io.ReadFull(rnd, seed[:]); err != nil {
		return nil, fmt.Errorf("failed to generate client seed: %w", err)
	}
	clientSeed := binary.LittleEndian.Uint32(seed[:])

	account := strings.ToUpper(in.Session.Settings().Account)
	addons, err := addonInfo()
	if err != nil {
		return nil, err
	}

	msg := protocol.AuthSession{
		Build:      protocol.ClientBuild,
		Account:    account,
		ClientSeed: clientSeed,
		Digest:     SessionDigest(account, clientSeed, challenge.ServerSeed, key),
		AddonInfo:  addons,
	}
	if realm, ok := in.Session.SelectedRealm(); ok {
		msg.RealmID = uint32(realm.ID)
	}
	data, err := Send(msg)
	if err != nil {
		return nil, err
	}

	return []Output{
		data,
		UpdateState{SetEncryption{Key: key}},
		UpdateState{SetConnectedToRealm{}},
		Message("Connected to realm"),
	}, nil
}

// SessionDigest proves knowledge of K to the world server:
// SHA1(account | 0 | clientSeed | serverSeed | K).
func SessionDigest(account string, clientSeed, serverSeed uint32, key []byte) [20]byte {
	var buf [4]byte
	h := sha1.New()
	h.Write([]byte(account))
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], clientSeed)
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], serverSeed)
	h.Write(buf[:])
	h.Write(key)

	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// addonInfo builds the [uncompressed size][zlib] block announcing no addons.
func addonInfo() ([]byte, error) {
	raw := protocol.NewPacketBuilder().
		WriteUint32(0). // addon count
		WriteUint32(0)  // last banned addon timestamp
	plain, err := raw.Build()
	if err != nil {
		return nil, err
	}

	var z bytes.Buffer
	w := zlib.NewWriter(&z)
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("failed to compress addon info: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress addon info: %w", err)
	}
	return protocol.NewPacketBuilder().
		WriteUint32(uint32(len(plain))).
		WriteBytes(z.Bytes()).
		Build()
}

// AuthResponse reacts to SMSG_AUTH_RESPONSE. On success it requests the
// account data times, the character list and the realm split state.
type AuthResponse struct{}

func (AuthResponse) Handle(_ context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeAuthResponse(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgAuthResponse, err)
	}

	switch resp.Result {
	case protocol.AuthResponseOK:
	case protocol.AuthResponseWaitQueue:
		return []Output{Messagef("Queued", "position %d", resp.QueuePosition)}, nil
	default:
		return nil, fatalf("world authentication rejected: %s", resp.Result)
	}

	out := []Output{}
	for _, msg := range []protocol.Message{
		protocol.EmptyRequest{Opcode: protocol.CmsgReadyForAccountDataTim},
		protocol.EmptyRequest{Opcode: protocol.CmsgCharEnum},
		RealmSplitRequest(),
	} {
		data, err := Send(msg)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}

	log.Debug().
		Uint8("expansion", resp.Expansion).
		Uint32("billing_time", resp.BillingTime).
		Msg("world authentication accepted")
	return append(out, Message("World authentication accepted")), nil
}

// RealmSplitRequest asks for the split state of all realms; the body is
// always FF FF FF FF.
func RealmSplitRequest() protocol.RealmSplitRequest {
	return protocol.RealmSplitRequest{Decision: protocol.RealmSplitAll}
}

// RealmSplit logs SMSG_REALM_SPLIT.
type RealmSplit struct{}

func (RealmSplit) Handle(_ context.Context, in *Input) ([]Output, error) {
	split, err := protocol.DecodeRealmSplit(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgRealmSplit, err)
	}
	log.Debug().
		Uint32("state", split.State).
		Stringer("split_date", protocol.HexBytes(split.SplitDate)).
		Msg("realm split")
	return []Output{Void{}}, nil
}
