package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/crypto"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

// LogonChallenge answers CMD_AUTH_LOGON_CHALLENGE with the SRP6 proof.
type LogonChallenge struct{}

func (LogonChallenge) Handle(_ context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeLogonChallengeResponse(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.CmdAuthLogonChallenge, err)
	}
	if resp.Result != protocol.AuthSuccess {
		return nil, fatalf("logon challenge rejected: %s", resp.Result)
	}
	if resp.SecurityFlags != 0 {
		log.Warn().
			Uint8("security_flags", resp.SecurityFlags).
			Msg("server requests extra logon security, answering without it")
	}

	settings := in.Session.Settings()
	proof, err := crypto.ComputeLogonProof(settings.Account, settings.Password,
		resp.B[:], resp.G, resp.N, resp.Salt[:], in.Rand)
	if err != nil {
		return nil, fmt.Errorf("failed to compute logon proof: %w", err)
	}

	data, err := Send(protocol.LogonProofRequest{A: proof.A, M1: proof.M1})
	if err != nil {
		return nil, err
	}
	return []Output{
		UpdateState{SetPendingProof{Proof: proof}},
		data,
		Message("Logon challenge accepted", settings.Account),
	}, nil
}

// LogonProof checks the server proof and requests the realm list.
type LogonProof struct{}

func (LogonProof) Handle(_ context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeLogonProofResponse(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.CmdAuthLogonProof, err)
	}
	if resp.Result != protocol.AuthSuccess {
		return nil, fatalf("logon proof rejected: %s", resp.Result)
	}

	proof := in.Session.PendingProof()
	if proof == nil {
		return nil, fmt.Errorf("%w: logon proof without a pending challenge", ErrUnexpected)
	}
	if err := proof.VerifyServer(resp.M2); err != nil {
		return nil, fatalf("%w", err)
	}

	data, err := Send(protocol.RealmListRequest{})
	if err != nil {
		return nil, err
	}
	return []Output{
		UpdateState{SetSessionKey{Key: proof.SessionKey}},
		data,
		Message("Authenticated"),
	}, nil
}

// RealmList stores the realms, picks one and asks for a connection to it.
type RealmList struct{}

func (RealmList) Handle(ctx context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeRealmListResponse(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.CmdRealmList, err)
	}

	realms := make([]session.Realm, 0, len(resp.Realms))
	for _, e := range resp.Realms {
		realms = append(realms, RealmFromEntry(e))
	}
	if len(realms) == 0 {
		return nil, fatalf("realm list is empty")
	}

	realm, err := pickRealm(ctx, in, realms)
	if err != nil {
		return nil, err
	}
	host, port, err := realm.Endpoint()
	if err != nil {
		return nil, fatalf("realm %q: %w", realm.Name, err)
	}

	return []Output{
		UpdateState{SetRealms{Realms: realms}},
		UpdateState{SelectRealm{Realm: realm}},
		ConnectionRequest{Host: host, Port: port},
		Messagef("Realm selected", "%s (%s)", realm.Name, realm.Address),
	}, nil
}

func pickRealm(ctx context.Context, in *Input, realms []session.Realm) (session.Realm, error) {
	if name := in.Session.Settings().RealmName; name != "" {
		for _, r := range realms {
			if strings.EqualFold(r.Name, name) {
				return r, nil
			}
		}
		return session.Realm{}, fatalf("realm %q not in realm list", name)
	}
	if len(realms) == 1 {
		return realms[0], nil
	}
	if in.Chooser == nil {
		return session.Realm{}, fatalf("%w: %d realms offered and no realm configured", ErrNoSelection, len(realms))
	}

	names := make([]string, len(realms))
	for i, r := range realms {
		names[i] = r.Name
	}
	idx, err := in.Chooser.Choose(ctx, ChoiceRequest{Kind: ChoiceRealm, Options: names})
	if err != nil {
		return session.Realm{}, fmt.Errorf("realm selection: %w", err)
	}
	if idx < 0 || idx >= len(realms) {
		return session.Realm{}, fmt.Errorf("realm selection out of range: %d", idx)
	}
	return realms[idx], nil
}

// RealmFromEntry converts a realm list entry.
func RealmFromEntry(e protocol.RealmEntry) session.Realm {
	return session.Realm{
		ID:         e.ID,
		Name:       e.Name,
		Address:    e.Address,
		Icon:       e.Icon,
		Locked:     e.Locked != 0,
		Flags:      e.Flags,
		Population: e.Population,
		Characters: e.Characters,
		Timezone:   e.Timezone,
	}
}
