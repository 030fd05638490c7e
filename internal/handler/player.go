package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/protocol"
)

var processStart = time.Now()

// TimeSync answers SMSG_TIME_SYNC_REQ with the client tick count.
type TimeSync struct{}

func (TimeSync) Handle(_ context.Context, in *Input) ([]Output, error) {
	req, err := protocol.DecodeTimeSyncRequest(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgTimeSyncReq, err)
	}
	ticks := uint32(in.now().Sub(processStart).Milliseconds())
	data, err := Send(protocol.TimeSyncResponse{Counter: req.Counter, Ticks: ticks})
	if err != nil {
		return nil, err
	}
	return []Output{data}, nil
}

// Pong closes a keep-alive round trip.
type Pong struct{}

func (Pong) Handle(_ context.Context, in *Input) ([]Output, error) {
	pong, err := protocol.DecodePong(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgPong, err)
	}
	return []Output{UpdateState{RecordPong{Sequence: pong.Sequence, At: in.now()}}}, nil
}

// LogoutResponse reacts to the server accepting or refusing a logout.
type LogoutResponse struct{}

func (LogoutResponse) Handle(_ context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeLogoutResponse(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgLogoutResponse, err)
	}
	if resp.Reason != 0 {
		return []Output{
			UpdateState{SetLoggingOut{Value: false}},
			Messagef("Logout refused", "reason %d", resp.Reason),
		}, nil
	}
	log.Debug().Bool("instant", resp.Instant != 0).Msg("logout accepted")
	return []Output{Message("Logging out")}, nil
}

// LogoutComplete ends the session.
type LogoutComplete struct{}

func (LogoutComplete) Handle(context.Context, *Input) ([]Output, error) {
	return []Output{Message("Logged out"), ExitConfirmed{Reason: "logout complete"}}, nil
}

// PingRequest builds the keep-alive ping.
func PingRequest(seq uint32, latency time.Duration) protocol.Ping {
	return protocol.Ping{Sequence: seq, Latency: uint32(latency.Milliseconds())}
}

// LogoutRequest builds CMSG_LOGOUT_REQUEST.
func LogoutRequest() protocol.EmptyRequest {
	return protocol.EmptyRequest{Opcode: protocol.CmsgLogoutRequest}
}
