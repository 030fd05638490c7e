package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/protocol"
)

// MessageChat publishes incoming chat and, when a chat hook is attached,
// sends its reply.
type MessageChat struct{}

func (MessageChat) Handle(ctx context.Context, in *Input) ([]Output, error) {
	m, err := protocol.DecodeMessageChat(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgMessageChat, err)
	}

	msg := ChatMessage{
		Type:       m.Type,
		Channel:    m.Channel,
		SenderGUID: m.SenderGUID,
		Sender:     m.SenderName,
		Text:       m.Text,
		Language:   m.Language,
		ReceivedAt: in.now(),
	}

	var out []Output
	if msg.Sender == "" && msg.SenderGUID != 0 {
		if name, ok := in.Session.Name(msg.SenderGUID); ok {
			msg.Sender = name
		} else {
			data, err := Send(protocol.NameQuery{GUID: msg.SenderGUID})
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
	}
	out = append(out, msg, Messagef("Chat", "[%s] %s: %s", msg.Type, displayName(msg), msg.Text))

	if in.Chat != nil && !isOwnMessage(in, msg) {
		reply, ok, err := in.Chat.OnChat(ctx, msg)
		if err != nil {
			log.Warn().Err(err).Msg("chat hook failed")
		} else if ok && reply != "" {
			data, err := Send(ReplyTo(msg, reply))
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
	}
	return out, nil
}

func displayName(msg ChatMessage) string {
	if msg.Sender != "" {
		return msg.Sender
	}
	if msg.Type == protocol.ChatSystem {
		return "system"
	}
	return "unknown"
}

func isOwnMessage(in *Input, msg ChatMessage) bool {
	c, ok := in.Session.ActiveCharacter()
	return ok && c.GUID == msg.SenderGUID
}

// ReplyTo answers msg on the same medium: whispers go back to the sender,
// channel messages to the channel, everything else is said aloud.
func ReplyTo(msg ChatMessage, text string) protocol.SendChat {
	switch msg.Type {
	case protocol.ChatWhisper, protocol.ChatWhisperForeign:
		return protocol.SendChat{Type: protocol.ChatWhisper, Language: protocol.LangUniversal, Target: msg.Sender, Text: text}
	case protocol.ChatChannel:
		return protocol.SendChat{Type: protocol.ChatChannel, Language: protocol.LangUniversal, Target: msg.Channel, Text: text}
	case protocol.ChatParty, protocol.ChatRaid, protocol.ChatGuild, protocol.ChatOfficer:
		return protocol.SendChat{Type: msg.Type, Language: protocol.LangUniversal, Text: text}
	default:
		return protocol.SendChat{Type: protocol.ChatSay, Language: protocol.LangUniversal, Text: text}
	}
}

// NameQueryResponse caches resolved player names.
type NameQueryResponse struct{}

func (NameQueryResponse) Handle(_ context.Context, in *Input) ([]Output, error) {
	resp, err := protocol.DecodeNameQueryResponse(in.Packet.Body)
	if err != nil {
		return nil, decodeError(protocol.SmsgNameQueryResponse, err)
	}
	if !resp.Found {
		log.Debug().Uint64("guid", resp.GUID).Msg("name query: unknown guid")
		return []Output{Void{}}, nil
	}
	return []Output{UpdateState{SetName{GUID: resp.GUID, Name: resp.Name}}}, nil
}
