// Package events defines the event types published by the client and the
// bus and broadcast that carry them.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventStateChanged EventType = "state_changed"
	EventExit         EventType = "exit"

	// Handler outputs
	EventMessage       EventType = "message"
	EventChoiceRequest EventType = "choice_request"
	EventChat          EventType = "chat"

	// Session snapshots
	EventRealmList     EventType = "realm_list"
	EventCharacterList EventType = "character_list"
	EventEnteredWorld  EventType = "entered_world"
	EventLatency       EventType = "latency"

	// System
	EventHeartbeat     EventType = "heartbeat"
	EventHealthAlert   EventType = "health_alert"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// New stamps an event with the current time.
func New(t EventType, source string, payload interface{}) Event {
	return Event{Type: t, Source: source, Time: time.Now(), Payload: payload}
}

// ConnectedPayload is published after a transport connected.
type ConnectedPayload struct {
	RunID   string `json:"run_id"`
	Account string `json:"account"`
	Space   string `json:"space"`
	Host    string `json:"host"`
	Port    uint16 `json:"port"`
}

// DisconnectedPayload is published when a connection attempt ends.
type DisconnectedPayload struct {
	RunID   string `json:"run_id"`
	Reason  string `json:"reason"`
	Fatal   bool   `json:"fatal"`
	Attempt int    `json:"attempt"`
}

// StateChangedPayload records a session state transition.
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MessagePayload is a user-facing status line.
type MessagePayload struct {
	Label  string  `json:"label"`
	Detail *string `json:"detail,omitempty"`
}

// ChoicePayload asks the user to pick one of Options.
type ChoicePayload struct {
	Kind    string   `json:"kind"`
	Options []string `json:"options"`
}

// ChatPayload is one received chat line.
type ChatPayload struct {
	Type       string    `json:"type"`
	Channel    string    `json:"channel,omitempty"`
	SenderGUID uint64    `json:"sender_guid"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// RealmPayload describes one realm of a realm list.
type RealmPayload struct {
	ID         uint8   `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Population float32 `json:"population"`
	Characters uint8   `json:"characters"`
	Locked     bool    `json:"locked"`
}

// CharacterPayload describes one character of a character list.
type CharacterPayload struct {
	GUID  uint64 `json:"guid"`
	Name  string `json:"name"`
	Level uint8  `json:"level"`
	Race  uint8  `json:"race"`
	Class uint8  `json:"class"`
	Zone  uint32 `json:"zone"`
}

// EnteredWorldPayload is published once the character is in world.
type EnteredWorldPayload struct {
	Character string  `json:"character"`
	Map       uint32  `json:"map"`
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	Z         float32 `json:"z"`
}

// LatencyPayload carries a measured ping round trip.
type LatencyPayload struct {
	Sequence uint32        `json:"sequence"`
	Latency  time.Duration `json:"latency_ns"`
}

// ExitPayload is published when the session ended cooperatively.
type ExitPayload struct {
	Reason string `json:"reason"`
}

// HeartbeatPayload is the periodic status published to telemetry.
type HeartbeatPayload struct {
	RunID      string        `json:"run_id"`
	State      string        `json:"state"`
	Realm      string        `json:"realm,omitempty"`
	Character  string        `json:"character,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	RSSMB      uint64        `json:"rss_mb"`
	CPUPercent float64       `json:"cpu_percent"`
	Uptime     time.Duration `json:"uptime_ns"`
}

// HealthAlertPayload reports a failed health check.
type HealthAlertPayload struct {
	Check   string `json:"check"`
	Level   string `json:"level"`
	Message string `json:"message"`
}
