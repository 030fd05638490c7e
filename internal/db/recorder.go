package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/realmwalker-project/realmwalker/internal/events"
)

// Recorder journals bus events. It remembers the run of the latest
// connection so chat and snapshots are attributed to it.
type Recorder struct {
	journal *Journal

	mu    sync.Mutex
	runID string
}

// NewRecorder creates a recorder writing to j.
func NewRecorder(j *Journal) *Recorder {
	return &Recorder{journal: j}
}

// Attach subscribes the recorder to the bus.
func (r *Recorder) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventConnected, "journal", r.onConnected)
	bus.Subscribe(events.EventDisconnected, "journal", r.onDisconnected)
	bus.Subscribe(events.EventChat, "journal", r.onChat)
	bus.Subscribe(events.EventRealmList, "journal", r.onRealmList)
	bus.Subscribe(events.EventCharacterList, "journal", r.onCharacterList)
}

func (r *Recorder) currentRun() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func (r *Recorder) onConnected(ctx context.Context, ev events.Event) error {
	p, ok := ev.Payload.(events.ConnectedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}

	r.mu.Lock()
	fresh := r.runID != p.RunID
	r.runID = p.RunID
	r.mu.Unlock()

	// The world connection of a run reuses the run of its login.
	if !fresh {
		return nil
	}
	return r.journal.StartRun(ctx, p.RunID, p.Account, ev.Time)
}

func (r *Recorder) onDisconnected(ctx context.Context, ev events.Event) error {
	p, ok := ev.Payload.(events.DisconnectedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}
	return r.journal.EndRun(ctx, p.RunID, p.Reason, ev.Time)
}

func (r *Recorder) onChat(ctx context.Context, ev events.Event) error {
	p, ok := ev.Payload.(events.ChatPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}
	return r.journal.RecordChat(ctx, ChatEntry{
		RunID:      r.currentRun(),
		Type:       p.Type,
		Channel:    p.Channel,
		SenderGUID: p.SenderGUID,
		Sender:     p.Sender,
		Text:       p.Text,
		ReceivedAt: p.ReceivedAt,
	})
}

func (r *Recorder) onRealmList(ctx context.Context, ev events.Event) error {
	realms, ok := ev.Payload.([]events.RealmPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}
	rows := make([]RealmRow, len(realms))
	for i, rl := range realms {
		rows[i] = RealmRow{
			RealmID:    rl.ID,
			Name:       rl.Name,
			Address:    rl.Address,
			Population: rl.Population,
			Characters: rl.Characters,
		}
	}
	return r.journal.RecordRealms(ctx, r.currentRun(), rows, ev.Time)
}

func (r *Recorder) onCharacterList(ctx context.Context, ev events.Event) error {
	chars, ok := ev.Payload.([]events.CharacterPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", ev.Payload)
	}
	rows := make([]CharacterRow, len(chars))
	for i, c := range chars {
		rows[i] = CharacterRow{GUID: c.GUID, Name: c.Name, Level: c.Level, Race: c.Race, Class: c.Class, Zone: c.Zone}
	}
	return r.journal.RecordCharacters(ctx, r.currentRun(), rows, ev.Time)
}
