package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/events"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestChatRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordChat(ctx, ChatEntry{RunID: "r1", Type: "SAY", Sender: "Thrall", Text: "lok'tar", ReceivedAt: base}))
	require.NoError(t, j.RecordChat(ctx, ChatEntry{RunID: "r1", Type: "WHISPER", Sender: "Jaina", SenderGUID: 1 << 40, Text: "hi", ReceivedAt: base.Add(time.Minute)}))

	all, err := j.RecentChat(ctx, ChatQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Jaina", all[0].Sender)
	assert.Equal(t, uint64(1<<40), all[0].SenderGUID)
	assert.True(t, all[0].ReceivedAt.Equal(base.Add(time.Minute)))

	bySender, err := j.RecentChat(ctx, ChatQuery{Sender: "thrall"})
	require.NoError(t, err)
	require.Len(t, bySender, 1)
	assert.Equal(t, "lok'tar", bySender[0].Text)

	recent, err := j.RecentChat(ctx, ChatQuery{Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	old := time.Now().Add(-48 * time.Hour)
	now := time.Now()

	require.NoError(t, j.RecordChat(ctx, ChatEntry{Type: "SAY", Text: "old", ReceivedAt: old}))
	require.NoError(t, j.RecordChat(ctx, ChatEntry{Type: "SAY", Text: "new", ReceivedAt: now}))
	require.NoError(t, j.RecordRealms(ctx, "r", []RealmRow{{Name: "Azeroth", Address: "127.0.0.1:8085"}}, old))
	require.NoError(t, j.RecordCharacters(ctx, "r", []CharacterRow{{GUID: 1, Name: "Thrall"}}, old))

	n, err := j.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	left, err := j.RecentChat(ctx, ChatQuery{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Text)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	bus := events.NewEventBus()
	defer bus.Stop()
	NewRecorder(j).Attach(bus)

	run := uuid.NewString()
	emit := func(typ events.EventType, payload interface{}) {
		require.NoError(t, bus.EmitSync(ctx, events.New(typ, "test", payload)))
	}

	emit(events.EventConnected, events.ConnectedPayload{RunID: run, Account: "PLAYER", Space: "login"})
	emit(events.EventConnected, events.ConnectedPayload{RunID: run, Account: "PLAYER", Space: "world"})
	emit(events.EventRealmList, []events.RealmPayload{{ID: 1, Name: "Azeroth", Address: "127.0.0.1:8085"}})
	emit(events.EventChat, events.ChatPayload{Type: "SAY", Sender: "Thrall", Text: "hello", ReceivedAt: time.Now()})
	emit(events.EventDisconnected, events.DisconnectedPayload{RunID: run, Reason: "logout complete"})

	chat, err := j.RecentChat(ctx, ChatQuery{})
	require.NoError(t, err)
	require.Len(t, chat, 1)
	assert.Equal(t, run, chat[0].RunID)

	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "PLAYER", runs[0].Account)
	assert.Equal(t, "logout complete", runs[0].Reason)
	assert.False(t, runs[0].EndedAt.IsZero())

	assert.Error(t, bus.EmitSync(ctx, events.New(events.EventChat, "test", "not a payload")))
}
