package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/handler"
	"github.com/realmwalker-project/realmwalker/internal/protocol"
	"github.com/realmwalker-project/realmwalker/internal/session"
)

type sent struct {
	typ    protocol.ChatType
	target string
	text   string
}

type fakeClient struct {
	sess        *session.Session
	selector    *connector.Selector
	sent        []sent
	logouts     int
	disconnects int
}

func (f *fakeClient) Status() connector.Status {
	return connector.Status{RunID: "abc", Running: true, Session: f.sess.Snapshot()}
}
func (f *fakeClient) Session() *session.Session     { return f.sess }
func (f *fakeClient) Selector() *connector.Selector { return f.selector }
func (f *fakeClient) Logout() error                 { f.logouts++; return nil }
func (f *fakeClient) Disconnect() error             { f.disconnects++; return nil }

func (f *fakeClient) Say(_ context.Context, typ protocol.ChatType, target, text string) error {
	f.sent = append(f.sent, sent{typ: typ, target: target, text: text})
	return nil
}

// syncBuffer guards output written by the event watcher.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCLI(input string) (*CLI, *fakeClient, *syncBuffer) {
	client := &fakeClient{
		sess:     session.New(session.Settings{Account: "player"}),
		selector: connector.NewSelector(nil),
	}
	out := &syncBuffer{}
	c := NewCLI(config.DefaultConfig(), events.NewEventBus(), events.NewBroadcast(8), client)
	c.in = strings.NewReader(input)
	c.out = out
	return c, client, out
}

func TestChatCommands(t *testing.T) {
	c, client, _ := newTestCLI("say hello there\nwhisper Jaina psst\nchannel Trade wts sword\n\n")
	c.Start(context.Background())

	assert.Equal(t, []sent{
		{typ: protocol.ChatSay, text: "hello there"},
		{typ: protocol.ChatWhisper, target: "Jaina", text: "psst"},
		{typ: protocol.ChatChannel, target: "Trade", text: "wts sword"},
	}, client.sent)
}

func TestUsageErrors(t *testing.T) {
	c, client, out := newTestCLI("whisper Jaina\nrealm\nloglevel loud\nbogus\n")
	c.Start(context.Background())

	assert.Empty(t, client.sent)
	s := out.String()
	assert.Contains(t, s, "usage: whisper <name> <message>")
	assert.Contains(t, s, "usage: realm <name|number>")
	assert.Contains(t, s, "invalid log level: loud")
	assert.Contains(t, s, "Unknown command: 'bogus'")
}

func TestStatusAndTables(t *testing.T) {
	c, client, out := newTestCLI("status\nrealms\nchars\n")
	client.sess.SetRealms([]session.Realm{{Name: "Icecrown", Address: "10.0.0.1:8085", Population: 1.5}})
	c.Start(context.Background())

	s := out.String()
	assert.Contains(t, s, "State:        disconnected")
	assert.Contains(t, s, "Icecrown")
	assert.Contains(t, s, "10.0.0.1:8085")
	assert.Contains(t, s, "No character list received yet")
}

func TestSelectCommandAnswersPendingChoice(t *testing.T) {
	c, client, _ := newTestCLI("")

	done := make(chan int, 1)
	go func() {
		idx, err := client.selector.Choose(context.Background(), handler.ChoiceRequest{
			Kind:    handler.ChoiceCharacter,
			Options: []string{"Thrall", "Jaina"},
		})
		if err == nil {
			done <- idx
		}
	}()
	require.Eventually(t, func() bool {
		_, ok := client.selector.Pending()
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.execute(context.Background(), "char", []string{"2"}))
	select {
	case idx := <-done:
		assert.Equal(t, 1, idx)
	case <-time.After(time.Second):
		t.Fatal("selection not delivered")
	}

	assert.ErrorIs(t, c.execute(context.Background(), "realm", []string{"Icecrown"}), connector.ErrNoPendingChoice)
}

func TestLogoutReconnectAndQuit(t *testing.T) {
	c, client, _ := newTestCLI("")

	quit := make(chan struct{}, 1)
	c.eventBus.Subscribe(events.EventShutdown, "test", func(context.Context, events.Event) error {
		quit <- struct{}{}
		return nil
	})

	ctx := context.Background()
	require.NoError(t, c.execute(ctx, "logout", nil))
	require.NoError(t, c.execute(ctx, "reconnect", nil))
	require.NoError(t, c.execute(ctx, "quit", nil))

	assert.Equal(t, 1, client.logouts)
	assert.Equal(t, 1, client.disconnects)
	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("shutdown event not emitted")
	}
}

func TestPrintEvent(t *testing.T) {
	c, _, out := newTestCLI("")
	at := time.Date(2024, 5, 1, 20, 15, 0, 0, time.UTC)

	c.printEvent(events.New(events.EventChat, "test", events.ChatPayload{Type: "whisper", Sender: "Jaina", Text: "hi", ReceivedAt: at}))
	c.printEvent(events.New(events.EventChat, "test", events.ChatPayload{Type: "channel", Channel: "Trade", Sender: "Bob", Text: "wts", ReceivedAt: at}))
	c.printEvent(events.New(events.EventChoiceRequest, "test", events.ChoicePayload{Kind: "character", Options: []string{"Thrall"}}))

	s := out.String()
	assert.Contains(t, s, "[20:15] Jaina whispers: hi")
	assert.Contains(t, s, "[20:15] [Trade] Bob: wts")
	assert.Contains(t, s, "  1) Thrall")
	assert.Contains(t, s, "Answer with 'char <name|number>'.")
}
