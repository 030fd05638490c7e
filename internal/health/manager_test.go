package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/session"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

type fakeTarget struct {
	status      connector.Status
	disconnects int
}

func (f *fakeTarget) Status() connector.Status { return f.status }

func (f *fakeTarget) Disconnect() error {
	f.disconnects++
	return nil
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, target Target) (*Manager, <-chan events.Event) {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	got := make(chan events.Event, 8)
	collect := func(_ context.Context, ev events.Event) error {
		got <- ev
		return nil
	}
	bus.Subscribe(events.EventHealthAlert, "test", collect)
	bus.Subscribe(events.EventHeartbeat, "test", collect)

	m := NewManager(config.DefaultConfig(), bus, target)
	m.now = func() time.Time { return now }
	m.diskUsage = func(string) (*util.DiskUsage, error) {
		return &util.DiskUsage{Total: 100, Free: 50, UsedPercent: 50}, nil
	}
	m.processStats = func() (*util.ProcessStats, error) {
		return &util.ProcessStats{RSSMB: 42, Uptime: time.Hour}, nil
	}
	return m, got
}

func next(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return events.Event{}
	}
}

func inWorld(lastInbound time.Time, latency time.Duration) *fakeTarget {
	return &fakeTarget{status: connector.Status{
		RunID: "run-1",
		Session: session.Snapshot{
			State:       session.InWorld,
			Realm:       "Azeroth",
			Character:   "Thrall",
			LastInbound: lastInbound,
			Latency:     latency,
		},
	}}
}

func TestStaleConnectionIsDropped(t *testing.T) {
	target := inWorld(now.Add(-10*time.Minute), 0)
	m, got := newManager(t, target)

	m.checkConnection(context.Background())
	assert.Equal(t, 1, target.disconnects)

	ev := next(t, got)
	p := ev.Payload.(events.HealthAlertPayload)
	assert.Equal(t, "connection", p.Check)
	assert.Equal(t, "error", p.Level)
}

func TestFreshConnectionIsKept(t *testing.T) {
	target := inWorld(now.Add(-10*time.Second), 0)
	m, _ := newManager(t, target)
	m.checkConnection(context.Background())
	assert.Zero(t, target.disconnects)

	loggingIn := &fakeTarget{status: connector.Status{Session: session.Snapshot{State: session.AuthHandshake}}}
	m2, _ := newManager(t, loggingIn)
	m2.checkConnection(context.Background())
	assert.Zero(t, loggingIn.disconnects)
}

func TestLatencyAlert(t *testing.T) {
	m, got := newManager(t, inWorld(now, 3*time.Second))
	m.checkLatency(context.Background())
	assert.Equal(t, "latency", next(t, got).Payload.(events.HealthAlertPayload).Check)
}

func TestDiskAlert(t *testing.T) {
	m, got := newManager(t, inWorld(now, 0))
	m.diskUsage = func(string) (*util.DiskUsage, error) {
		return &util.DiskUsage{Total: 100, Free: 1, UsedPercent: 99}, nil
	}
	m.checkDiskUtilization(context.Background())
	p := next(t, got).Payload.(events.HealthAlertPayload)
	assert.Equal(t, "disk_utilization", p.Check)
	assert.Equal(t, "error", p.Level)

	m.diskUsage = func(string) (*util.DiskUsage, error) { return nil, errors.New("no such volume") }
	m.checkDiskUtilization(context.Background())
	select {
	case ev := <-got:
		t.Fatalf("unexpected event %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHeartbeat(t *testing.T) {
	m, got := newManager(t, inWorld(now, 80*time.Millisecond))
	m.heartbeat(context.Background())

	ev := next(t, got)
	require.Equal(t, events.EventHeartbeat, ev.Type)
	p := ev.Payload.(events.HeartbeatPayload)
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, "in_world", p.State)
	assert.Equal(t, "Thrall", p.Character)
	assert.Equal(t, uint64(42), p.RSSMB)
	assert.Equal(t, 80*time.Millisecond, p.Latency)
}
