package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitSyncRunsAllHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventChat, "a", func(context.Context, Event) error { calls.Add(1); return nil })
	bus.Subscribe(EventChat, "b", func(context.Context, Event) error { calls.Add(1); return errors.New("boom") })
	bus.Subscribe(EventChat, "c", func(context.Context, Event) error { panic("bad subscriber") })

	err := bus.EmitSync(context.Background(), New(EventChat, "test", ChatPayload{Text: "hi"}))
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, bus.HandlerCount(EventChat))

	bus.Unsubscribe(EventChat, "c")
	assert.Equal(t, 2, bus.HandlerCount(EventChat))
}

func TestEmitIsAsyncAndStopWaits(t *testing.T) {
	bus := NewEventBus()
	release := make(chan struct{})
	var done atomic.Bool
	bus.Subscribe(EventExit, "slow", func(context.Context, Event) error {
		<-release
		done.Store(true)
		return nil
	})

	bus.Emit(context.Background(), New(EventExit, "test", nil))
	close(release)
	bus.Stop()
	assert.True(t, done.Load())

	// stopped buses ignore new events
	bus.Emit(context.Background(), New(EventExit, "test", nil))
	require.NoError(t, bus.EmitSync(context.Background(), New(EventExit, "test", nil)))
}

func TestBroadcastDropsOnFull(t *testing.T) {
	b := NewBroadcast(2)
	slow, cancelSlow := b.Subscribe("slow")
	defer cancelSlow()
	fast, cancelFast := b.Subscribe("fast")

	for i := 0; i < 3; i++ {
		b.Publish(New(EventMessage, "test", i))
		<-fast
	}
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Len(t, slow, 2)

	cancelFast()
	cancelFast()
	_, ok := <-fast
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers())
}

func TestBroadcastClose(t *testing.T) {
	b := NewBroadcast(0)
	ch, cancel := b.Subscribe("sub")
	b.Close()
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	late, _ := b.Subscribe("late")
	_, ok := <-late
	assert.False(t, ok)
	b.Publish(New(EventMessage, "test", nil))
}
