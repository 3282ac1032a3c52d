package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gamifyd/core"
)

func TestEventBus_SyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	var got []core.Event
	bus.Subscribe(core.EventXPGained, func(_ context.Context, ev core.Event) {
		got = append(got, ev)
	})

	bus.Publish(context.Background(), core.NewXPGained("co1", "alice", 10, 10))
	bus.Publish(context.Background(), core.NewLevelUp("co1", "alice", 2))

	require.Len(t, got, 1)
	require.Equal(t, core.EventXPGained, got[0].Type)
}

func TestEventBus_WildcardReceivesEverything(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	count := 0
	bus.Subscribe(EventAll, func(_ context.Context, ev core.Event) { count++ })

	bus.Publish(context.Background(), core.NewXPGained("co1", "alice", 10, 10))
	bus.Publish(context.Background(), core.NewLevelUp("co1", "alice", 2))
	bus.Publish(context.Background(), core.NewBadgeAwarded("co1", "alice", "b1"))

	require.Equal(t, 3, count)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	defer bus.Close()

	count := 0
	off := bus.Subscribe(core.EventLevelUp, func(_ context.Context, ev core.Event) { count++ })

	bus.Publish(context.Background(), core.NewLevelUp("co1", "alice", 2))
	off()
	bus.Publish(context.Background(), core.NewLevelUp("co1", "alice", 3))

	require.Equal(t, 1, count)
}

func TestEventBus_AsyncDispatch(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()

	var mu sync.Mutex
	got := 0
	bus.Subscribe(core.EventXPGained, func(_ context.Context, ev core.Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), core.NewXPGained("co1", "alice", 1, int64(i)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 10
	}, time.Second, 5*time.Millisecond)
}
