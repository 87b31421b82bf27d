package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestBus(t *testing.T) EventBus {
	t.Helper()
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Stop(ctx)
	})
	return bus
}

func TestEventBus_DeliversToSubscriber(t *testing.T) {
	bus := startTestBus(t)

	received := make(chan Event, 1)
	_, err := bus.Subscribe(EventFilter{}, func(event Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.PublishAsync(Event{
		Type:   EventSessionStarted,
		Source: "module:playback",
		Title:  "Playback started",
	}))

	select {
	case event := <-received:
		assert.Equal(t, EventSessionStarted, event.Type)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestEventBus_FilterByType(t *testing.T) {
	bus := startTestBus(t)

	var mu sync.Mutex
	var got []EventType
	_, err := bus.Subscribe(EventFilter{Types: []EventType{EventScrubStarted}}, func(event Event) error {
		mu.Lock()
		got = append(got, event.Type)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	bus.PublishAsync(Event{Type: EventScrubStarted, Source: "module:playback"})
	bus.PublishAsync(Event{Type: EventSessionStopped, Source: "module:playback"})
	bus.PublishAsync(Event{Type: EventScrubStarted, Source: "module:playback"})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, eventType := range got {
		assert.Equal(t, EventScrubStarted, eventType)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := startTestBus(t)

	received := make(chan Event, 8)
	sub, err := bus.Subscribe(EventFilter{}, func(event Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Unsubscribe(sub.ID))

	bus.PublishAsync(Event{Type: EventInfo, Source: "test"})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, received)
}

func TestEventBus_RecentEventsRing(t *testing.T) {
	bus := startTestBus(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.PublishAsync(Event{Type: EventInfo, Source: "test"}))
	}

	assert.Eventually(t, func() bool {
		return len(bus.GetRecentEvents(10)) == 5
	}, time.Second, 5*time.Millisecond)

	recent := bus.GetRecentEvents(3)
	assert.Len(t, recent, 3)
}

func TestEventBus_StatsCountPublishes(t *testing.T) {
	bus := startTestBus(t)

	require.NoError(t, bus.PublishAsync(Event{Type: EventInfo, Source: "test"}))
	require.NoError(t, bus.PublishAsync(Event{Type: EventWarning, Source: "test"}))

	assert.Eventually(t, func() bool {
		return bus.GetStats().Published >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestEventFilter_Matches(t *testing.T) {
	event := Event{Type: EventScrubStarted, Source: "module:playback"}

	assert.True(t, EventFilter{}.Matches(event))
	assert.True(t, EventFilter{Types: []EventType{EventScrubStarted}}.Matches(event))
	assert.False(t, EventFilter{Types: []EventType{EventSessionStopped}}.Matches(event))
	assert.True(t, EventFilter{Sources: []string{"module:playback"}}.Matches(event))
	assert.False(t, EventFilter{Sources: []string{"system"}}.Matches(event))
}

func TestGlobalEventBus(t *testing.T) {
	bus := NewEventBus(DefaultEventBusConfig(), nil)
	SetGlobalEventBus(bus)
	assert.Equal(t, bus, GetGlobalEventBus())
}
