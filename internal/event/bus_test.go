// AngelaMos | 2026
// bus_test.go

package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Meta
	name string
}

func (e testEvent) Name() string { return e.name }

func newTestEvent(name string) testEvent {
	return testEvent{Meta: NewMeta(), name: name}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)

	var got []Event
	bus.Subscribe("thing.happened", func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	e := newTestEvent("thing.happened")
	results := bus.Publish(context.Background(), e)

	require.Len(t, got, 1)
	assert.Equal(t, "thing.happened", got[0].Name())
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.WithinDuration(t, time.Now(), got[0].OccurredAt(), time.Second)
}

func TestBusNoSubscribersIsNotAnError(t *testing.T) {
	bus := NewBus(nil)

	results := bus.Publish(context.Background(), newTestEvent("nobody.cares"))
	assert.Empty(t, results)
}

func TestBusOnlyMatchingSubscribersRun(t *testing.T) {
	bus := NewBus(nil)

	var aCalls, bCalls int
	bus.Subscribe("a", func(context.Context, Event) error {
		aCalls++
		return nil
	})
	bus.Subscribe("b", func(context.Context, Event) error {
		bCalls++
		return nil
	})

	bus.Publish(context.Background(), newTestEvent("a"))

	assert.Equal(t, 1, aCalls)
	assert.Equal(t, 0, bCalls)
}

func TestBusHandlerFailureIsIsolated(t *testing.T) {
	bus := NewBus(nil)

	boom := errors.New("boom")
	var secondRan bool

	bus.Subscribe("e", func(context.Context, Event) error {
		return boom
	})
	bus.Subscribe("e", func(context.Context, Event) error {
		secondRan = true
		return nil
	})

	results := bus.Publish(context.Background(), newTestEvent("e"))

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.NoError(t, results[1].Err)
	assert.True(t, secondRan, "failing handler must not stop the next one")
}

func TestBusHandlerPanicIsCaptured(t *testing.T) {
	bus := NewBus(nil)

	var secondRan bool
	bus.Subscribe("e", func(context.Context, Event) error {
		panic("handler exploded")
	})
	bus.Subscribe("e", func(context.Context, Event) error {
		secondRan = true
		return nil
	})

	var results []HandlerResult
	require.NotPanics(t, func() {
		results = bus.Publish(context.Background(), newTestEvent("e"))
	})

	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "handler exploded")
	assert.True(t, secondRan)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	id := bus.Subscribe("e", func(context.Context, Event) error {
		calls++
		return nil
	})
	bus.Subscribe("e", func(context.Context, Event) error {
		calls += 10
		return nil
	})

	bus.Unsubscribe("e", id)
	bus.Publish(context.Background(), newTestEvent("e"))

	assert.Equal(t, 10, calls)
}

func TestBusPublishAllPreservesOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	handler := func(_ context.Context, e Event) error {
		order = append(order, e.Name())
		return nil
	}
	bus.Subscribe("first", handler)
	bus.Subscribe("second", handler)

	bus.PublishAll(context.Background(), []Event{
		newTestEvent("first"),
		newTestEvent("second"),
		newTestEvent("first"),
	})

	assert.Equal(t, []string{"first", "second", "first"}, order)
}
