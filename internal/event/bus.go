// AngelaMos | 2026
// bus.go

package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one event. A handler error is captured and logged, never
// returned to the publisher, and never stops other handlers for the event.
type Handler func(ctx context.Context, e Event) error

// HandlerResult records the outcome of one handler invocation, so failure
// isolation is observable rather than silently swallowed.
type HandlerResult struct {
	Event        string
	Subscription int
	Err          error
}

type subscription struct {
	id      int
	handler Handler
}

// Bus is an in-process publish/subscribe dispatcher. The registry is
// written during startup wiring and read on every publish.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]subscription
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event name and returns a
// subscription id usable with Unsubscribe.
func (b *Bus) Subscribe(name string, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[name] = append(b.handlers[name], subscription{
		id:      b.nextID,
		handler: h,
	})
	return b.nextID
}

func (b *Bus) Unsubscribe(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[name]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every current subscriber. Absence of
// subscribers is not an error. Each handler's failure (error or panic) is
// captured per handler and logged.
func (b *Bus) Publish(ctx context.Context, e Event) []HandlerResult {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[e.Name()]))
	copy(subs, b.handlers[e.Name()])
	b.mu.RUnlock()

	results := make([]HandlerResult, 0, len(subs))
	for _, sub := range subs {
		err := b.invoke(ctx, sub.handler, e)
		if err != nil {
			b.logger.Error("event handler failed",
				"event", e.Name(),
				"subscription", sub.id,
				"error", err,
			)
		}
		results = append(results, HandlerResult{
			Event:        e.Name(),
			Subscription: sub.id,
			Err:          err,
		})
	}

	return results
}

// PublishAll fans out events sequentially, preserving the order in which
// they were recorded.
func (b *Bus) PublishAll(ctx context.Context, events []Event) {
	for _, e := range events {
		b.Publish(ctx, e)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()

	return h(ctx, e)
}
