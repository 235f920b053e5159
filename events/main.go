package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// Handler processes a single event. Handlers for the same event name run in
// registration order, and one handler's failure does not keep the others from
// running.
type Handler func(ctx context.Context, event Event) error

// Bus dispatches application events to registered handlers. Instances are
// constructed explicitly and handed to anything that emits or subscribes, so
// tests can use a fresh bus and shutdown can tear the registry down cleanly.
type Bus struct {
	mutex      sync.RWMutex
	handlerFor map[string][]Handler
}

// NewBus creates a new event bus with no registered handlers.
func NewBus() *Bus {
	return &Bus{
		handlerFor: make(map[string][]Handler),
	}
}

// On registers a handler for the named event. Multiple handlers may register
// for the same event name.
func (b *Bus) On(eventName string, handler Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handlerFor[eventName] = append(b.handlerFor[eventName], handler)
}

// Listen registers a handler that receives the event already asserted to its
// concrete catalogue type.
func Listen[T Event](bus *Bus, handler func(ctx context.Context, event T) error) {
	var zero T
	bus.On(zero.EventName(), func(ctx context.Context, event Event) error {
		typed, ok := event.(T)
		if !ok {
			return fmt.Errorf("handler for %s received an event of type %T", zero.EventName(), event)
		}
		return handler(ctx, typed)
	})
}

// HandlerCount returns the number of handlers registered for the named event.
func (b *Bus) HandlerCount(eventName string) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.handlerFor[eventName])
}

// Emit dispatches an event to every handler registered for its name, in
// registration order. Emitting an event that nobody listens for is a valid
// no-op. Every handler runs even if an earlier one fails; the errors are
// collected and returned joined so that persistence failures inside a handler
// still reach the emitter.
func (b *Bus) Emit(ctx context.Context, event Event) error {

	// Snapshot the handler list so handlers can safely register or remove
	// listeners while a dispatch is in flight.
	b.mutex.RLock()
	handlers := make([]Handler, len(b.handlerFor[event.EventName()]))
	copy(handlers, b.handlerFor[event.EventName()])
	b.mutex.RUnlock()

	// Dispatch the event to each handler.
	var errs []error
	for _, handler := range handlers {
		if err := b.dispatch(ctx, event, handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dispatch runs a single handler, converting a panic into an error so that
// one misbehaving handler cannot take down the dispatch loop.
func (b *Bus) dispatch(ctx context.Context, event Event, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", event.EventName(), r)
			log.Error(err)
		}
	}()
	return handler(ctx, event)
}

// Close removes all registered handlers. The bus may be reused afterward, but
// the usual lifecycle is to close it once at process shutdown.
func (b *Bus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handlerFor = make(map[string][]Handler)
}
