// Package events is the in-process named-event registry the messaging channel
// publishes decoded inbound messages on, and the journey service uses to
// surface contract-driven state changes.
package events

import (
	"fmt"
	"sync"

	"taxicoin/pkg/logger"
)

// Handler receives the arguments passed to Emit.
type Handler func(args ...interface{})

type subscription struct {
	id      int
	handler Handler
}

// Bus dispatches named events to subscribers synchronously, in registration
// order. Functions are not comparable in Go, so On returns a token which Off
// uses to remove a single handler.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
	log    logger.ILogger
}

func New(log logger.ILogger) *Bus {
	return &Bus{
		subs: make(map[string][]subscription),
		log:  log,
	}
}

// On registers a handler for the named event and returns its subscription
// token. Multiple handlers per name are allowed.
func (b *Bus) On(name string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[name] = append(b.subs[name], subscription{id: b.nextID, handler: handler})
	return b.nextID
}

// Off removes the handler registered under the given token, or every handler
// for the name when no token is given.
func (b *Bus) Off(name string, tokens ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(tokens) == 0 {
		delete(b.subs, name)
		return
	}

	subs := b.subs[name]
	for _, token := range tokens {
		for i, sub := range subs {
			if sub.id == token {
				subs = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	if len(subs) == 0 {
		delete(b.subs, name)
	} else {
		b.subs[name] = subs
	}
}

// Emit invokes every handler registered for the name, in order, with the
// given arguments. A panicking handler is recovered and logged so it cannot
// stop later handlers from running. No-op when nothing is registered.
func (b *Bus) Emit(name string, args ...interface{}) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[name]))
	copy(subs, b.subs[name])
	b.mu.Unlock()

	for _, sub := range subs {
		b.dispatch(name, sub, args)
	}
}

func (b *Bus) dispatch(name string, sub subscription, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				logger.String("event", name),
				logger.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	sub.handler(args...)
}
