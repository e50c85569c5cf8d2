// Package watch implements the per-node event bus: a bounded broadcast of
// models.Event to local subscribers, with explicit lag signaling instead of
// blocking slow readers.
package watch

import (
	"context"
	"errors"
	"sync"

	"github.com/MalteJ/mvirt/pkg/models"
)

// ErrLagged is what Subscription.Err returns after the bus closed C because
// the subscriber could not keep up; the caller must reconcile by re-listing before trusting its
// view of the projection again.
var ErrLagged = errors.New("watch: subscriber lagged, events were dropped")

const defaultCapacity = 256

// Bus broadcasts Events emitted after every applied mutation to all local
// subscribers.
type Bus struct {
	capacity int

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewBus returns a Bus whose per-subscriber channel holds up to capacity
// buffered events before the subscriber is considered lagging. capacity<=0
// uses a sensible default.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &Bus{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscription is a single subscriber's view of the bus. Events arrive on
// C. A subscriber that falls behind has C closed and Err set to ErrLagged;
// callers should range over C and check Err() once it closes.
type Subscription struct {
	C chan models.Event

	bus    *Bus
	mu     sync.Mutex
	err    error
	closed bool
}

// Subscribe registers a new Subscription. Call Close (or cancel ctx) when
// done to release it.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	sub := &Subscription{
		C:   make(chan models.Event, b.capacity),
		bus: b,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	if ctx != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}

	return sub
}

// Err returns the terminal error for this subscription (ErrLagged if the
// bus had to drop it for falling behind), valid once C is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	_, present := s.bus.subs[s]
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	if !present {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.C)
	}
}

func (s *Subscription) lag() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.err = ErrLagged
	s.closed = true
	close(s.C)
}

// Publish fans out ev to every current subscriber. A subscriber whose
// buffer is full is dropped (not blocked) and its channel closed with
// ErrLagged; it must re-subscribe after reconciling via list.
func (b *Bus) Publish(ev models.Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.C <- ev:
		default:
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			sub.lag()
		}
	}
}
