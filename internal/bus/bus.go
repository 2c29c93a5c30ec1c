// Package bus is the in-process publish/subscribe channel between the countdown and its listeners.
// Delivery is best-effort to subscribers active at publish time; there is no replay.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(e domain.Event)
}

// Bus fans out events to every active subscription.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	logger *zap.Logger
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Subscription is one listener's view of the bus.
type Subscription struct {
	id   uint64
	ch   chan domain.Event
	bus  *Bus
	once sync.Once
}

// C returns the event channel. It is closed when the subscription or the bus closes.
func (s *Subscription) C() <-chan domain.Event {
	return s.ch
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
}

func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe registers a new listener. buffer <= 0 uses DefaultBuffer.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:  b.nextID,
		ch:  make(chan domain.Event, buffer),
		bus: b,
	}
	if b.closed {
		sub.closeChan()
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers e to every subscriber without blocking.
// A full subscriber loses its oldest queued event so the newest one, and in
// particular a Finished event, is always enqueued.
func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
			continue
		default:
		}

		select {
		case dropped := <-sub.ch:
			b.logger.Debug("subscriber lagging, dropped event",
				zap.Uint64("subscriber", sub.id),
				zap.String("kind", string(dropped.Kind)))
		default:
		}

		select {
		case sub.ch <- e:
		default:
			b.logger.Warn("event not delivered",
				zap.Uint64("subscriber", sub.id),
				zap.String("kind", string(e.Kind)))
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription; later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closeChan()
		delete(b.subs, id)
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		sub.closeChan()
		delete(b.subs, id)
	}
}

// Ensure Bus implements Publisher.
var _ Publisher = (*Bus)(nil)
