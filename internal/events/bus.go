// Package events is the process-local publish/subscribe channel that lets
// the reconciler, the HTTP/websocket layer and the trigger scheduler react
// to each other without direct references.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names a kind of event.
type Topic string

const (
	// ScreenNeedsRefresh asks the UI to prompt (or perform) a reload.
	ScreenNeedsRefresh Topic = "screen-needs-refresh"
	// ScreenSetupError carries a non-fatal sync failure for user feedback.
	ScreenSetupError Topic = "screen-setup-error"
	// HouseCreated announces a freshly created house/account.
	HouseCreated Topic = "house-created"
)

// Event is one message on the bus.
type Event struct {
	Topic   Topic     `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"data,omitempty"`
}

// HouseCreatedPayload is the payload of HouseCreated.
type HouseCreatedPayload struct {
	HouseID string `json:"houseId"`
}

// SetupErrorPayload is the payload of ScreenSetupError.
type SetupErrorPayload struct {
	Message string `json:"message"`
}

// Publisher is what producers depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher drops everything.
func NopPublisher() Publisher { return nopPublisher{} }

const defaultSubscriptionBuffer = 16

// Bus fans events out to subscribers. Delivery never blocks the publisher:
// a subscriber whose buffer is full misses the event and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	now     func() time.Time
	dropped atomic.Uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Subscription receives events for the topics it was created with. An empty
// topic set receives everything.
type Subscription struct {
	C <-chan Event

	ch     chan Event
	topics map[Topic]struct{}
	bus    *Bus
	once   sync.Once
}

// Subscribe registers a subscriber. Close the subscription when done.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	ch := make(chan Event, defaultSubscriptionBuffer)
	s := &Subscription{C: ch, ch: ch, bus: b, topics: make(map[Topic]struct{}, len(topics))}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Close unregisters the subscription and closes C. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(t Topic) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[t]
	return ok
}

// Publish implements Publisher.
func (b *Bus) Publish(_ context.Context, event Event) {
	if event.Time.IsZero() {
		event.Time = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(event.Topic) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber lagged.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
