// Package notify decouples state mutation from observation.
//
// Each logical mutation (cart change, roster reload, order confirmation,
// mutation failure) publishes exactly one Event after the mutation and its
// persistence have completed. Observers never poll and never depend on
// rendering timing.
package notify

import (
	"sync"
)

// Topic names a category of state change.
type Topic string

const (
	TopicCartChanged     Topic = "cart.changed"
	TopicRosterReloaded  Topic = "roster.reloaded"
	TopicRosterUpdated   Topic = "roster.updated"
	TopicMutationApplied Topic = "mutation.applied"
	TopicMutationFailed  Topic = "mutation.failed"
	TopicMutationDropped Topic = "mutation.dropped"
	TopicCheckoutState   Topic = "checkout.state"
	TopicOrderConfirmed  Topic = "order.confirmed"
	TopicSessionChanged  Topic = "session.changed"
)

// Event describes one state change.
type Event struct {
	Topic Topic

	// Source names the component or action kind that changed, e.g. "products".
	Source string

	// Message is the user-facing text attached to confirmations and failures.
	Message string

	// Err is set for failure events.
	Err error
}

// Bus is a synchronous publish/subscribe hub.
// Publishing on a nil *Bus is valid and drops the event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every published event and returns a function
// that removes the subscription.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every subscriber, in subscription order.
// Subscribers run on the publishing goroutine.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// Recorder collects published events. Useful for tests and CLI traces.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record appends ev. Pass it to Bus.Subscribe.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Topics returns the topics of the recorded events in order.
func (r *Recorder) Topics() []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Topic, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Topic
	}
	return out
}

// Count returns how many recorded events carry topic.
func (r *Recorder) Count(topic Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Topic == topic {
			n++
		}
	}
	return n
}
