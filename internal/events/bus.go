package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelindar/event"
)

// Topic identifies an event stream on the bus. Every publishing object owns
// one topic; Firehose receives a copy of everything.
type Topic uint32

// Firehose is the topic every envelope is mirrored to.
const Firehose Topic = 0

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Each subscriber gets its own ordered queue, so a slow handler never
// blocks publishers or other subscribers.
type Bus struct {
	dispatcher *event.Dispatcher
	next       atomic.Uint32
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// NewTopic allocates a fresh topic.
func (b *Bus) NewTopic() Topic {
	return Topic(b.next.Add(1))
}

// Publish delivers env to subscribers of topic and to the firehose.
func (b *Bus) Publish(topic Topic, env Envelope) {
	env.topic = uint32(topic)
	event.Publish(b.dispatcher, env)
	if topic != Firehose {
		env.topic = uint32(Firehose)
		event.Publish(b.dispatcher, env)
	}
}

// Subscribe registers handler for envelopes published on topic.
// Returns an unsubscribe function
func (b *Bus) Subscribe(topic Topic, handler func(Envelope)) func() {
	return event.SubscribeTo(b.dispatcher, uint32(topic), handler)
}

// SubscribeAll registers handler on the firehose.
func (b *Bus) SubscribeAll(handler func(Envelope)) func() {
	return b.Subscribe(Firehose, handler)
}

// Emitter publishes envelopes for a single source on its own topic.
// Sequence numbers are assigned under a lock together with the publish so
// subscribers observe them in strictly increasing order.
type Emitter struct {
	bus    *Bus
	topic  Topic
	source string

	mu  sync.Mutex
	seq uint64
}

// NewEmitter creates an emitter with a freshly allocated topic.
func (b *Bus) NewEmitter(source string) *Emitter {
	return &Emitter{bus: b, topic: b.NewTopic(), source: source}
}

// Topic returns the emitter's topic.
func (e *Emitter) Topic() Topic { return e.topic }

// Source returns the source label stamped on every envelope.
func (e *Emitter) Source() string { return e.source }

// Emit publishes p and returns the sequence number it was assigned.
func (e *Emitter) Emit(p Payload) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.bus.Publish(e.topic, Envelope{
		Source:  e.source,
		Seq:     e.seq,
		Time:    time.Now(),
		Payload: p,
	})
	return e.seq
}

// Subscribe registers handler for this emitter's envelopes.
func (e *Emitter) Subscribe(handler func(Envelope)) func() {
	return e.bus.Subscribe(e.topic, handler)
}
