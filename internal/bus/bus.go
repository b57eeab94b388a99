// Package bus provides the in-process pub/sub substrate the mesh router
// and peer channels use to exchange message and ack traffic.
package bus

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// Callback receives a published payload. Publish runs callbacks
// synchronously on the publisher's goroutine, so a slow callback delays
// the publisher.
type Callback func(topic string, payload []byte)

type subscription struct {
	id     int
	prefix string
	cb     Callback
}

// Bus is an in-process, topic-prefix pub/sub bus. It satisfies the mesh's
// Bus collaborator contract (subscribe/publish/unsubscribe, best-effort,
// at-most-once, no ordering guarantee across topics).
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*subscription
	byTopic         map[string][]int
	nextID          int
	logger          *slog.Logger
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64
}

// New creates a new in-process Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:    make(map[int]*subscription),
		byTopic: make(map[string][]int),
		logger:  logger,
	}
}

// Subscribe registers cb for every Publish whose topic begins with
// topicPrefix; the empty prefix matches every topic. The mesh subscribes
// with full topic names, which also match any longer topic that starts
// with them. Returns an opaque handle for Unsubscribe.
func (b *Bus) Subscribe(topicPrefix string, cb func(topic string, payload []byte)) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, prefix: topicPrefix, cb: cb}
	b.subs[sub.id] = sub
	b.byTopic[topicPrefix] = append(b.byTopic[topicPrefix], sub.id)
	return sub.id
}

// Unsubscribe removes a previously registered subscription. A second call
// with the same handle is a no-op.
func (b *Bus) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[handle]
	if !ok {
		return
	}
	delete(b.subs, handle)
	ids := b.byTopic[sub.prefix]
	for i, id := range ids {
		if id == handle {
			b.byTopic[sub.prefix] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Publish delivers payload to every subscriber whose prefix matches topic.
// Delivery is synchronous and best-effort: a panicking callback is
// recovered and logged so one bad subscriber cannot take down a publisher.
func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.RLock()
	matches := make([]Callback, 0, 4)
	for prefix, ids := range b.byTopic {
		if prefix == "" || strings.HasPrefix(topic, prefix) {
			for _, id := range ids {
				if sub, ok := b.subs[id]; ok {
					matches = append(matches, sub.cb)
				}
			}
		}
	}
	b.mu.RUnlock()

	if len(matches) == 0 {
		b.droppedEvents.Add(1)
		return
	}
	for _, cb := range matches {
		b.safeInvoke(cb, topic, payload)
	}
}

func (b *Bus) safeInvoke(cb Callback, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("bus_subscriber_panic", slog.String("topic", topic), slog.Any("recover", r))
		}
	}()
	cb(topic, payload)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedEventCount returns the number of publishes that reached zero
// subscribers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}
