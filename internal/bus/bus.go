package bus

import (
	"strings"
	"sync"
)

// Bus fans daemon events out to in-process subscribers: the hydration
// engine listens on "chat.", the notification router on "notify.event",
// the control loop on "ctl.", and a frontend can watch any prefix it
// cares about.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish delivers evt to every subscriber whose namespace is a prefix
// of evt.Kind. Delivery is non-blocking: a lagging subscriber loses
// events rather than stalling the publisher, because the connection
// read loop publishes here and must never wait on a consumer.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers interest in a kind prefix and returns the event
// channel plus an unsubscribe function. Size bufSize to absorb bursts;
// a hydration snapshot or reconnect can publish many events back to back.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
