// Package toast maintains the ephemeral notification queue: a
// capacity-bounded, time-boxed projection of the most recent inbound
// notifications. Entries here are a view; dismissing one never touches
// the underlying durable record.
package toast

import (
	"sync"
	"time"

	"github.com/lsanches/bico/internal/store"
)

// Presenter holds the visible toast queue. New entries push out the
// oldest once capacity is reached, and every entry auto-dismisses after
// a fixed duration unless dismissed earlier.
type Presenter struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	visible  []store.NotificationRecord
	timers   map[string]*time.Timer
	watchCh  chan []store.NotificationRecord
}

// NewPresenter creates a presenter with the given capacity and visible
// lifetime. Non-positive arguments fall back to 3 entries and 4s.
func NewPresenter(capacity int, ttl time.Duration) *Presenter {
	if capacity <= 0 {
		capacity = 3
	}
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Presenter{
		capacity: capacity,
		ttl:      ttl,
		timers:   make(map[string]*time.Timer),
		watchCh:  make(chan []store.NotificationRecord, 8),
	}
}

// Push makes a record visible. Records already read at arrival are
// skipped. If the queue is full the oldest entry is dropped first.
func (p *Presenter) Push(rec store.NotificationRecord) {
	if rec.Read {
		return
	}
	p.mu.Lock()
	// Re-pushing the same id restarts its lifetime.
	p.removeLocked(rec.ID)
	p.visible = append(p.visible, rec)
	for len(p.visible) > p.capacity {
		p.removeLocked(p.visible[0].ID)
	}
	p.timers[rec.ID] = time.AfterFunc(p.ttl, func() { p.Dismiss(rec.ID) })
	p.notifyLocked()
	p.mu.Unlock()
}

// Dismiss removes an entry from the visible queue. Safe to call for ids
// that are no longer visible.
func (p *Presenter) Dismiss(id string) {
	p.mu.Lock()
	if p.removeLocked(id) {
		p.notifyLocked()
	}
	p.mu.Unlock()
}

// Visible returns a snapshot of the queue, oldest first.
func (p *Presenter) Visible() []store.NotificationRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]store.NotificationRecord, len(p.visible))
	copy(out, p.visible)
	return out
}

// Watch returns a channel receiving a queue snapshot after every change.
// Snapshots are dropped, not queued, if the subscriber lags.
func (p *Presenter) Watch() <-chan []store.NotificationRecord {
	return p.watchCh
}

// Close stops all pending dismiss timers.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, tm := range p.timers {
		tm.Stop()
		delete(p.timers, id)
	}
	p.visible = nil
}

func (p *Presenter) removeLocked(id string) bool {
	if tm, ok := p.timers[id]; ok {
		tm.Stop()
		delete(p.timers, id)
	}
	for i, rec := range p.visible {
		if rec.ID == id {
			p.visible = append(p.visible[:i], p.visible[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Presenter) notifyLocked() {
	snapshot := make([]store.NotificationRecord, len(p.visible))
	copy(snapshot, p.visible)
	select {
	case p.watchCh <- snapshot:
	default:
	}
}
