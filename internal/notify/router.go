// Package notify is the single ingestion point for notify-class events.
// The router classifies inbound events into durable records, persists the
// full list on every mutation, and fans out to the toast queue and the
// platform notification surface.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/platform"
	"github.com/lsanches/bico/internal/store"
	"github.com/lsanches/bico/internal/toast"
	"github.com/lsanches/bico/internal/wire"
)

// Store is the persistence surface for the notification list. The sqlite
// store implements it; tests use an in-memory fake.
type Store interface {
	LoadNotifications() ([]store.NotificationRecord, error)
	SaveNotifications([]store.NotificationRecord) error
}

// Router ingests notify events and owns the notification list,
// most-recent-first. All mutations are persisted immediately.
type Router struct {
	store    Store
	toasts   *toast.Presenter
	notifier platform.Notifier
	bus      *bus.Bus
	logger   *zap.Logger

	mu         sync.Mutex
	records    []store.NotificationRecord
	permission platform.Permission

	cancel context.CancelFunc
}

// NewRouter creates a router over the given sinks.
func NewRouter(s Store, toasts *toast.Presenter, notifier platform.Notifier, b *bus.Bus, logger *zap.Logger) *Router {
	return &Router{
		store:      s,
		toasts:     toasts,
		notifier:   notifier,
		bus:        b,
		logger:     logger,
		permission: platform.PermissionDefault,
	}
}

// Start loads persisted records, requests platform permission, registers
// the click handler, and subscribes to notify.event bus traffic.
func (r *Router) Start(ctx context.Context) error {
	records, err := r.store.LoadNotifications()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.records = records
	r.mu.Unlock()

	r.permission = r.notifier.RequestPermission(ctx)
	r.logger.Info("platform notification permission",
		zap.String("permission", string(r.permission)),
		zap.Int("records", len(records)))

	r.notifier.OnClick(r.handleClick)

	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("notify.event", 256)
	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				n, ok := evt.Payload.(*wire.Notify)
				if !ok {
					continue
				}
				r.Ingest(*n)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop cancels the bus subscription.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Ingest classifies an inbound event, persists the resulting record, and
// dispatches it to the presentation sinks. It returns the stored record.
func (r *Router) Ingest(n wire.Notify) store.NotificationRecord {
	rec := store.NotificationRecord{
		ID:        uuid.NewString(),
		Category:  classify(n.Category),
		Title:     n.Title,
		Body:      n.Body,
		CreatedAt: time.Now().UnixMilli(),
		TargetURL: n.TargetURL,
		Icon:      n.Icon,
	}
	for _, a := range n.Actions {
		rec.Actions = append(rec.Actions, store.NotificationAction{Action: a.Action, Title: a.Title})
	}

	r.mu.Lock()
	r.records = append([]store.NotificationRecord{rec}, r.records...)
	r.persistLocked()
	r.mu.Unlock()

	r.toasts.Push(rec)
	if r.permission == platform.PermissionGranted {
		if err := r.notifier.Show(context.Background(), rec); err != nil {
			r.logger.Warn("platform show failed", zap.Error(err), zap.String("id", rec.ID))
		}
	}

	r.bus.Publish(bus.Event{
		Kind:      "notify.ingested",
		Timestamp: time.Now(),
		Payload:   rec,
	})
	return rec
}

// Records returns a snapshot of the notification list, most-recent-first.
func (r *Router) Records() []store.NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.NotificationRecord, len(r.records))
	copy(out, r.records)
	return out
}

// UnreadCount returns the number of unread records.
func (r *Router) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, rec := range r.records {
		if !rec.Read {
			count++
		}
	}
	return count
}

// MarkRead marks a single record read.
func (r *Router) MarkRead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id && !r.records[i].Read {
			r.records[i].Read = true
			r.persistLocked()
			return
		}
	}
}

// MarkAllRead marks every record read.
func (r *Router) MarkAllRead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for i := range r.records {
		if !r.records[i].Read {
			r.records[i].Read = true
			changed = true
		}
	}
	if changed {
		r.persistLocked()
	}
}

// Remove deletes a record entirely. No tombstone is kept.
func (r *Router) Remove(id string) {
	r.toasts.Dismiss(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id {
			r.records = append(r.records[:i], r.records[i+1:]...)
			r.persistLocked()
			return
		}
	}
}

// ClearAll deletes every record.
func (r *Router) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return
	}
	for _, rec := range r.records {
		r.toasts.Dismiss(rec.ID)
	}
	r.records = nil
	r.persistLocked()
}

// handleClick marks the clicked record read and republishes the target
// URL for navigation. The platform surface reports only the URL, so the
// most recent unread record with that target is the one marked.
func (r *Router) handleClick(targetURL string) {
	r.mu.Lock()
	for i := range r.records {
		if r.records[i].TargetURL == targetURL && !r.records[i].Read {
			r.records[i].Read = true
			r.persistLocked()
			break
		}
	}
	r.mu.Unlock()

	r.bus.Publish(bus.Event{
		Kind:      "notify.navigate",
		Timestamp: time.Now(),
		Payload:   targetURL,
	})
}

func (r *Router) persistLocked() {
	if err := r.store.SaveNotifications(r.records); err != nil {
		// The in-memory list stays authoritative; durability catches up
		// on the next successful save.
		r.logger.Error("failed to persist notifications", zap.Error(err))
	}
}

// classify maps a declared category onto the known set. Missing
// categories are chat messages; unknown ones are grouped as other.
func classify(category string) string {
	switch category {
	case "":
		return store.CategoryMessage
	case store.CategoryMessage, store.CategoryBookingAccepted, store.CategoryBookingRejected:
		return category
	default:
		return store.CategoryOther
	}
}
