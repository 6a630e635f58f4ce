package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/wire"
)

// Engine feeds the message store from chat.* bus events published by the
// connection manager, and arms the per-conversation fallback timer. It
// guarantees at most one fallback request per conversation for the
// process lifetime, and none at all if the push snapshot arrives first.
type Engine struct {
	store   *Store
	fetcher Fetcher
	bus     *bus.Bus
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	timers  map[wire.ID]*time.Timer
	fetched map[wire.ID]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an engine over the store and fallback fetcher.
func NewEngine(store *Store, fetcher Fetcher, b *bus.Bus, logger *zap.Logger, fallbackTimeout time.Duration) *Engine {
	if fallbackTimeout <= 0 {
		fallbackTimeout = 800 * time.Millisecond
	}
	return &Engine{
		store:   store,
		fetcher: fetcher,
		bus:     b,
		logger:  logger,
		timeout: fallbackTimeout,
		timers:  make(map[wire.ID]*time.Timer),
		fetched: make(map[wire.ID]bool),
	}
}

// Start subscribes to inbound chat events on the bus.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("chat.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-e.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and cancels pending fallback timers.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Lock()
	for id, tm := range e.timers {
		tm.Stop()
		delete(e.timers, id)
	}
	e.mu.Unlock()
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "chat.joined":
		conversationID, ok := evt.Payload.(wire.ID)
		if !ok {
			return
		}
		e.ScheduleFallback(conversationID)
	case "chat.snapshot":
		snapshot, ok := evt.Payload.(*wire.InitialMessages)
		if !ok {
			return
		}
		e.applySnapshot(snapshot)
	case "chat.message":
		msg, ok := evt.Payload.(*wire.Message)
		if !ok {
			return
		}
		e.store.ApplyPushIncrement(*msg)
	}
}

func (e *Engine) applySnapshot(snapshot *wire.InitialMessages) {
	conversationID := snapshot.ConversationID
	if conversationID.IsZero() && len(snapshot.Messages) > 0 {
		conversationID = snapshot.Messages[0].ConversationID
	}
	if conversationID.IsZero() {
		return
	}
	e.store.ApplyPushSnapshot(conversationID, snapshot.Messages)
	e.cancelFallback(conversationID)
	e.logger.Info("conversation hydrated via push",
		zap.String("conversation", conversationID.String()),
		zap.Int("messages", len(snapshot.Messages)))
}

// ScheduleFallback arms the one-shot hydration timer for a conversation.
// Re-arming (e.g. after a reconnect re-join) is a no-op once the
// conversation is hydrated or the single fallback request was spent.
func (e *Engine) ScheduleFallback(conversationID wire.ID) {
	if e.store.Hydration(conversationID) != NotHydrated {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fetched[conversationID] {
		return
	}
	if _, armed := e.timers[conversationID]; armed {
		return
	}
	e.timers[conversationID] = time.AfterFunc(e.timeout, func() {
		e.fireFallback(conversationID)
	})
}

func (e *Engine) cancelFallback(conversationID wire.ID) {
	e.mu.Lock()
	if tm, ok := e.timers[conversationID]; ok {
		tm.Stop()
		delete(e.timers, conversationID)
	}
	e.mu.Unlock()
}

func (e *Engine) fireFallback(conversationID wire.ID) {
	e.mu.Lock()
	delete(e.timers, conversationID)
	if e.fetched[conversationID] {
		e.mu.Unlock()
		return
	}
	// The timer may race a snapshot that arrived just now.
	if e.store.Hydration(conversationID) != NotHydrated {
		e.mu.Unlock()
		return
	}
	e.fetched[conversationID] = true
	e.mu.Unlock()

	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	messages, err := e.fetcher.FetchMessages(ctx, conversationID)
	if err != nil {
		// Non-fatal: the conversation stays push-only.
		e.logger.Warn("fallback fetch failed", zap.Error(err),
			zap.String("conversation", conversationID.String()))
		e.bus.Publish(bus.Event{
			Kind:      "chat.fallback_failed",
			Timestamp: time.Now(),
			Payload:   conversationID,
		})
		return
	}

	e.store.ApplyFallbackResult(conversationID, messages)
	e.logger.Info("conversation hydrated via fallback",
		zap.String("conversation", conversationID.String()),
		zap.Int("messages", len(messages)))
}
