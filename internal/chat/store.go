// Package chat owns the in-memory conversation views. Each conversation
// is a single deduplicated, time-ordered message log merged from two
// independent sources: the push channel (snapshot + live increments) and
// the one-shot REST fallback pull.
package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/wire"
)

// Hydration tracks whether a conversation has received its initial
// snapshot, and from which source.
type Hydration int

const (
	NotHydrated Hydration = iota
	HydratedViaPush
	HydratedViaFallback
)

func (h Hydration) String() string {
	switch h {
	case HydratedViaPush:
		return "push"
	case HydratedViaFallback:
		return "fallback"
	default:
		return "none"
	}
}

// optimisticPrefix marks locally-assigned temp ids. Server ids never
// carry it.
const optimisticPrefix = "local-"

// pendingEcho is an optimistic send awaiting its server-confirmed echo.
type pendingEcho struct {
	tempID   wire.ID
	senderID wire.ID
	body     string
	sentAt   time.Time
}

type conversationLog struct {
	hydration Hydration
	messages  []wire.Message
	index     map[wire.ID]int
	pending   []pendingEcho
}

// Store holds the per-conversation logs. It is the only component that
// mutates them; UI readers get sorted copies.
type Store struct {
	mu         sync.RWMutex
	logs       map[wire.ID]*conversationLog
	echoWindow time.Duration
	bus        *bus.Bus
	now        func() time.Time
}

// NewStore creates a message store. echoWindow bounds how long an
// optimistic send can wait to be matched against its server echo.
func NewStore(echoWindow time.Duration, b *bus.Bus) *Store {
	if echoWindow <= 0 {
		echoWindow = 10 * time.Second
	}
	return &Store{
		logs:       make(map[wire.ID]*conversationLog),
		echoWindow: echoWindow,
		bus:        b,
		now:        time.Now,
	}
}

func (s *Store) log(conversationID wire.ID) *conversationLog {
	l, ok := s.logs[conversationID]
	if !ok {
		l = &conversationLog{index: make(map[wire.ID]int)}
		s.logs[conversationID] = l
	}
	return l
}

// ApplyPushSnapshot merges the initial push batch and marks the
// conversation hydrated via push, cancelling any pending fallback from
// the engine's side. Idempotent under redelivery.
func (s *Store) ApplyPushSnapshot(conversationID wire.ID, messages []wire.Message) {
	s.mu.Lock()
	l := s.log(conversationID)
	changed := l.mergeBatch(messages, s.now(), s.echoWindow)
	if l.hydration == NotHydrated {
		l.hydration = HydratedViaPush
		changed = true
	}
	l.resort()
	s.mu.Unlock()
	if changed {
		s.publishUpdated(conversationID)
	}
}

// ApplyPushIncrement inserts one live message, deduplicated by server
// id. A message matching a pending optimistic send replaces that send
// instead of duplicating it.
func (s *Store) ApplyPushIncrement(msg wire.Message) {
	msg = normalize(msg)
	s.mu.Lock()
	l := s.log(msg.ConversationID)
	l.reconcileEcho(msg, s.now(), s.echoWindow)
	changed := l.insert(msg)
	l.resort()
	s.mu.Unlock()
	if changed {
		s.publishUpdated(msg.ConversationID)
	}
}

// ApplyFallbackResult merges the one-shot REST pull. Messages already
// delivered by push are absorbed silently; if the push snapshot never
// arrived this hydrates the conversation via fallback.
func (s *Store) ApplyFallbackResult(conversationID wire.ID, messages []wire.Message) {
	s.mu.Lock()
	l := s.log(conversationID)
	changed := l.mergeBatch(messages, s.now(), s.echoWindow)
	if l.hydration == NotHydrated {
		l.hydration = HydratedViaFallback
		changed = true
	}
	l.resort()
	s.mu.Unlock()
	if changed {
		s.publishUpdated(conversationID)
	}
}

// AppendOptimistic inserts a locally-sent message under a temp id so the
// UI shows it immediately. The returned message carries the temp id used
// to resolve or fail it later.
func (s *Store) AppendOptimistic(conversationID, senderID, receiverID wire.ID, body, kind string) wire.Message {
	msg := wire.Message{
		ID:             wire.ID(optimisticPrefix + uuid.NewString()),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Kind:           wire.NormalizeKind(kind),
		CreatedAt:      s.now().UnixMilli(),
	}
	s.mu.Lock()
	l := s.log(conversationID)
	l.insert(msg)
	l.pending = append(l.pending, pendingEcho{
		tempID:   msg.ID,
		senderID: senderID,
		body:     body,
		sentAt:   s.now(),
	})
	l.resort()
	s.mu.Unlock()
	s.publishUpdated(conversationID)
	return msg
}

// ResolveOptimistic replaces a temp message with its server-confirmed
// form, typically carried by the send ack.
func (s *Store) ResolveOptimistic(conversationID, tempID wire.ID, confirmed wire.Message) {
	confirmed = normalize(confirmed)
	s.mu.Lock()
	l := s.log(conversationID)
	l.removeByID(tempID)
	l.dropPending(tempID)
	l.insert(confirmed)
	l.resort()
	s.mu.Unlock()
	s.publishUpdated(conversationID)
}

// FailOptimistic removes a temp message after a failed or unacknowledged
// send. The caller owns restoring the compose input.
func (s *Store) FailOptimistic(conversationID, tempID wire.ID) {
	s.mu.Lock()
	l := s.log(conversationID)
	removed := l.removeByID(tempID)
	l.dropPending(tempID)
	s.mu.Unlock()
	if removed {
		s.publishUpdated(conversationID)
	}
}

// Messages returns the conversation view, ascending by CreatedAt.
func (s *Store) Messages(conversationID wire.ID) []wire.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[conversationID]
	if !ok {
		return nil
	}
	out := make([]wire.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Hydration returns the hydration state for a conversation.
func (s *Store) Hydration(conversationID wire.ID) Hydration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.logs[conversationID]
	if !ok {
		return NotHydrated
	}
	return l.hydration
}

func (s *Store) publishUpdated(conversationID wire.ID) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "chat.updated",
		Timestamp: s.now(),
		Payload:   conversationID,
	})
}

// mergeBatch inserts a snapshot or fallback batch, reconciling each
// message against pending optimistic sends: an echo delivered inside the
// batch must replace its temp entry the same way a live increment does.
// Reports whether the log changed.
func (l *conversationLog) mergeBatch(messages []wire.Message, now time.Time, window time.Duration) bool {
	changed := false
	for i := range messages {
		m := normalize(messages[i])
		if l.reconcileEcho(m, now, window) {
			changed = true
		}
		if l.insert(m) {
			changed = true
		}
	}
	return changed
}

// insert adds msg if its id is not already present. Reports whether the
// log changed.
func (l *conversationLog) insert(msg wire.Message) bool {
	if msg.ID.IsZero() {
		return false
	}
	if _, ok := l.index[msg.ID]; ok {
		return false
	}
	l.index[msg.ID] = len(l.messages)
	l.messages = append(l.messages, msg)
	return true
}

func (l *conversationLog) removeByID(id wire.ID) bool {
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.messages = append(l.messages[:i], l.messages[i+1:]...)
	delete(l.index, id)
	l.reindex()
	return true
}

// reconcileEcho drops the optimistic temp entry matched by an inbound
// server message: same sender, same body, inside the echo window. The
// server does not echo client temp ids, so this heuristic is the dedup
// path for the optimistic send. Reports whether a temp entry was dropped.
func (l *conversationLog) reconcileEcho(msg wire.Message, now time.Time, window time.Duration) bool {
	if strings.HasPrefix(msg.ID.String(), optimisticPrefix) {
		return false
	}
	for i, p := range l.pending {
		if p.senderID == msg.SenderID && p.body == msg.Body && now.Sub(p.sentAt) <= window {
			l.removeByID(p.tempID)
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (l *conversationLog) dropPending(tempID wire.ID) {
	for i, p := range l.pending {
		if p.tempID == tempID {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

// resort restores the authoritative ordering: ascending CreatedAt,
// stable so equal timestamps keep their arrival order.
func (l *conversationLog) resort() {
	sort.SliceStable(l.messages, func(i, j int) bool {
		return l.messages[i].CreatedAt < l.messages[j].CreatedAt
	})
	l.reindex()
}

func (l *conversationLog) reindex() {
	for i := range l.messages {
		l.index[l.messages[i].ID] = i
	}
}

func normalize(msg wire.Message) wire.Message {
	msg.Kind = wire.NormalizeKind(msg.Kind)
	return msg
}
