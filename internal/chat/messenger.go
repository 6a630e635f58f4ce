package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/wire"
)

// ValidationError rejects a send before it reaches the channel.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid message: " + e.Reason }

// Sender is the channel surface the messenger needs. The connection
// manager implements it.
type Sender interface {
	SendMessage(ctx context.Context, conversationID, receiverID wire.ID, body, kind string) (*wire.Message, error)
}

// SendFailure is the payload of chat.send_failed events. Body carries
// the original compose text so the caller can restore it for re-edit.
type SendFailure struct {
	ConversationID wire.ID
	Body           string
	Err            string
}

// Messenger drives optimistic sends: the message appears locally before
// the server confirms it, and is replaced by the confirmed echo or
// rolled back on failure. Send failures are local to one attempt and
// never touch the connection.
type Messenger struct {
	store  *Store
	sender Sender
	selfID wire.ID
	bus    *bus.Bus
	logger *zap.Logger
}

// NewMessenger creates a messenger sending as selfID.
func NewMessenger(store *Store, sender Sender, selfID wire.ID, b *bus.Bus, logger *zap.Logger) *Messenger {
	return &Messenger{
		store:  store,
		sender: sender,
		selfID: selfID,
		bus:    b,
		logger: logger,
	}
}

// Send validates, optimistically appends, and submits a message. On any
// failure the optimistic entry is rolled back and a chat.send_failed
// event carries the original body back to the composer.
func (m *Messenger) Send(ctx context.Context, conversationID, receiverID wire.ID, body, kind string) (*wire.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, &ValidationError{Reason: "empty body"}
	}

	local := m.store.AppendOptimistic(conversationID, m.selfID, receiverID, body, kind)

	confirmed, err := m.sender.SendMessage(ctx, conversationID, receiverID, body, kind)
	if err != nil {
		m.store.FailOptimistic(conversationID, local.ID)
		m.logger.Warn("send failed", zap.Error(err),
			zap.String("conversation", conversationID.String()))
		m.bus.Publish(bus.Event{
			Kind:      "chat.send_failed",
			Timestamp: time.Now(),
			Payload:   SendFailure{ConversationID: conversationID, Body: body, Err: err.Error()},
		})
		return nil, err
	}

	m.store.ResolveOptimistic(conversationID, local.ID, *confirmed)
	m.bus.Publish(bus.Event{
		Kind:      "chat.send_ack",
		Timestamp: time.Now(),
		Payload:   confirmed.ID,
	})
	return confirmed, nil
}
