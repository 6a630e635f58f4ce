package daemon

import (
	"context"

	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/wire"
)

// JoinRequest is the payload of ctl.join commands.
type JoinRequest struct {
	ConversationID wire.ID
}

// SendRequest is the payload of ctl.send commands.
type SendRequest struct {
	ConversationID wire.ID
	ReceiverID     wire.ID
	Body           string
	Kind           string
}

// MarkReadRequest is the payload of ctl.mark_read commands.
type MarkReadRequest struct {
	ConversationID wire.ID
}

// channelControl is the connection surface the control loop drives.
type channelControl interface {
	Join(ctx context.Context, conversationID wire.ID) error
	MarkRead(ctx context.Context, conversationID wire.ID) error
}

// composer submits outbound messages. The messenger implements it.
type composer interface {
	Send(ctx context.Context, conversationID, receiverID wire.ID, body, kind string) (*wire.Message, error)
}

// Control executes ctl.* bus commands against the conversation
// subsystem. An embedding frontend (TUI, tray client) publishes
// commands and observes the resulting chat.* and conn.* events; command
// failures are reported the same way (chat.send_failed, chat.error), so
// Control itself only logs them.
type Control struct {
	channel  channelControl
	composer composer
	bus      *bus.Bus
	logger   *zap.Logger

	cancel context.CancelFunc
}

// NewControl creates the command loop over the channel and messenger.
func NewControl(channel channelControl, composer composer, b *bus.Bus, logger *zap.Logger) *Control {
	return &Control{
		channel:  channel,
		composer: composer,
		bus:      b,
		logger:   logger,
	}
}

// Start subscribes to ctl.* commands on the bus.
func (c *Control) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	ch, unsub := c.bus.Subscribe("ctl.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				c.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the command loop.
func (c *Control) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Control) handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "ctl.join":
		req, ok := evt.Payload.(JoinRequest)
		if !ok {
			return
		}
		if err := c.channel.Join(ctx, req.ConversationID); err != nil {
			c.logger.Warn("join command failed", zap.Error(err),
				zap.String("conversation", req.ConversationID.String()))
		}
	case "ctl.send":
		req, ok := evt.Payload.(SendRequest)
		if !ok {
			return
		}
		if _, err := c.composer.Send(ctx, req.ConversationID, req.ReceiverID, req.Body, req.Kind); err != nil {
			c.logger.Warn("send command failed", zap.Error(err),
				zap.String("conversation", req.ConversationID.String()))
		}
	case "ctl.mark_read":
		req, ok := evt.Payload.(MarkReadRequest)
		if !ok {
			return
		}
		if err := c.channel.MarkRead(ctx, req.ConversationID); err != nil {
			c.logger.Warn("mark_read command failed", zap.Error(err),
				zap.String("conversation", req.ConversationID.String()))
		}
	default:
		c.logger.Debug("unknown control command", zap.String("kind", evt.Kind))
	}
}
