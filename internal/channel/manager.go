// Package channel owns the push-channel connection: exactly one
// authenticated websocket per process lifetime. It publishes inbound
// traffic on the bus (chat.* and notify.event) and drives the connection
// state machine; it never touches the message store directly.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/lsanches/bico/internal/bus"
	"github.com/lsanches/bico/internal/status"
	"github.com/lsanches/bico/internal/wire"
)

// Options configures a Manager.
type Options struct {
	// URL is the websocket endpoint.
	URL string
	// AckTimeout bounds how long a send waits for its ack.
	AckTimeout time.Duration
	// MaxReconnectAttempts bounds the backoff loop before Failed.
	MaxReconnectAttempts int
	// BaseBackoff and MaxBackoff shape the reconnect delays.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (o *Options) fillDefaults() {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 5 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 8
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
}

// Manager maintains the push-channel connection.
type Manager struct {
	opts    Options
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	credential string
	joined     map[wire.ID]bool
	pending    map[int64]chan wire.Ack
	seq        int64
	closed     bool

	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewManager creates a manager. Connect must be called before any send.
func NewManager(opts Options, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Manager {
	opts.fillDefaults()
	return &Manager{
		opts:    opts,
		machine: machine,
		bus:     b,
		logger:  logger,
		joined:  make(map[wire.ID]bool),
		pending: make(map[int64]chan wire.Ack),
	}
}

// Connect establishes the authenticated connection and, if targetScope is
// set, joins that conversation. A rejected credential returns AuthError
// and is not retried; a transport failure returns NetworkError. Both are
// terminal for this manager.
func (m *Manager) Connect(ctx context.Context, credential string, targetScope wire.ID) error {
	if err := m.machine.Transition(status.Connecting); err != nil {
		return err
	}

	m.mu.Lock()
	m.credential = credential
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		_ = m.machine.Transition(status.Failed)
		return err
	}

	m.runCtx, m.runCancel = context.WithCancel(context.Background())

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	if err := m.machine.Transition(status.Connected); err != nil {
		// A racing Disconnect won; don't leak the fresh connection.
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		return err
	}
	m.logger.Info("channel connected", zap.String("url", m.opts.URL))

	go m.readLoop(conn)

	if !targetScope.IsZero() {
		if err := m.Join(ctx, targetScope); err != nil {
			return err
		}
	}
	return nil
}

// Join subscribes the connection to a conversation scope. The join is
// remembered and re-issued after every successful reconnect: the server
// does not keep joins across transport drops.
func (m *Manager) Join(ctx context.Context, conversationID wire.ID) error {
	if err := m.writeFrame(ctx, wire.TypeJoinRoom, 0, wire.JoinRoom{ConversationID: conversationID}); err != nil {
		return err
	}
	m.mu.Lock()
	m.joined[conversationID] = true
	m.mu.Unlock()
	m.bus.Publish(bus.Event{
		Kind:      "chat.joined",
		Timestamp: time.Now(),
		Payload:   conversationID,
	})
	return nil
}

// SendMessage submits a message and waits for the server ack. On success
// it returns the server-stored message (with its assigned id); the
// failure modes are AckTimeoutError, SendRejectedError, and
// NetworkError, all local to this send.
func (m *Manager) SendMessage(ctx context.Context, conversationID, receiverID wire.ID, body, kind string) (*wire.Message, error) {
	seq, ackCh := m.registerAck()
	defer m.dropAck(seq)

	payload := wire.SendMessage{
		ConversationID: conversationID,
		ReceiverID:     receiverID,
		Body:           body,
		Kind:           wire.NormalizeKind(kind),
	}
	if err := m.writeFrame(ctx, wire.TypeSendMessage, seq, payload); err != nil {
		return nil, err
	}

	select {
	case ack := <-ackCh:
		if !ack.Success {
			return nil, &SendRejectedError{Reason: ack.ErrorMessage}
		}
		if ack.Message == nil {
			return nil, &SendRejectedError{Reason: "ack missing message"}
		}
		return ack.Message, nil
	case <-time.After(m.opts.AckTimeout):
		return nil, &AckTimeoutError{Timeout: m.opts.AckTimeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MarkRead reports the conversation as consumed. Fire and forget.
func (m *Manager) MarkRead(ctx context.Context, conversationID wire.ID) error {
	return m.writeFrame(ctx, wire.TypeMarkRead, 0, wire.MarkRead{ConversationID: conversationID})
}

// Disconnect tears down the transport. Idempotent; cancels any reconnect
// in progress.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if m.runCancel != nil {
		m.runCancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if !m.machine.Terminal() {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.logger.Info("channel disconnected")
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.mu.Lock()
	credential := m.credential
	m.mu.Unlock()

	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}
	conn, resp, err := websocket.Dial(ctx, m.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Status: resp.StatusCode, Err: err}
		}
		return nil, &NetworkError{Op: "dial", Err: err}
	}
	return conn, nil
}

func (m *Manager) writeFrame(ctx context.Context, frameType string, seq int64, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return &NetworkError{Op: "write", Err: errors.New("not connected")}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := wire.Envelope{Type: frameType, Seq: seq, Data: data}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return &NetworkError{Op: "write", Err: err}
	}
	return nil
}

func (m *Manager) registerAck() (int64, chan wire.Ack) {
	ch := make(chan wire.Ack, 1)
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.pending[seq] = ch
	m.mu.Unlock()
	return seq, ch
}

func (m *Manager) dropAck(seq int64) {
	m.mu.Lock()
	delete(m.pending, seq)
	m.mu.Unlock()
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	ctx := m.runCtx
	for {
		var env wire.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed || ctx.Err() != nil {
				return
			}
			m.logger.Warn("channel read failed", zap.Error(err))
			m.reconnect()
			return
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env wire.Envelope) {
	switch env.Type {
	case wire.TypeAck:
		var ack wire.Ack
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			m.logger.Warn("bad ack frame", zap.Error(err))
			return
		}
		m.mu.Lock()
		ch, ok := m.pending[env.Seq]
		m.mu.Unlock()
		if ok {
			// A duplicate ack for the same seq must not stall the read
			// loop; the buffered first one already won.
			select {
			case ch <- ack:
			default:
			}
		}
	case wire.TypeInitialMessages:
		var snapshot wire.InitialMessages
		if err := json.Unmarshal(env.Data, &snapshot); err != nil {
			m.logger.Warn("bad initialMessages frame", zap.Error(err))
			return
		}
		m.bus.Publish(bus.Event{Kind: "chat.snapshot", Timestamp: time.Now(), Payload: &snapshot})
	case wire.TypeNewMessage:
		var inc wire.NewMessage
		if err := json.Unmarshal(env.Data, &inc); err != nil {
			m.logger.Warn("bad newMessage frame", zap.Error(err))
			return
		}
		m.bus.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: &inc.Message})
	case wire.TypeNotify:
		var n wire.Notify
		if err := json.Unmarshal(env.Data, &n); err != nil {
			m.logger.Warn("bad notify frame", zap.Error(err))
			return
		}
		m.bus.Publish(bus.Event{Kind: "notify.event", Timestamp: time.Now(), Payload: &n})
	case wire.TypeError:
		var chErr wire.ChannelError
		if err := json.Unmarshal(env.Data, &chErr); err != nil {
			return
		}
		m.logger.Warn("channel error frame", zap.String("message", chErr.Message))
		m.bus.Publish(bus.Event{Kind: "chat.error", Timestamp: time.Now(), Payload: &chErr})
	default:
		m.logger.Debug("unknown frame type", zap.String("type", env.Type))
	}
}

// reconnect runs the backoff loop after a transport drop not initiated
// by the caller. Every successful reconnect re-issues the scope joins;
// exhausting the attempt budget transitions to Failed.
func (m *Manager) reconnect() {
	if err := m.machine.Transition(status.Reconnecting); err != nil {
		return
	}

	ctx := m.runCtx
	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		delay := m.backoffDelay(attempt)
		m.logger.Info("reconnecting",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		conn, err := m.dial(ctx)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				m.logger.Error("credential rejected during reconnect", zap.Error(err))
				_ = m.machine.Transition(status.Failed)
				return
			}
			m.logger.Warn("reconnect attempt failed", zap.Error(err))
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		m.conn = conn
		joined := make([]wire.ID, 0, len(m.joined))
		for id := range m.joined {
			joined = append(joined, id)
		}
		m.mu.Unlock()

		if err := m.machine.Transition(status.Connected); err != nil {
			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()
			_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
			return
		}
		m.logger.Info("channel reconnected", zap.Int("attempt", attempt))

		go m.readLoop(conn)

		// Joins are not durable across reconnects.
		for _, id := range joined {
			if err := m.Join(ctx, id); err != nil {
				m.logger.Warn("re-join failed", zap.Error(err), zap.String("conversation", id.String()))
			}
		}
		return
	}

	m.logger.Error("reconnect attempts exhausted",
		zap.Int("attempts", m.opts.MaxReconnectAttempts))
	_ = m.machine.Transition(status.Failed)
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.opts.BaseBackoff << (attempt - 1)
	if delay > m.opts.MaxBackoff || delay <= 0 {
		delay = m.opts.MaxBackoff
	}
	return delay
}
