package wire

import "encoding/json"

// Envelope is the framing for every push-channel payload, both directions.
// Seq correlates an outbound frame with its ack; inbound broadcast frames
// carry no seq.
type Envelope struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	// Outbound frame types.
	TypeJoinRoom    = "joinRoom"
	TypeSendMessage = "sendMessage"
	TypeMarkRead    = "markRead"

	// Inbound frame types.
	TypeInitialMessages = "initialMessages"
	TypeNewMessage      = "newMessage"
	TypeNotify          = "notify"
	TypeError           = "error"
	TypeAck             = "ack"
)

// JoinRoom requests delivery for a conversation scope.
type JoinRoom struct {
	ConversationID ID `json:"conversationId"`
}

// SendMessage submits a message for a conversation. The server assigns the
// message id and echoes the stored message in the ack.
type SendMessage struct {
	ConversationID ID     `json:"conversationId"`
	ReceiverID     ID     `json:"receiverId"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
}

// MarkRead reports that the local user has consumed a conversation.
type MarkRead struct {
	ConversationID ID `json:"conversationId"`
}

// InitialMessages is the hydration snapshot delivered after a join. Some
// server builds omit conversationId; the scope is then taken from the
// first message.
type InitialMessages struct {
	ConversationID ID        `json:"conversationId,omitempty"`
	Messages       []Message `json:"messages"`
}

// NewMessage is a single live increment.
type NewMessage struct {
	Message Message `json:"message"`
}

// Notify is a notify-class event, independent of any joined conversation.
type Notify struct {
	Category  string         `json:"category"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	TargetURL string         `json:"targetUrl,omitempty"`
	Icon      string         `json:"icon,omitempty"`
	Actions   []NotifyAction `json:"actions,omitempty"`
}

// NotifyAction is a button attached to a platform notification.
type NotifyAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Ack acknowledges an outbound frame. On sendMessage success it carries the
// server-stored message; on failure only ErrorMessage is set.
type Ack struct {
	Success      bool     `json:"success"`
	Message      *Message `json:"message,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

// ChannelError is a server-pushed protocol error.
type ChannelError struct {
	Message string `json:"message"`
}
