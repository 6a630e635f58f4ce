package wire

// Message kinds. Unknown kinds normalize to KindText so a new server-side
// kind degrades to plain text instead of being dropped.
const (
	KindText     = "text"
	KindImage    = "image"
	KindLocation = "location"
	KindSystem   = "system"
)

// Message is a conversation message as delivered by the channel or the
// fallback REST pull. Timestamps are unix milliseconds; ReadAt is zero
// while unread.
type Message struct {
	ID             ID     `json:"id"`
	ConversationID ID     `json:"conversationId"`
	SenderID       ID     `json:"senderId"`
	ReceiverID     ID     `json:"receiverId"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
	ReadAt         int64  `json:"readAt,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// NormalizeKind maps an arbitrary kind string onto the known set.
func NormalizeKind(kind string) string {
	switch kind {
	case KindText, KindImage, KindLocation, KindSystem:
		return kind
	default:
		return KindText
	}
}
