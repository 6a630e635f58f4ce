package store

// Notification categories. Inbound events with an unknown category are
// classified as CategoryOther; events with no category at all are treated
// as chat messages.
const (
	CategoryMessage         = "message"
	CategoryBookingAccepted = "bookingAccepted"
	CategoryBookingRejected = "bookingRejected"
	CategoryOther           = "other"
)

// NotificationRecord is a durable notification. Immutable except Read;
// removed only by explicit user deletion, never by expiry.
type NotificationRecord struct {
	ID        string               `json:"id"`
	Category  string               `json:"category"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	CreatedAt int64                `json:"createdAt"`
	Read      bool                 `json:"read"`
	TargetURL string               `json:"targetUrl,omitempty"`
	Icon      string               `json:"icon,omitempty"`
	Actions   []NotificationAction `json:"actions,omitempty"`
}

// NotificationAction is a button attached to a platform notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}
