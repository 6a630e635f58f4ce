package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "conn." for connection lifecycle,
// "chat." for conversation traffic, "notify." for notification
// ingestion and mutations, "ctl." for frontend commands.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
