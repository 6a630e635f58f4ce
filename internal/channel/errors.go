package channel

import (
	"fmt"
	"time"
)

// AuthError means the credential was rejected. Fatal: no retry is
// attempted and the connection state goes to Failed.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("channel auth rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("channel auth rejected: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError is a transient transport failure. Drops after a
// successful connect trigger the reconnect backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AckTimeoutError means a send was written but not acknowledged in time.
// Local to that send attempt; the connection stays up and the caller
// owns any retry decision.
type AckTimeoutError struct {
	Timeout time.Duration
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("no ack within %s", e.Timeout)
}

// SendRejectedError carries a server nack for a sendMessage frame.
type SendRejectedError struct {
	Reason string
}

func (e *SendRejectedError) Error() string {
	return fmt.Sprintf("send rejected by server: %s", e.Reason)
}
