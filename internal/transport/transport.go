// Package transport abstracts pushing a framed event to one specific
// WebSocket connection. It is the only seam between the realtime core and
// the concrete network technology; implementations are injected, never
// hard-coded by consumers.
package transport

import "context"

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	// Delivered means the transport accepted the payload for the target
	// connection. No claim is made about client-side processing.
	Delivered Outcome = iota

	// Gone means the transport authoritatively reports the connection no
	// longer exists. Callers must treat it as a disconnect and prune the
	// registry entry. Never retried.
	Gone

	// Transient means delivery failed for a reason that may succeed on
	// retry. Callers must not prune the registry on this outcome alone.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	default:
		return "transient"
	}
}

// Transport pushes framed bytes to one connection. The endpoint identifies
// the management API the connection was accepted on; the returned error
// carries detail for Transient outcomes.
type Transport interface {
	Send(ctx context.Context, endpoint, connectionID string, data []byte) (Outcome, error)
}
