package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a negotiation message on the broadcast channel. Each kind
// maps to a fixed 4-byte topic tag on the wire.
type Kind string

const (
	KindJob       Kind = "job"       // rider -> driver job proposal
	KindQuote     Kind = "quote"     // driver -> rider fare quote, -1 rejects
	KindCreated   Kind = "created"   // journey-created notification
	KindAccepted  Kind = "accepted"  // journey-accepted notification
	KindLocation  Kind = "location"  // location update
	KindCompleted Kind = "completed" // journey-completed notification
	KindNewFare   Kind = "new-fare"  // fare renegotiation proposal
)

// SendError is a failed publish: relay unreachable or encryption target
// invalid. Unlike poll faults it is surfaced, because silently losing an
// outbound message would leave negotiation state inconsistent.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("messaging: publish %s: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsSendFault reports whether err is a surfaced publish failure.
func IsSendFault(err error) bool {
	var se *SendError
	return errors.As(err, &se)
}

// IChannel is the encrypted topic-based negotiation channel. Inbound
// messages are decoded by topic and surfaced as named events on the shared
// event bus; delivery is at-most-once, best-effort. Callers needing
// reliability await a correlated response or fall back to a contract action.
type IChannel interface {
	// EnsureReady is idempotent: on first use it derives the key pair
	// (importing a configured or stored private key if present), installs a
	// message filter scoped to the identity and starts the poll loop.
	EnsureReady(ctx context.Context) error
	// PublicKey returns the identity's public key, setting up the identity
	// first if needed. Drivers attach it to their on-chain advert.
	PublicKey(ctx context.Context) (string, error)
	// Publish encrypts the JSON-encoded payload under the recipient's public
	// key, signs it with the local identity and submits it for relay.
	Publish(ctx context.Context, kind Kind, recipientPubKey string, payload interface{}) error
	// Stop cancels the poll loop. Safe to call more than once.
	Stop()
}
