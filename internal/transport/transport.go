// =============================================================================
// TRANSPORT - One Request, One Reply, Bounded Wait
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// Every interaction between replicas in this system is the same shape:
//
//   ┌──────────┐   <clock>:<request>    ┌──────────┐
//   │  SENDER  │ ──────────────────────▶│ RECEIVER │
//   │          │                        │          │
//   │          │◀────────────────────── │          │
//   └──────────┘   <clock>:<reply>      └──────────┘
//                  (or nothing within the timeout)
//
// Exchange is that shape as a single blocking call. The sender's Lamport
// clock rides on every datagram; both sides merge what they observe.
//
// No reply within the timeout means the peer is unreachable. The transport
// only reports it. Removing the peer from the membership table is the
// caller's job.
//
// =============================================================================
// CLOCK BOOKKEEPING
// =============================================================================
//
//   send:    stamp with Now(), transmit, then Tick()
//   receive: Merge(observed) before anything else looks at the payload
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Exchange returns at most one reply per call, and never blocks
//            longer than the configured timeout (or the context, if sooner).
//
// =============================================================================

package transport

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds the wait for a reply datagram.
const DefaultTimeout = 100 * time.Millisecond

var (
	ErrPeerUnreachable = errors.New("transport: peer unreachable")
	ErrMalformed       = errors.New("transport: malformed datagram")
	ErrClosed          = errors.New("transport: closed")
)

// Handler serves one inbound request. from is the sender's identity as
// carried by its clock. Returning false sends no reply.
type Handler func(from int, body string) (reply string, ok bool)

type Transport interface {
	// Exchange sends body to replica to and waits for its reply.
	Exchange(ctx context.Context, to int, body string) (Frame, error)
	// Listen starts serving inbound requests with h. It returns once the
	// transport is ready to receive.
	Listen(h Handler) error
	Close() error
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
