// =============================================================================
// PAXOS MESSAGE TYPES
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// The messages that flow between replicas during one round. Every request
// is answered by exactly one reply over the transport's exchange.
//
// PHASE 1: PREPARE
// ─────────────────
//
// ┌──────────────┐  proposer prepare (n)            ┌──────────────┐
// │   PROPOSER   │ ────────────────────────────────▶│   ACCEPTOR   │
// │              │◀──────────────────────────────── │              │
// └──────────────┘  acceptor accept [v] (m)         └──────────────┘
//                   acceptor accept [null] null
//                   acceptor reject
//
// A promise carries what the acceptor already accepted, if anything.
//
// PHASE 2: ACCEPT
// ───────────────
//
// ┌──────────────┐  proposer accept [v] (n)         ┌──────────────┐
// │   PROPOSER   │ ────────────────────────────────▶│   ACCEPTOR   │
// │              │◀──────────────────────────────── │              │
// └──────────────┘  acceptor choose [v] (n)         └──────────────┘
//                   acceptor reject
//
// PHASE 3: LEARN
// ──────────────
//
// ┌──────────────┐  learn [v] (n)                   ┌──────────────┐
// │   PROPOSER   │ ────────────────────────────────▶│   LEARNER    │
// │              │◀──────────────────────────────── │              │
// └──────────────┘  ack                             └──────────────┘
//
// =============================================================================
// VALUES
// =============================================================================
//
// A value is a client command plus the identity of the request that carried
// it: "(c, o) purchase alice widget 2". The identity lets a proposer tell its
// own command apart from a textually identical one, and lets learners refuse
// to apply the same request twice.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: A Promise carries the acceptor's accepted (number, value) pair
//            whenever it has one.
//
// Without it a proposer could overwrite a value that was already chosen.
//
// =============================================================================

package paxos

import "github.com/senutpal/quorumstore/internal/clock"

type Kind int

const (
	KindPrepare Kind = iota
	KindAccept
	KindPromise
	KindAccepted
	KindReject
	KindLearn
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindPrepare:
		return "Prepare"
	case KindAccept:
		return "Accept"
	case KindPromise:
		return "Promise"
	case KindAccepted:
		return "Accepted"
	case KindReject:
		return "Reject"
	case KindLearn:
		return "Learn"
	case KindAck:
		return "Ack"
	}
	return "INVALID"
}

type Message interface {
	Kind() Kind
}

type Value struct {
	ID      clock.Clock
	Command string
}

func (v Value) String() string {
	return v.ID.String() + " " + v.Command
}

type Prepare struct {
	Number clock.Clock
}

type Accept struct {
	Number clock.Clock
	Value  Value
}

// Promise grants a Prepare. Accepted and Value are nil when the acceptor has
// nothing accepted.
type Promise struct {
	Accepted *clock.Clock
	Value    *Value
}

type Accepted struct {
	Number clock.Clock
	Value  Value
}

type Reject struct{}

// Learn announces a decision. Number is the proposal that decided it; older
// senders may omit it.
type Learn struct {
	Number *clock.Clock
	Value  Value
}

type Ack struct{}

func (Prepare) Kind() Kind  { return KindPrepare }
func (Accept) Kind() Kind   { return KindAccept }
func (Promise) Kind() Kind  { return KindPromise }
func (Accepted) Kind() Kind { return KindAccepted }
func (Reject) Kind() Kind   { return KindReject }
func (Learn) Kind() Kind    { return KindLearn }
func (Ack) Kind() Kind      { return KindAck }
