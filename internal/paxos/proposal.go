// =============================================================================
// PROPOSAL NUMBERS AND ROUND OUTCOMES
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// A proposal number is a Lamport clock reading (counter, owner). Two
// replicas never produce the same reading because the owner breaks ties:
//
//   (5, 1) < (5, 2) < (6, 1)
//
// Each round ticks the proposer's clock, so its numbers strictly increase.
// Every exchange merges the peer's clock, so a proposer that lost a round
// has already seen a higher number by the time it retries.
//
// This file also holds what a round reports back to the caller.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Outcome.Original is true only when the decided value carries
//            the caller's own request identity.
//
// A caller that sees Original == false must retry its command in a new
// round, otherwise the command is silently lost.
//
// =============================================================================

package paxos

import (
	"errors"

	"github.com/senutpal/quorumstore/internal/clock"
)

var (
	ErrPrepareRejected   = errors.New("paxos: prepare rejected by majority")
	ErrAcceptRejected    = errors.New("paxos: accept rejected by majority")
	ErrQuorumUnreachable = errors.New("paxos: quorum unreachable")
)

// Outcome of one completed round.
type Outcome struct {
	Number   clock.Clock
	Value    Value
	Original bool
	// Response is what the state machine returned when Value was applied.
	Response string
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseAccepting
	PhaseLearning
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseAccepting:
		return "accepting"
	case PhaseLearning:
		return "learning"
	}
	return "unknown"
}

// ProposerState is a snapshot of the round in flight, if any.
type ProposerState struct {
	Phase   Phase
	Number  clock.Clock
	Value   Value
	Accepts int
	Rejects int
	Rounds  uint64
}
