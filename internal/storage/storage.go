// =============================================================================
// STORAGE INTERFACE - Where an Acceptor Keeps Its Promises
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// The acceptor's state lives behind this interface:
//
// 1. Promised (clock.Clock)
//    - The highest proposal number this acceptor promised not to go below
//    - Only moves forward
//
// 2. Accepted slot (number, request id, command)
//    - The highest-numbered value this acceptor accepted in the current round
//    - Surfaced to any higher-numbered preparer
//    - Cleared once the decision for it has been learned
//
// Only an in-memory backend exists. State does not survive a restart: a
// restarted replica is a new replica, and the membership table of its peers
// has already dropped it.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Load after Save returns exactly what was saved. Callers must be
//            able to rely on a promise made before a reply was sent.
//
// =============================================================================

package storage

import (
	"errors"

	"github.com/senutpal/quorumstore/internal/clock"
)

var ErrClosed = errors.New("storage: closed")

// Accepted is the acceptor's accepted slot.
type Accepted struct {
	Number  clock.Clock
	ValueID clock.Clock
	Command string
}

type Storage interface {
	SavePromised(number clock.Clock) error
	LoadPromised() (clock.Clock, error)

	SaveAccepted(a Accepted) error
	// LoadAccepted reports false when the slot is empty.
	LoadAccepted() (Accepted, bool, error)
	ClearAccepted() error

	Close() error
}
