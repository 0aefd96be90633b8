// =============================================================================
// CLOCK VALUES - Lamport Timestamps as Proposal Numbers
// =============================================================================
//
// A Clock is a (counter, owner) pair. It plays two parts in this system:
//
// 1. EVENT ORDERING: every datagram carries the sender's clock, and every
//    receiver merges it, so causally later events carry larger clocks.
//
// 2. PROPOSAL NUMBERS: a proposer uses its current clock reading as the
//    Paxos proposal number. The owner field breaks ties, so two replicas
//    can never produce the same number.
//
// Ordering (ascending):
//    (1, 2) < (2, 1) < (5, 1) < (5, 2) < (6, 1)
//
// =============================================================================
// WIRE FORM
// =============================================================================
//
//   (counter, owner)     e.g. "(12, 3)"
//   null                 an absent clock (acceptor with nothing accepted)
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Compare returns 0 only when both fields are equal.
//
// Two replicas with distinct owners can share a counter value, never a
// whole clock.
//
// =============================================================================

package clock

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Null is the textual form of an absent clock.
const Null = "null"

var ErrBadClock = errors.New("clock: malformed clock")

var clockPattern = regexp.MustCompile(`^\((\d+), ?(\d+)\)$`)

type Clock struct {
	Counter uint64
	Owner   int
}

func New(counter uint64, owner int) Clock {
	return Clock{Counter: counter, Owner: owner}
}

func (c Clock) Compare(other Clock) int {
	switch {
	case c.Counter > other.Counter:
		return 1
	case c.Counter < other.Counter:
		return -1
	case c.Owner > other.Owner:
		return 1
	case c.Owner < other.Owner:
		return -1
	}
	return 0
}

func (c Clock) Less(other Clock) bool    { return c.Compare(other) < 0 }
func (c Clock) Greater(other Clock) bool { return c.Compare(other) > 0 }
func (c Clock) Equal(other Clock) bool   { return c == other }

// IsZero reports whether c is below every clock a replica can emit.
func (c Clock) IsZero() bool { return c.Counter == 0 && c.Owner == 0 }

func (c Clock) String() string {
	return fmt.Sprintf("(%d, %d)", c.Counter, c.Owner)
}

func Parse(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	counter, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	owner, err := strconv.Atoi(m[2])
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return Clock{Counter: counter, Owner: owner}, nil
}

// ParseOptional decodes a clock that may be absent. The bool result is false
// for the literal "null".
func ParseOptional(s string) (Clock, bool, error) {
	if s == Null {
		return Clock{}, false, nil
	}
	c, err := Parse(s)
	if err != nil {
		return Clock{}, false, err
	}
	return c, true, nil
}

// FormatOptional is the inverse of ParseOptional.
func FormatOptional(c *Clock) string {
	if c == nil {
		return Null
	}
	return c.String()
}
