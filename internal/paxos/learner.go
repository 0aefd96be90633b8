// =============================================================================
// LEARNER - Applying Decided Values
// =============================================================================
//
// The learner hears about decisions through Learn messages (or directly
// from the local proposer) and applies each decided command to the state
// machine exactly once. Duplicates are recognised by the value's request
// identity, not its text: two clients may legitimately send the same
// command and both must be applied.
//
// After applying, the learner empties the local acceptor's slot so the
// next command can be decided.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: A given request identity is applied at most once per replica.
//
// Learn messages are retried and may arrive from more than one proposer
// (a proposer that adopted someone else's value broadcasts it too).
//
// =============================================================================

package paxos

import (
	"sync"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/clock"
)

// StateMachine consumes decided commands in decision order.
type StateMachine interface {
	Apply(command string) string
}

// Decision is published to subscribers after a command is applied.
type Decision struct {
	Replica  int
	Number   *clock.Clock
	Value    Value
	Response string
}

type Learner struct {
	id       int
	sm       StateMachine
	acceptor *Acceptor

	mu      sync.Mutex
	applied map[clock.Clock]string
	count   uint64
	subs    []func(Decision)
}

func NewLearner(id int, sm StateMachine, acceptor *Acceptor) *Learner {
	return &Learner{
		id:       id,
		sm:       sm,
		acceptor: acceptor,
		applied:  make(map[clock.Clock]string),
	}
}

// Learn applies v unless its identity was applied before. It returns the
// state machine's response (cached for duplicates) and whether v was new.
func (l *Learner) Learn(number *clock.Clock, v Value) (string, bool) {
	l.mu.Lock()
	if resp, ok := l.applied[v.ID]; ok {
		l.mu.Unlock()
		glog.V(1).Infof("[%d] learner: %v already applied", l.id, v.ID)
		l.acceptor.Forget(v, number)
		return resp, false
	}
	resp := l.sm.Apply(v.Command)
	l.applied[v.ID] = resp
	l.count++
	subs := append([]func(Decision){}, l.subs...)
	l.mu.Unlock()

	l.acceptor.Forget(v, number)
	glog.Infof("[%d] learned %s (%s): %s", l.id, v.Command, clock.FormatOptional(number), resp)

	d := Decision{Replica: l.id, Number: number, Value: v, Response: resp}
	for _, fn := range subs {
		fn(d)
	}
	return resp, true
}

// Applied returns the cached response for a request identity.
func (l *Learner) Applied(id clock.Clock) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	resp, ok := l.applied[id]
	return resp, ok
}

func (l *Learner) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Subscribe registers fn to be called after every new decision. fn must not
// block for long; it runs on the goroutine that delivered the decision.
func (l *Learner) Subscribe(fn func(Decision)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}
