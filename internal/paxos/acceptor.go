// =============================================================================
// ACCEPTOR - The Safety Guardian of Paxos
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// The acceptor is the voting half of a replica. It remembers two things,
// both kept in storage.Storage:
//
//   promised   the highest number it granted a Prepare for
//   accepted   the (number, value) pair it last accepted, or nothing
//
// THE TWO RULES
// ─────────────
//
//   Prepare(n):  n >  promised  -> promise, report accepted pair
//                otherwise     -> reject
//
//   Accept(n,v): n >= promised  -> accept, remember (n, v)
//                otherwise     -> reject
//
// The >= on Accept lets the proposer that won Prepare(n) have its
// Accept(n) honoured. Prepare is strict so that two proposers presenting
// the same number cannot both be promised.
//
// CLEARING THE SLOT
// ─────────────────
//
// Once a value is decided and applied, the slot is emptied so the next
// command starts a fresh single-decree instance. The promised number is
// kept, so older proposers stay locked out.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Once an acceptor promises number N, it never accepts a
//            proposal numbered below N.
//
// =============================================================================
// COMMON BUG TO AVOID
// =============================================================================
//
// BUG: Replying before the state is stored.
//
// The reply must reflect what storage holds. If SavePromised fails the
// acceptor rejects instead of promising something it will not remember.
//
// =============================================================================

package paxos

import (
	"sync"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/storage"
)

type Acceptor struct {
	id      int
	storage storage.Storage

	// mu is separate from the proposer's round token so that a replica can
	// answer its own Prepare and Accept while a round is in flight.
	mu sync.Mutex
}

func NewAcceptor(id int, s storage.Storage) *Acceptor {
	return &Acceptor{id: id, storage: s}
}

func (a *Acceptor) HandlePrepare(m Prepare) Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	promised, err := a.storage.LoadPromised()
	if err != nil {
		glog.Errorf("[%d] acceptor: load promised: %v", a.id, err)
		return Reject{}
	}
	if !m.Number.Greater(promised) {
		glog.V(1).Infof("[%d] acceptor: reject prepare %v, promised %v", a.id, m.Number, promised)
		return Reject{}
	}
	if err := a.storage.SavePromised(m.Number); err != nil {
		glog.Errorf("[%d] acceptor: save promised: %v", a.id, err)
		return Reject{}
	}

	acc, ok, err := a.storage.LoadAccepted()
	if err != nil {
		glog.Errorf("[%d] acceptor: load accepted: %v", a.id, err)
		return Reject{}
	}
	if !ok {
		return Promise{}
	}
	n := acc.Number
	v := Value{ID: acc.ValueID, Command: acc.Command}
	return Promise{Accepted: &n, Value: &v}
}

func (a *Acceptor) HandleAccept(m Accept) Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	promised, err := a.storage.LoadPromised()
	if err != nil {
		glog.Errorf("[%d] acceptor: load promised: %v", a.id, err)
		return Reject{}
	}
	if m.Number.Less(promised) {
		glog.V(1).Infof("[%d] acceptor: reject accept %v, promised %v", a.id, m.Number, promised)
		return Reject{}
	}
	if err := a.storage.SavePromised(m.Number); err != nil {
		glog.Errorf("[%d] acceptor: save promised: %v", a.id, err)
		return Reject{}
	}
	err = a.storage.SaveAccepted(storage.Accepted{
		Number:  m.Number,
		ValueID: m.Value.ID,
		Command: m.Value.Command,
	})
	if err != nil {
		glog.Errorf("[%d] acceptor: save accepted: %v", a.id, err)
		return Reject{}
	}
	return Accepted{Number: m.Number, Value: m.Value}
}

// Forget empties the accepted slot after v was decided under number. A slot
// holding a different value accepted above number belongs to a newer round
// and is left alone. number may be nil when the sender did not include it.
func (a *Acceptor) Forget(v Value, number *clock.Clock) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok, err := a.storage.LoadAccepted()
	if err != nil {
		glog.Errorf("[%d] acceptor: load accepted: %v", a.id, err)
		return
	}
	if !ok {
		return
	}
	stale := acc.ValueID == v.ID || (number != nil && !acc.Number.Greater(*number))
	if !stale {
		return
	}
	if err := a.storage.ClearAccepted(); err != nil {
		glog.Errorf("[%d] acceptor: clear accepted: %v", a.id, err)
	}
}

// AcceptorState is a point-in-time copy of the acceptor's storage.
type AcceptorState struct {
	Promised clock.Clock
	Accepted *clock.Clock
	Value    *Value
}

func (a *Acceptor) State() AcceptorState {
	a.mu.Lock()
	defer a.mu.Unlock()

	var st AcceptorState
	st.Promised, _ = a.storage.LoadPromised()
	if acc, ok, err := a.storage.LoadAccepted(); err == nil && ok {
		n := acc.Number
		v := Value{ID: acc.ValueID, Command: acc.Command}
		st.Accepted, st.Value = &n, &v
	}
	return st
}
