// =============================================================================
// PROPOSER - The Driver of Paxos Consensus
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// The proposer runs one round of single-decree Paxos for a client command.
// A round talks to every member of the table, itself included, through the
// same exchange used for remote peers.
//
// ONE ROUND
// ─────────
//
// ┌─────────────────────────────────────────────────────────────────────────┐
// │ 1. n = clock.Tick()                                                     │
// │ 2. Prepare(n) to all members, in parallel                               │
// │    fewer than quorum promises        -> ErrPrepareRejected              │
// │ 3. adopt the value of the highest-numbered promise that carries one,    │
// │    otherwise keep our own value                                         │
// │ 4. Accept(n, v) to all members, in parallel                             │
// │    fewer than quorum accepts         -> ErrAcceptRejected               │
// │ 5. apply v locally, then Learn(n, v) to all other members               │
// └─────────────────────────────────────────────────────────────────────────┘
//
// A member whose exchange times out is removed from the table on the spot.
// Quorum is recomputed from what remains, so a three-replica cluster that
// loses one member keeps deciding with two, and a lone survivor decides
// alone. A phase that ends with fewer answers than the quorum (the caller's
// context ran out before the silent members could be removed) fails with
// ErrQuorumUnreachable.
//
// If v was adopted from a promise the round still completes: the earlier
// value is now decided everywhere. The caller sees Original == false and
// retries its own command in a fresh round.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: If any promise in the quorum reports an accepted value, the
//            Accept phase proposes that value and not our own.
//
// =============================================================================
// COMMON BUG TO AVOID
// =============================================================================
//
// BUG: Holding the acceptor's lock (or any lock the inbound handler needs)
//      across a round.
//
// The proposer exchanges with its own replica. If the inbound handler had
// to wait for the proposer, every round would deadlock on itself. The round
// token below is private to the proposer.
//
// =============================================================================

package paxos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/transport"
)

// Exchanger is the part of transport.Transport the proposer needs.
type Exchanger interface {
	Exchange(ctx context.Context, to int, body string) (transport.Frame, error)
}

type Proposer struct {
	id      int
	clock   *clock.Lamport
	members *membership.Table
	net     Exchanger
	learner *Learner

	// round is held for the whole of Run.
	round sync.Mutex

	mu    sync.Mutex
	state ProposerState
}

func NewProposer(id int, lc *clock.Lamport, members *membership.Table, net Exchanger, learner *Learner) *Proposer {
	return &Proposer{
		id:      id,
		clock:   lc,
		members: members,
		net:     net,
		learner: learner,
	}
}

func (p *Proposer) Run(ctx context.Context, v Value) (Outcome, error) {
	if err := ValidCommand(v.Command); err != nil {
		return Outcome{}, err
	}

	p.round.Lock()
	defer p.round.Unlock()
	defer p.setPhase(PhaseIdle)

	if !p.members.Reachable() {
		return Outcome{}, p.unreachable(0)
	}

	number := p.clock.Tick()
	p.begin(number, v)
	glog.V(1).Infof("[%d] round %v: prepare %s", p.id, number, v)

	// Phase 1
	replies := p.broadcast(ctx, p.members.IDs(), Prepare{Number: number})
	chosen := v
	var highest *clock.Clock
	promises := 0
	for _, id := range sortedIDs(replies) {
		pr, ok := replies[id].(Promise)
		if !ok {
			p.tally(false)
			continue
		}
		p.tally(true)
		promises++
		if pr.Accepted != nil && pr.Value != nil && (highest == nil || pr.Accepted.Greater(*highest)) {
			n := *pr.Accepted
			highest = &n
			chosen = *pr.Value
		}
	}
	if len(replies) < p.members.Quorum() {
		return Outcome{}, p.unreachable(len(replies))
	}
	if quorum := p.members.Quorum(); promises < quorum {
		return Outcome{}, fmt.Errorf("%w: %d promises, quorum %d", ErrPrepareRejected, promises, quorum)
	}
	if highest != nil {
		glog.V(1).Infof("[%d] round %v: adopting %s accepted at %v", p.id, number, chosen, *highest)
	}

	// Phase 2
	p.setPhase(PhaseAccepting)
	p.setValue(chosen)
	replies = p.broadcast(ctx, p.members.IDs(), Accept{Number: number, Value: chosen})
	accepts := 0
	for _, reply := range replies {
		if a, ok := reply.(Accepted); ok && a.Number.Equal(number) && a.Value.ID == chosen.ID {
			accepts++
			p.tally(true)
		} else {
			p.tally(false)
		}
	}
	if len(replies) < p.members.Quorum() {
		return Outcome{}, p.unreachable(len(replies))
	}
	if quorum := p.members.Quorum(); accepts < quorum {
		return Outcome{}, fmt.Errorf("%w: %d accepts, quorum %d", ErrAcceptRejected, accepts, quorum)
	}

	// Phase 3
	p.setPhase(PhaseLearning)
	resp, _ := p.learner.Learn(&number, chosen)
	var others []int
	for _, id := range p.members.IDs() {
		if id != p.id {
			others = append(others, id)
		}
	}
	for id, reply := range p.broadcast(ctx, others, Learn{Number: &number, Value: chosen}) {
		if _, ok := reply.(Ack); !ok {
			glog.Warningf("[%d] replica %d answered learn with %v", p.id, id, reply.Kind())
		}
	}

	return Outcome{
		Number:   number,
		Value:    chosen,
		Original: chosen.ID == v.ID,
		Response: resp,
	}, nil
}

// broadcast exchanges m with every id in parallel and returns the decoded
// replies. Members that time out are removed from the table.
func (p *Proposer) broadcast(ctx context.Context, ids []int, m Message) map[int]Message {
	out := make(map[int]Message, len(ids))
	body, err := Encode(m)
	if err != nil {
		glog.Errorf("[%d] cannot encode %v: %v", p.id, m.Kind(), err)
		return out
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			frame, err := p.net.Exchange(ctx, id, body)
			if err != nil {
				p.lost(ctx, id, err)
				return nil
			}
			reply, err := Decode(frame.Body)
			if err != nil {
				glog.Warningf("[%d] bad reply from %d: %v", p.id, id, err)
				return nil
			}
			mu.Lock()
			out[id] = reply
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// lost removes id after a timed-out exchange. Exchanges cut short by the
// caller's context say nothing about the peer, and a replica never removes
// itself.
func (p *Proposer) lost(ctx context.Context, id int, err error) {
	if id == p.id || expired(ctx) || !errors.Is(err, transport.ErrPeerUnreachable) {
		glog.Warningf("[%d] exchange with %d: %v", p.id, id, err)
		return
	}
	if p.members.Remove(id) {
		glog.Warningf("[%d] removing replica %d: %v (members %v, quorum %d)",
			p.id, id, err, p.members.IDs(), p.members.Quorum())
	}
}

func (p *Proposer) unreachable(answered int) error {
	return fmt.Errorf("%w: %d of %d members answered, quorum %d",
		ErrQuorumUnreachable, answered, p.members.Len(), p.members.Quorum())
}

func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	dl, ok := ctx.Deadline()
	return ok && !time.Now().Before(dl)
}

func (p *Proposer) State() ProposerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Proposer) begin(number clock.Clock, v Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = ProposerState{
		Phase:  PhasePreparing,
		Number: number,
		Value:  v,
		Rounds: p.state.Rounds + 1,
	}
}

func (p *Proposer) setPhase(ph Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Phase = ph
	if ph == PhaseAccepting {
		p.state.Accepts, p.state.Rejects = 0, 0
	}
}

func (p *Proposer) setValue(v Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Value = v
}

func (p *Proposer) tally(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ok {
		p.state.Accepts++
	} else {
		p.state.Rejects++
	}
}

func sortedIDs(m map[int]Message) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
