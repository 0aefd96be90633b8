// =============================================================================
// REPLICA - Wiring All Paxos Roles Together
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// A replica is one server of the store. It plays every role at once:
//
//   ┌─────────────────────────────────────────────────────────┐
//   │                        REPLICA                          │
//   │  ┌───────────┐  ┌───────────┐  ┌───────────┐            │
//   │  │ PROPOSER  │  │ ACCEPTOR  │  │  LEARNER  │──▶ STORE   │
//   │  └─────┬─────┘  └─────┬─────┘  └─────┬─────┘            │
//   │        │              │              │                  │
//   │        └──────────────┼──────────────┘                  │
//   │                 ┌─────┴─────┐   ┌────────────┐          │
//   │                 │ TRANSPORT │   │ MEMBERSHIP │          │
//   │                 └───────────┘   └────────────┘          │
//   │                       all stamped by one Lamport clock  │
//   └─────────────────────────────────────────────────────────┘
//
// Client commands enter through Execute. Replica-to-replica messages
// enter through Handle, which the transport calls once per datagram.
//
// =============================================================================
// MESSAGE ROUTING
// =============================================================================
//
//   Prepare  -> acceptor.HandlePrepare  -> Promise | Reject
//   Accept   -> acceptor.HandleAccept   -> Accepted | Reject
//   Learn    -> learner.Learn           -> Ack
//
// Promise, Accepted, Reject and Ack are replies. They come back through the
// proposer's own exchange and never reach Handle.
//
// =============================================================================
// COMMAND DISPATCH
// =============================================================================
//
//   list, search, malformed   answered from the local store
//   purchase, cancel          one request id, then rounds until that id
//                             is the decided value
//
// Between rounds the dispatcher sleeps 50ms * rand[2..5] so that dueling
// proposers drift apart.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: Handle never waits on the round token.
//
// The proposer sends Prepare and Accept to its own replica. If Handle
// needed the token held by Execute, every round would wait on itself.
//
// =============================================================================

package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/paxos"
	"github.com/senutpal/quorumstore/internal/storage"
	"github.com/senutpal/quorumstore/internal/store"
	"github.com/senutpal/quorumstore/internal/transport"
)

const DefaultBackoff = 50 * time.Millisecond

type Replica struct {
	id        int
	clock     *clock.Lamport
	members   *membership.Table
	transport transport.Transport
	storage   storage.Storage
	store     *store.Store

	acceptor *paxos.Acceptor
	learner  *paxos.Learner
	proposer *paxos.Proposer

	// round serializes local client commands for the whole retry loop.
	round   sync.Mutex
	backoff time.Duration

	mu      sync.Mutex
	running bool
	rnd     *rand.Rand
}

func NewReplica(id int, lc *clock.Lamport, members *membership.Table, t transport.Transport, s storage.Storage, st *store.Store) *Replica {
	acceptor := paxos.NewAcceptor(id, s)
	learner := paxos.NewLearner(id, st, acceptor)
	proposer := paxos.NewProposer(id, lc, members, t, learner)
	return &Replica{
		id:        id,
		clock:     lc,
		members:   members,
		transport: t,
		storage:   s,
		store:     st,
		acceptor:  acceptor,
		learner:   learner,
		proposer:  proposer,
		backoff:   DefaultBackoff,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
}

// SetBackoff changes the base delay between rounds.
func (r *Replica) SetBackoff(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = d
}

func (r *Replica) ID() int { return r.id }

func (r *Replica) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if err := r.transport.Listen(r.Handle); err != nil {
		return fmt.Errorf("replica %d: listen: %w", r.id, err)
	}
	r.running = true
	glog.Infof("[%d] replica started, members %v", r.id, r.members.IDs())
	return nil
}

func (r *Replica) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	err := r.transport.Close()
	if cerr := r.storage.Close(); err == nil {
		err = cerr
	}
	glog.Infof("[%d] replica stopped", r.id)
	return err
}

// Handle answers one message from another replica (or from ourselves).
func (r *Replica) Handle(from int, body string) (string, bool) {
	msg, err := paxos.Decode(body)
	if err != nil {
		glog.Warningf("[%d] from %d: %v", r.id, from, err)
		return "", false
	}

	var reply paxos.Message
	switch m := msg.(type) {
	case paxos.Prepare:
		reply = r.acceptor.HandlePrepare(m)
	case paxos.Accept:
		reply = r.acceptor.HandleAccept(m)
	case paxos.Learn:
		r.learner.Learn(m.Number, m.Value)
		reply = paxos.Ack{}
	default:
		glog.Warningf("[%d] unexpected %v from %d", r.id, msg.Kind(), from)
		return "", false
	}

	out, err := paxos.Encode(reply)
	if err != nil {
		glog.Errorf("[%d] encode %v: %v", r.id, reply.Kind(), err)
		return "", false
	}
	return out, true
}

// Execute runs one client command and returns the response text.
func (r *Replica) Execute(ctx context.Context, line string) string {
	line = strings.TrimSpace(line)
	if store.IsReadOnly(line) {
		return r.store.Apply(line)
	}
	if err := paxos.ValidCommand(line); err != nil {
		return "invalid server command: " + line
	}

	r.round.Lock()
	defer r.round.Unlock()

	v := paxos.Value{ID: r.clock.Tick(), Command: line}
	var lastErr error
	for attempt := 1; ; attempt++ {
		if resp, ok := r.learner.Applied(v.ID); ok {
			return resp
		}

		out, err := r.proposer.Run(ctx, v)
		switch {
		case err == nil && out.Original:
			glog.V(1).Infof("[%d] %q decided after %d round(s)", r.id, line, attempt)
			return out.Response
		case err == nil:
			glog.V(1).Infof("[%d] round %v decided %s, retrying %q", r.id, out.Number, out.Value, line)
		case errors.Is(err, paxos.ErrQuorumUnreachable):
			if lastErr == nil || !errors.Is(lastErr, paxos.ErrQuorumUnreachable) {
				glog.Errorf("[%d] %v", r.id, err)
			}
		default:
			glog.V(1).Infof("[%d] round for %q: %v", r.id, line, err)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if errors.Is(lastErr, paxos.ErrQuorumUnreachable) {
				return "quorum unreachable: " + lastErr.Error()
			}
			return fmt.Sprintf("command not decided: %v", ctx.Err())
		case <-time.After(r.pause()):
		}
	}
}

func (r *Replica) pause() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(2+r.rnd.Intn(4)) * r.backoff
}

// Subscribe registers fn for every decision this replica applies.
func (r *Replica) Subscribe(fn func(paxos.Decision)) {
	r.learner.Subscribe(fn)
}

func (r *Replica) Inventory() map[string]int {
	return r.store.Inventory()
}

type Status struct {
	ID        int           `json:"id"`
	Clock     string        `json:"clock"`
	Members   []int         `json:"members"`
	Original  int           `json:"original"`
	Quorum    int           `json:"quorum"`
	Reachable bool          `json:"reachable"`
	Promised  string        `json:"promised"`
	Accepted  string        `json:"accepted"`
	Value     string        `json:"value"`
	Phase     string        `json:"phase"`
	Rounds    uint64        `json:"rounds"`
	Decisions uint64        `json:"decisions"`
	Orders    []store.Order `json:"orders"`
}

func (r *Replica) Status() Status {
	as := r.acceptor.State()
	ps := r.proposer.State()
	st := Status{
		ID:        r.id,
		Clock:     r.clock.Now().String(),
		Members:   r.members.IDs(),
		Original:  r.members.Original(),
		Quorum:    r.members.Quorum(),
		Reachable: r.members.Reachable(),
		Promised:  as.Promised.String(),
		Accepted:  clock.FormatOptional(as.Accepted),
		Value:     clock.Null,
		Phase:     ps.Phase.String(),
		Rounds:    ps.Rounds,
		Decisions: r.learner.Count(),
		Orders:    r.store.Orders(),
	}
	if as.Value != nil {
		st.Value = as.Value.String()
	}
	return st
}
