package paxos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/storage"
	"github.com/senutpal/quorumstore/internal/transport"
)

type recorder struct {
	mu      sync.Mutex
	applied []string
}

func (r *recorder) Apply(cmd string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, cmd)
	return "ok " + cmd
}

func (r *recorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

type testReplica struct {
	id       int
	clock    *clock.Lamport
	members  *membership.Table
	acceptor *Acceptor
	learner  *Learner
	proposer *Proposer
	sm       *recorder
	net      *transport.MemoryTransport
}

func (r *testReplica) handle(from int, body string) (string, bool) {
	msg, err := Decode(body)
	if err != nil {
		return "", false
	}
	var reply Message
	switch m := msg.(type) {
	case Prepare:
		reply = r.acceptor.HandlePrepare(m)
	case Accept:
		reply = r.acceptor.HandleAccept(m)
	case Learn:
		r.learner.Learn(m.Number, m.Value)
		reply = Ack{}
	default:
		return "", false
	}
	out, err := Encode(reply)
	if err != nil {
		return "", false
	}
	return out, true
}

func newCluster(t *testing.T, n int) (*transport.Network, []*testReplica) {
	t.Helper()
	var entries []membership.Entry
	for id := 1; id <= n; id++ {
		entries = append(entries, membership.Entry{ID: id, Host: "127.0.0.1", RequestPort: 9000 + id, BackchannelPort: 9100 + id})
	}
	nw := transport.NewNetwork()
	var rs []*testReplica
	for id := 1; id <= n; id++ {
		r := &testReplica{
			id:      id,
			clock:   clock.NewLamport(id),
			members: membership.NewTable(entries),
			sm:      &recorder{},
		}
		tr := nw.AddNode(id, r.clock, 50*time.Millisecond)
		r.net = tr
		r.acceptor = NewAcceptor(id, storage.NewMemoryStorage())
		r.learner = NewLearner(id, r.sm, r.acceptor)
		r.proposer = NewProposer(id, r.clock, r.members, tr, r.learner)
		if err := tr.Listen(r.handle); err != nil {
			t.Fatal(err)
		}
		rs = append(rs, r)
	}
	return nw, rs
}

// decide retries rejected rounds until one completes.
func decide(t *testing.T, p *Proposer, v Value) Outcome {
	t.Helper()
	for i := 0; i < 100; i++ {
		out, err := p.Run(context.Background(), v)
		if err == nil {
			return out
		}
		if !errors.Is(err, ErrPrepareRejected) && !errors.Is(err, ErrAcceptRejected) {
			t.Fatalf("Run: %v", err)
		}
		time.Sleep(time.Duration(2+rand.Intn(4)) * 5 * time.Millisecond)
	}
	t.Fatalf("no decision for %s", v)
	return Outcome{}
}

func TestProposerDecidesOnAllReplicas(t *testing.T) {
	_, rs := newCluster(t, 3)
	v := Value{ID: rs[0].clock.Tick(), Command: "purchase alice widget 2"}

	out, err := rs[0].proposer.Run(context.Background(), v)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Original || out.Value != v {
		t.Errorf("outcome = %+v", out)
	}
	if out.Response != "ok purchase alice widget 2" {
		t.Errorf("response = %q", out.Response)
	}
	for _, r := range rs {
		if got := r.sm.commands(); len(got) != 1 || got[0] != v.Command {
			t.Errorf("replica %d applied %v", r.id, got)
		}
		if st := r.acceptor.State(); st.Accepted != nil {
			t.Errorf("replica %d slot not cleared: %+v", r.id, st)
		}
	}
	if st := rs[0].proposer.State(); st.Phase != PhaseIdle || st.Rounds != 1 {
		t.Errorf("proposer state = %+v", st)
	}
}

func TestProposerAdoptsAcceptedValue(t *testing.T) {
	_, rs := newCluster(t, 3)
	earlier := Value{ID: clock.New(1, 3), Command: "cancel 7"}
	for _, r := range rs[1:] {
		r.acceptor.HandleAccept(Accept{Number: clock.New(1, 3), Value: earlier})
	}

	mine := Value{ID: rs[0].clock.Tick(), Command: "purchase bob gadget 1"}
	out := decide(t, rs[0].proposer, mine)
	if out.Original {
		t.Fatal("own value decided over an accepted one")
	}
	if out.Value != earlier {
		t.Errorf("decided %s, want %s", out.Value, earlier)
	}

	out = decide(t, rs[0].proposer, mine)
	if !out.Original {
		t.Errorf("retry not original: %+v", out)
	}
	for _, r := range rs {
		got := r.sm.commands()
		if len(got) != 2 || got[0] != earlier.Command || got[1] != mine.Command {
			t.Errorf("replica %d applied %v", r.id, got)
		}
	}
}

func TestProposerRemovesUnreachableReplica(t *testing.T) {
	nw, rs := newCluster(t, 3)
	nw.Down(3)

	v := Value{ID: rs[0].clock.Tick(), Command: "purchase carol widget 1"}
	out, err := rs[0].proposer.Run(context.Background(), v)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Original {
		t.Errorf("outcome = %+v", out)
	}
	m := rs[0].members
	if m.Len() != 2 || m.Quorum() != 2 || !m.Removed(3) {
		t.Errorf("members = %v, quorum %d", m.IDs(), m.Quorum())
	}
	if got := rs[1].sm.commands(); len(got) != 1 {
		t.Errorf("replica 2 applied %v", got)
	}
	if got := rs[2].sm.commands(); len(got) != 0 {
		t.Errorf("downed replica applied %v", got)
	}
}

func TestProposerLoneSurvivorDecides(t *testing.T) {
	nw, rs := newCluster(t, 3)
	nw.Down(3)
	first := Value{ID: rs[0].clock.Tick(), Command: "cancel 1"}
	if _, err := rs[0].proposer.Run(context.Background(), first); err != nil {
		t.Fatalf("Run with 2 of 3: %v", err)
	}

	nw.Down(2)
	second := Value{ID: rs[0].clock.Tick(), Command: "cancel 2"}
	out, err := rs[0].proposer.Run(context.Background(), second)
	if err != nil {
		t.Fatalf("Run with 1 of 3: %v", err)
	}
	if !out.Original {
		t.Errorf("outcome = %+v", out)
	}
	m := rs[0].members
	if m.Len() != 1 || m.Quorum() != 1 || !m.Reachable() {
		t.Errorf("members = %v, quorum %d", m.IDs(), m.Quorum())
	}

	// the table does not grow back
	nw.Up(2)
	nw.Up(3)
	third := Value{ID: rs[0].clock.Tick(), Command: "cancel 3"}
	if _, err := rs[0].proposer.Run(context.Background(), third); err != nil {
		t.Fatalf("Run after Up: %v", err)
	}
	if got := rs[0].sm.commands(); len(got) != 3 {
		t.Errorf("replica 1 applied %v", got)
	}
	if got := rs[1].sm.commands(); len(got) != 1 {
		t.Errorf("removed replica 2 applied %v", got)
	}
}

func TestProposerQuorumUnreachable(t *testing.T) {
	nw, rs := newCluster(t, 3)
	nw.Down(2)
	nw.Down(3)

	// the context ends before the exchange timeout, so nobody is removed
	// and only our own promise arrives
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	v := Value{ID: rs[0].clock.Tick(), Command: "cancel 1"}
	_, err := rs[0].proposer.Run(ctx, v)
	if !errors.Is(err, ErrQuorumUnreachable) {
		t.Fatalf("err = %v, want ErrQuorumUnreachable", err)
	}
	if got := rs[0].sm.commands(); len(got) != 0 {
		t.Errorf("applied without quorum: %v", got)
	}
	if n := rs[0].members.Len(); n != 3 {
		t.Errorf("members = %v", rs[0].members.IDs())
	}
}

func TestProposerPrepareRejected(t *testing.T) {
	_, rs := newCluster(t, 3)
	high := clock.New(40, 3)
	for _, r := range rs[1:] {
		// as if a prepare from replica 3 had arrived over the network
		r.clock.Merge(high)
		if _, ok := r.acceptor.HandlePrepare(Prepare{Number: high}).(Promise); !ok {
			t.Fatalf("replica %d refused %v", r.id, high)
		}
	}

	v := Value{ID: rs[0].clock.Tick(), Command: "purchase dave phone 1"}
	_, err := rs[0].proposer.Run(context.Background(), v)
	if !errors.Is(err, ErrPrepareRejected) {
		t.Fatalf("err = %v, want ErrPrepareRejected", err)
	}
	last := rs[0].proposer.State().Number
	if !last.Less(high) {
		t.Fatalf("first number %v should be below %v", last, high)
	}

	// the rejects carried clocks past 40, so every later number is higher
	for i := 0; i < 3; i++ {
		v := Value{ID: rs[0].clock.Tick(), Command: fmt.Sprintf("cancel %d", i+1)}
		out, err := rs[0].proposer.Run(context.Background(), v)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if !out.Number.Greater(last) || !out.Number.Greater(high) {
			t.Errorf("round %d number %v, previous %v", i, out.Number, last)
		}
		if got := rs[0].proposer.State().Number; got != out.Number {
			t.Errorf("state number %v, outcome %v", got, out.Number)
		}
		last = out.Number
	}
}

// preempting runs a competing prepare on the target replica before any
// accept reaches it.
type preempting struct {
	Exchanger
	rs     []*testReplica
	number clock.Clock
}

func (p *preempting) Exchange(ctx context.Context, to int, body string) (transport.Frame, error) {
	if to != 1 && strings.HasPrefix(body, "proposer accept") {
		p.rs[to-1].acceptor.HandlePrepare(Prepare{Number: p.number})
	}
	return p.Exchanger.Exchange(ctx, to, body)
}

func TestProposerAcceptRejected(t *testing.T) {
	_, rs := newCluster(t, 3)
	net := &preempting{Exchanger: rs[0].net, rs: rs, number: clock.New(1000, 2)}
	p := NewProposer(1, rs[0].clock, rs[0].members, net, rs[0].learner)

	v := Value{ID: rs[0].clock.Tick(), Command: "purchase erin widget 3"}
	_, err := p.Run(context.Background(), v)
	if !errors.Is(err, ErrAcceptRejected) {
		t.Fatalf("err = %v, want ErrAcceptRejected", err)
	}
	for _, r := range rs {
		if got := r.sm.commands(); len(got) != 0 {
			t.Errorf("replica %d applied %v", r.id, got)
		}
	}
	if st := p.State(); st.Phase != PhaseIdle || st.Rejects != 2 {
		t.Errorf("proposer state = %+v", st)
	}
}

func TestProposerKeepsItselfOnSelfTimeout(t *testing.T) {
	nw, rs := newCluster(t, 3)
	nw.SetLink(1, 1, transport.Link{Drop: 1})

	v := Value{ID: rs[0].clock.Tick(), Command: "cancel 9"}
	if _, err := rs[0].proposer.Run(context.Background(), v); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m := rs[0].members; m.Len() != 3 || m.Removed(1) {
		t.Errorf("members = %v", m.IDs())
	}

	nw.SetLink(1, 1, transport.Link{})
	v = Value{ID: rs[0].clock.Tick(), Command: "cancel 10"}
	if _, err := rs[0].proposer.Run(context.Background(), v); err != nil {
		t.Fatalf("Run after link restored: %v", err)
	}
	if st := rs[0].acceptor.State(); st.Promised.Owner != 1 {
		t.Errorf("own acceptor promised %v", st.Promised)
	}
}

func TestConcurrentProposersAgree(t *testing.T) {
	_, rs := newCluster(t, 3)

	var wg sync.WaitGroup
	for _, r := range rs[:2] {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := Value{ID: r.clock.Tick(), Command: fmt.Sprintf("purchase user%d widget 1", r.id)}
			for i := 0; i < 200; i++ {
				out, err := r.proposer.Run(context.Background(), v)
				if err == nil && out.Original {
					return
				}
				time.Sleep(time.Duration(2+rand.Intn(4)) * 5 * time.Millisecond)
			}
			t.Errorf("replica %d never decided its command", r.id)
		}()
	}
	wg.Wait()

	for _, r := range rs {
		got := r.sm.commands()
		if len(got) != 2 {
			t.Errorf("replica %d applied %v", r.id, got)
			continue
		}
		seen := map[string]int{}
		for _, c := range got {
			seen[c]++
		}
		if seen["purchase user1 widget 1"] != 1 || seen["purchase user2 widget 1"] != 1 {
			t.Errorf("replica %d applied %v", r.id, got)
		}
	}
}
