// =============================================================================
// IN-MEMORY TRANSPORT - Testing/Demo Implementation
// =============================================================================
//
// All replicas run in one Go process and exchange frames through a shared
// Network. Frames are still encoded to text and decoded on arrival, so the
// codec and clock bookkeeping are the same as over UDP.
//
// NETWORK SIMULATION
// ──────────────────
//
//   Link{Drop: 0.2, Delay: 5ms}   drop 20% of datagrams on this link,
//                                 deliver the rest after 5ms
//   Down(id)                      id stops answering (crash)
//   Up(id)                        id answers again
//
// A dropped request or reply looks exactly like a crashed peer to the
// sender: the exchange times out.
//
// NOT FOR PRODUCTION: Only works within a single process!
//
// =============================================================================

package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/clock"
)

type Link struct {
	Drop  float64
	Delay time.Duration
}

type pair struct {
	from, to int
}

type Network struct {
	mu    sync.RWMutex
	nodes map[int]*MemoryTransport
	links map[pair]Link
	down  map[int]bool
	rnd   *rand.Rand
	rndMu sync.Mutex
}

func NewNetwork() *Network {
	return &Network{
		nodes: make(map[int]*MemoryTransport),
		links: make(map[pair]Link),
		down:  make(map[int]bool),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes drop decisions reproducible.
func (n *Network) Seed(seed int64) {
	n.rndMu.Lock()
	n.rnd = rand.New(rand.NewSource(seed))
	n.rndMu.Unlock()
}

func (n *Network) AddNode(id int, lc *clock.Lamport, timeout time.Duration) *MemoryTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &MemoryTransport{id: id, network: n, clock: lc, timeout: timeout}
	n.mu.Lock()
	n.nodes[id] = t
	n.mu.Unlock()
	return t
}

// SetLink configures the one-way link from -> to.
func (n *Network) SetLink(from, to int, l Link) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[pair{from, to}] = l
}

func (n *Network) Down(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = true
}

func (n *Network) Up(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = false
}

// transfer decides the fate of one datagram.
func (n *Network) transfer(from, to int) (time.Duration, bool) {
	n.mu.RLock()
	l := n.links[pair{from, to}]
	down := n.down[from] || n.down[to]
	n.mu.RUnlock()
	if down {
		return 0, false
	}
	if l.Drop > 0 {
		n.rndMu.Lock()
		lost := n.rnd.Float64() < l.Drop
		n.rndMu.Unlock()
		if lost {
			return 0, false
		}
	}
	return l.Delay, true
}

func (n *Network) node(id int) (*MemoryTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.nodes[id]
	return t, ok
}

type MemoryTransport struct {
	id      int
	network *Network
	clock   *clock.Lamport
	timeout time.Duration

	mu      sync.RWMutex
	handler Handler
	closed  bool
}

func (t *MemoryTransport) Exchange(ctx context.Context, to int, body string) (Frame, error) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return Frame{}, ErrClosed
	}

	out := EncodeFrame(Frame{Clock: t.clock.Now(), Body: body})
	t.clock.Tick()
	glog.V(2).Infof("[%d] -> %d: %s", t.id, to, out)

	replies := make(chan string, 1)
	if delay, ok := t.network.transfer(t.id, to); ok {
		go t.deliver(to, out, delay, replies)
	}

	timer := time.NewTimer(time.Until(deadline(ctx, t.timeout)))
	defer timer.Stop()
	select {
	case data := <-replies:
		reply, err := DecodeFrame(data)
		if err != nil {
			return Frame{}, err
		}
		t.clock.Merge(reply.Clock)
		glog.V(2).Infof("[%d] <- %d: %s", t.id, to, reply.Body)
		return reply, nil
	case <-timer.C:
		return Frame{}, fmt.Errorf("%w: replica %d: timeout", ErrPeerUnreachable, to)
	case <-ctx.Done():
		return Frame{}, fmt.Errorf("%w: replica %d: %v", ErrPeerUnreachable, to, ctx.Err())
	}
}

func (t *MemoryTransport) deliver(to int, data string, delay time.Duration, replies chan<- string) {
	if delay > 0 {
		time.Sleep(delay)
	}
	dst, ok := t.network.node(to)
	if !ok {
		return
	}
	reply, ok := dst.receive(data)
	if !ok {
		return
	}
	back, ok := t.network.transfer(to, t.id)
	if !ok {
		return
	}
	if back > 0 {
		time.Sleep(back)
	}
	replies <- reply
}

// receive plays the part of the UDP serve loop for one datagram.
func (t *MemoryTransport) receive(data string) (string, bool) {
	t.mu.RLock()
	h, closed := t.handler, t.closed
	t.mu.RUnlock()
	if h == nil || closed {
		return "", false
	}
	in, err := DecodeFrame(data)
	if err != nil {
		glog.Warningf("[%d] dropping datagram: %v", t.id, err)
		return "", false
	}
	t.clock.Merge(in.Clock)
	reply, ok := h(in.From(), in.Body)
	if !ok {
		return "", false
	}
	out := EncodeFrame(Frame{Clock: t.clock.Now(), Body: reply})
	t.clock.Tick()
	return out, true
}

func (t *MemoryTransport) Listen(h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.handler = h
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handler = nil
	return nil
}
