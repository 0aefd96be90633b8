package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/membership"
)

const maxDatagram = 64000

// UDPTransport exchanges frames with the replicas in a membership table over
// datagrams. Requests go to a peer's backchannel port; replies come back to
// the ephemeral socket the request was sent from.
type UDPTransport struct {
	id      int
	members *membership.Table
	clock   *clock.Lamport
	timeout time.Duration

	mu     sync.Mutex
	conn   *net.UDPConn
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewUDPTransport(id int, members *membership.Table, lc *clock.Lamport, timeout time.Duration) *UDPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &UDPTransport{
		id:      id,
		members: members,
		clock:   lc,
		timeout: timeout,
	}
}

func (t *UDPTransport) Exchange(ctx context.Context, to int, body string) (Frame, error) {
	e, ok := t.members.Lookup(to)
	if !ok {
		return Frame{}, fmt.Errorf("%w: replica %d not in table", ErrPeerUnreachable, to)
	}
	raddr, err := net.ResolveUDPAddr("udp", e.BackchannelAddr())
	if err != nil {
		return Frame{}, fmt.Errorf("%w: replica %d: %v", ErrPeerUnreachable, to, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: replica %d: %v", ErrPeerUnreachable, to, err)
	}
	defer conn.Close()

	out := EncodeFrame(Frame{Clock: t.clock.Now(), Body: body})
	if _, err := conn.Write([]byte(out)); err != nil {
		return Frame{}, fmt.Errorf("%w: replica %d: %v", ErrPeerUnreachable, to, err)
	}
	t.clock.Tick()
	glog.V(2).Infof("[%d] -> %d: %s", t.id, to, out)

	conn.SetReadDeadline(deadline(ctx, t.timeout))
	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: replica %d: %v", ErrPeerUnreachable, to, err)
	}
	reply, err := DecodeFrame(string(buf[:n]))
	if err != nil {
		return Frame{}, err
	}
	t.clock.Merge(reply.Clock)
	glog.V(2).Infof("[%d] <- %d: %s", t.id, to, reply.Body)
	return reply, nil
}

func (t *UDPTransport) Listen(h Handler) error {
	e, ok := t.members.Lookup(t.id)
	if !ok {
		return fmt.Errorf("transport: replica %d not in table", t.id)
	}
	laddr, err := net.ResolveUDPAddr("udp", e.BackchannelAddr())
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.stopCh = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.serve(conn, h)
	glog.Infof("[%d] listening for replicas on %s", t.id, conn.LocalAddr())
	return nil
}

func (t *UDPTransport) serve(conn *net.UDPConn, h Handler) {
	defer t.wg.Done()
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(t.timeout))
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-t.stopCh:
				return
			default:
			}
			glog.Warningf("[%d] receive error: %v", t.id, err)
			continue
		}
		data := string(buf[:n])
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handle(conn, src, data, h)
		}()
	}
}

func (t *UDPTransport) handle(conn *net.UDPConn, src *net.UDPAddr, data string, h Handler) {
	in, err := DecodeFrame(data)
	if err != nil {
		glog.Warningf("[%d] dropping datagram from %s: %v", t.id, src, err)
		return
	}
	t.clock.Merge(in.Clock)
	glog.V(2).Infof("[%d] <- %d: %s", t.id, in.From(), in.Body)

	reply, ok := h(in.From(), in.Body)
	if !ok {
		return
	}
	out := EncodeFrame(Frame{Clock: t.clock.Now(), Body: reply})
	if _, err := conn.WriteToUDP([]byte(out), src); err != nil {
		glog.Warningf("[%d] reply to %s failed: %v", t.id, src, err)
		return
	}
	t.clock.Tick()
}

func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return nil
	}
	close(t.stopCh)
	err := t.conn.Close()
	t.conn = nil
	t.mu.Unlock()
	t.wg.Wait()
	return err
}
