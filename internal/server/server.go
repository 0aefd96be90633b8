// =============================================================================
// COMMAND LISTENER - Client Sessions over TCP
// =============================================================================
//
// Clients talk to a replica over a plain TCP line protocol:
//
//   client                         replica
//   ──────                         ───────
//   purchase alice widget 2  ───▶
//                            ◀───  ping
//                            ◀───  ping          every 50ms while the
//                            ◀───  ping          command is in consensus
//                            ◀───  Your order has been placed, 1 alice widget 2
//                            ◀───  EOT
//   exit                     ───▶  (connection closed)
//
// The pings let a client with a short read timeout tell a slow round apart
// from a dead replica. A client that stops hearing pings hops to another
// replica and resends.
//
// =============================================================================

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	EOT              = "EOT"
	Ping             = "ping"
	Exit             = "exit"
	DefaultKeepalive = 50 * time.Millisecond
)

var ErrNotStarted = errors.New("server: not started")

// Executor runs one command line and returns its response text.
type Executor interface {
	Execute(ctx context.Context, line string) string
}

type Server struct {
	id        int
	addr      string
	exec      Executor
	keepalive time.Duration

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(id int, addr string, exec Executor) *Server {
	return &Server{
		id:        id,
		addr:      addr,
		exec:      exec,
		keepalive: DefaultKeepalive,
		conns:     make(map[net.Conn]struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	glog.Infof("[%d] accepting clients on %s", s.id, ln.Addr())
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Stop() error {
	s.mu.Lock()
	if s.ln == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.cancel()
	err := s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.ln = nil
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			glog.Warningf("[%d] accept: %v", s.id, err)
			continue
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

// session serializes writes from the command path and the pinger.
type session struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (ss *session) println(lines ...string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, l := range lines {
		if _, err := ss.w.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return ss.w.Flush()
}

func (s *Server) serve(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	glog.V(1).Infof("[%d] client %s connected", s.id, conn.RemoteAddr())

	ss := &session{w: bufio.NewWriter(conn)}
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := ss.println(Ping); err != nil {
			return
		}
		if line == Exit {
			glog.V(1).Infof("[%d] client %s exited", s.id, conn.RemoteAddr())
			return
		}
		glog.V(1).Infof("[%d] command from %s: %s", s.id, conn.RemoteAddr(), line)

		stop := s.ping(ss)
		resp := s.exec.Execute(s.ctx, line)
		stop()

		lines := strings.Split(resp, "\n")
		if err := ss.println(append(lines, EOT)...); err != nil {
			glog.Warningf("[%d] reply to %s: %v", s.id, conn.RemoteAddr(), err)
			return
		}
	}
}

// ping writes keepalives until the returned func is called.
func (s *Server) ping(ss *session) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(s.keepalive)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := ss.println(Ping); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
