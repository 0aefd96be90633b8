// Package client speaks the replica command protocol. It keeps one
// connection to the current replica and hops down the list when that
// replica goes quiet.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/server"
)

const DefaultTimeout = 100 * time.Millisecond

var ErrNoReplica = errors.New("client: no replica answered")

type Client struct {
	addrs   []string
	cur     int
	timeout time.Duration
	// hops bounds how many replicas one command may be tried against.
	hops int

	conn net.Conn
	r    *bufio.Reader
}

func New(addrs []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		addrs:   addrs,
		timeout: timeout,
		hops:    3 * len(addrs),
	}
}

// Current is the address of the replica the client is talking to.
func (c *Client) Current() string {
	if len(c.addrs) == 0 {
		return ""
	}
	return c.addrs[c.cur]
}

// Do sends one command and returns the response lines, without pings and
// the closing EOT.
func (c *Client) Do(line string) ([]string, error) {
	if len(c.addrs) == 0 {
		return nil, ErrNoReplica
	}
	var lastErr error
	for i := 0; i < c.hops; i++ {
		resp, err := c.try(line)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		glog.Warningf("replica %s: %v, hopping", c.Current(), err)
		c.hop()
	}
	return nil, fmt.Errorf("%w: %v", ErrNoReplica, lastErr)
}

func (c *Client) try(line string) ([]string, error) {
	if c.conn == nil {
		conn, err := net.DialTimeout("tcp", c.Current(), c.timeout)
		if err != nil {
			return nil, err
		}
		c.conn = conn
		c.r = bufio.NewReader(conn)
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return nil, err
	}

	var out []string
	for {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		s, err := c.r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		s = strings.TrimRight(s, "\r\n")
		switch s {
		case server.Ping:
			continue
		case server.EOT:
			return out, nil
		}
		out = append(out, s)
	}
}

func (c *Client) hop() {
	c.disconnect()
	c.cur = (c.cur + 1) % len(c.addrs)
}

func (c *Client) disconnect() {
	if c.conn != nil {
		c.conn.Close()
		c.conn, c.r = nil, nil
	}
}

// Close ends the session politely.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	fmt.Fprintf(c.conn, "%s\n", server.Exit)
	err := c.conn.Close()
	c.conn, c.r = nil, nil
	return err
}
