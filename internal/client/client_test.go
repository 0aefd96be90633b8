package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/senutpal/quorumstore/internal/server"
)

type upper struct {
	delay time.Duration
}

func (u upper) Execute(ctx context.Context, line string) string {
	time.Sleep(u.delay)
	return "ok " + line
}

func live(t *testing.T, delay time.Duration) string {
	t.Helper()
	s := server.New(1, "127.0.0.1:0", upper{delay: delay})
	if err := s.Start(); err != nil {
		t.Skipf("no tcp: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s.Addr().String()
}

func dead(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no tcp: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestDoSkipsPings(t *testing.T) {
	c := New([]string{live(t, 250*time.Millisecond)}, 0)
	defer c.Close()

	got, err := c.Do("purchase alice widget 1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "ok purchase alice widget 1" {
		t.Errorf("Do = %q", got)
	}
}

func TestHopsPastDeadReplica(t *testing.T) {
	up := live(t, 0)
	c := New([]string{dead(t), up}, 0)
	defer c.Close()

	got, err := c.Do("list")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "ok list" {
		t.Errorf("Do = %q", got)
	}
	if c.Current() != up {
		t.Errorf("current = %s, want %s", c.Current(), up)
	}
}

func TestNoReplica(t *testing.T) {
	c := New([]string{dead(t), dead(t)}, 20*time.Millisecond)
	if _, err := c.Do("list"); !errors.Is(err, ErrNoReplica) {
		t.Errorf("err = %v", err)
	}
	if _, err := New(nil, 0).Do("list"); !errors.Is(err, ErrNoReplica) {
		t.Errorf("empty list err = %v", err)
	}
}
