package paxos

import (
	"errors"
	"reflect"
	"testing"

	"github.com/senutpal/quorumstore/internal/clock"
)

func TestEncodeWireBodies(t *testing.T) {
	n := clock.New(7, 2)
	m := clock.New(4, 1)
	v := Value{ID: clock.New(3, 2), Command: "purchase alice widget 2"}

	tests := []struct {
		msg  Message
		want string
	}{
		{Prepare{Number: n}, "proposer prepare (7, 2)"},
		{Accept{Number: n, Value: v}, "proposer accept [(3, 2) purchase alice widget 2] (7, 2)"},
		{Promise{}, "acceptor accept [null] null"},
		{Promise{Accepted: &m, Value: &v}, "acceptor accept [(3, 2) purchase alice widget 2] (4, 1)"},
		{Accepted{Number: n, Value: v}, "acceptor choose [(3, 2) purchase alice widget 2] (7, 2)"},
		{Reject{}, "acceptor reject"},
		{Learn{Number: &n, Value: v}, "learn [(3, 2) purchase alice widget 2] (7, 2)"},
		{Learn{Value: v}, "learn [(3, 2) purchase alice widget 2]"},
		{Ack{}, "ack"},
	}
	for _, tt := range tests {
		got, err := Encode(tt.msg)
		if err != nil {
			t.Errorf("Encode(%v): %v", tt.msg.Kind(), err)
			continue
		}
		if got != tt.want {
			t.Errorf("Encode(%v) = %q, want %q", tt.msg.Kind(), got, tt.want)
		}
		back, err := Decode(got)
		if err != nil {
			t.Errorf("Decode(%q): %v", got, err)
			continue
		}
		if !reflect.DeepEqual(back, tt.msg) {
			t.Errorf("Decode(%q) = %#v, want %#v", got, back, tt.msg)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	bad := []string{
		"",
		"proposer prepare",
		"proposer prepare (x, 1)",
		"proposer accept [] (1, 1)",
		"proposer accept [(1, 1) buy] null",
		"acceptor choose [(1, 1) buy] null",
		"acceptor maybe [(1, 1) buy] (1, 1)",
		"learn [list]",
		"hello",
	}
	for _, s := range bad {
		if _, err := Decode(s); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformed", s, err)
		}
	}
}

func TestEncodeRejectsReservedCharacters(t *testing.T) {
	for _, cmd := range []string{"purchase a [b] 1", "cancel 1\ncancel 2", "  "} {
		_, err := Encode(Accept{Number: clock.New(1, 1), Value: Value{ID: clock.New(1, 1), Command: cmd}})
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Encode(%q) err = %v, want ErrMalformed", cmd, err)
		}
	}
}

func TestDecodeToleratesTrailingNewline(t *testing.T) {
	msg, err := Decode("proposer prepare (2, 3)\n")
	if err != nil {
		t.Fatal(err)
	}
	if msg != (Prepare{Number: clock.New(2, 3)}) {
		t.Errorf("got %#v", msg)
	}
}
