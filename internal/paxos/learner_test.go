package paxos

import (
	"testing"

	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/storage"
)

func TestLearnerAppliesOncePerRequest(t *testing.T) {
	sm := &recorder{}
	a := NewAcceptor(2, storage.NewMemoryStorage())
	l := NewLearner(2, sm, a)

	var got []Decision
	l.Subscribe(func(d Decision) { got = append(got, d) })

	n := clock.New(4, 1)
	v := Value{ID: clock.New(3, 1), Command: "purchase alice widget 1"}
	resp, fresh := l.Learn(&n, v)
	if !fresh || resp != "ok purchase alice widget 1" {
		t.Fatalf("first learn = %q, %v", resp, fresh)
	}
	resp, fresh = l.Learn(&n, v)
	if fresh || resp != "ok purchase alice widget 1" {
		t.Errorf("duplicate learn = %q, %v", resp, fresh)
	}

	// same text, different request
	twin := Value{ID: clock.New(3, 2), Command: v.Command}
	if _, fresh := l.Learn(nil, twin); !fresh {
		t.Error("distinct request treated as duplicate")
	}

	if c := sm.commands(); len(c) != 2 {
		t.Errorf("applied %v", c)
	}
	if l.Count() != 2 || len(got) != 2 {
		t.Errorf("count %d, decisions %d", l.Count(), len(got))
	}
	if got[0].Replica != 2 || got[0].Number == nil || *got[0].Number != n {
		t.Errorf("decision = %+v", got[0])
	}
	if r, ok := l.Applied(v.ID); !ok || r != resp {
		t.Errorf("Applied = %q, %v", r, ok)
	}
}

func TestLearnerClearsAcceptorSlot(t *testing.T) {
	a := NewAcceptor(1, storage.NewMemoryStorage())
	l := NewLearner(1, &recorder{}, a)
	v := Value{ID: clock.New(1, 3), Command: "cancel 2"}
	n := clock.New(2, 3)
	a.HandleAccept(Accept{Number: n, Value: v})

	l.Learn(&n, v)
	if a.State().Accepted != nil {
		t.Error("slot still holds decided value")
	}
}

func TestLearnerSubscribeDuringDelivery(t *testing.T) {
	l := NewLearner(1, &recorder{}, NewAcceptor(1, storage.NewMemoryStorage()))

	var first, late []string
	l.Subscribe(func(d Decision) {
		first = append(first, d.Value.Command)
		if len(first) == 1 {
			// must not deadlock, and only sees later decisions
			l.Subscribe(func(d Decision) { late = append(late, d.Value.Command) })
		}
	})

	l.Learn(nil, Value{ID: clock.New(1, 1), Command: "cancel 1"})
	l.Learn(nil, Value{ID: clock.New(2, 1), Command: "cancel 2"})

	if len(first) != 2 {
		t.Errorf("first subscriber saw %v", first)
	}
	if len(late) != 1 || late[0] != "cancel 2" {
		t.Errorf("late subscriber saw %v", late)
	}
}
