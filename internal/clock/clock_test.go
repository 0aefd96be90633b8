package clock

import (
	"errors"
	"sync"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Clock
		want int
	}{
		{New(1, 1), New(1, 1), 0},
		{New(1, 2), New(2, 1), -1},
		{New(5, 1), New(5, 2), -1},
		{New(5, 2), New(5, 1), 1},
		{New(6, 1), New(5, 3), 1},
		{Clock{}, New(1, 1), -1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Compare(tt.a); got != -tt.want {
			t.Errorf("%v.Compare(%v) = %d, want %d", tt.b, tt.a, got, -tt.want)
		}
		if got := tt.a.Equal(tt.b); got != (tt.want == 0) {
			t.Errorf("%v.Equal(%v) = %v", tt.a, tt.b, got)
		}
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("(12, 3)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c != New(12, 3) {
		t.Errorf("Parse = %v, want (12, 3)", c)
	}
	if s := c.String(); s != "(12, 3)" {
		t.Errorf("String = %q", s)
	}

	for _, bad := range []string{"", "12, 3", "(a, 3)", "(1, 2", "(-1, 2)", "(1, 2) "} {
		if _, err := Parse(bad); !errors.Is(err, ErrBadClock) {
			t.Errorf("Parse(%q) err = %v, want ErrBadClock", bad, err)
		}
	}
}

func TestParseOptional(t *testing.T) {
	if _, ok, err := ParseOptional(Null); ok || err != nil {
		t.Errorf("ParseOptional(null) = %v, %v", ok, err)
	}
	c, ok, err := ParseOptional("(4, 1)")
	if !ok || err != nil || c != New(4, 1) {
		t.Errorf("ParseOptional((4, 1)) = %v, %v, %v", c, ok, err)
	}
	if FormatOptional(nil) != Null {
		t.Errorf("FormatOptional(nil) != null")
	}
	if FormatOptional(&c) != "(4, 1)" {
		t.Errorf("FormatOptional = %q", FormatOptional(&c))
	}
}

func TestLamportTickIncreases(t *testing.T) {
	l := NewLamport(2)
	prev := l.Now()
	for i := 0; i < 10; i++ {
		next := l.Tick()
		if !next.Greater(prev) {
			t.Fatalf("tick %d: %v not greater than %v", i, next, prev)
		}
		if next.Owner != 2 {
			t.Fatalf("owner changed to %d", next.Owner)
		}
		prev = next
	}
}

func TestLamportMergeDominates(t *testing.T) {
	tests := []struct {
		local, observed Clock
	}{
		{New(3, 1), New(9, 2)},
		{New(9, 1), New(3, 2)},
		{New(4, 1), New(4, 2)},
		{New(0, 1), New(0, 3)},
	}
	for _, tt := range tests {
		l := NewLamport(tt.local.Owner)
		for i := uint64(0); i < tt.local.Counter; i++ {
			l.Tick()
		}
		a := l.Now()
		merged := l.Merge(tt.observed)
		if merged.Compare(a) <= 0 {
			t.Errorf("merge(%v, %v) = %v, not after local", a, tt.observed, merged)
		}
		if merged.Compare(tt.observed) <= 0 {
			t.Errorf("merge(%v, %v) = %v, not after observed", a, tt.observed, merged)
		}
	}
}

func TestLamportConcurrentTicksAreUnique(t *testing.T) {
	l := NewLamport(1)
	const n = 200
	seen := make(chan Clock, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- l.Tick()
		}()
	}
	wg.Wait()
	close(seen)
	uniq := make(map[Clock]bool)
	for c := range seen {
		if uniq[c] {
			t.Fatalf("duplicate clock %v", c)
		}
		uniq[c] = true
	}
	if l.Now().Counter != n {
		t.Errorf("counter = %d, want %d", l.Now().Counter, n)
	}
}
