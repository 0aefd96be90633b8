package clock

import "sync"

// Lamport is the per-process logical clock. Every replica owns exactly one
// and shares it between the transport (stamping and merging datagrams) and
// the proposer (drawing proposal numbers).
type Lamport struct {
	mu  sync.Mutex
	now Clock
}

func NewLamport(owner int) *Lamport {
	return &Lamport{now: Clock{Owner: owner}}
}

func (l *Lamport) Now() Clock {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

func (l *Lamport) Owner() int {
	return l.Now().Owner
}

func (l *Lamport) Tick() Clock {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now.Counter++
	return l.now
}

// Merge folds an observed clock into the local one:
// counter = max(local, observed) + 1. The owner never changes.
func (l *Lamport) Merge(observed Clock) Clock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if observed.Counter > l.now.Counter {
		l.now.Counter = observed.Counter
	}
	l.now.Counter++
	return l.now
}
