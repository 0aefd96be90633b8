// =============================================================================
// MEMBERSHIP TABLE - Who Votes, and How Many Votes Make a Majority
// =============================================================================
//
// The table is loaded once at startup from the operator's replica table and
// then only ever shrinks: the first time an exchange with a replica times
// out, that replica is dropped for the rest of the process lifetime. There is
// no join.
//
// Every removal lowers N, and with it the quorum floor(N/2)+1 used by the
// proposer for later rounds. There is no floor tied to the starting size: a
// lone survivor is its own majority.
//
// =============================================================================
// INVARIANT THIS FILE MUST UPHOLD
// =============================================================================
//
// INVARIANT: A removed identity never comes back.
//
// =============================================================================

package membership

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
)

type Entry struct {
	ID              int
	Host            string
	RequestPort     int
	BackchannelPort int
}

// RequestAddr is where clients send commands.
func (e Entry) RequestAddr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.RequestPort))
}

// BackchannelAddr is where replicas exchange consensus datagrams.
func (e Entry) BackchannelAddr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.BackchannelPort))
}

func (e Entry) String() string {
	return fmt.Sprintf("%d@%s:%d/%d", e.ID, e.Host, e.RequestPort, e.BackchannelPort)
}

type Table struct {
	mu       sync.RWMutex
	entries  map[int]Entry
	original int
	removed  map[int]bool
}

func NewTable(entries []Entry) *Table {
	t := &Table{
		entries: make(map[int]Entry, len(entries)),
		removed: make(map[int]bool),
	}
	for _, e := range entries {
		t.entries[e.ID] = e
	}
	t.original = len(t.entries)
	return t
}

func (t *Table) Lookup(id int) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// IDs returns the live identities in ascending order.
func (t *Table) IDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove drops id permanently. It reports whether the entry was live.
func (t *Table) Remove(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	t.removed[id] = true
	return true
}

func (t *Table) Removed(id int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.removed[id]
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Original is the cluster size the table was created with.
func (t *Table) Original() int {
	return t.original
}

func (t *Table) Quorum() int {
	return Majority(t.Len())
}

// Reachable reports whether the live members can still form their own
// quorum. Quorum follows the effective size, so only an empty table fails.
func (t *Table) Reachable() bool {
	n := t.Len()
	return n > 0 && Majority(n) <= n
}

func Majority(n int) int {
	return n/2 + 1
}
