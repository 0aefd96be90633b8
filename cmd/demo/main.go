// =============================================================================
// DEMO RUNNER - A Replicated Store in One Process
// =============================================================================
//
// =============================================================================
// WHAT THIS FILE REPRESENTS
// =============================================================================
//
// Three replicas share an in-memory network. The demo drives them through
// the situations the protocol exists for and prints what every replica
// ends up with:
//
//                 purchase    purchase    purchase
//                    │           │           │
//                    ▼           ▼           ▼
//               ┌─────────┬─────────┬─────────┐
//               │   R1    │   R2    │   R3    │
//               └────┬────┴────┬────┴────┬────┘
//                    └─────────┴─────────┘
//                  same orders, same ids, everywhere
//
//   1. competing purchases, one per replica, at the same time
//   2. replica 3 crashes; the next purchase drops it from the table
//   3. a cancel and a read on the survivors
//
// Run with: go run ./cmd/demo -logtostderr -v=1
// Add -admin :8080 to watch replica 1 over HTTP while it runs.
//
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/admin"
	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/node"
	"github.com/senutpal/quorumstore/internal/storage"
	"github.com/senutpal/quorumstore/internal/store"
	"github.com/senutpal/quorumstore/internal/transport"
)

func main() {
	n := flag.Int("n", 3, "number of replicas")
	drop := flag.Float64("drop", 0, "probability of losing a datagram on every link")
	adminAddr := flag.String("admin", "", "serve replica 1's admin app on this address")
	hold := flag.Duration("hold", 0, "keep running this long after the scenario")
	backend := flag.String("storage", storage.KindMemory, "acceptor state backend: memory or leveldb")
	flag.Parse()
	defer glog.Flush()

	var entries []membership.Entry
	for id := 1; id <= *n; id++ {
		entries = append(entries, membership.Entry{ID: id, Host: "127.0.0.1", RequestPort: 8000 + id, BackchannelPort: 8100 + id})
	}
	inventory := map[string]int{"widget": 10, "gadget": 4, "phone": 2}

	network := transport.NewNetwork()
	replicas := make([]*node.Replica, *n)
	for i := range replicas {
		id := i + 1
		lc := clock.NewLamport(id)
		tr := network.AddNode(id, lc, transport.DefaultTimeout)
		st, err := storage.Open(*backend)
		if err != nil {
			glog.Exitf("%v", err)
		}
		replicas[i] = node.NewReplica(id, lc, membership.NewTable(entries), tr, st, store.New(inventory))
		if err := replicas[i].Start(); err != nil {
			glog.Exitf("%v", err)
		}
	}
	if *drop > 0 {
		for from := 1; from <= *n; from++ {
			for to := 1; to <= *n; to++ {
				if from != to {
					network.SetLink(from, to, transport.Link{Drop: *drop})
				}
			}
		}
	}

	if *adminAddr != "" {
		adm := admin.New(replicas[0])
		addr, err := adm.Start(*adminAddr)
		if err != nil {
			glog.Exitf("%v", err)
		}
		defer adm.Stop()
		fmt.Printf("admin: http://%s/status\n", addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("== competing purchases")
	var wg sync.WaitGroup
	for _, r := range replicas {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := r.Execute(ctx, fmt.Sprintf("purchase user%d widget 2", r.ID()))
			fmt.Printf("  replica %d: %s\n", r.ID(), resp)
		}()
	}
	wg.Wait()
	report(replicas)

	if *n >= 3 {
		fmt.Printf("== replica %d crashes\n", *n)
		network.Down(*n)
		resp := replicas[0].Execute(ctx, "purchase alice gadget 1")
		fmt.Printf("  replica 1: %s\n", resp)
		report(replicas)
	}

	fmt.Println("== cancel and read")
	fmt.Printf("  replica 2: %s\n", replicas[1].Execute(ctx, "cancel 1"))
	fmt.Printf("  replica 1: %s\n", indent(replicas[0].Execute(ctx, "list")))
	report(replicas)

	if *hold > 0 {
		time.Sleep(*hold)
	}
	for _, r := range replicas {
		r.Stop()
	}
}

func report(replicas []*node.Replica) {
	for _, r := range replicas {
		st := r.Status()
		var orders []string
		for _, o := range st.Orders {
			orders = append(orders, o.String())
		}
		fmt.Printf("  [%d] members %v quorum %d decisions %d orders [%s]\n",
			st.ID, st.Members, st.Quorum, st.Decisions, strings.Join(orders, "; "))
	}
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n             ")
}
