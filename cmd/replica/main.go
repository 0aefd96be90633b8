// Command replica runs one store replica: the client command listener, the
// UDP backchannel to the other replicas, and optionally the admin HTTP app.
//
//	replica -id 1 -table servers.txt -inventory inventory.txt -logtostderr
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/senutpal/quorumstore/internal/admin"
	"github.com/senutpal/quorumstore/internal/clock"
	"github.com/senutpal/quorumstore/internal/config"
	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/node"
	"github.com/senutpal/quorumstore/internal/server"
	"github.com/senutpal/quorumstore/internal/storage"
	"github.com/senutpal/quorumstore/internal/store"
	"github.com/senutpal/quorumstore/internal/transport"
)

func main() {
	cfg := config.RegisterFlags(flag.CommandLine)
	flag.Parse()
	defer glog.Flush()

	if err := cfg.Load(); err != nil {
		glog.Exitf("%v", err)
	}

	st, err := storage.Open(cfg.Storage)
	if err != nil {
		glog.Exitf("%v", err)
	}
	members := membership.NewTable(cfg.Entries)
	lc := clock.NewLamport(cfg.ID)
	tr := transport.NewUDPTransport(cfg.ID, members, lc, cfg.Timeout)
	r := node.NewReplica(cfg.ID, lc, members, tr, st, store.New(cfg.Inventory))
	if err := r.Start(); err != nil {
		glog.Exitf("%v", err)
	}

	srv := server.New(cfg.ID, cfg.Self().RequestAddr(), r)
	if err := srv.Start(); err != nil {
		r.Stop()
		glog.Exitf("%v", err)
	}

	var adm *admin.Admin
	if cfg.AdminAddr != "" {
		adm = admin.New(r)
		if _, err := adm.Start(cfg.AdminAddr); err != nil {
			glog.Errorf("admin disabled: %v", err)
			adm = nil
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	glog.Infof("[%d] %v, shutting down", cfg.ID, s)

	if adm != nil {
		adm.Stop()
	}
	srv.Stop()
	if err := r.Stop(); err != nil {
		glog.Warningf("[%d] stop: %v", cfg.ID, err)
	}
}
