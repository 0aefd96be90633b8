// Package config turns command-line flags and the files they point at into
// everything a replica needs to start.
//
//   replica -id 2 -table servers.txt -inventory inventory.txt -admin :8080 -storage leveldb
//
// servers.txt lists one replica per line:
//
//   1 127.0.0.1:8001
//   2 127.0.0.1:8002:8202     (explicit backchannel port)
//   3 127.0.0.1:8003
//
// glog registers its own flags (-v, -logtostderr, ...) on the same
// flag.CommandLine.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/senutpal/quorumstore/internal/membership"
	"github.com/senutpal/quorumstore/internal/storage"
	"github.com/senutpal/quorumstore/internal/store"
	"github.com/senutpal/quorumstore/internal/transport"
)

var ErrConfig = errors.New("config")

type Config struct {
	ID            int
	TablePath     string
	InventoryPath string
	Timeout       time.Duration
	AdminAddr     string
	Storage       string

	Entries   []membership.Entry
	Inventory map[string]int
}

// RegisterFlags binds the replica flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.IntVar(&c.ID, "id", 0, "this replica's id in the table (1..N)")
	fs.StringVar(&c.TablePath, "table", "servers.txt", "replica table file")
	fs.StringVar(&c.InventoryPath, "inventory", "inventory.txt", "initial inventory file")
	fs.DurationVar(&c.Timeout, "timeout", transport.DefaultTimeout, "replica exchange timeout")
	fs.StringVar(&c.AdminAddr, "admin", "", "admin HTTP listen address (empty disables)")
	fs.StringVar(&c.Storage, "storage", storage.KindMemory, "acceptor state backend: memory or leveldb")
	return c
}

// Load reads the table and inventory files and checks the id against the
// table.
func (c *Config) Load() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: -timeout must be positive", ErrConfig)
	}
	switch c.Storage {
	case storage.KindMemory, storage.KindLevelDB:
	default:
		return fmt.Errorf("%w: unknown -storage %q", ErrConfig, c.Storage)
	}
	entries, err := membership.ParseFile(c.TablePath)
	if err != nil {
		return fmt.Errorf("%w: table %s: %v", ErrConfig, c.TablePath, err)
	}
	found := false
	for _, e := range entries {
		if e.ID == c.ID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: id %d not in table %s", ErrConfig, c.ID, c.TablePath)
	}
	inv, err := store.LoadInventoryFile(c.InventoryPath)
	if err != nil {
		return fmt.Errorf("%w: inventory %s: %v", ErrConfig, c.InventoryPath, err)
	}
	c.Entries = entries
	c.Inventory = inv
	return nil
}

// Self is this replica's table entry. Valid after Load.
func (c *Config) Self() membership.Entry {
	for _, e := range c.Entries {
		if e.ID == c.ID {
			return e
		}
	}
	return membership.Entry{}
}

// RequestAddrs lists every replica's client address in table order.
func RequestAddrs(entries []membership.Entry) []string {
	addrs := make([]string, 0, len(entries))
	for _, e := range entries {
		addrs = append(addrs, e.RequestAddr())
	}
	return addrs
}
